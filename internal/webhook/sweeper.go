package webhook

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultStaleAfter = 2 * time.Minute
	sweepBatchLimit   = 100
	sweepConcurrency  = 4
)

// PendingDelivery is everything the sweeper needs to re-schedule a stuck
// delivery.
type PendingDelivery struct {
	ResourceID string
	URL        string
	Secret     string
	Notice     Notice
}

// PendingLister finds deliveries stuck in pending past a staleness window,
// typically because the process restarted mid-retry.
type PendingLister interface {
	StalePendingDeliveries(ctx context.Context, olderThan time.Duration, limit int) ([]PendingDelivery, error)
}

// Sweeper periodically re-schedules stale pending deliveries. It does not
// make the queue durable; it narrows the window in which an in-memory retry
// loop can be lost.
type Sweeper struct {
	cron       *gocron.Scheduler
	engine     *Engine
	store      PendingLister
	interval   time.Duration
	staleAfter time.Duration
	logger     *zap.Logger
}

func NewSweeper(engine *Engine, store PendingLister, interval time.Duration, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		cron:       gocron.NewScheduler(time.UTC),
		engine:     engine,
		store:      store,
		interval:   interval,
		staleAfter: defaultStaleAfter,
		logger:     logger.Named("webhook_sweeper"),
	}
}

// Start registers the sweep job and begins running it asynchronously.
func (s *Sweeper) Start(ctx context.Context) error {
	_, err := s.cron.Every(s.interval).Do(func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("panic in webhook sweep",
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()))
			}
		}()
		s.sweep(ctx)
	})
	if err != nil {
		return err
	}
	s.cron.StartAsync()
	return nil
}

// Stop halts the cron scheduler; an in-flight sweep finishes on its own.
func (s *Sweeper) Stop() {
	s.cron.Stop()
}

func (s *Sweeper) sweep(ctx context.Context) {
	pending, err := s.store.StalePendingDeliveries(ctx, s.staleAfter, sweepBatchLimit)
	if err != nil {
		s.logger.Error("failed to list stale deliveries", zap.Error(err))
		return
	}
	if len(pending) == 0 {
		return
	}

	s.logger.Info("re-scheduling stale webhook deliveries", zap.Int("count", len(pending)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	for _, p := range pending {
		p := p
		g.Go(func() error {
			if err := s.engine.Schedule(gctx, p.ResourceID, p.URL, p.Secret, p.Notice); err != nil {
				s.logger.Warn("failed to re-schedule delivery",
					zap.String("resource", p.ResourceID),
					zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}
