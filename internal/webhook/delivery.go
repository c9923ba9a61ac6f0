package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	defaultMaxAttempts    = 3
	defaultAttemptTimeout = 10 * time.Second
)

// baseRetryDelay sets the backoff schedule: the wait before retry k is
// 2^k × baseRetryDelay (10s, then 20s at the default). Overridden in tests.
var baseRetryDelay = 5 * time.Second

// Engine delivers signed webhook notifications. Schedule is fire-and-forget;
// progress is recorded on the resource through the DeliveryStore, and
// retries for one resource are strictly sequential.
type Engine struct {
	store          DeliveryStore
	httpClient     *http.Client
	fallbackSecret string
	maxAttempts    int
	logger         *zap.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
	wg       sync.WaitGroup
}

type EngineParams struct {
	Store          DeliveryStore
	FallbackSecret string
	MaxAttempts    int
	AttemptTimeout time.Duration
	Logger         *zap.Logger
}

func NewEngine(p EngineParams) *Engine {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	timeout := p.AttemptTimeout
	if timeout <= 0 {
		timeout = defaultAttemptTimeout
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store: p.Store,
		httpClient: &http.Client{
			Timeout: timeout,
			// Redirect targets get the same screening as the original URL.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return ValidateURL(req.URL.String())
			},
		},
		fallbackSecret: p.FallbackSecret,
		maxAttempts:    maxAttempts,
		logger:         logger.Named("webhook"),
		inFlight:       make(map[string]struct{}),
	}
}

// Schedule validates the destination, marks the resource pending, and starts
// the delivery loop in the background. An SSRF-unsafe URL is rejected before
// any network call and the record goes terminal failed. An already-terminal
// record is left untouched.
func (e *Engine) Schedule(ctx context.Context, resourceID, rawURL, secret string, notice Notice) error {
	state, err := e.store.DeliveryState(ctx, resourceID)
	if err != nil {
		return errors.Wrap(err, "read delivery state")
	}
	if state.Status.Terminal() {
		return nil
	}

	if err := ValidateURL(rawURL); err != nil {
		state.Status = StatusFailed
		if storeErr := e.store.SetDeliveryState(ctx, resourceID, state); storeErr != nil {
			e.logger.Error("failed to record webhook rejection",
				zap.String("resource", resourceID), zap.Error(storeErr))
		}
		e.logger.Warn("webhook URL rejected",
			zap.String("resource", resourceID), zap.Error(err))
		return errors.Wrap(err, "webhook URL rejected")
	}

	state.Status = StatusPending
	if err := e.store.SetDeliveryState(ctx, resourceID, state); err != nil {
		return errors.Wrap(err, "mark delivery pending")
	}

	e.wg.Add(1)
	go e.deliver(resourceID, rawURL, e.resolveSecret(secret), notice)
	return nil
}

// resolveSecret prefers the caller's own signing secret, falling back to the
// process-wide one.
func (e *Engine) resolveSecret(secret string) string {
	if secret == "" {
		return e.fallbackSecret
	}
	return secret
}

// Wait blocks until all in-flight delivery loops finish. Used on shutdown
// and in tests.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// begin claims the resource's delivery slot. Returns false when a loop is
// already live for it.
func (e *Engine) begin(resourceID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.inFlight[resourceID]; ok {
		return false
	}
	e.inFlight[resourceID] = struct{}{}
	return true
}

func (e *Engine) end(resourceID string) {
	e.mu.Lock()
	delete(e.inFlight, resourceID)
	e.mu.Unlock()
}

// deliver runs the attempt loop for one resource. At most one loop per
// resource is live at a time; a duplicate schedule exits immediately. The
// first attempt fires immediately; each retry waits out the backoff and
// re-reads the stored state first, exiting without sending if another path
// already marked the resource terminal.
func (e *Engine) deliver(resourceID, rawURL, secret string, notice Notice) {
	defer e.wg.Done()
	ctx := context.Background()
	logger := e.logger.With(zap.String("resource", resourceID))

	if !e.begin(resourceID) {
		logger.Debug("delivery loop already running; not starting another")
		return
	}
	defer e.end(resourceID)

	body, err := json.Marshal(notice)
	if err != nil {
		logger.Error("webhook payload not serializable", zap.Error(err))
		return
	}
	signature := Sign(secret, body)
	deliveryID := uuid.NewString()
	bo := newRetryBackOff()

	for {
		state, err := e.store.DeliveryState(ctx, resourceID)
		if err != nil {
			logger.Error("failed to read delivery state", zap.Error(err))
			return
		}
		if state.Status.Terminal() {
			logger.Debug("delivery already terminal; stopping retries",
				zap.String("status", string(state.Status)))
			return
		}
		if state.Attempts >= e.maxAttempts {
			state.Status = StatusFailed
			e.persist(ctx, resourceID, state, logger)
			return
		}

		attemptErr := e.attempt(ctx, rawURL, body, signature, notice.Event, deliveryID)
		state.Attempts++
		state.LastAttemptAt = time.Now().UTC()

		if attemptErr == nil {
			state.Status = StatusDelivered
			e.persist(ctx, resourceID, state, logger)
			logger.Info("webhook delivered",
				zap.String("delivery_id", deliveryID),
				zap.Int("attempts", state.Attempts))
			return
		}

		logger.Warn("webhook attempt failed",
			zap.String("delivery_id", deliveryID),
			zap.Int("attempt", state.Attempts),
			zap.Error(attemptErr))

		if state.Attempts >= e.maxAttempts {
			state.Status = StatusFailed
			e.persist(ctx, resourceID, state, logger)
			logger.Error("webhook delivery exhausted",
				zap.String("delivery_id", deliveryID),
				zap.Int("attempts", state.Attempts))
			return
		}

		state.Status = StatusPending
		e.persist(ctx, resourceID, state, logger)
		time.Sleep(bo.NextBackOff())
	}
}

// attempt performs one POST. Timeouts and connection errors are
// indistinguishable from the caller's perspective: both are retryable.
func (e *Engine) attempt(ctx context.Context, rawURL string, body []byte, signature, event, deliveryID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, signature)
	req.Header.Set(HeaderEvent, event)
	req.Header.Set(HeaderDeliveryID, deliveryID)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("endpoint answered status %d", resp.StatusCode)
	}
	return nil
}

func (e *Engine) persist(ctx context.Context, resourceID string, state DeliveryState, logger *zap.Logger) {
	if err := e.store.SetDeliveryState(ctx, resourceID, state); err != nil {
		logger.Error("failed to persist delivery state", zap.Error(err))
	}
}

// newRetryBackOff yields waits of 2×base, 4×base, 8×base... with no jitter,
// matching the documented 10s/20s schedule at the 5s default.
func newRetryBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * baseRetryDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxInterval = 10 * time.Minute
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}
