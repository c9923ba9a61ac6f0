package submit

import (
	"context"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
)

// Task is one unit of transaction-producing work. Run receives the queue's
// context; a non-nil error marks the task failed, which resets the nonce
// cache before the next task starts.
type Task struct {
	Label string
	Run   func(ctx context.Context) error
}

type nonceResetter interface {
	Reset()
}

// SerialQueue runs tasks strictly one at a time in enqueue order, in the
// background, without blocking the enqueuing caller. A single drain loop
// exists at any moment: Enqueue while draining only appends to the tail.
// This one-at-a-time discipline is a correctness requirement — it is what
// keeps nonce issuance single-writer.
type SerialQueue struct {
	mu         sync.Mutex
	tasks      []Task
	processing bool
	seq        nonceResetter
	logger     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSerialQueue(seq nonceResetter, logger *zap.Logger) *SerialQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SerialQueue{
		seq:    seq,
		logger: logger.Named("txqueue"),
		ctx:    context.Background(),
	}
}

// Start installs the context tasks run under. Optional; without it tasks run
// under context.Background.
func (q *SerialQueue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ctx, q.cancel = context.WithCancel(ctx)
}

// Stop cancels in-flight work and waits for the queue to drain.
func (q *SerialQueue) Stop() {
	q.mu.Lock()
	cancel := q.cancel
	q.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	q.wg.Wait()
}

// Enqueue appends the task and returns immediately. The first enqueue after
// an idle period starts the drain loop.
func (q *SerialQueue) Enqueue(t Task) {
	q.mu.Lock()
	q.tasks = append(q.tasks, t)
	q.wg.Add(1)
	if q.processing {
		q.mu.Unlock()
		return
	}
	q.processing = true
	q.mu.Unlock()

	go q.drain()
}

// WaitIdle blocks until every task enqueued so far has finished. Used by
// shutdown and tests.
func (q *SerialQueue) WaitIdle() {
	q.wg.Wait()
}

// Len returns the number of tasks still waiting to run.
func (q *SerialQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *SerialQueue) drain() {
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			q.processing = false
			q.mu.Unlock()
			return
		}
		task := q.tasks[0]
		q.tasks = q.tasks[1:]
		ctx := q.ctx
		q.mu.Unlock()

		q.runTask(ctx, task)
	}
}

// runTask executes one task. A failure is logged and resets the sequencer so
// a single bad transaction does not poison the nonce for the tasks behind it;
// the loop then continues with the next task.
func (q *SerialQueue) runTask(ctx context.Context, task Task) {
	defer q.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("panic in queued job",
				zap.String("job", task.Label),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			q.seq.Reset()
		}
	}()

	if err := task.Run(ctx); err != nil {
		q.logger.Error("queued job failed",
			zap.String("job", task.Label),
			zap.Error(err))
		q.seq.Reset()
	}
}
