package submit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeResetter struct {
	resets atomic.Int64
}

func (f *fakeResetter) Reset() { f.resets.Add(1) }

func TestQueueRunsTasksInOrder(t *testing.T) {
	seq := &fakeResetter{}
	q := NewSerialQueue(seq, nil)

	var mu sync.Mutex
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		q.Enqueue(Task{
			Label: "ordered",
			Run: func(context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			},
		})
	}
	q.WaitIdle()

	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
	require.Zero(t, seq.resets.Load())
}

func TestQueueNeverOverlapsTasks(t *testing.T) {
	seq := &fakeResetter{}
	q := NewSerialQueue(seq, nil)

	var running, maxRunning atomic.Int64
	var wg sync.WaitGroup
	wg.Add(8)
	for i := 0; i < 8; i++ {
		go func() {
			defer wg.Done()
			q.Enqueue(Task{
				Label: "concurrent",
				Run: func(context.Context) error {
					n := running.Add(1)
					if n > maxRunning.Load() {
						maxRunning.Store(n)
					}
					running.Add(-1)
					return nil
				},
			})
		}()
	}
	wg.Wait()
	q.WaitIdle()

	require.Equal(t, int64(1), maxRunning.Load())
}

func TestQueueFailureResetsSequencerAndContinues(t *testing.T) {
	seq := &fakeResetter{}
	q := NewSerialQueue(seq, nil)

	var ran atomic.Int64
	q.Enqueue(Task{Label: "boom", Run: func(context.Context) error {
		return errors.New("gateway rejected")
	}})
	q.Enqueue(Task{Label: "after", Run: func(context.Context) error {
		ran.Add(1)
		return nil
	}})
	q.WaitIdle()

	require.Equal(t, int64(1), seq.resets.Load())
	require.Equal(t, int64(1), ran.Load())
}

func TestQueueRecoversFromPanic(t *testing.T) {
	seq := &fakeResetter{}
	q := NewSerialQueue(seq, nil)

	var ran atomic.Int64
	q.Enqueue(Task{Label: "panicky", Run: func(context.Context) error {
		panic("nil map write")
	}})
	q.Enqueue(Task{Label: "after", Run: func(context.Context) error {
		ran.Add(1)
		return nil
	}})
	q.WaitIdle()

	require.Equal(t, int64(1), seq.resets.Load())
	require.Equal(t, int64(1), ran.Load())
}

func TestQueueStopWaitsForDrain(t *testing.T) {
	seq := &fakeResetter{}
	q := NewSerialQueue(seq, nil)
	q.Start(context.Background())

	var done atomic.Bool
	q.Enqueue(Task{Label: "slow", Run: func(context.Context) error {
		done.Store(true)
		return nil
	}})
	q.Stop()

	require.True(t, done.Load())
	require.Zero(t, q.Len())
}
