// Package async provides the bounded task spawner the pool uses to run
// connection creation off the acquire path.
package async

import (
	"context"
	"fmt"
	"sync"

	"github.com/pimeys/tang-go/errs"
)

// Task represents a unit of work executed by the spawner workers.
type Task func(context.Context) error

// Spawner is a bounded worker group with a fixed-depth queue. Submit never
// blocks: when the queue is full it fails synchronously, which callers use to
// roll back optimistic bookkeeping in the same critical section.
type Spawner struct {
	ctx    context.Context
	cancel context.CancelFunc
	jobs   chan job
	wg     sync.WaitGroup
	once   sync.Once

	mu     sync.Mutex
	closed bool
}

type job struct {
	ctx context.Context
	fn  Task
}

// NewSpawner creates a spawner with the given worker count and queue depth.
func NewSpawner(workers, queue int) (*Spawner, error) {
	if workers <= 0 {
		return nil, errs.New("lib/async", errs.CodeInvalid, errs.WithMessage("workers must be >0"))
	}
	if queue < 0 {
		queue = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := new(Spawner)
	s.ctx = ctx
	s.cancel = cancel
	s.jobs = make(chan job, queue)
	for i := 0; i < workers; i++ {
		go s.worker()
	}
	return s, nil
}

// Submit schedules the task, failing synchronously when the spawner is closed,
// the context is done, or the queue is at capacity.
func (s *Spawner) Submit(ctx context.Context, fn Task) error {
	if fn == nil {
		return errs.New("lib/async", errs.CodeInvalid, errs.WithMessage("task must not be nil"))
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("submit context: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errs.New("lib/async", errs.CodeClosed, errs.WithMessage("spawner closed"))
	}
	select {
	case s.jobs <- job{ctx: ctx, fn: fn}:
		s.wg.Add(1)
		return nil
	default:
		return errs.New("lib/async", errs.CodeUnavailable, errs.WithMessage("spawner at capacity"))
	}
}

// Close stops accepting new tasks and cancels workers. The jobs channel is
// never closed so a racing Submit can only fail, not panic; queued tasks that
// will never run are drained here to settle the in-flight count.
func (s *Spawner) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.cancel()
		for {
			select {
			case <-s.jobs:
				s.wg.Done()
			default:
				return
			}
		}
	})
}

// Shutdown waits for in-flight tasks to complete or until the context expires.
func (s *Spawner) Shutdown(ctx context.Context) error {
	s.Close()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("shutdown context: %w", ctx.Err())
	case <-done:
		return nil
	}
}

func (s *Spawner) worker() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case job := <-s.jobs:
			ctx := job.ctx
			if ctx == nil {
				ctx = s.ctx
			}
			func() {
				defer func() {
					if r := recover(); r != nil {
						// swallow panics to keep the worker alive; creation
						// failures surface through the task's own error path.
						_ = r
					}
				}()
				if err := job.fn(ctx); err != nil {
					// Task errors are the task owner's to handle; the worker
					// only cares about staying alive.
					_ = err
				}
			}()
			s.wg.Done()
		}
	}
}
