// File: internal/infra/worker/pool.go
package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"neunovapdf-backend/internal/domain"
	"neunovapdf-backend/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Task is a unit of work executed by one pool worker.
type Task = func(ctx context.Context) error

var (
	ErrQueueFull = errors.Join(domain.ErrBusy, errors.New("worker queue full"))
	ErrStopped   = errors.Join(domain.ErrBusy, errors.New("worker pool stopped"))
	errNilTask   = errors.New("nil task")
)

// Pool caps how many tasks run at once. Up to queue tasks may wait for a
// free worker; beyond that Submit and Do reject instead of blocking.
type Pool struct {
	wg   sync.WaitGroup
	jobs chan Task
	quit chan struct{}
	stop sync.Once
	n    int
	log  *zerolog.Logger
}

func NewPool(workers, queue int, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if queue < 0 {
		queue = 0
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "WorkerPool").Logger()
	return &Pool{jobs: make(chan Task, queue), quit: make(chan struct{}), n: workers, log: &l}
}

// Start launches the workers. Cancelling ctx stops the pool like Stop
// does, so nothing can be queued behind workers that already exited.
func (p *Pool) Start(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			p.stop.Do(func() { close(p.quit) })
		case <-p.quit:
		}
	}()
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-p.quit:
					return
				case task := <-p.jobs:
					if task == nil {
						continue
					}
					metrics.AddWorkerBusy(1)
					if err := task(ctx); err != nil {
						p.log.Debug().Int("worker", id).Err(err).Msg("task error")
					}
					metrics.AddWorkerBusy(-1)
				}
			}
		}(i)
	}
}

// Stop signals all workers and waits for running tasks to return.
func (p *Pool) Stop() {
	p.stop.Do(func() { close(p.quit) })
	p.wg.Wait()
}

// Submit enqueues a fire-and-forget task.
func (p *Pool) Submit(task Task) error {
	if task == nil {
		return errNilTask
	}
	select {
	case <-p.quit:
		return ErrStopped
	default:
	}
	select {
	case p.jobs <- task:
		return nil
	default:
		metrics.IncWorkerQueueRejected()
		return ErrQueueFull
	}
}

// Do enqueues task and waits for its result. The task runs with the
// caller's ctx, so cancelling ctx also cancels a running task. A task whose
// caller has gone away before a worker picks it up is skipped.
func (p *Pool) Do(ctx context.Context, task Task) error {
	if task == nil {
		return errNilTask
	}
	done := make(chan error, 1)
	wrapped := func(context.Context) error {
		if err := ctx.Err(); err != nil {
			done <- err
			return nil
		}
		err := task(ctx)
		done <- err
		return err
	}
	if err := p.Submit(wrapped); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-p.quit:
		// a worker may still finish the task; prefer its result if ready
		select {
		case err := <-done:
			return err
		default:
			return ErrStopped
		}
	}
}
