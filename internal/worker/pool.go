package worker

import (
	"context"
	"log/slog"
	"sync"
)

type task func()

// Pool runs submitted tasks on n goroutines. With n == 1 tasks run strictly in
// submission order, which is what ordered side effects rely on.
type Pool struct {
	wg      sync.WaitGroup
	jobs    chan task
	mu      sync.RWMutex
	stopped bool
}

// NewPool starts n workers behind a queue of queueSize tasks.
func NewPool(n, queueSize int) *Pool {
	if n < 1 {
		n = 1
	}
	if queueSize < 1 {
		queueSize = 1024
	}
	p := &Pool{jobs: make(chan task, queueSize)}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				p.run(job)
			}
		}()
	}
	return p
}

func (p *Pool) run(job task) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Worker task panic recovered", slog.Any("panic", r))
		}
	}()
	job()
}

// Submit queues f. It reports false once the pool is stopped.
// Submit blocks while the queue is full.
func (p *Pool) Submit(f func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return false
	}
	p.jobs <- f
	return true
}

// TrySubmit queues f without blocking. It reports false when the pool is
// stopped or the queue is full.
func (p *Pool) TrySubmit(f func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return false
	}
	select {
	case p.jobs <- f:
		return true
	default:
		return false
	}
}

// Flush waits until every task submitted before the call has finished.
// Only meaningful for a single-worker pool; with more workers it waits for one barrier task.
func (p *Pool) Flush(ctx context.Context) error {
	done := make(chan struct{})
	p.mu.RLock()
	if p.stopped {
		p.mu.RUnlock()
		return nil
	}
	select {
	case p.jobs <- func() { close(done) }:
		p.mu.RUnlock()
	case <-ctx.Done():
		p.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop drains the queue and waits for the workers. Safe to call twice.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}
