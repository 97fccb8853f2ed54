// Package workerpool provides the bounded pool that runs per-record pipeline
// work off the poller goroutine. Goroutines + channels power the
// implementation.
package workerpool

import (
	"context"
	"sync"
)

// Pool is a fixed set of workers fed by a bounded queue. When the queue is
// full, Submit runs the task on the submitting goroutine instead of dropping
// it, so a burst of claims throttles the poller rather than losing work.
type Pool struct {
	tasks     chan func()
	workers   int
	onInline  func()
	wg        sync.WaitGroup
	startOnce sync.Once
}

// New builds a Pool with the given worker count and queue capacity.
// onInline, if non-nil, is invoked every time saturation forces a task to run
// on the caller (metrics hook).
func New(workers, capacity int, onInline func()) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if capacity < 0 {
		capacity = 0
	}
	return &Pool{
		tasks:    make(chan func(), capacity),
		workers:  workers,
		onInline: onInline,
	}
}

// Start launches the worker goroutines. Workers drain the queue until the
// context is cancelled.
func (p *Pool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.worker(ctx)
		}
	})
}

// Submit queues task for asynchronous execution, or runs it synchronously on
// the calling goroutine when the queue is full (caller-runs backpressure).
func (p *Pool) Submit(task func()) {
	select {
	case p.tasks <- task:
	default:
		if p.onInline != nil {
			p.onInline()
		}
		task()
	}
}

// Wait blocks until all workers have exited. Call after cancelling the
// context passed to Start.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-p.tasks:
			task()
		}
	}
}
