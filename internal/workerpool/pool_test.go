package workerpool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool_RunsAllTasks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := New(4, 16, nil)
	pool.Start(ctx)

	var done int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		pool.Submit(func() {
			defer wg.Done()
			atomic.AddInt64(&done, 1)
		})
	}
	wg.Wait()
	if done != 100 {
		t.Fatalf("ran %d tasks, want 100", done)
	}

	cancel()
	pool.Wait()
}

// TestPool_CallerRunsOnSaturation fills the queue before any worker starts
// draining it and checks that the overflow task runs synchronously on the
// submitter.
func TestPool_CallerRunsOnSaturation(t *testing.T) {
	var inline int64
	pool := New(1, 1, func() { atomic.AddInt64(&inline, 1) })

	queued := make(chan struct{})
	pool.Submit(func() { close(queued) }) // occupies the only queue slot

	ran := false
	pool.Submit(func() { ran = true })
	if !ran {
		t.Fatal("overflow task did not run synchronously on the caller")
	}
	if got := atomic.LoadInt64(&inline); got != 1 {
		t.Fatalf("inline hook count = %d, want 1", got)
	}

	// The queued task still runs once workers come up.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)
	select {
	case <-queued:
	case <-time.After(time.Second):
		t.Fatal("queued task never ran after Start")
	}
}

func TestPool_ZeroCapacityAlwaysInline(t *testing.T) {
	// With no queue and no started workers every submission is caller-runs.
	var inline int64
	pool := New(1, 0, func() { atomic.AddInt64(&inline, 1) })

	ran := false
	pool.Submit(func() { ran = true })
	if !ran {
		t.Fatal("task did not run inline")
	}
	if inline != 1 {
		t.Fatalf("inline hook count = %d, want 1", inline)
	}
}
