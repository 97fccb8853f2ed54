// Package scheduler runs the periodic sweeps: claiming pending records for
// the worker pool, requeueing retryable failures and stale in-flight rows,
// and the cleanup sweep for rejected content.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tidemarket/moderation/internal/cleanup"
	"github.com/tidemarket/moderation/internal/metrics"
	"github.com/tidemarket/moderation/internal/moderation"
	"github.com/tidemarket/moderation/internal/repository"
	"github.com/tidemarket/moderation/internal/workerpool"
)

// Intervals holds the sweep cadences and batch knobs.
type Intervals struct {
	PendingPoll time.Duration
	FailedPoll  time.Duration
	Cleanup     time.Duration
	StaleAfter  time.Duration
	ClaimBatch  int
	MaxRetries  int
}

// Scheduler owns the cron entries and the worker pool that processing runs
// on. The pollers themselves stay lightweight: each cycle claims ids and
// hands them off, never blocking on inference unless the pool is saturated.
type Scheduler struct {
	store     repository.Store
	svc       *moderation.Service
	cleaner   *cleanup.Cleaner
	pool      *workerpool.Pool
	intervals Intervals
	cron      *cron.Cron
}

// New constructs a Scheduler.
func New(store repository.Store, svc *moderation.Service, cleaner *cleanup.Cleaner,
	pool *workerpool.Pool, intervals Intervals) *Scheduler {
	return &Scheduler{
		store:     store,
		svc:       svc,
		cleaner:   cleaner,
		pool:      pool,
		intervals: intervals,
		cron:      cron.New(),
	}
}

// Start registers the sweeps and launches the pool and cron loop. It returns
// once everything is scheduled; cancel ctx to stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.pool.Start(ctx)

	jobs := []struct {
		name  string
		every time.Duration
		run   func(context.Context) error
	}{
		{"pending-poll", s.intervals.PendingPoll, s.claimPending},
		{"failed-poll", s.intervals.FailedPoll, s.requeueEligible},
		{"cleanup-sweep", s.intervals.Cleanup, s.cleaner.Sweep},
	}
	for _, job := range jobs {
		job := job
		spec := fmt.Sprintf("@every %s", job.every)
		if _, err := s.cron.AddFunc(spec, func() { s.runCycle(ctx, job.name, job.run) }); err != nil {
			return fmt.Errorf("schedule %s: %w", job.name, err)
		}
	}
	s.cron.Start()

	go func() {
		<-ctx.Done()
		<-s.cron.Stop().Done()
	}()
	return nil
}

// Wait blocks until the worker pool has drained after cancellation.
func (s *Scheduler) Wait() {
	s.pool.Wait()
}

// runCycle guards one scheduled invocation so a bad cycle (error or panic)
// never kills future scheduling.
func (s *Scheduler) runCycle(ctx context.Context, name string, run func(context.Context) error) {
	if ctx.Err() != nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("scheduler: %s panicked: %v", name, r)
		}
	}()
	if err := run(ctx); err != nil {
		log.Printf("scheduler: %s: %v", name, err)
	}
}

// claimPending atomically claims a batch of PENDING records and dispatches
// each to the pool.
func (s *Scheduler) claimPending(ctx context.Context) error {
	claimed, err := s.store.ClaimPending(ctx, s.intervals.ClaimBatch)
	if err != nil {
		return fmt.Errorf("claim pending: %w", err)
	}
	if len(claimed) == 0 {
		return nil
	}
	metrics.RecordsClaimed.Add(float64(len(claimed)))
	for _, rec := range claimed {
		rec := rec
		s.pool.Submit(func() { s.svc.Process(ctx, rec) })
	}
	return nil
}

// requeueEligible pushes retryable FAILED records and stale PROCESSING rows
// back to PENDING; the next pending poll sweeps them up.
func (s *Scheduler) requeueEligible(ctx context.Context) error {
	retried, err := s.store.RequeueFailed(ctx, s.intervals.ClaimBatch, s.intervals.MaxRetries)
	if err != nil {
		return fmt.Errorf("requeue failed: %w", err)
	}
	if retried > 0 {
		metrics.RecordsRequeued.WithLabelValues("retry").Add(float64(retried))
		log.Printf("scheduler: requeued %d failed records for retry", retried)
	}

	stale, err := s.store.RequeueStale(ctx, s.intervals.StaleAfter, s.intervals.ClaimBatch)
	if err != nil {
		return fmt.Errorf("requeue stale: %w", err)
	}
	if stale > 0 {
		metrics.RecordsRequeued.WithLabelValues("stale").Add(float64(stale))
		log.Printf("scheduler: requeued %d stale in-flight records", stale)
	}
	return nil
}
