// Package moderation implements the image moderation pipeline: idempotent
// enqueueing, the per-record classify-and-decide run, and the manual review
// gateway for the gray zone.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/tidemarket/moderation/internal/blobstore"
	"github.com/tidemarket/moderation/internal/classifier"
	"github.com/tidemarket/moderation/internal/cleanup"
	"github.com/tidemarket/moderation/internal/metrics"
	"github.com/tidemarket/moderation/internal/model"
	"github.com/tidemarket/moderation/internal/policy"
	"github.com/tidemarket/moderation/internal/repository"
)

var (
	// ErrInvalidDecision is returned for review decisions outside the two
	// manual verdicts.
	ErrInvalidDecision = errors.New("invalid review decision")
	// ErrInvalidEntityType is returned when enqueue receives an unknown
	// entity type.
	ErrInvalidEntityType = errors.New("invalid entity type")
)

// Service ties the pipeline together. It is safe for concurrent use; all
// mutable state lives in the store.
type Service struct {
	store   repository.Store
	blobs   blobstore.Store
	pre     *classifier.Preprocessor
	model   classifier.Model
	policy  policy.Engine
	cleaner *cleanup.Cleaner

	enabled        bool
	processTimeout time.Duration
}

// NewService constructs the Service.
func NewService(store repository.Store, blobs blobstore.Store, pre *classifier.Preprocessor,
	mdl classifier.Model, pol policy.Engine, cleaner *cleanup.Cleaner,
	enabled bool, processTimeout time.Duration) *Service {
	return &Service{
		store:          store,
		blobs:          blobs,
		pre:            pre,
		model:          mdl,
		policy:         pol,
		cleaner:        cleaner,
		enabled:        enabled,
		processTimeout: processTimeout,
	}
}

// Enqueue creates a PENDING record for a newly uploaded image. It is
// idempotent per (imageURL, entityType, entityID): an existing record is
// returned unchanged. With moderation disabled nothing is persisted and a
// synthetic approved record is returned so callers need no special case.
func (s *Service) Enqueue(ctx context.Context, imageURL string, entityType model.EntityType, entityID string) (*model.Record, error) {
	if !model.ValidEntityType(entityType) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidEntityType, entityType)
	}
	if !s.enabled {
		now := time.Now().UTC()
		return &model.Record{
			ID:         uuid.NewString(),
			ImageURL:   imageURL,
			EntityType: entityType,
			EntityID:   entityID,
			Status:     model.StatusApproved,
			CreatedAt:  now,
			UpdatedAt:  now,
		}, nil
	}

	if existing, err := s.store.FindByTriple(ctx, imageURL, entityType, entityID); err == nil {
		return existing, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	rec := &model.Record{
		ID:         uuid.NewString(),
		ImageURL:   imageURL,
		EntityType: entityType,
		EntityID:   entityID,
		Status:     model.StatusPending,
	}
	if err := s.store.Create(ctx, rec); err != nil {
		// A concurrent enqueue may have hit the unique triple first.
		if existing, findErr := s.store.FindByTriple(ctx, imageURL, entityType, entityID); findErr == nil {
			return existing, nil
		}
		return nil, err
	}
	return rec, nil
}

// Process runs the automated pipeline for one claimed record. Failures are
// isolated to the record: they are persisted as FAILED with a reason and
// never propagate, so one poison image cannot take down a batch.
func (s *Service) Process(ctx context.Context, rec *model.Record) {
	if !s.enabled {
		if err := s.store.MarkApproved(ctx, rec.ID); err != nil {
			log.Printf("pipeline: approve %s (disabled): %v", rec.ID, err)
		}
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, s.processTimeout)
	defer cancel()

	score, err := s.classify(runCtx, rec)
	if err != nil {
		s.recordFailure(ctx, rec, err)
		return
	}

	status := s.policy.Decide(score)
	if err := s.store.MarkScored(ctx, rec.ID, score, status); err != nil {
		log.Printf("pipeline: persist outcome for %s: %v", rec.ID, err)
		return
	}
	metrics.RecordsProcessed.WithLabelValues(outcomeLabel(status)).Inc()
	log.Printf("pipeline: record %s scored %.4f -> %s", rec.ID, score, status)
}

// classify downloads, preprocesses, and scores one image.
func (s *Service) classify(ctx context.Context, rec *model.Record) (float64, error) {
	raw, err := s.blobs.Download(ctx, rec.ImageURL)
	if err != nil {
		return 0, fmt.Errorf("download: %w", err)
	}
	start := time.Now()
	tensor, err := s.pre.Preprocess(raw)
	if err != nil {
		return 0, fmt.Errorf("preprocess: %w", err)
	}
	outputs, err := s.model.Predict(ctx, tensor)
	if err != nil {
		return 0, fmt.Errorf("inference: %w", err)
	}
	metrics.InferenceDuration.Observe(time.Since(start).Seconds())

	score, expected, err := classifier.UnsafeScore(outputs)
	if err != nil {
		return 0, fmt.Errorf("score extraction: %w", err)
	}
	if !expected {
		log.Printf("pipeline: record %s: unexpected output shape (%d values), clamped first value", rec.ID, len(outputs))
	}
	return score, nil
}

func (s *Service) recordFailure(ctx context.Context, rec *model.Record, cause error) {
	metrics.RecordsProcessed.WithLabelValues("failed").Inc()
	log.Printf("pipeline: record %s attempt %d failed: %v", rec.ID, rec.RetryCount+1, cause)
	// Persist with a cancellation-free context so a blown deadline during
	// download still leaves a FAILED row behind.
	if err := s.store.MarkFailed(context.WithoutCancel(ctx), rec.ID, cause.Error()); err != nil {
		log.Printf("pipeline: persist failure for %s: %v", rec.ID, err)
	}
}

// Review applies a manual decision to a FLAGGED_FOR_REVIEW record. On
// rejection the single-record cleanup path runs synchronously.
func (s *Service) Review(ctx context.Context, id string, decision model.Decision, reviewer, notes string) (*model.Record, error) {
	var status model.Status
	switch decision {
	case model.DecisionApprove:
		status = model.StatusManuallyApproved
	case model.DecisionReject:
		status = model.StatusManuallyRejected
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidDecision, decision)
	}

	rec, err := s.store.MarkReviewed(ctx, id, status, reviewer, notes)
	if err != nil {
		return nil, err
	}

	switch decision {
	case model.DecisionApprove:
		metrics.ManualReviews.WithLabelValues("approved").Inc()
	case model.DecisionReject:
		metrics.ManualReviews.WithLabelValues("rejected").Inc()
		if err := s.cleaner.CleanRecord(ctx, rec); err != nil {
			// The decision is already persisted; the sweep will retry
			// whatever cleanup step failed here.
			log.Printf("review: immediate cleanup for %s: %v", rec.ID, err)
		} else if updated, getErr := s.store.Get(ctx, rec.ID); getErr == nil {
			rec = updated
		}
	}
	return rec, nil
}

func outcomeLabel(status model.Status) string {
	switch status {
	case model.StatusApproved:
		return "approved"
	case model.StatusFlaggedForReview:
		return "flagged"
	case model.StatusBlocked:
		return "blocked"
	default:
		return "failed"
	}
}
