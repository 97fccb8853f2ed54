// Package repository wraps all SQL used by the moderation pipeline, the
// schedulers, and the admin API.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/tidemarket/moderation/internal/model"
)

var (
	// ErrNotFound is returned when no record exists for the given id.
	ErrNotFound = errors.New("moderation record not found")
	// ErrInvalidState is returned when a transition is requested from a
	// status that does not permit it.
	ErrInvalidState = errors.New("moderation record in invalid state for transition")
)

// Store is the persistence contract the pipeline runs against. The Postgres
// implementation is the production one; the in-memory implementation backs
// the tests.
type Store interface {
	// Create inserts a new record.
	Create(ctx context.Context, rec *model.Record) error
	// Get returns a record by id, or ErrNotFound.
	Get(ctx context.Context, id string) (*model.Record, error)
	// FindByTriple returns the record for an exact (url, type, id) triple,
	// or ErrNotFound. Enqueue dedup is built on this.
	FindByTriple(ctx context.Context, imageURL string, entityType model.EntityType, entityID string) (*model.Record, error)

	// ClaimPending atomically selects up to limit PENDING records, oldest
	// first, skipping rows locked by concurrent claimers, and flips them to
	// PROCESSING before returning. No two callers ever receive the same row.
	ClaimPending(ctx context.Context, limit int) ([]*model.Record, error)
	// RequeueFailed flips FAILED records with retry_count < maxRetries back
	// to PENDING so the next pending claim sweeps them up. Returns how many
	// rows it moved.
	RequeueFailed(ctx context.Context, limit, maxRetries int) (int, error)
	// RequeueStale flips records stuck in PROCESSING longer than staleAfter
	// back to PENDING without touching their retry count.
	RequeueStale(ctx context.Context, staleAfter time.Duration, limit int) (int, error)

	// MarkScored stores the classifier score together with the automated
	// outcome and stamps processed_at.
	MarkScored(ctx context.Context, id string, score float64, status model.Status) error
	// MarkFailed records a processing failure: increments retry_count, sets
	// failure_reason and processed_at, status FAILED.
	MarkFailed(ctx context.Context, id, reason string) error
	// MarkApproved approves a record without a score (moderation disabled).
	MarkApproved(ctx context.Context, id string) error
	// MarkReviewed applies a manual decision to a FLAGGED_FOR_REVIEW record.
	// Returns ErrNotFound or ErrInvalidState without modifying anything.
	MarkReviewed(ctx context.Context, id string, status model.Status, reviewer, notes string) (*model.Record, error)
	// RequeueRecord pushes a terminal FAILED record back to PENDING with a
	// fresh retry budget (operator action).
	RequeueRecord(ctx context.Context, id string) (*model.Record, error)

	// CleanupCandidates lists BLOCKED / MANUALLY_REJECTED records not yet
	// cleaned, oldest-processed first.
	CleanupCandidates(ctx context.Context, limit int) ([]*model.Record, error)
	// MarkCleaned stamps cleanup_at exactly once. Reports false when the
	// record was already cleaned (or does not exist).
	MarkCleaned(ctx context.Context, id string) (bool, error)

	// ListByStatus returns records in a given status, newest first.
	ListByStatus(ctx context.Context, status model.Status, limit int) ([]*model.Record, error)
	// CountByStatus returns record counts grouped by status.
	CountByStatus(ctx context.Context) (map[model.Status]int64, error)
}
