// Package cleanup makes rejected content actually disappear: it deletes the
// blob behind a BLOCKED or MANUALLY_REJECTED record and clears the
// marketplace row still referencing it.
package cleanup

import (
	"context"
	"fmt"
	"log"

	"github.com/tidemarket/moderation/internal/blobstore"
	"github.com/tidemarket/moderation/internal/metrics"
	"github.com/tidemarket/moderation/internal/model"
	"github.com/tidemarket/moderation/internal/refs"
	"github.com/tidemarket/moderation/internal/repository"
)

// Cleaner runs the cleanup sweep and the synchronous single-record path used
// by manual rejection.
type Cleaner struct {
	store     repository.Store
	blobs     blobstore.Store
	resolvers refs.Set
	batch     int
}

// New constructs a Cleaner.
func New(store repository.Store, blobs blobstore.Store, resolvers refs.Set, batch int) *Cleaner {
	if batch <= 0 {
		batch = 1
	}
	return &Cleaner{store: store, blobs: blobs, resolvers: resolvers, batch: batch}
}

// Sweep processes one bounded batch of cleanup candidates, oldest-processed
// first. Per-record errors are logged and do not stop the batch.
func (c *Cleaner) Sweep(ctx context.Context) error {
	candidates, err := c.store.CleanupCandidates(ctx, c.batch)
	if err != nil {
		return fmt.Errorf("load cleanup candidates: %w", err)
	}
	for _, rec := range candidates {
		if err := c.CleanRecord(ctx, rec); err != nil {
			log.Printf("cleanup: record %s: %v", rec.ID, err)
		}
	}
	return nil
}

// CleanByID fetches a record and cleans it immediately. Manual rejection
// calls this so operators see the effect without waiting for the next sweep.
func (c *Cleaner) CleanByID(ctx context.Context, id string) error {
	rec, err := c.store.Get(ctx, id)
	if err != nil {
		return err
	}
	return c.CleanRecord(ctx, rec)
}

// CleanRecord deletes the blob (best effort), clears the dangling reference,
// and stamps cleanup_at exactly once. Re-running on an already-cleaned record
// is a no-op.
func (c *Cleaner) CleanRecord(ctx context.Context, rec *model.Record) error {
	if !rec.Status.CleanupEligible() {
		return fmt.Errorf("record %s not cleanup-eligible in status %s", rec.ID, rec.Status)
	}
	if rec.CleanupAt != nil {
		metrics.CleanupResults.WithLabelValues("skipped").Inc()
		return nil
	}

	// Blob delete failures are logged but never block reference clearing;
	// a storage hiccup must not leave a broken link in the database.
	if err := c.blobs.Remove(ctx, rec.ImageURL); err != nil {
		metrics.CleanupResults.WithLabelValues("blob_delete_failed").Inc()
		log.Printf("cleanup: delete blob %s: %v", rec.ImageURL, err)
	}

	resolver, ok := c.resolvers[rec.EntityType]
	if !ok {
		return fmt.Errorf("no resolver for entity type %s", rec.EntityType)
	}
	cleared, err := resolver.Clear(ctx, rec.EntityID, rec.ImageURL)
	if err != nil {
		metrics.CleanupResults.WithLabelValues("reference_clear_failed").Inc()
		return fmt.Errorf("clear %s reference %s: %w", rec.EntityType, rec.EntityID, err)
	}
	if !cleared {
		// The entity no longer points at this image (re-upload or already
		// gone); nothing to clear, but the record is still done.
		log.Printf("cleanup: %s %s no longer references %s", rec.EntityType, rec.EntityID, rec.ImageURL)
	}

	marked, err := c.store.MarkCleaned(ctx, rec.ID)
	if err != nil {
		return err
	}
	if marked {
		metrics.CleanupResults.WithLabelValues("cleaned").Inc()
	}
	return nil
}
