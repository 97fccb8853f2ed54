package cleanup

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/tidemarket/moderation/internal/model"
	"github.com/tidemarket/moderation/internal/refs"
	"github.com/tidemarket/moderation/internal/repository"
)

type fakeBlobs struct {
	removes   int
	removeErr error
}

func (f *fakeBlobs) Download(context.Context, string) ([]byte, error) {
	return nil, errors.New("not used in cleanup")
}

func (f *fakeBlobs) Remove(context.Context, string) error {
	f.removes++
	return f.removeErr
}

type fakeResolver struct {
	clears   int
	cleared  bool
	clearErr error
}

func (f *fakeResolver) Clear(_ context.Context, _, _ string) (bool, error) {
	f.clears++
	return f.cleared, f.clearErr
}

func seedBlocked(t *testing.T, store *repository.MemoryStore, id string) *model.Record {
	t.Helper()
	ctx := context.Background()
	rec := &model.Record{
		ID:         id,
		ImageURL:   fmt.Sprintf("http://minio/imgs/%s.jpg", id),
		EntityType: model.EntityStorePhoto,
		EntityID:   "photo-" + id,
		Status:     model.StatusPending,
	}
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.MarkScored(ctx, id, 0.95, model.StatusBlocked); err != nil {
		t.Fatalf("seed: %v", err)
	}
	got, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return got
}

func TestCleanRecord_HappyPath(t *testing.T) {
	store := repository.NewMemoryStore()
	blobs := &fakeBlobs{}
	resolver := &fakeResolver{cleared: true}
	c := New(store, blobs, refs.Set{model.EntityStorePhoto: resolver}, 10)

	rec := seedBlocked(t, store, "r1")
	if err := c.CleanRecord(context.Background(), rec); err != nil {
		t.Fatalf("CleanRecord: %v", err)
	}

	if blobs.removes != 1 {
		t.Errorf("blob removes = %d, want 1", blobs.removes)
	}
	if resolver.clears != 1 {
		t.Errorf("reference clears = %d, want 1", resolver.clears)
	}
	got, _ := store.Get(context.Background(), "r1")
	if got.CleanupAt == nil {
		t.Error("cleanup_at not stamped")
	}
	if got.Status != model.StatusBlocked {
		t.Errorf("status = %s, cleanup must not change status", got.Status)
	}
}

// TestCleanRecord_IdempotentSecondRun verifies a second run is a full no-op:
// no second delete attempt, cleanup_at unchanged.
func TestCleanRecord_IdempotentSecondRun(t *testing.T) {
	store := repository.NewMemoryStore()
	blobs := &fakeBlobs{}
	resolver := &fakeResolver{cleared: true}
	c := New(store, blobs, refs.Set{model.EntityStorePhoto: resolver}, 10)
	ctx := context.Background()

	rec := seedBlocked(t, store, "r1")
	if err := c.CleanRecord(ctx, rec); err != nil {
		t.Fatalf("first clean: %v", err)
	}
	first, _ := store.Get(ctx, "r1")

	again, _ := store.Get(ctx, "r1")
	if err := c.CleanRecord(ctx, again); err != nil {
		t.Fatalf("second clean: %v", err)
	}
	if blobs.removes != 1 {
		t.Errorf("blob removes = %d after second run, want 1", blobs.removes)
	}
	if resolver.clears != 1 {
		t.Errorf("reference clears = %d after second run, want 1", resolver.clears)
	}
	second, _ := store.Get(ctx, "r1")
	if !second.CleanupAt.Equal(*first.CleanupAt) {
		t.Error("cleanup_at changed on second run")
	}
}

// TestCleanRecord_BlobFailureIsNotFatal checks a storage hiccup still clears
// the database reference and marks the record cleaned.
func TestCleanRecord_BlobFailureIsNotFatal(t *testing.T) {
	store := repository.NewMemoryStore()
	blobs := &fakeBlobs{removeErr: errors.New("storage unavailable")}
	resolver := &fakeResolver{cleared: true}
	c := New(store, blobs, refs.Set{model.EntityStorePhoto: resolver}, 10)

	rec := seedBlocked(t, store, "r1")
	if err := c.CleanRecord(context.Background(), rec); err != nil {
		t.Fatalf("CleanRecord: %v", err)
	}
	if resolver.clears != 1 {
		t.Error("reference not cleared after blob failure")
	}
	got, _ := store.Get(context.Background(), "r1")
	if got.CleanupAt == nil {
		t.Error("record not marked cleaned after blob failure")
	}
}

// TestCleanRecord_ResolverFailureRetries checks a reference-clearing error
// leaves the record un-marked so the next sweep retries it.
func TestCleanRecord_ResolverFailureRetries(t *testing.T) {
	store := repository.NewMemoryStore()
	blobs := &fakeBlobs{}
	resolver := &fakeResolver{clearErr: errors.New("db down")}
	c := New(store, blobs, refs.Set{model.EntityStorePhoto: resolver}, 10)

	rec := seedBlocked(t, store, "r1")
	if err := c.CleanRecord(context.Background(), rec); err == nil {
		t.Fatal("expected error from resolver failure")
	}
	got, _ := store.Get(context.Background(), "r1")
	if got.CleanupAt != nil {
		t.Error("record marked cleaned despite resolver failure")
	}
}

func TestCleanRecord_ReuploadedReferenceLeftAlone(t *testing.T) {
	// Resolver reports nothing cleared (entity points at a newer image);
	// cleanup still completes for the record.
	store := repository.NewMemoryStore()
	blobs := &fakeBlobs{}
	resolver := &fakeResolver{cleared: false}
	c := New(store, blobs, refs.Set{model.EntityStorePhoto: resolver}, 10)

	rec := seedBlocked(t, store, "r1")
	if err := c.CleanRecord(context.Background(), rec); err != nil {
		t.Fatalf("CleanRecord: %v", err)
	}
	got, _ := store.Get(context.Background(), "r1")
	if got.CleanupAt == nil {
		t.Error("record not marked cleaned")
	}
}

func TestCleanRecord_RejectsIneligibleStatus(t *testing.T) {
	store := repository.NewMemoryStore()
	c := New(store, &fakeBlobs{}, refs.Set{}, 10)
	ctx := context.Background()

	rec := &model.Record{
		ID:         "r1",
		ImageURL:   "http://minio/imgs/r1.jpg",
		EntityType: model.EntityStorePhoto,
		EntityID:   "photo-r1",
		Status:     model.StatusPending,
	}
	if err := store.Create(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if err := c.CleanRecord(ctx, rec); err == nil {
		t.Fatal("expected error cleaning a PENDING record")
	}
}

func TestSweep_ContinuesPastBadRecords(t *testing.T) {
	store := repository.NewMemoryStore()
	blobs := &fakeBlobs{}
	// Only STORE_PHOTO has a resolver; the avatar record errors, the photo
	// record must still be cleaned.
	resolver := &fakeResolver{cleared: true}
	c := New(store, blobs, refs.Set{model.EntityStorePhoto: resolver}, 10)
	ctx := context.Background()

	seedBlocked(t, store, "photo")
	avatar := &model.Record{
		ID:         "avatar",
		ImageURL:   "http://minio/imgs/avatar.jpg",
		EntityType: model.EntityUserAvatar,
		EntityID:   "user-1",
		Status:     model.StatusPending,
	}
	if err := store.Create(ctx, avatar); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkScored(ctx, "avatar", 0.99, model.StatusBlocked); err != nil {
		t.Fatal(err)
	}

	if err := c.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	photo, _ := store.Get(ctx, "photo")
	if photo.CleanupAt == nil {
		t.Error("photo record not cleaned when sibling record errored")
	}
	broken, _ := store.Get(ctx, "avatar")
	if broken.CleanupAt != nil {
		t.Error("record without resolver should stay un-cleaned")
	}
}
