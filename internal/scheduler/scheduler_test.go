package scheduler

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/tidemarket/moderation/internal/classifier"
	"github.com/tidemarket/moderation/internal/cleanup"
	"github.com/tidemarket/moderation/internal/model"
	"github.com/tidemarket/moderation/internal/moderation"
	"github.com/tidemarket/moderation/internal/policy"
	"github.com/tidemarket/moderation/internal/refs"
	"github.com/tidemarket/moderation/internal/repository"
	"github.com/tidemarket/moderation/internal/workerpool"
)

type stubBlobs struct {
	image []byte
}

func (s *stubBlobs) Download(context.Context, string) ([]byte, error) { return s.image, nil }
func (s *stubBlobs) Remove(context.Context, string) error            { return nil }

type stubModel struct {
	outputs []float32
}

func (s *stubModel) Predict(context.Context, *classifier.Tensor) ([]float32, error) {
	return s.outputs, nil
}

func (s *stubModel) Close() error { return nil }

type stubResolver struct{}

func (stubResolver) Clear(context.Context, string, string) (bool, error) { return true, nil }

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.Gray{Y: 100})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func newTestScheduler(t *testing.T, store *repository.MemoryStore, score float64) *Scheduler {
	t.Helper()
	blobs := &stubBlobs{image: pngBytes(t)}
	resolvers := refs.Set{model.EntityStorePhoto: stubResolver{}}
	cleaner := cleanup.New(store, blobs, resolvers, 10)
	mdl := &stubModel{outputs: []float32{float32(math.Log(1 - score)), float32(math.Log(score))}}
	svc := moderation.NewService(store, blobs, classifier.NewPreprocessor(8, 8), mdl,
		policy.New(0.3, 0.7), cleaner, true, time.Minute)
	pool := workerpool.New(2, 4, nil)
	return New(store, svc, cleaner, pool, Intervals{
		PendingPoll: 30 * time.Second,
		FailedPoll:  5 * time.Minute,
		Cleanup:     2 * time.Minute,
		StaleAfter:  10 * time.Minute,
		ClaimBatch:  10,
		MaxRetries:  3,
	})
}

func seed(t *testing.T, store *repository.MemoryStore, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id := string(rune('a'+i)) + "-record"
		rec := &model.Record{
			ID:         id,
			ImageURL:   "http://minio/imgs/img.png",
			EntityType: model.EntityStorePhoto,
			EntityID:   "photo-" + id,
			Status:     model.StatusPending,
		}
		if err := store.Create(context.Background(), rec); err != nil {
			t.Fatalf("seed: %v", err)
		}
		ids = append(ids, rec.ID)
	}
	return ids
}

// TestClaimCycle_DrainsPendingRecords runs one claim cycle and waits for the
// pool to finish; every seeded record must land in a terminal state.
func TestClaimCycle_DrainsPendingRecords(t *testing.T) {
	store := repository.NewMemoryStore()
	ids := seed(t, store, 5)
	s := newTestScheduler(t, store, 0.1)

	ctx, cancel := context.WithCancel(context.Background())
	s.pool.Start(ctx)
	if err := s.claimPending(ctx); err != nil {
		t.Fatalf("claimPending: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		counts, _ := store.CountByStatus(ctx)
		if counts[model.StatusApproved] == int64(len(ids)) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("records not drained, counts = %v", counts)
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	s.pool.Wait()
}

func TestRequeueCycle_MovesRetryableFailures(t *testing.T) {
	store := repository.NewMemoryStore()
	seed(t, store, 2)
	ctx := context.Background()

	// One record under budget, one exhausted.
	if err := store.MarkFailed(ctx, "a-record", "boom"); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := store.MarkFailed(ctx, "b-record", "boom"); err != nil {
			t.Fatal(err)
		}
	}

	s := newTestScheduler(t, store, 0.1)
	if err := s.requeueEligible(ctx); err != nil {
		t.Fatalf("requeueEligible: %v", err)
	}

	counts, _ := store.CountByStatus(ctx)
	if counts[model.StatusPending] != 1 || counts[model.StatusFailed] != 1 {
		t.Fatalf("counts = %v, want one PENDING and one FAILED", counts)
	}
}

func TestRunCycle_SurvivesPanicsAndErrors(t *testing.T) {
	store := repository.NewMemoryStore()
	s := newTestScheduler(t, store, 0.1)
	ctx := context.Background()

	// Neither a panic nor an error may escape the cycle wrapper.
	s.runCycle(ctx, "panicky", func(context.Context) error { panic("cycle exploded") })
	s.runCycle(ctx, "failing", func(context.Context) error { return errors.New("cycle error") })

	var ran sync.WaitGroup
	ran.Add(1)
	s.runCycle(ctx, "healthy", func(context.Context) error {
		ran.Done()
		return nil
	})
	ran.Wait()
}

func TestRunCycle_SkipsAfterShutdown(t *testing.T) {
	store := repository.NewMemoryStore()
	s := newTestScheduler(t, store, 0.1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s.runCycle(ctx, "late", func(context.Context) error {
		t.Error("cycle ran after shutdown")
		return nil
	})
}
