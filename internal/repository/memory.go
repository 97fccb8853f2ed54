package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tidemarket/moderation/internal/model"
)

// MemoryStore is an in-memory Store used by tests and local experiments. It
// mirrors the transactional claim semantics of the Postgres store: the mutex
// makes every claim an atomic read-and-mark, so concurrent claimers partition
// records the same way SKIP LOCKED does.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*model.Record
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*model.Record)}
}

func (m *MemoryStore) Create(_ context.Context, rec *model.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	cp := *rec
	m.records[rec.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*model.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryStore) FindByTriple(_ context.Context, imageURL string, entityType model.EntityType, entityID string) (*model.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.ImageURL == imageURL && rec.EntityType == entityType && rec.EntityID == entityID {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ClaimPending(_ context.Context, limit int) ([]*model.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	eligible := m.selectByStatus(model.StatusPending)
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].CreatedAt.Before(eligible[j].CreatedAt) })
	if len(eligible) > limit {
		eligible = eligible[:limit]
	}
	now := time.Now().UTC()
	out := make([]*model.Record, 0, len(eligible))
	for _, rec := range eligible {
		rec.Status = model.StatusProcessing
		rec.UpdatedAt = now
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStore) RequeueFailed(_ context.Context, limit, maxRetries int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	eligible := m.selectByStatus(model.StatusFailed)
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].CreatedAt.Before(eligible[j].CreatedAt) })
	moved := 0
	now := time.Now().UTC()
	for _, rec := range eligible {
		if moved >= limit {
			break
		}
		if rec.RetryCount >= maxRetries {
			continue
		}
		rec.Status = model.StatusPending
		rec.UpdatedAt = now
		moved++
	}
	return moved, nil
}

func (m *MemoryStore) RequeueStale(_ context.Context, staleAfter time.Duration, limit int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().UTC().Add(-staleAfter)
	moved := 0
	for _, rec := range m.records {
		if moved >= limit {
			break
		}
		if rec.Status == model.StatusProcessing && rec.UpdatedAt.Before(cutoff) {
			rec.Status = model.StatusPending
			rec.UpdatedAt = time.Now().UTC()
			moved++
		}
	}
	return moved, nil
}

func (m *MemoryStore) MarkScored(_ context.Context, id string, score float64, status model.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	rec.Status = status
	rec.NSFWScore = &score
	rec.FailureReason = nil
	rec.ProcessedAt = &now
	rec.UpdatedAt = now
	return nil
}

func (m *MemoryStore) MarkFailed(_ context.Context, id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	rec.Status = model.StatusFailed
	rec.FailureReason = &reason
	rec.RetryCount++
	rec.ProcessedAt = &now
	rec.UpdatedAt = now
	return nil
}

func (m *MemoryStore) MarkApproved(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	rec.Status = model.StatusApproved
	rec.ProcessedAt = &now
	rec.UpdatedAt = now
	return nil
}

func (m *MemoryStore) MarkReviewed(_ context.Context, id string, status model.Status, reviewer, notes string) (*model.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	if rec.Status != model.StatusFlaggedForReview {
		return nil, ErrInvalidState
	}
	now := time.Now().UTC()
	rec.Status = status
	rec.ReviewedAt = &now
	rec.ReviewedBy = &reviewer
	rec.ReviewNotes = &notes
	rec.UpdatedAt = now
	cp := *rec
	return &cp, nil
}

func (m *MemoryStore) RequeueRecord(_ context.Context, id string) (*model.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	if rec.Status != model.StatusFailed {
		return nil, ErrInvalidState
	}
	rec.Status = model.StatusPending
	rec.RetryCount = 0
	rec.FailureReason = nil
	rec.UpdatedAt = time.Now().UTC()
	cp := *rec
	return &cp, nil
}

func (m *MemoryStore) CleanupCandidates(_ context.Context, limit int) ([]*model.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var eligible []*model.Record
	for _, rec := range m.records {
		if rec.Status.CleanupEligible() && rec.CleanupAt == nil {
			eligible = append(eligible, rec)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		pi, pj := eligible[i].ProcessedAt, eligible[j].ProcessedAt
		switch {
		case pi == nil:
			return false
		case pj == nil:
			return true
		default:
			return pi.Before(*pj)
		}
	})
	if len(eligible) > limit {
		eligible = eligible[:limit]
	}
	out := make([]*model.Record, 0, len(eligible))
	for _, rec := range eligible {
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStore) MarkCleaned(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok || rec.CleanupAt != nil {
		return false, nil
	}
	now := time.Now().UTC()
	rec.CleanupAt = &now
	rec.UpdatedAt = now
	return true, nil
}

func (m *MemoryStore) ListByStatus(_ context.Context, status model.Status, limit int) ([]*model.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	matched := m.selectByStatus(status)
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	if len(matched) > limit {
		matched = matched[:limit]
	}
	out := make([]*model.Record, 0, len(matched))
	for _, rec := range matched {
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStore) CountByStatus(_ context.Context) (map[model.Status]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[model.Status]int64)
	for _, rec := range m.records {
		counts[rec.Status]++
	}
	return counts, nil
}

// selectByStatus returns live pointers; callers hold the mutex.
func (m *MemoryStore) selectByStatus(status model.Status) []*model.Record {
	var out []*model.Record
	for _, rec := range m.records {
		if rec.Status == status {
			out = append(out, rec)
		}
	}
	return out
}
