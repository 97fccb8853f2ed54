package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tidemarket/moderation/internal/model"
)

const recordColumns = `id, image_url, entity_type, entity_id, status, nsfw_score,
	failure_reason, retry_count, created_at, updated_at, processed_at,
	reviewed_at, reviewed_by, review_notes, cleanup_at`

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Create(ctx context.Context, rec *model.Record) error {
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	_, err := s.pool.Exec(ctx, `
		INSERT INTO moderation_records (id, image_url, entity_type, entity_id, status, retry_count, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, rec.ID, rec.ImageURL, rec.EntityType, rec.EntityID, rec.Status, rec.RetryCount, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert moderation record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*model.Record, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM moderation_records WHERE id=$1`, id)
	return scanRecord(row)
}

func (s *PostgresStore) FindByTriple(ctx context.Context, imageURL string, entityType model.EntityType, entityID string) (*model.Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+recordColumns+` FROM moderation_records
		WHERE image_url=$1 AND entity_type=$2 AND entity_id=$3
	`, imageURL, entityType, entityID)
	return scanRecord(row)
}

// ClaimPending is the single cross-instance synchronization point: the
// SKIP LOCKED read partitions eligible rows between concurrent pollers, and
// the status flip happens before the transaction releases the row locks.
func (s *PostgresStore) ClaimPending(ctx context.Context, limit int) ([]*model.Record, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin claim: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT `+recordColumns+` FROM moderation_records
		WHERE status=$1
		ORDER BY created_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, model.StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("select pending: %w", err)
	}
	claimed, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(claimed) == 0 {
		return nil, tx.Commit(ctx)
	}

	ids := make([]string, len(claimed))
	now := time.Now().UTC()
	for i, rec := range claimed {
		ids[i] = rec.ID
		rec.Status = model.StatusProcessing
		rec.UpdatedAt = now
	}
	if _, err := tx.Exec(ctx, `
		UPDATE moderation_records SET status=$1, updated_at=$2 WHERE id = ANY($3)
	`, model.StatusProcessing, now, ids); err != nil {
		return nil, fmt.Errorf("mark claimed: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return claimed, nil
}

func (s *PostgresStore) RequeueFailed(ctx context.Context, limit, maxRetries int) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE moderation_records SET status=$1, updated_at=$2
		WHERE id IN (
			SELECT id FROM moderation_records
			WHERE status=$3 AND retry_count < $4
			ORDER BY created_at ASC
			LIMIT $5
			FOR UPDATE SKIP LOCKED
		)
	`, model.StatusPending, time.Now().UTC(), model.StatusFailed, maxRetries, limit)
	if err != nil {
		return 0, fmt.Errorf("requeue failed records: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// RequeueStale returns records abandoned mid-flight (instance crash) to the
// pending queue. Staleness is measured from the claim's updated_at stamp.
func (s *PostgresStore) RequeueStale(ctx context.Context, staleAfter time.Duration, limit int) (int, error) {
	cutoff := time.Now().UTC().Add(-staleAfter)
	tag, err := s.pool.Exec(ctx, `
		UPDATE moderation_records SET status=$1, updated_at=$2
		WHERE id IN (
			SELECT id FROM moderation_records
			WHERE status=$3 AND updated_at < $4
			ORDER BY updated_at ASC
			LIMIT $5
			FOR UPDATE SKIP LOCKED
		)
	`, model.StatusPending, time.Now().UTC(), model.StatusProcessing, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("requeue stale records: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) MarkScored(ctx context.Context, id string, score float64, status model.Status) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
		UPDATE moderation_records
		SET status=$1, nsfw_score=$2, failure_reason=NULL, processed_at=$3, updated_at=$3
		WHERE id=$4
	`, status, score, now, id)
	if err != nil {
		return fmt.Errorf("mark scored: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id, reason string) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
		UPDATE moderation_records
		SET status=$1, failure_reason=$2, retry_count=retry_count+1, processed_at=$3, updated_at=$3
		WHERE id=$4
	`, model.StatusFailed, reason, now, id)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkApproved(ctx context.Context, id string) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
		UPDATE moderation_records SET status=$1, processed_at=$2, updated_at=$2 WHERE id=$3
	`, model.StatusApproved, now, id)
	if err != nil {
		return fmt.Errorf("mark approved: %w", err)
	}
	return nil
}

// MarkReviewed performs the manual-review transition with an optimistic
// status guard so a concurrent reviewer cannot double-decide a record.
func (s *PostgresStore) MarkReviewed(ctx context.Context, id string, status model.Status, reviewer, notes string) (*model.Record, error) {
	now := time.Now().UTC()
	row := s.pool.QueryRow(ctx, `
		UPDATE moderation_records
		SET status=$1, reviewed_at=$2, reviewed_by=$3, review_notes=$4, updated_at=$2
		WHERE id=$5 AND status=$6
		RETURNING `+recordColumns,
		status, now, reviewer, notes, id, model.StatusFlaggedForReview)
	rec, err := scanRecord(row)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	// Guard did not match: distinguish a missing record from a wrong state.
	if _, getErr := s.Get(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, ErrInvalidState
}

func (s *PostgresStore) RequeueRecord(ctx context.Context, id string) (*model.Record, error) {
	now := time.Now().UTC()
	row := s.pool.QueryRow(ctx, `
		UPDATE moderation_records
		SET status=$1, retry_count=0, failure_reason=NULL, updated_at=$2
		WHERE id=$3 AND status=$4
		RETURNING `+recordColumns,
		model.StatusPending, now, id, model.StatusFailed)
	rec, err := scanRecord(row)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if _, getErr := s.Get(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, ErrInvalidState
}

func (s *PostgresStore) CleanupCandidates(ctx context.Context, limit int) ([]*model.Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+recordColumns+` FROM moderation_records
		WHERE status = ANY($1) AND cleanup_at IS NULL
		ORDER BY processed_at ASC NULLS LAST
		LIMIT $2
	`, []string{string(model.StatusBlocked), string(model.StatusManuallyRejected)}, limit)
	if err != nil {
		return nil, fmt.Errorf("select cleanup candidates: %w", err)
	}
	return scanRecords(rows)
}

func (s *PostgresStore) MarkCleaned(ctx context.Context, id string) (bool, error) {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		UPDATE moderation_records SET cleanup_at=$1, updated_at=$1
		WHERE id=$2 AND cleanup_at IS NULL
	`, now, id)
	if err != nil {
		return false, fmt.Errorf("mark cleaned: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status model.Status, limit int) ([]*model.Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+recordColumns+` FROM moderation_records
		WHERE status=$1
		ORDER BY created_at DESC
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list by status: %w", err)
	}
	return scanRecords(rows)
}

func (s *PostgresStore) CountByStatus(ctx context.Context) (map[model.Status]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT status, COUNT(*) FROM moderation_records GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()
	counts := make(map[model.Status]int64)
	for rows.Next() {
		var status model.Status
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count rows: %w", err)
	}
	return counts, nil
}

func scanRecord(row pgx.Row) (*model.Record, error) {
	var rec model.Record
	err := row.Scan(
		&rec.ID, &rec.ImageURL, &rec.EntityType, &rec.EntityID, &rec.Status,
		&rec.NSFWScore, &rec.FailureReason, &rec.RetryCount, &rec.CreatedAt,
		&rec.UpdatedAt, &rec.ProcessedAt, &rec.ReviewedAt, &rec.ReviewedBy,
		&rec.ReviewNotes, &rec.CleanupAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan moderation record: %w", err)
	}
	return &rec, nil
}

func scanRecords(rows pgx.Rows) ([]*model.Record, error) {
	defer rows.Close()
	var out []*model.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("record rows: %w", err)
	}
	return out, nil
}
