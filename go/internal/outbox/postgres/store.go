// Package postgres implements the outbox store on PostgreSQL. Conditional
// inserts and claims map to ON CONFLICT DO NOTHING and guarded UPDATEs, so
// the compare-and-swap semantics hold across concurrent publisher processes.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/payguard/frauddetect/go/internal/outbox"
)

// Store persists outbox records in the outbox_records table.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ outbox.Store = (*Store)(nil)

const insertSQL = `
INSERT INTO outbox_records (
	outbox_id, transaction_id, message_id, status, payload,
	decision, reason, risk_score, created_at, updated_at,
	next_attempt_at, attempts, last_error
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (outbox_id) DO NOTHING`

// InsertIfAbsent inserts the record unless the primary key already exists.
func (s *Store) InsertIfAbsent(ctx context.Context, rec *outbox.Record) (bool, error) {
	tag, err := s.pool.Exec(ctx, insertSQL,
		rec.OutboxID, rec.TransactionID, rec.MessageID, string(rec.Status), rec.Payload,
		rec.Decision, rec.Reason, rec.RiskScore, rec.CreatedAt, rec.UpdatedAt,
		rec.NextAttemptAt, rec.Attempts, nullableText(rec.LastError),
	)
	if err != nil {
		return false, fmt.Errorf("insert outbox record: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

const queryPendingSQL = `
SELECT outbox_id, transaction_id, message_id, status, payload,
	decision, reason, risk_score, created_at, updated_at,
	next_attempt_at, attempts, last_error
FROM outbox_records
WHERE status = $1 AND (next_attempt_at IS NULL OR next_attempt_at <= $2)
ORDER BY created_at ASC
LIMIT $3`

// QueryPending returns eligible PENDING records oldest-first.
func (s *Store) QueryPending(ctx context.Context, limit int, now time.Time) ([]*outbox.Record, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, queryPendingSQL, string(outbox.StatusPending), now.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("query pending outbox records: %w", err)
	}
	defer rows.Close()

	var records []*outbox.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending outbox records: %w", err)
	}
	return records, nil
}

const tryClaimSQL = `
UPDATE outbox_records
SET updated_at = $1, next_attempt_at = $2
WHERE outbox_id = $3 AND status = $4 AND updated_at = $5`

// TryClaim performs the compare-and-swap claim. Zero rows affected means a
// concurrent claimer won or the record left PENDING.
func (s *Store) TryClaim(ctx context.Context, rec *outbox.Record, lease time.Duration, now time.Time) (bool, error) {
	nowMillis := now.UnixMilli()
	leaseMillis := lease.Milliseconds()
	if leaseMillis < 0 {
		leaseMillis = 0
	}
	nextAttemptAt := nowMillis + leaseMillis

	tag, err := s.pool.Exec(ctx, tryClaimSQL,
		nowMillis, nextAttemptAt, rec.OutboxID, string(outbox.StatusPending), rec.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("claim outbox record: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}

	rec.UpdatedAt = nowMillis
	rec.NextAttemptAt = nextAttemptAt
	return true, nil
}

const updateSQL = `
UPDATE outbox_records
SET transaction_id = $2, message_id = $3, status = $4, payload = $5,
	decision = $6, reason = $7, risk_score = $8, created_at = $9,
	updated_at = $10, next_attempt_at = $11, attempts = $12, last_error = $13
WHERE outbox_id = $1`

// Update unconditionally overwrites the record.
func (s *Store) Update(ctx context.Context, rec *outbox.Record) error {
	_, err := s.pool.Exec(ctx, updateSQL,
		rec.OutboxID, rec.TransactionID, rec.MessageID, string(rec.Status), rec.Payload,
		rec.Decision, rec.Reason, rec.RiskScore, rec.CreatedAt,
		rec.UpdatedAt, rec.NextAttemptAt, rec.Attempts, nullableText(rec.LastError),
	)
	if err != nil {
		return fmt.Errorf("update outbox record: %w", err)
	}
	return nil
}

func scanRecord(row pgx.Row) (*outbox.Record, error) {
	var (
		rec           outbox.Record
		status        string
		nextAttemptAt *int64
		lastError     *string
	)
	err := row.Scan(
		&rec.OutboxID, &rec.TransactionID, &rec.MessageID, &status, &rec.Payload,
		&rec.Decision, &rec.Reason, &rec.RiskScore, &rec.CreatedAt, &rec.UpdatedAt,
		&nextAttemptAt, &rec.Attempts, &lastError,
	)
	if err != nil {
		return nil, fmt.Errorf("scan outbox record: %w", err)
	}
	rec.Status = outbox.Status(status)
	if nextAttemptAt != nil {
		rec.NextAttemptAt = *nextAttemptAt
	}
	if lastError != nil {
		rec.LastError = *lastError
	}
	return &rec, nil
}

func nullableText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
