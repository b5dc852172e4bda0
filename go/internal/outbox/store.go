package outbox

import (
	"context"
	"time"
)

// Store is the durable table backing the outbox. It is the only shared
// mutable resource between the consumer and the publisher; all coordination
// happens through its conditional writes.
type Store interface {
	// InsertIfAbsent writes the record only if no record with the same
	// OutboxID exists. It reports whether the record was created. This is the
	// de-duplication boundary that makes message redelivery safe.
	InsertIfAbsent(ctx context.Context, rec *Record) (bool, error)

	// QueryPending returns up to limit PENDING records whose NextAttemptAt is
	// unset or has passed, oldest first.
	QueryPending(ctx context.Context, limit int, now time.Time) ([]*Record, error)

	// TryClaim performs a compare-and-swap claim: it succeeds only while the
	// stored record is still PENDING and its UpdatedAt equals rec.UpdatedAt.
	// On success the stored record (and rec) get UpdatedAt=now and
	// NextAttemptAt=now+lease, so a racing claimer fails its own claim. On
	// failure nothing changes and the caller must skip the record.
	TryClaim(ctx context.Context, rec *Record, lease time.Duration, now time.Time) (bool, error)

	// Update unconditionally overwrites the record after a publish attempt.
	Update(ctx context.Context, rec *Record) error
}
