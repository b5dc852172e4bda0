// Package memory provides an in-memory outbox store with the same
// conditional-write semantics as the durable implementation. It backs tests
// and local runs, and lets tests stage claim races deterministically.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/payguard/frauddetect/go/internal/outbox"
)

// Store is a mutex-guarded map keyed by OutboxID.
type Store struct {
	mu      sync.Mutex
	records map[string]*outbox.Record
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{records: make(map[string]*outbox.Record)}
}

var _ outbox.Store = (*Store)(nil)

// InsertIfAbsent stores a copy of rec unless the key already exists.
func (s *Store) InsertIfAbsent(ctx context.Context, rec *outbox.Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.OutboxID]; exists {
		return false, nil
	}
	s.records[rec.OutboxID] = rec.Clone()
	return true, nil
}

// QueryPending returns eligible PENDING records oldest-first.
func (s *Store) QueryPending(ctx context.Context, limit int, now time.Time) ([]*outbox.Record, error) {
	if limit <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nowMillis := now.UnixMilli()
	var pending []*outbox.Record
	for _, rec := range s.records {
		if rec.Status != outbox.StatusPending {
			continue
		}
		if rec.NextAttemptAt > nowMillis {
			continue
		}
		pending = append(pending, rec.Clone())
	}

	sort.Slice(pending, func(i, j int) bool {
		if pending[i].CreatedAt != pending[j].CreatedAt {
			return pending[i].CreatedAt < pending[j].CreatedAt
		}
		return pending[i].OutboxID < pending[j].OutboxID
	})

	if len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

// TryClaim applies the compare-and-swap claim against the stored record.
func (s *Store) TryClaim(ctx context.Context, rec *outbox.Record, lease time.Duration, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.records[rec.OutboxID]
	if !exists || stored.Status != outbox.StatusPending || stored.UpdatedAt != rec.UpdatedAt {
		return false, nil
	}

	nowMillis := now.UnixMilli()
	leaseMillis := lease.Milliseconds()
	if leaseMillis < 0 {
		leaseMillis = 0
	}
	stored.UpdatedAt = nowMillis
	stored.NextAttemptAt = nowMillis + leaseMillis
	rec.UpdatedAt = stored.UpdatedAt
	rec.NextAttemptAt = stored.NextAttemptAt
	return true, nil
}

// Update overwrites the stored record.
func (s *Store) Update(ctx context.Context, rec *outbox.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[rec.OutboxID] = rec.Clone()
	return nil
}

// Get returns a copy of the stored record, for inspection in tests.
func (s *Store) Get(outboxID string) (*outbox.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.records[outboxID]
	if !exists {
		return nil, false
	}
	return rec.Clone(), true
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
