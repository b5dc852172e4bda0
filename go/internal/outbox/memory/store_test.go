package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payguard/frauddetect/go/internal/outbox"
)

func newRecord(id string, createdAt int64) *outbox.Record {
	return &outbox.Record{
		OutboxID:      id,
		TransactionID: id,
		Status:        outbox.StatusPending,
		Payload:       []byte("payload-" + id),
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
		NextAttemptAt: createdAt,
	}
}

func TestInsertIfAbsentIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	first := newRecord("outbox-1", 1000)
	created, err := store.InsertIfAbsent(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)

	second := newRecord("outbox-1", 2000)
	second.Payload = []byte("different payload")
	created, err = store.InsertIfAbsent(ctx, second)
	require.NoError(t, err)
	assert.False(t, created)

	stored, ok := store.Get("outbox-1")
	require.True(t, ok)
	assert.Equal(t, []byte("payload-outbox-1"), stored.Payload)
	assert.EqualValues(t, 1000, stored.CreatedAt)
}

func TestQueryPendingOrderingAndEligibility(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	now := time.UnixMilli(5000)

	older := newRecord("older", 1000)
	newer := newRecord("newer", 2000)
	future := newRecord("future", 1500)
	future.NextAttemptAt = 9000
	published := newRecord("published", 500)
	published.Status = outbox.StatusPublished

	for _, rec := range []*outbox.Record{newer, older, future, published} {
		_, err := store.InsertIfAbsent(ctx, rec)
		require.NoError(t, err)
	}

	records, err := store.QueryPending(ctx, 10, now)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "older", records[0].OutboxID)
	assert.Equal(t, "newer", records[1].OutboxID)

	records, err = store.QueryPending(ctx, 1, now)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "older", records[0].OutboxID)
}

func TestTryClaimRace(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	rec := newRecord("contested", 1000)
	_, err := store.InsertIfAbsent(ctx, rec)
	require.NoError(t, err)

	// Two workers read the same snapshot before either claims.
	firstSnapshot, err := store.QueryPending(ctx, 1, time.UnixMilli(2000))
	require.NoError(t, err)
	require.Len(t, firstSnapshot, 1)
	secondSnapshot, err := store.QueryPending(ctx, 1, time.UnixMilli(2000))
	require.NoError(t, err)
	require.Len(t, secondSnapshot, 1)

	claimed, err := store.TryClaim(ctx, firstSnapshot[0], 30*time.Second, time.UnixMilli(2001))
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = store.TryClaim(ctx, secondSnapshot[0], 30*time.Second, time.UnixMilli(2002))
	require.NoError(t, err)
	assert.False(t, claimed, "second claimer must lose the race")
}

func TestTryClaimSetsLease(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	rec := newRecord("leased", 1000)
	_, err := store.InsertIfAbsent(ctx, rec)
	require.NoError(t, err)

	claimed, err := store.TryClaim(ctx, rec.Clone(), 30*time.Second, time.UnixMilli(2000))
	require.NoError(t, err)
	require.True(t, claimed)

	stored, ok := store.Get("leased")
	require.True(t, ok)
	assert.EqualValues(t, 2000, stored.UpdatedAt)
	assert.EqualValues(t, 32000, stored.NextAttemptAt)

	// The lease hides the record from the pending scan until it expires.
	records, err := store.QueryPending(ctx, 10, time.UnixMilli(3000))
	require.NoError(t, err)
	assert.Empty(t, records)

	records, err = store.QueryPending(ctx, 10, time.UnixMilli(32000))
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestTryClaimRejectsTerminalStatus(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	rec := newRecord("done", 1000)
	_, err := store.InsertIfAbsent(ctx, rec)
	require.NoError(t, err)

	snapshot := rec.Clone()
	snapshot.Status = outbox.StatusPublished
	require.NoError(t, store.Update(ctx, snapshot))

	claimed, err := store.TryClaim(ctx, rec.Clone(), time.Second, time.UnixMilli(2000))
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestUpdateOverwrites(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	rec := newRecord("rec", 1000)
	_, err := store.InsertIfAbsent(ctx, rec)
	require.NoError(t, err)

	rec.Status = outbox.StatusFailed
	rec.Attempts = 5
	rec.LastError = "send failed"
	require.NoError(t, store.Update(ctx, rec))

	stored, ok := store.Get("rec")
	require.True(t, ok)
	assert.Equal(t, outbox.StatusFailed, stored.Status)
	assert.Equal(t, 5, stored.Attempts)
	assert.Equal(t, "send failed", stored.LastError)
}
