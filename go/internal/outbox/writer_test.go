package outbox_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payguard/frauddetect/go/internal/codec"
	"github.com/payguard/frauddetect/go/internal/metrics"
	"github.com/payguard/frauddetect/go/internal/models"
	"github.com/payguard/frauddetect/go/internal/outbox"
	"github.com/payguard/frauddetect/go/internal/outbox/memory"
	"github.com/payguard/frauddetect/go/internal/rules"
)

func newWriterFixture(t *testing.T) (*outbox.Writer, *memory.Store, *clockwork.FakeClock, *metrics.Metrics) {
	t.Helper()
	store := memory.NewStore()
	clock := clockwork.NewFakeClockAt(time.UnixMilli(1_000_000))
	m := metrics.New(prometheus.NewRegistry())
	return outbox.NewWriter(store, clock, m), store, clock, m
}

func approveResult() rules.RuleResult {
	return rules.RuleResult{
		Decision:  rules.DecisionApprove,
		Reason:    rules.ReasonLowRiskAmount,
		RiskScore: 0.1,
	}
}

func TestWriterCreatesPendingRecord(t *testing.T) {
	writer, store, clock, _ := newWriterFixture(t)
	ctx := context.Background()

	req := models.TransactionRequest{
		TransactionID: "txn-1",
		AccountID:     "acct-1",
		Amount:        decimal.NewFromInt(100),
	}
	result, err := writer.Write(ctx, req, approveResult(), "msg-1")
	require.NoError(t, err)
	assert.Equal(t, "txn-1", result.OutboxID)
	assert.True(t, result.Created)

	rec, ok := store.Get("txn-1")
	require.True(t, ok)
	assert.Equal(t, outbox.StatusPending, rec.Status)
	assert.Equal(t, "txn-1", rec.TransactionID)
	assert.Equal(t, "msg-1", rec.MessageID)
	assert.Equal(t, 0, rec.Attempts)
	assert.Equal(t, clock.Now().UnixMilli(), rec.CreatedAt)
	assert.Equal(t, rec.CreatedAt, rec.UpdatedAt)
	assert.Equal(t, rec.CreatedAt, rec.NextAttemptAt)
	assert.Equal(t, string(rules.DecisionApprove), rec.Decision)

	assessment, err := codec.DecodeDecision(rec.Payload)
	require.NoError(t, err)
	assert.Equal(t, "txn-1", assessment.TransactionID)
	assert.Equal(t, rules.DecisionApprove, assessment.Decision)
}

func TestWriterIsIdempotent(t *testing.T) {
	writer, store, _, m := newWriterFixture(t)
	ctx := context.Background()

	req := models.TransactionRequest{TransactionID: "txn-1", Amount: decimal.NewFromInt(100)}
	first, err := writer.Write(ctx, req, approveResult(), "msg-1")
	require.NoError(t, err)
	assert.True(t, first.Created)

	// Redelivery: same transaction, different message and even a different
	// result must not overwrite the first record.
	second, err := writer.Write(ctx, req, rules.RuleResult{
		Decision:  rules.DecisionReject,
		Reason:    rules.ReasonAmountExceedsHardLimit,
		RiskScore: 0.95,
	}, "msg-2")
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.OutboxID, second.OutboxID)

	assert.Equal(t, 1, store.Len())
	rec, ok := store.Get("txn-1")
	require.True(t, ok)
	assert.Equal(t, string(rules.DecisionApprove), rec.Decision)
	assert.Equal(t, "msg-1", rec.MessageID)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutboxWriteCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutboxWriteDuplicate))
}

func TestWriterFallsBackToMessageID(t *testing.T) {
	writer, store, _, _ := newWriterFixture(t)
	ctx := context.Background()

	req := models.TransactionRequest{TransactionID: "  ", Amount: decimal.NewFromInt(100)}
	result, err := writer.Write(ctx, req, approveResult(), "msg-9")
	require.NoError(t, err)
	assert.Equal(t, "msg-9", result.OutboxID)

	_, ok := store.Get("msg-9")
	assert.True(t, ok)
}

func TestWriterGeneratesKeyWhenBothIDsBlank(t *testing.T) {
	writer, store, _, _ := newWriterFixture(t)
	ctx := context.Background()

	req := models.TransactionRequest{Amount: decimal.NewFromInt(100)}
	result, err := writer.Write(ctx, req, approveResult(), "")
	require.NoError(t, err)
	assert.NotEmpty(t, result.OutboxID)
	assert.True(t, result.Created)
	assert.Equal(t, 1, store.Len())
}
