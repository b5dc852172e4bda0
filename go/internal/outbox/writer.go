package outbox

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/payguard/frauddetect/go/internal/codec"
	"github.com/payguard/frauddetect/go/internal/metrics"
	"github.com/payguard/frauddetect/go/internal/models"
	"github.com/payguard/frauddetect/go/internal/rules"
)

// WriteResult reports the outcome of recording a decision.
type WriteResult struct {
	OutboxID string
	// Created is false when a record with the same OutboxID already existed.
	// That is the idempotent-replay path, not an error.
	Created bool
}

// Writer durably records computed decisions before any notification is
// attempted. Exactly one record ever exists per OutboxID.
type Writer struct {
	store   Store
	clock   clockwork.Clock
	metrics *metrics.Metrics
}

// NewWriter creates a Writer on top of the given store.
func NewWriter(store Store, clock clockwork.Clock, m *metrics.Metrics) *Writer {
	return &Writer{
		store:   store,
		clock:   clock,
		metrics: m,
	}
}

// Write serializes the decision and inserts a PENDING record keyed by the
// transaction id, falling back to the message id when the transaction id is
// blank. A duplicate insert is reported via Created=false without error.
func (w *Writer) Write(ctx context.Context, req models.TransactionRequest, result rules.RuleResult, messageID string) (WriteResult, error) {
	outboxID := strings.TrimSpace(req.TransactionID)
	if outboxID == "" {
		outboxID = strings.TrimSpace(messageID)
	}
	if outboxID == "" {
		// Neither id is usable; the record still needs a key. Replays of such
		// a message produce distinct records, which is safe but not deduped.
		outboxID = uuid.NewString()
	}

	payload, err := codec.EncodeDecision(req.TransactionID, result)
	if err != nil {
		w.metrics.OutboxWriteFailed.Inc()
		return WriteResult{}, err
	}

	now := w.clock.Now().UnixMilli()
	rec := &Record{
		OutboxID:      outboxID,
		TransactionID: req.TransactionID,
		MessageID:     messageID,
		Status:        StatusPending,
		Payload:       payload,
		Decision:      string(result.Decision),
		Reason:        string(result.Reason),
		RiskScore:     result.RiskScore,
		CreatedAt:     now,
		UpdatedAt:     now,
		NextAttemptAt: now,
		Attempts:      0,
	}

	created, err := w.store.InsertIfAbsent(ctx, rec)
	if err != nil {
		w.metrics.OutboxWriteFailed.Inc()
		return WriteResult{}, fmt.Errorf("insert outbox record %s: %w", outboxID, err)
	}

	if created {
		w.metrics.OutboxWriteCreated.Inc()
		log.Info().
			Str("outbox_id", outboxID).
			Str("transaction_id", req.TransactionID).
			Str("decision", string(result.Decision)).
			Msg("outbox record written")
	} else {
		w.metrics.OutboxWriteDuplicate.Inc()
		log.Debug().
			Str("outbox_id", outboxID).
			Str("message_id", messageID).
			Msg("outbox record already exists")
	}

	return WriteResult{OutboxID: outboxID, Created: created}, nil
}
