package consumer

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/payguard/frauddetect/go/internal/codec"
	"github.com/payguard/frauddetect/go/internal/metrics"
	"github.com/payguard/frauddetect/go/internal/outbox"
	"github.com/payguard/frauddetect/go/internal/queue"
	"github.com/payguard/frauddetect/go/internal/rules"
)

// Handler processes one inbound message end to end. Returning an error
// leaves the message unacknowledged so the queue redelivers it.
type Handler interface {
	Handle(ctx context.Context, msg queue.Message) error
}

// Pipeline is the per-message worker path: decode, evaluate, record the
// decision in the outbox, then acknowledge. The message is acknowledged only
// once the decision cannot be lost: either the outbox integration is
// disabled, or the write succeeded (possibly as a duplicate).
type Pipeline struct {
	engine  *rules.Engine
	writer  *outbox.Writer
	metrics *metrics.Metrics
}

// NewPipeline builds the worker pipeline. writer may be nil when the outbox
// integration is disabled.
func NewPipeline(engine *rules.Engine, writer *outbox.Writer, m *metrics.Metrics) *Pipeline {
	return &Pipeline{
		engine:  engine,
		writer:  writer,
		metrics: m,
	}
}

var _ Handler = (*Pipeline)(nil)

// Handle runs the pipeline for one message.
func (p *Pipeline) Handle(ctx context.Context, msg queue.Message) error {
	req, err := codec.DecodeTransaction(msg.Body())
	if err != nil {
		if errors.Is(err, codec.ErrMalformedMessage) {
			// A malformed payload can never become well-formed. Acknowledge
			// anyway so it does not poison the queue.
			p.metrics.MalformedMessages.Inc()
			log.Warn().
				Err(err).
				Str("message_id", msg.ID()).
				Msg("dropping malformed message")
			if ackErr := msg.Ack(ctx); ackErr != nil {
				log.Warn().Err(ackErr).Str("message_id", msg.ID()).Msg("failed to acknowledge malformed message")
			}
			return nil
		}
		return fmt.Errorf("decode message %s: %w", msg.ID(), err)
	}

	result, err := p.engine.Evaluate(req)
	if err != nil {
		return fmt.Errorf("evaluate transaction %s: %w", req.TransactionID, err)
	}

	if p.writer != nil {
		if _, err := p.writer.Write(ctx, req, result, msg.ID()); err != nil {
			// The decision is not durably recorded; leave the message for
			// redelivery.
			return fmt.Errorf("record decision for message %s: %w", msg.ID(), err)
		}
	}

	log.Info().
		Str("message_id", msg.ID()).
		Str("transaction_id", req.TransactionID).
		Str("decision", string(result.Decision)).
		Str("reason", string(result.Reason)).
		Float64("risk_score", result.RiskScore).
		Msg("transaction processed")
	p.metrics.MessagesProcessed.Inc()

	if err := msg.Ack(ctx); err != nil {
		// The decision is recorded; redelivery is safe because the outbox
		// write is idempotent.
		log.Warn().Err(err).Str("message_id", msg.ID()).Msg("failed to acknowledge message")
	}
	return nil
}
