package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/payguard/frauddetect/go/internal/metrics"
	"github.com/payguard/frauddetect/go/internal/queue"
)

// PublisherConfig controls the publish loop.
type PublisherConfig struct {
	// Workers is the number of concurrent scan-claim-send loops.
	Workers int
	// BatchSize is the pending-scan page size.
	BatchSize int
	// PollInterval is how long a worker sleeps after an empty scan.
	PollInterval time.Duration
	// ClaimLease is how long a claimed record is protected from re-claim.
	ClaimLease time.Duration
	// MaxPublishAttempts is the ceiling before a record goes FAILED.
	MaxPublishAttempts int
	// BackoffBase scales the linear backoff between publish attempts.
	BackoffBase time.Duration
}

func (c PublisherConfig) withDefaults() PublisherConfig {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.ClaimLease <= 0 {
		c.ClaimLease = 30 * time.Second
	}
	if c.MaxPublishAttempts <= 0 {
		c.MaxPublishAttempts = 5
	}
	if c.BackoffBase < 0 {
		c.BackoffBase = 0
	}
	return c
}

// Publisher drains the outbox: it scans for publishable records, claims
// them, sends their payloads to the notification channel and persists the
// outcome. Multiple workers may scan the same pending set concurrently; the
// conditional claim guarantees at most one sender per record per lease
// window.
type Publisher struct {
	store    Store
	notifier queue.Notifier
	clock    clockwork.Clock
	cfg      PublisherConfig
	metrics  *metrics.Metrics
}

// NewPublisher creates a Publisher with defaults applied.
func NewPublisher(store Store, notifier queue.Notifier, clock clockwork.Clock, cfg PublisherConfig, m *metrics.Metrics) *Publisher {
	return &Publisher{
		store:    store,
		notifier: notifier,
		clock:    clock,
		cfg:      cfg.withDefaults(),
		metrics:  m,
	}
}

// Run starts the configured number of workers and blocks until ctx is
// cancelled.
func (p *Publisher) Run(ctx context.Context) {
	log.Info().
		Int("workers", p.cfg.Workers).
		Int("batch_size", p.cfg.BatchSize).
		Dur("poll_interval", p.cfg.PollInterval).
		Msg("outbox publisher started")

	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		workerID := i
		go func() {
			defer wg.Done()
			p.runWorker(ctx, workerID)
		}()
	}
	wg.Wait()

	log.Info().Msg("outbox publisher stopped")
}

func (p *Publisher) runWorker(ctx context.Context, workerID int) {
	for {
		if ctx.Err() != nil {
			return
		}

		processed, err := p.ProcessOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Store errors are not self-healing; log loudly and back off.
			log.Error().Err(err).Int("worker", workerID).Msg("outbox publish pass failed")
			if !p.sleep(ctx, p.cfg.PollInterval) {
				return
			}
			continue
		}
		if !processed {
			if !p.sleep(ctx, p.cfg.PollInterval) {
				return
			}
		}
	}
}

// ProcessOnce runs a single scan-claim-send pass and reports whether any
// records were seen. Per-record send failures are handled internally; only
// store access errors are returned.
func (p *Publisher) ProcessOnce(ctx context.Context) (bool, error) {
	records, err := p.store.QueryPending(ctx, p.cfg.BatchSize, p.clock.Now())
	if err != nil {
		return false, fmt.Errorf("query pending outbox records: %w", err)
	}
	if len(records) == 0 {
		return false, nil
	}

	for _, rec := range records {
		if ctx.Err() != nil {
			return true, ctx.Err()
		}
		if err := p.publishRecord(ctx, rec); err != nil {
			return true, err
		}
	}
	return true, nil
}

func (p *Publisher) publishRecord(ctx context.Context, rec *Record) error {
	claimed, err := p.store.TryClaim(ctx, rec, p.cfg.ClaimLease, p.clock.Now())
	if err != nil {
		return fmt.Errorf("claim outbox record %s: %w", rec.OutboxID, err)
	}
	if !claimed {
		// Another worker owns it, or it changed state. Not an error.
		p.metrics.ClaimConflicts.Inc()
		log.Debug().Str("outbox_id", rec.OutboxID).Msg("outbox claim lost")
		return nil
	}

	sendErr := p.notifier.Send(ctx, rec.OutboxID, rec.Payload)
	now := p.clock.Now().UnixMilli()

	if sendErr == nil {
		rec.Status = StatusPublished
		rec.UpdatedAt = now
		if err := p.store.Update(ctx, rec); err != nil {
			return fmt.Errorf("persist published record %s: %w", rec.OutboxID, err)
		}
		p.metrics.PublishSuccess.Inc()
		log.Info().
			Str("outbox_id", rec.OutboxID).
			Str("transaction_id", rec.TransactionID).
			Int("attempts", rec.Attempts).
			Msg("outbox record published")
		return nil
	}

	rec.Attempts++
	rec.UpdatedAt = now
	rec.NextAttemptAt = now + p.backoffMillis(rec.Attempts)
	rec.LastError = sendErr.Error()
	if rec.Attempts >= p.cfg.MaxPublishAttempts {
		rec.Status = StatusFailed
		p.metrics.PublishDead.Inc()
	}
	if err := p.store.Update(ctx, rec); err != nil {
		return fmt.Errorf("persist failed record %s: %w", rec.OutboxID, err)
	}
	p.metrics.PublishFailed.Inc()
	log.Warn().
		Err(sendErr).
		Str("outbox_id", rec.OutboxID).
		Str("transaction_id", rec.TransactionID).
		Int("attempts", rec.Attempts).
		Str("status", string(rec.Status)).
		Msg("outbox publish failed")
	return nil
}

// backoffMillis is linear in the attempt count, scaled by the base delay.
func (p *Publisher) backoffMillis(attempts int) int64 {
	if attempts < 1 {
		attempts = 1
	}
	return p.cfg.BackoffBase.Milliseconds() * int64(attempts)
}

func (p *Publisher) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-p.clock.After(d):
		return true
	}
}
