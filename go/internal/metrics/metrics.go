// Package metrics exposes Prometheus counters for the decision pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline counters. All fields are always non-nil.
type Metrics struct {
	MessagesProcessed prometheus.Counter
	MalformedMessages prometheus.Counter

	OutboxWriteCreated   prometheus.Counter
	OutboxWriteDuplicate prometheus.Counter
	OutboxWriteFailed    prometheus.Counter

	PublishSuccess prometheus.Counter
	PublishFailed  prometheus.Counter
	PublishDead    prometheus.Counter
	ClaimConflicts prometheus.Counter
}

// New registers the pipeline counters with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		MessagesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "frauddetect_messages_processed_total",
			Help: "Inbound messages decoded, evaluated and acknowledged.",
		}),
		MalformedMessages: factory.NewCounter(prometheus.CounterOpts{
			Name: "frauddetect_messages_malformed_total",
			Help: "Inbound messages dropped because the payload could not be decoded.",
		}),
		OutboxWriteCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "frauddetect_outbox_write_created_total",
			Help: "Outbox records created.",
		}),
		OutboxWriteDuplicate: factory.NewCounter(prometheus.CounterOpts{
			Name: "frauddetect_outbox_write_duplicate_total",
			Help: "Outbox writes skipped because the record already existed.",
		}),
		OutboxWriteFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "frauddetect_outbox_write_failed_total",
			Help: "Outbox writes that failed at the store.",
		}),
		PublishSuccess: factory.NewCounter(prometheus.CounterOpts{
			Name: "frauddetect_outbox_publish_success_total",
			Help: "Outbox records delivered to the notification channel.",
		}),
		PublishFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "frauddetect_outbox_publish_failed_total",
			Help: "Publish attempts that failed and were scheduled for retry.",
		}),
		PublishDead: factory.NewCounter(prometheus.CounterOpts{
			Name: "frauddetect_outbox_publish_dead_total",
			Help: "Outbox records marked FAILED after exhausting publish attempts.",
		}),
		ClaimConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "frauddetect_outbox_claim_conflicts_total",
			Help: "Claim attempts lost to a concurrent publisher worker.",
		}),
	}
}
