// Package queue defines the narrow contracts between the decision pipeline
// and the message broker. Implementations live in subpackages so the core
// never links a broker SDK directly.
package queue

import (
	"context"
	"time"
)

// Message is a single in-flight inbound message. Acknowledging removes it
// from the queue; an unacknowledged message becomes visible again after the
// broker's visibility timeout and is redelivered.
type Message interface {
	// ID uniquely identifies the message within the queue.
	ID() string
	// Body returns the opaque message payload.
	Body() []byte
	// Ack removes the message from the queue.
	Ack(ctx context.Context) error
}

// Source receives batches of inbound messages via long polling.
type Source interface {
	// Receive returns up to maxMessages messages, waiting up to wait for the
	// first one. An empty slice with a nil error means the poll timed out.
	Receive(ctx context.Context, maxMessages int, wait time.Duration) ([]Message, error)
}

// Notifier delivers a decision payload to the downstream notification
// channel. Only success or failure is observed. id identifies the decision
// so brokers that support it can deduplicate republishes.
type Notifier interface {
	Send(ctx context.Context, id string, payload []byte) error
}
