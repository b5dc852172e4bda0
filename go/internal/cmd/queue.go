package main

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"

	"github.com/payguard/frauddetect/go/internal/config"
	natsqueue "github.com/payguard/frauddetect/go/internal/queue/nats"
)

const queueConnectTimeout = 2 * time.Minute

// connectQueue dials NATS, retrying with exponential backoff while the
// broker comes up.
func connectQueue(ctx context.Context, cfg config.QueueConfig) (*natsqueue.Client, error) {
	connectCtx, cancel := context.WithTimeout(ctx, queueConnectTimeout)
	defer cancel()

	backoffCfg := backoff.NewExponentialBackOff()

	for {
		client, err := natsqueue.Connect(natsqueue.Config{
			URL:             cfg.URL,
			Stream:          cfg.Stream,
			Subject:         cfg.Subject,
			Consumer:        cfg.Consumer,
			AckWait:         cfg.VisibilityTimeout.Std(),
			MaxAckPending:   cfg.MaxInFlight,
			DecisionStream:  cfg.DecisionStream,
			DecisionSubject: cfg.DecisionSubject,
		})
		if err == nil {
			log.Info().Str("url", cfg.URL).Msg("queue connected")
			return client, nil
		}

		log.Warn().Err(err).Str("url", cfg.URL).Msg("queue not ready; retrying")
		sleep := backoffCfg.NextBackOff()
		if sleep == backoff.Stop {
			return nil, fmt.Errorf("connect to queue: %w", err)
		}
		select {
		case <-connectCtx.Done():
			return nil, fmt.Errorf("connect to queue: %w", connectCtx.Err())
		case <-time.After(sleep):
		}
	}
}
