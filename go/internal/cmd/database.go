package main

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/payguard/frauddetect/go/internal/config"
	"github.com/payguard/frauddetect/go/internal/outbox/postgres"
)

const databaseConnectTimeout = 2 * time.Minute

// connectDatabase opens the pgx pool, retrying with exponential backoff
// while the database comes up, and applies schema migrations.
func connectDatabase(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	connectCtx, cancel := context.WithTimeout(ctx, databaseConnectTimeout)
	defer cancel()

	backoffCfg := backoff.NewExponentialBackOff()

	var pool *pgxpool.Pool
	for {
		var err error
		pool, err = pgxpool.New(connectCtx, cfg.URL())
		if err == nil {
			err = pool.Ping(connectCtx)
			if err == nil {
				break
			}
			pool.Close()
		}

		log.Warn().Err(err).Str("host", cfg.Host).Msg("database not ready; retrying")
		sleep := backoffCfg.NextBackOff()
		if sleep == backoff.Stop {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		select {
		case <-connectCtx.Done():
			return nil, fmt.Errorf("connect to database: %w", connectCtx.Err())
		case <-time.After(sleep):
		}
	}

	if err := postgres.Migrate(cfg.MigrateURL()); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info().Str("database", cfg.Database).Msg("database connected and migrated")
	return pool, nil
}
