package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/payguard/frauddetect/go/internal/config"
	"github.com/payguard/frauddetect/go/internal/consumer"
	"github.com/payguard/frauddetect/go/internal/httpapi"
	"github.com/payguard/frauddetect/go/internal/metrics"
	"github.com/payguard/frauddetect/go/internal/outbox"
	"github.com/payguard/frauddetect/go/internal/outbox/postgres"
	"github.com/payguard/frauddetect/go/internal/rules"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("service failed")
	}
}

func run(ctx context.Context, cfg config.Config) error {
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	clock := clockwork.NewRealClock()

	engine := rules.NewEngine(rules.Config{
		AmountReviewThreshold: decimal.NewFromFloat(cfg.Rules.AmountReviewThreshold),
		AmountDenyThreshold:   decimal.NewFromFloat(cfg.Rules.AmountDenyThreshold),
		ApproveRiskScore:      cfg.Rules.ApproveRiskScore,
	})

	client, err := connectQueue(ctx, cfg.Queue)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.EnsureStreams(ctx); err != nil {
		return err
	}
	source, err := client.Source(ctx)
	if err != nil {
		return err
	}

	var writer *outbox.Writer
	var publisher *outbox.Publisher
	if cfg.Outbox.Enabled {
		pool, err := connectDatabase(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()

		store := postgres.NewStore(pool)
		writer = outbox.NewWriter(store, clock, m)
		publisher = outbox.NewPublisher(store, client.Notifier(), clock, outbox.PublisherConfig{
			Workers:            cfg.Outbox.PublishWorkers,
			BatchSize:          cfg.Outbox.BatchSize,
			PollInterval:       cfg.Outbox.PollInterval.Std(),
			ClaimLease:         cfg.Outbox.ClaimLease.Std(),
			MaxPublishAttempts: cfg.Outbox.MaxPublishAttempts,
			BackoffBase:        cfg.Outbox.BackoffBase.Std(),
		}, m)
	} else {
		log.Warn().Msg("outbox integration disabled; decisions will not be published")
	}

	pipeline := consumer.NewPipeline(engine, writer, m)
	cons := consumer.New(source, pipeline, clock, consumer.Config{
		MaxMessages:   cfg.Queue.MaxMessages,
		WaitTime:      cfg.Queue.WaitTime.Std(),
		MaxInFlight:   cfg.Queue.MaxInFlight,
		Pollers:       cfg.Queue.Pollers,
		Workers:       cfg.Queue.Workers,
		QueueCapacity: cfg.Queue.QueueCapacity,
		PollerBackoff: cfg.Queue.PollerBackoff.Std(),
		ShutdownGrace: cfg.Queue.ShutdownGrace.Std(),
	})

	server := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: httpapi.NewRouter(engine, registry),
	}
	go func() {
		log.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server failed")
		}
	}()

	publisherCtx, cancelPublisher := context.WithCancel(context.Background())
	defer cancelPublisher()
	var publisherWG sync.WaitGroup
	if publisher != nil {
		publisherWG.Add(1)
		go func() {
			defer publisherWG.Done()
			publisher.Run(publisherCtx)
		}()
	}

	cons.Start(context.Background())

	<-ctx.Done()
	log.Info().Msg("shutdown requested")

	// Stop intake first, then the publisher, then the HTTP surface.
	cons.Stop()
	cancelPublisher()
	publisherWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown failed")
	}

	log.Info().Msg("service stopped")
	return nil
}
