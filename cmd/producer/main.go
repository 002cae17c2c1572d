package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	httpadapter "github.com/couchcryptid/flume-producer/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/flume-producer/internal/adapter/kafka"
	"github.com/couchcryptid/flume-producer/internal/adapter/ogcapi"
	"github.com/couchcryptid/flume-producer/internal/adapter/store"
	"github.com/couchcryptid/flume-producer/internal/config"
	"github.com/couchcryptid/flume-producer/internal/domain"
	"github.com/couchcryptid/flume-producer/internal/ingest"
	"github.com/couchcryptid/flume-producer/internal/observability"
	"github.com/couchcryptid/flume-producer/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	objects, err := newObjectStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize object store", "error", err)
		os.Exit(1)
	}

	sources := domain.NewSources(domain.SourceURLs{
		SurfaceWeather: cfg.SurfaceWeatherURL,
		Hydrometric:    cfg.HydrometricURL,
		ClimateHourly:  cfg.ClimateHourlyURL,
	}, cfg.InitialLookback, cfg.ClimateLookback)

	// Optional broker publishing (enabled via KAFKA_DELTA_TOPIC).
	var notifier ingest.DeltaNotifier
	var notifierCloser *kafkaadapter.Notifier
	if cfg.KafkaEnabled() {
		n := kafkaadapter.NewNotifier(cfg.KafkaBrokers, cfg.KafkaDeltaTopic, logger, clock)
		notifier = n
		notifierCloser = n
		logger.Info("kafka delta publishing enabled", "topic", cfg.KafkaDeltaTopic)
	} else {
		logger.Info("kafka delta publishing disabled")
	}

	client := ogcapi.NewClient(sources, cfg.FetchTimeout, cfg.FetchLimit, logger, metrics)
	states := store.NewStateStore(objects, cfg.StateKey, logger)
	deltas := store.NewDeltaStore(objects, logger)

	processor := ingest.NewProcessor(client, deltas, ingest.ProcessorOptions{
		Overlap:        cfg.IncrementalOverlap,
		MaxFutureDays:  cfg.MaxFutureDays,
		MinQAThreshold: cfg.MinQAThreshold,
		Notifier:       notifier,
	}, logger, metrics, clock)

	producer := ingest.NewProducer(states, processor, sources, logger, metrics, clock)

	logConfig(logger, cfg)

	if cfg.RunInterval == 0 {
		// Single-shot mode for cron or one-off invocations.
		if err := producer.RunOnce(ctx); err != nil {
			logger.Error("ingestion run failed", "error", err)
			os.Exit(1)
		}
		closeNotifier(notifierCloser, logger)
		return
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, producer, logger)
	sched := scheduler.New(producer, cfg.RunInterval, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	if err := sched.Start(ctx); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	closeNotifier(notifierCloser, logger)

	logger.Info("shutdown complete")
}

func newObjectStore(ctx context.Context, cfg *config.Config) (store.ObjectStore, error) {
	if cfg.S3Bucket != "" {
		return store.NewS3Store(ctx, cfg.S3Bucket, cfg.KMSKeyID)
	}
	return store.NewFSStore(cfg.LocalDataDir), nil
}

func closeNotifier(n *kafkaadapter.Notifier, logger *slog.Logger) {
	if n == nil {
		return
	}
	if err := n.Close(); err != nil {
		logger.Error("kafka notifier close error", "error", err)
	}
}

func logConfig(logger *slog.Logger, cfg *config.Config) {
	storage := cfg.S3Bucket
	if storage == "" {
		storage = cfg.LocalDataDir
	}
	logger.Info("producer configured",
		"storage", storage,
		"state_key", cfg.StateKey,
		"kms_encryption", cfg.KMSKeyID != "",
		"initial_lookback", cfg.InitialLookback,
		"climate_hourly_lookback", cfg.ClimateLookback,
		"overlap_buffer", cfg.IncrementalOverlap,
		"fetch_limit", cfg.FetchLimit,
		"min_qa_threshold", cfg.MinQAThreshold,
		"max_future_days", cfg.MaxFutureDays,
		"run_interval", cfg.RunInterval,
	)
}
