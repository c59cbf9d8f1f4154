package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wsplatform/checkout-api/internal/app"
	"github.com/wsplatform/checkout-api/internal/config"
	"github.com/wsplatform/checkout-api/internal/jobs"
	"github.com/wsplatform/checkout-api/internal/obs"
	"github.com/wsplatform/checkout-api/internal/resilience"
)

func main() {
	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")

	cfg, err := config.Load()
	if err != nil {
		bootLogger := obs.NewLogger(logFormat, logLevel)
		bootLogger.Fatal().Err(err).Msg("load configuration")
	}
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()
	if cfg.RedisURL == "" {
		logger.Fatal().Msg("REDIS_URL is required by the reconcile worker")
	}

	obs.MustRegisterDomainMetrics(envOrDefault("OBS_METRICS_NAMESPACE", "checkout"), prometheus.DefaultRegisterer)
	if err := resilience.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
		logger.Error().Err(err).Msg("register resilience metrics")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	deps, err := app.New(startCtx, cfg, logger, app.Options{ApplicationName: "checkout-worker"})
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise dependencies")
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Error().Err(err).Msg("close dependencies")
		}
	}()

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis uri")
	}
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:     cfg.QueueConcurrency,
		Queues:          map[string]int{cfg.QueueName: 1},
		RetryDelayFunc:  jobs.RetryDelay(cfg.QueueRetryDelay),
		Logger:          jobs.Logger{L: logger},
		ShutdownTimeout: 2 * app.ReconcileLockTTL(cfg),
	})
	mux := jobs.NewServeMux(jobs.Handler{Reconciler: deps.Reconciler, Logger: logger})

	logger.Info().Str("queue", cfg.QueueName).Int("concurrency", cfg.QueueConcurrency).Msg("worker starting")
	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start worker")
	}
	<-ctx.Done()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
