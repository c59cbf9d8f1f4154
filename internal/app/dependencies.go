package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wsplatform/checkout-api/internal/config"
	"github.com/wsplatform/checkout-api/internal/db"
	dbgen "github.com/wsplatform/checkout-api/internal/db/gen"
	"github.com/wsplatform/checkout-api/internal/events"
	"github.com/wsplatform/checkout-api/internal/jobs"
	"github.com/wsplatform/checkout-api/internal/lock"
	"github.com/wsplatform/checkout-api/internal/obs"
	"github.com/wsplatform/checkout-api/internal/payment"
	"github.com/wsplatform/checkout-api/internal/repo"
	"github.com/wsplatform/checkout-api/internal/resilience"
)

// GatewayTarget labels the payment provider in breaker and retry metrics.
const GatewayTarget = "mercadopago"

// Dependencies holds the shared infrastructure and the payment core built
// from configuration. Redis, the task client and the broker are optional.
type Dependencies struct {
	Config     *config.Config
	Logger     zerolog.Logger
	Pool       *pgxpool.Pool
	Redis      *redis.Client
	Validator  *validator.Validate
	TaskClient *asynq.Client
	Store      payment.Store
	Gateway    payment.Gateway
	Reconciler *payment.Reconciler
	Events     *events.Bus

	closers []func() error
}

// Options toggles instrumentation that depends on process-level setup.
type Options struct {
	ApplicationName string
	RedisMetrics    bool
	Migrate         bool
}

// New connects to Postgres (and Redis when configured), runs migrations and
// wires the payment core. Callers must Close the result.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts Options) (*Dependencies, error) {
	d := &Dependencies{
		Config:    cfg,
		Logger:    logger,
		Validator: validator.New(validator.WithRequiredStructEnabled()),
	}

	if opts.Migrate {
		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	}

	pool, err := newPool(ctx, cfg.DatabaseURL, opts.ApplicationName)
	if err != nil {
		return nil, err
	}
	d.Pool = pool
	d.closers = append(d.closers, func() error { pool.Close(); return nil })

	if cfg.RedisURL != "" {
		rdb, err := newRedis(ctx, cfg.RedisURL, opts.RedisMetrics, logger)
		if err != nil {
			_ = d.Close()
			return nil, err
		}
		d.Redis = rdb
		d.closers = append(d.closers, rdb.Close)

		redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("parse redis uri for tasks: %w", err)
		}
		d.TaskClient = asynq.NewClient(redisOpt)
		d.closers = append(d.closers, d.TaskClient.Close)
	}

	switch cfg.PaymentStore {
	case "redis":
		if d.Redis == nil {
			_ = d.Close()
			return nil, fmt.Errorf("%w: REDIS_URL is required when PAYMENT_STORE=redis", config.ErrMissingConfiguration)
		}
		d.Store = repo.RedisPaymentRecords{R: d.Redis}
	default:
		d.Store = repo.PaymentRecords{Q: dbgen.New(pool)}
	}

	d.Gateway = NewGateway(cfg, logger)

	d.Events = &events.Bus{Notifiers: []events.Notifier{events.LogNotifier{Logger: logger}}}
	if cfg.AMQPURL != "" {
		pub, err := events.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			_ = d.Close()
			return nil, err
		}
		d.Events.Notifiers = append(d.Events.Notifiers, pub)
		d.closers = append(d.closers, pub.Close)
	}

	d.Reconciler = &payment.Reconciler{
		Gateway: d.Gateway,
		Store:   d.Store,
		LockTTL: ReconcileLockTTL(cfg),
		Events:  d.Events,
		Logger:  logger,
	}
	if d.Redis != nil {
		d.Reconciler.Locker = lock.Locker{R: d.Redis, Prefix: "lock:"}
	}
	return d, nil
}

// Retrier returns the background retry scheduler, or nil without Redis.
func (d *Dependencies) Retrier() payment.Retrier {
	if d.TaskClient == nil {
		return nil
	}
	return jobs.Enqueuer{
		Client:   d.TaskClient,
		Queue:    d.Config.QueueName,
		Delay:    d.Config.QueueRetryDelay,
		MaxRetry: d.Config.QueueMaxRetry,
	}
}

// Close releases resources in reverse order of acquisition.
func (d *Dependencies) Close() error {
	var joined error
	for i := len(d.closers) - 1; i >= 0; i-- {
		joined = errors.Join(joined, d.closers[i]())
	}
	d.closers = nil
	return joined
}

// NewGateway builds the Mercado Pago client. Fetches are retried behind a
// circuit breaker; preference creation is attempted once.
func NewGateway(cfg *config.Config, logger zerolog.Logger) payment.MercadoPago {
	client := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	breaker := resilience.NewBreaker(cfg.BreakerMinRequests, cfg.BreakerFailureRate, cfg.BreakerOpenFor).
		WithTarget(GatewayTarget).
		WithLogger(logger)
	return payment.MercadoPago{
		AccessToken: cfg.MPAccessToken,
		BaseURL:     cfg.MPAPIBase,
		Fetch: resilience.HTTPClient{
			Client:      client,
			Breaker:     breaker,
			Target:      GatewayTarget,
			BaseBackoff: cfg.RetryBase,
			MaxAttempts: cfg.RetryMaxAttempts,
			Jitter:      cfg.RetryJitterPercent,
			Timeout:     cfg.MPFetchTimeout,
		},
		Create: resilience.HTTPClient{
			Client:      client,
			Breaker:     breaker,
			Target:      GatewayTarget,
			MaxAttempts: 1,
			Timeout:     cfg.MPCreateTimeout,
		},
	}
}

// ReconcileLockTTL keeps the per-payment lock alive for the whole fetch
// budget, so a slow retry sequence cannot outlive its lock.
func ReconcileLockTTL(cfg *config.Config) time.Duration {
	ttl := cfg.ReconcileLockTTL
	attempts := cfg.RetryMaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	budget := time.Duration(attempts)*cfg.MPFetchTimeout + 5*time.Second
	if budget > ttl {
		ttl = budget
	}
	return ttl
}

func newPool(ctx context.Context, databaseURL, appName string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	if appName != "" {
		poolConfig.ConnConfig.RuntimeParams["application_name"] = appName
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func newRedis(ctx context.Context, url string, metrics bool, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(rdb); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metrics {
		if err := redisotel.InstrumentMetrics(rdb); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// WriteTimeout bounds a whole request. A webhook may wait up to one lock TTL
// for a concurrent reconcile and then spend the fetch budget itself.
func WriteTimeout(cfg *config.Config) time.Duration {
	d := 2 * ReconcileLockTTL(cfg)
	if cfg.MPCreateTimeout > d {
		d = cfg.MPCreateTimeout
	}
	return d + 15*time.Second
}
