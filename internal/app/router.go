package app

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/wsplatform/checkout-api/internal/auth"
	"github.com/wsplatform/checkout-api/internal/catalog"
	"github.com/wsplatform/checkout-api/internal/common"
	"github.com/wsplatform/checkout-api/internal/config"
	dbgen "github.com/wsplatform/checkout-api/internal/db/gen"
	"github.com/wsplatform/checkout-api/internal/health"
	"github.com/wsplatform/checkout-api/internal/obs"
	"github.com/wsplatform/checkout-api/internal/payment"
	"github.com/wsplatform/checkout-api/internal/ratelimit"
	"github.com/wsplatform/checkout-api/internal/repo"
	"github.com/wsplatform/checkout-api/internal/security"
)

// Handlers groups the HTTP endpoints served by the API.
type Handlers struct {
	Payments *payment.Handler
	Webhook  payment.Webhook
	Catalog  *catalog.Handler
	Health   health.Handler
}

// RouterConfig carries the cross-cutting middleware settings.
type RouterConfig struct {
	Logger          zerolog.Logger
	CORSOrigins     []string
	BodyLimit       int64
	Redis           *redis.Client
	IdempotencyTTL  time.Duration
	PreferenceLimit ratelimit.Limiter
	Admin           auth.AdminGuard
	HTTPMetrics     *obs.HTTPMetrics
	Metrics         http.Handler
	Tracing         bool
	SecureHeaders   bool
}

// PaymentHandlers builds the payment endpoints on top of the wired core.
func PaymentHandlers(cfg *config.Config, store payment.Store, gw payment.Gateway, rc payment.StatusReconciler, retry payment.Retrier, v *validator.Validate, logger zerolog.Logger) (*payment.Handler, payment.Webhook) {
	svc := &payment.Service{
		Gateway: gw,
		Store:   store,
		Item: payment.Item{
			Title:       cfg.ProductTitle,
			Description: cfg.ProductDescription,
			Quantity:    1,
			CurrencyID:  cfg.ProductCurrency,
			UnitPrice:   cfg.ProductUnitPrice,
		},
		NotificationURL: cfg.WebhookURL(payment.WebhookPath),
		BackURL:         cfg.FrontBaseURL,
		Logger:          logger,
	}
	webhook := payment.Webhook{
		Reconciler: rc,
		Verifier:   payment.SignatureVerifier{Secret: cfg.MPWebhookSecret, Tolerance: 10 * time.Minute},
		Retry:      retry,
		Logger:     logger,
	}
	return &payment.Handler{Svc: svc, Validate: v}, webhook
}

// Handlers builds every endpoint from the wired dependencies.
func (d *Dependencies) Handlers() (Handlers, error) {
	payments, webhook := PaymentHandlers(d.Config, d.Store, d.Gateway, d.Reconciler, d.Retrier(), d.Validator, d.Logger)

	var cache *catalog.Cache
	if d.Redis != nil {
		cache = catalog.NewCache(d.Redis, d.Config.CatalogCacheTTL)
	}
	catalogSvc, err := catalog.NewService(catalog.ServiceConfig{
		Repo:   repo.Products{DB: d.Pool, Q: dbgen.New(d.Pool)},
		Cache:  cache,
		Logger: d.Logger,
	})
	if err != nil {
		return Handlers{}, err
	}

	probes := map[string]health.Probe{"db": health.PostgresProbe(d.Pool)}
	if d.Redis != nil {
		probes["redis"] = health.RedisProbe(d.Redis)
	}
	return Handlers{
		Payments: payments,
		Webhook:  webhook,
		Catalog:  catalog.NewHandler(catalog.HandlerConfig{Service: catalogSvc, Validator: d.Validator}),
		Health: health.Handler{
			Probes:     probes,
			WebhookURL: d.Config.WebhookURL(payment.WebhookPath),
			Logger:     d.Logger,
		},
	}, nil
}

// NewRouter mounts every route with the shared middleware stack.
func NewRouter(h Handlers, rc RouterConfig) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if rc.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	if rc.HTTPMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: rc.HTTPMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: rc.Logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(rc.CORSOrigins),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders: []string{"X-Request-Id", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		MaxAge:         300,
	}))
	r.Use(security.Headers{Enable: rc.SecureHeaders, EnableHSTS: rc.SecureHeaders}.Middleware)
	r.Use(security.BodyLimit{Max: rc.BodyLimit}.Middleware)

	if rc.Metrics != nil {
		r.Handle("/metrics", rc.Metrics)
	}
	r.Get("/", h.Health.Info)
	r.Get("/health/live", h.Health.Live)
	r.Get("/health/ready", h.Health.Ready)

	idem := common.Idem{R: rc.Redis, TTL: rc.IdempotencyTTL}
	limit := ratelimit.Handler{
		Limiter: rc.PreferenceLimit,
		Key:     ratelimit.ByClientIP("preference"),
		OnError: func(err error) { rc.Logger.Warn().Err(err).Msg("rate limiter unavailable") },
	}

	if h.Catalog != nil {
		r.Get("/products", h.Catalog.Products)
		r.With(rc.Admin.RequireAdmin, idem.Middleware).Post("/products", h.Catalog.CreateProduct)
	}
	if h.Payments != nil {
		r.With(limit.Middleware, idem.Middleware).Post("/payment/preference", h.Payments.Preference)
		r.Get("/payment/status/{externalReference}", h.Payments.Status)
	}
	r.Post(payment.WebhookPath, h.Webhook.Handle)
	return r
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
