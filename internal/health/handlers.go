package health

import (
	"context"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/wsplatform/checkout-api/internal/common"
)

var ready atomic.Bool

func init() { ready.Store(true) }

// SetReady flips the readiness flag. The server clears it when draining.
func SetReady(v bool) { ready.Store(v) }

// Probe checks a single dependency.
type Probe func(ctx context.Context) error

// PostgresProbe pings the pool.
func PostgresProbe(pool *pgxpool.Pool) Probe {
	return func(ctx context.Context) error { return pool.Ping(ctx) }
}

// RedisProbe pings the Redis client.
func RedisProbe(rdb redis.Cmdable) Probe {
	return func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Probes     map[string]Probe
	Timeout    time.Duration
	WebhookURL string
	Logger     zerolog.Logger
}

type infoResp struct {
	Message    string `json:"message"`
	WebhookURL string `json:"webhookUrl"`
}

// Info serves GET / with the notification target handed to the gateway.
func (h Handler) Info(w http.ResponseWriter, _ *http.Request) {
	common.JSON(w, http.StatusOK, infoResp{Message: "checkout api running", WebhookURL: h.WebhookURL})
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on dependency probes. Failure details go to
// the log, the response only carries per-dependency state.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !ready.Load() {
		common.JSON(w, http.StatusServiceUnavailable, map[string]string{"server": "draining"})
		return
	}
	names := make([]string, 0, len(h.Probes))
	for name := range h.Probes {
		names = append(names, name)
	}
	sort.Strings(names)

	status := make(map[string]string, len(names))
	code := http.StatusOK
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout())
		err := h.Probes[name](ctx)
		cancel()
		if err != nil {
			h.Logger.Warn().Err(err).Str("dependency", name).Msg("readiness probe failed")
			status[name] = "unavailable"
			code = http.StatusServiceUnavailable
			continue
		}
		status[name] = "ok"
	}
	common.JSON(w, code, status)
}

func (h Handler) timeout() time.Duration {
	if h.Timeout <= 0 {
		return 500 * time.Millisecond
	}
	return h.Timeout
}
