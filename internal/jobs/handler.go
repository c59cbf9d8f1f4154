package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/wsplatform/checkout-api/internal/payment"
)

// Handler runs reconcile tasks against a StatusReconciler.
type Handler struct {
	Reconciler payment.StatusReconciler
	Logger     zerolog.Logger
}

// ProcessTask implements asynq.Handler. Malformed payloads and
// unattributable payments are not retried.
func (h Handler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	if h.Reconciler == nil {
		return errors.New("jobs: reconciler not configured")
	}
	var p ReconcilePayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return fmt.Errorf("jobs: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	p.PaymentID = strings.TrimSpace(p.PaymentID)
	if p.PaymentID == "" {
		return fmt.Errorf("jobs: empty payment id: %w", asynq.SkipRetry)
	}

	logger := h.Logger.With().Str("payment_id", p.PaymentID).Str("task", task.Type()).Logger()
	rec, err := h.Reconciler.Reconcile(ctx, p.PaymentID)
	switch {
	case errors.Is(err, payment.ErrUnattributablePayment):
		logger.Warn().Msg("payment has no external reference, dropping task")
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	case err != nil:
		logger.Error().Err(err).Msg("background reconcile failed")
		return err
	}
	logger.Info().Str("status", string(rec.Status)).Msg("background reconcile done")
	return nil
}

// NewServeMux routes reconcile tasks to h.
func NewServeMux(h Handler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeReconcilePayment, h)
	return mux
}

// RetryDelay backs off exponentially from base, capped at one hour.
func RetryDelay(base time.Duration) asynq.RetryDelayFunc {
	if base <= 0 {
		base = 30 * time.Second
	}
	return func(n int, _ error, _ *asynq.Task) time.Duration {
		d := base
		for i := 0; i < n && d < time.Hour; i++ {
			d *= 2
		}
		if d > time.Hour {
			d = time.Hour
		}
		return d
	}
}

// Logger adapts zerolog to asynq.Logger.
type Logger struct {
	L zerolog.Logger
}

func (l Logger) Debug(args ...any) { l.L.Debug().Msg(fmt.Sprint(args...)) }
func (l Logger) Info(args ...any)  { l.L.Info().Msg(fmt.Sprint(args...)) }
func (l Logger) Warn(args ...any)  { l.L.Warn().Msg(fmt.Sprint(args...)) }
func (l Logger) Error(args ...any) { l.L.Error().Msg(fmt.Sprint(args...)) }
func (l Logger) Fatal(args ...any) { l.L.Fatal().Msg(fmt.Sprint(args...)) }
