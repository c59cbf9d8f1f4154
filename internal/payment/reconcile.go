package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wsplatform/checkout-api/internal/obs"
)

// StatusReconciler re-reads a payment from the gateway and stores its state.
type StatusReconciler interface {
	Reconcile(ctx context.Context, paymentID string) (Record, error)
}

// Locker serialises work on a key across processes.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// StatusChange is emitted when a stored payment changes status.
type StatusChange struct {
	ExternalReference string    `json:"externalReference"`
	PaymentID         string    `json:"paymentId"`
	Status            Status    `json:"status"`
	PreviousStatus    Status    `json:"previousStatus,omitempty"`
	StatusDetail      string    `json:"statusDetail,omitempty"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Publisher receives status changes after they were stored.
type Publisher interface {
	PublishStatusChange(ctx context.Context, change StatusChange) error
}

// Reconciler implements StatusReconciler. Locker and Events are optional.
type Reconciler struct {
	Gateway Gateway
	Store   Store
	Locker  Locker
	LockTTL time.Duration
	Events  Publisher
	Logger  zerolog.Logger
	Now     func() time.Time
}

// Reconcile fetches paymentID from the gateway and conditionally upserts the
// resulting record. The returned record is the one built from the gateway
// answer, whether or not it won against the stored one.
func (r *Reconciler) Reconcile(ctx context.Context, paymentID string) (Record, error) {
	if r == nil || r.Gateway == nil || r.Store == nil {
		return Record{}, errors.New("reconciler not configured")
	}
	ctx, span := otel.Tracer("payment.Reconciler").Start(ctx, "PaymentReconciler.Reconcile")
	defer span.End()
	span.SetAttributes(attribute.String("payment.id", paymentID))

	result := "error"
	defer func() {
		span.SetAttributes(attribute.String("payment.reconcile.result", result))
		obs.IncCounter(obs.PaymentReconcileTotal, result)
	}()

	var (
		rec     Record
		applied bool
	)
	run := func(ctx context.Context) error {
		var err error
		rec, applied, err = r.reconcile(ctx, paymentID)
		return err
	}

	var err error
	if r.Locker != nil {
		ran := false
		err = r.Locker.WithLock(ctx, "reconcile:"+paymentID, r.lockTTL(), func(ctx context.Context) error {
			ran = true
			return run(ctx)
		})
		if err != nil && !ran && ctx.Err() == nil {
			// the store write is conditional, so losing the lock only costs a duplicate fetch
			r.Logger.Warn().Err(err).Str("payment_id", paymentID).Msg("reconcile lock unavailable, continuing without it")
			err = run(ctx)
		}
	} else {
		err = run(ctx)
	}

	switch {
	case errors.Is(err, ErrUnattributablePayment):
		result = "unattributable"
		return rec, err
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "reconcile failed")
		return rec, err
	case applied:
		result = "applied"
	default:
		result = "stale"
	}
	return rec, nil
}

func (r *Reconciler) reconcile(ctx context.Context, paymentID string) (Record, bool, error) {
	snap, err := r.Gateway.FetchPayment(ctx, paymentID)
	if err != nil {
		return Record{}, false, err
	}
	if snap.ExternalReference == "" {
		r.Logger.Warn().
			Str("payment_id", paymentID).
			Str("gateway_status", snap.Status).
			Msg("payment has no external reference, acknowledging without record")
		return Record{}, false, ErrUnattributablePayment
	}

	now := r.now()
	rec := Record{
		ExternalReference: snap.ExternalReference,
		PaymentID:         firstNonEmpty(snap.ID, paymentID),
		Status:            NormaliseStatus(snap.Status),
		RawPayload:        snap.Raw,
		UpdatedAt:         snap.LastUpdated,
		ReconciledAt:      now,
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}

	var previous Status
	if r.Events != nil {
		if prev, ok, err := r.Store.Get(ctx, rec.ExternalReference); err == nil && ok {
			previous = prev.Status
		}
	}

	applied, err := r.Store.Upsert(ctx, rec)
	if err != nil {
		return rec, false, fmt.Errorf("store payment record: %w", err)
	}
	r.Logger.Info().
		Str("payment_id", rec.PaymentID).
		Str("status", string(rec.Status)).
		Str("status_detail", snap.StatusDetail).
		Bool("applied", applied).
		Msg("payment reconciled")

	if applied && r.Events != nil && previous != rec.Status {
		change := StatusChange{
			ExternalReference: rec.ExternalReference,
			PaymentID:         rec.PaymentID,
			Status:            rec.Status,
			PreviousStatus:    previous,
			StatusDetail:      snap.StatusDetail,
			UpdatedAt:         rec.UpdatedAt,
		}
		if err := r.Events.PublishStatusChange(ctx, change); err != nil {
			r.Logger.Error().Err(err).Str("payment_id", rec.PaymentID).Msg("publish status change")
		}
	}
	return rec, applied, nil
}

func (r *Reconciler) lockTTL() time.Duration {
	if r.LockTTL > 0 {
		return r.LockTTL
	}
	return 30 * time.Second
}

func (r *Reconciler) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}
