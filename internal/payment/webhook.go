package payment

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wsplatform/checkout-api/internal/common"
	"github.com/wsplatform/checkout-api/internal/obs"
)

// Retrier schedules a background reconciliation after a retryable failure.
type Retrier interface {
	EnqueueReconcile(ctx context.Context, paymentID string) error
}

// Webhook receives gateway notifications and reconciles synchronously.
type Webhook struct {
	Reconciler StatusReconciler
	Verifier   SignatureVerifier
	Retry      Retrier
	Logger     zerolog.Logger
}

type webhookResp struct {
	Received  bool   `json:"received"`
	PaymentID string `json:"paymentId"`
}

// HandleNotification extracts the payment id from a notification and
// reconciles it. Unattributable payments are acknowledged without error.
func (h Webhook) HandleNotification(ctx context.Context, body []byte, query url.Values) (string, error) {
	n, err := ParseNotification(body, query)
	if err != nil {
		return "", err
	}
	return n.PaymentID(), h.reconcile(ctx, n.PaymentID())
}

func (h Webhook) reconcile(ctx context.Context, paymentID string) error {
	if h.Reconciler == nil {
		return errors.New("webhook reconciler not configured")
	}
	_, err := h.Reconciler.Reconcile(ctx, paymentID)
	if errors.Is(err, ErrUnattributablePayment) {
		return nil
	}
	return err
}

// Handle serves POST /webhook/provider.
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("payment.Webhook").Start(r.Context(), "PaymentWebhook.Handle")
	defer span.End()

	outcome := "error"
	defer func() {
		span.SetAttributes(attribute.String("payment.webhook.result", outcome))
		obs.IncCounter(obs.PaymentWebhookTotal, outcome)
	}()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		outcome = "invalid_body"
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "notification body too large", nil)
			return
		}
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}

	n, err := ParseNotification(body, r.URL.Query())
	if err != nil {
		outcome = "invalid_payload"
		common.JSONError(w, http.StatusBadRequest, "INVALID_PAYLOAD", "notification has no payment id", nil)
		return
	}
	paymentID := n.PaymentID()
	span.SetAttributes(attribute.String("payment.id", paymentID))

	// The manifest is signed over the query data.id; a body naming another
	// payment would reconcile something the signature does not cover.
	if signedID := r.URL.Query().Get("data.id"); h.Verifier.Enabled() && signedID != "" && signedID != paymentID {
		outcome = "invalid_signature"
		logger := h.Logger.With().Str("payment_id", paymentID).Str("signed_id", signedID).Logger()
		logger.Warn().Msg("notification body does not match signed data.id")
		common.JSONError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "signature verification failed", nil)
		return
	}
	if err := h.Verifier.Verify(r, paymentID); err != nil {
		outcome = "invalid_signature"
		common.JSONError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "signature verification failed", nil)
		return
	}

	logger := h.Logger.With().Str("payment_id", paymentID).Str("notification_type", n.Type).Logger()
	if err := h.reconcile(ctx, paymentID); err != nil {
		span.RecordError(err)
		logger.Error().Err(err).Msg("payment notification reconcile failed")
		if h.Retry != nil && IsRetryable(err) {
			if qerr := h.Retry.EnqueueReconcile(context.WithoutCancel(ctx), paymentID); qerr != nil {
				logger.Error().Err(qerr).Msg("enqueue reconcile retry")
			} else {
				logger.Info().Msg("reconcile retry scheduled")
			}
		}
		outcome = "retryable"
		common.JSONError(w, http.StatusServiceUnavailable, "RECONCILE_FAILED", "payment could not be reconciled, retry later", nil)
		return
	}
	outcome = "success"
	common.JSON(w, http.StatusOK, webhookResp{Received: true, PaymentID: paymentID})
}
