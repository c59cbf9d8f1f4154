package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wsplatform/checkout-api/internal/obs"
)

// WebhookPath is where the gateway delivers notifications.
const WebhookPath = "/webhook/provider"

// MaxReferenceLength bounds buyer references (an e-mail address at most).
const MaxReferenceLength = 254

// PreferenceResult is returned to the storefront after opening a checkout.
type PreferenceResult struct {
	ID                 string `json:"id"`
	RedirectURL        string `json:"redirectUrl"`
	SandboxRedirectURL string `json:"sandboxRedirectUrl"`
	ExternalReference  string `json:"externalReference"`
}

// ApprovalStatus answers whether a buyer reference has paid. Status is empty
// for references never seen.
type ApprovalStatus struct {
	ExternalReference string `json:"externalReference"`
	Approved          bool   `json:"approved"`
	Status            Status `json:"status,omitempty"`
}

// Service creates checkouts and answers payment status queries.
type Service struct {
	Gateway         Gateway
	Store           Store
	Item            Item
	NotificationURL string
	BackURL         string
	Logger          zerolog.Logger
}

// CreatePreference opens a checkout preference for externalReference using
// the configured item. Nothing is stored locally.
func (s *Service) CreatePreference(ctx context.Context, externalReference string) (PreferenceResult, error) {
	if s == nil || s.Gateway == nil {
		return PreferenceResult{}, errors.New("payment service not configured")
	}
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.CreatePreference")
	defer span.End()

	start := time.Now()
	result := "error"
	defer func() {
		span.SetAttributes(
			attribute.String("payment.preference.result", result),
			attribute.Float64("payment.preference.duration_ms", obs.DurationMillis(time.Since(start))),
		)
		obs.IncCounter(obs.PaymentPreferenceTotal, result)
	}()

	ref := strings.TrimSpace(externalReference)
	if ref == "" || len(ref) > MaxReferenceLength {
		result = "invalid"
		return PreferenceResult{}, ErrInvalidReference
	}

	item := s.Item
	if item.Quantity <= 0 {
		item.Quantity = 1
	}
	pref, err := s.Gateway.CreatePreference(ctx, PreferenceRequest{
		Items:             []Item{item},
		ExternalReference: ref,
		NotificationURL:   s.NotificationURL,
		BackURLs:          BackURLs{Success: s.BackURL, Failure: s.BackURL, Pending: s.BackURL},
		AutoReturn:        "approved",
	})
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrGatewayUnavailable) {
			result = "unavailable"
		} else {
			result = "rejected"
		}
		return PreferenceResult{}, fmt.Errorf("create preference: %w", err)
	}
	result = "success"
	span.SetAttributes(attribute.String("payment.preference.id", pref.ID))
	return PreferenceResult{
		ID:                 pref.ID,
		RedirectURL:        pref.InitPoint,
		SandboxRedirectURL: pref.SandboxInitPoint,
		ExternalReference:  ref,
	}, nil
}

// IsApproved reports the stored status for externalReference. It never fails:
// store errors are logged and reported as not approved.
func (s *Service) IsApproved(ctx context.Context, externalReference string) ApprovalStatus {
	out := ApprovalStatus{ExternalReference: externalReference}
	if s == nil || s.Store == nil {
		return out
	}
	rec, ok, err := s.Store.Get(ctx, externalReference)
	if err != nil {
		s.Logger.Error().Err(err).Msg("payment status lookup failed")
		return out
	}
	if !ok {
		return out
	}
	out.Status = rec.Status
	out.Approved = rec.Status == StatusApproved
	return out
}
