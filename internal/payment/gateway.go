package payment

import (
	"context"
	"encoding/json"
	"time"
)

// Item is a checkout line item. Its values come from server configuration only.
type Item struct {
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Quantity    int     `json:"quantity"`
	CurrencyID  string  `json:"currency_id"`
	UnitPrice   float64 `json:"unit_price"`
}

// BackURLs are the storefront redirect targets after checkout.
type BackURLs struct {
	Success string `json:"success"`
	Failure string `json:"failure"`
	Pending string `json:"pending"`
}

// PreferenceRequest is the body sent to create a checkout preference.
type PreferenceRequest struct {
	Items             []Item   `json:"items"`
	ExternalReference string   `json:"external_reference"`
	NotificationURL   string   `json:"notification_url"`
	BackURLs          BackURLs `json:"back_urls"`
	AutoReturn        string   `json:"auto_return,omitempty"`
}

// Preference is the gateway's answer to a preference creation.
type Preference struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

// PaymentSnapshot is the canonical payment state fetched from the gateway.
// Raw holds the full response body.
type PaymentSnapshot struct {
	ID                string
	ExternalReference string
	Status            string
	StatusDetail      string
	LastUpdated       time.Time
	Raw               json.RawMessage
}

// Gateway is the subset of the payment provider API this service uses.
type Gateway interface {
	CreatePreference(ctx context.Context, req PreferenceRequest) (Preference, error)
	FetchPayment(ctx context.Context, paymentID string) (PaymentSnapshot, error)
}
