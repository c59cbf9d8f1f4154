package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wsplatform/checkout-api/internal/obs"
)

const maxGatewayResponse = 1 << 20

// Doer sends an HTTP request under ctx. resilience.HTTPClient satisfies it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// MercadoPago talks to the Mercado Pago REST API. Fetch and Create may carry
// different timeout and retry policies.
type MercadoPago struct {
	AccessToken string
	BaseURL     string
	Fetch       Doer
	Create      Doer
}

// CreatePreference opens a checkout preference.
func (m MercadoPago) CreatePreference(ctx context.Context, pr PreferenceRequest) (Preference, error) {
	const op = "create preference"
	body, err := json.Marshal(pr)
	if err != nil {
		return Preference{}, fmt.Errorf("encode preference: %w", err)
	}
	req, err := m.newRequest(ctx, http.MethodPost, "/checkout/preferences", body)
	if err != nil {
		return Preference{}, err
	}
	req.Header.Set("X-Idempotency-Key", uuid.NewString())

	start := time.Now()
	resp, data, err := m.send(ctx, m.Create, req)
	if err != nil {
		observeGateway(op, "unavailable", start)
		return Preference{}, &GatewayError{Op: op, Kind: ErrGatewayUnavailable, Err: err}
	}
	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		observeGateway(op, "unavailable", start)
		return Preference{}, &GatewayError{Op: op, StatusCode: resp.StatusCode, Body: truncateBody(data), Kind: ErrGatewayUnavailable}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		observeGateway(op, "rejected", start)
		return Preference{}, &GatewayError{Op: op, StatusCode: resp.StatusCode, Body: truncateBody(data), Kind: ErrGateway}
	}
	var pref Preference
	if err := json.Unmarshal(data, &pref); err != nil || pref.ID == "" {
		observeGateway(op, "rejected", start)
		if err == nil {
			err = errors.New("missing preference id")
		}
		return Preference{}, &GatewayError{Op: op, StatusCode: resp.StatusCode, Body: truncateBody(data), Kind: ErrGateway, Err: err}
	}
	observeGateway(op, "ok", start)
	return pref, nil
}

type paymentResponse struct {
	ID                json.Number `json:"id"`
	ExternalReference *string     `json:"external_reference"`
	Status            string      `json:"status"`
	StatusDetail      string      `json:"status_detail"`
	DateLastUpdated   string      `json:"date_last_updated"`
}

// FetchPayment reads the canonical state of a payment. Any answer other than
// 200 is treated as unavailable so the notification gets redelivered.
func (m MercadoPago) FetchPayment(ctx context.Context, paymentID string) (PaymentSnapshot, error) {
	const op = "fetch payment"
	req, err := m.newRequest(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(paymentID), nil)
	if err != nil {
		return PaymentSnapshot{}, err
	}
	start := time.Now()
	resp, data, err := m.send(ctx, m.Fetch, req)
	if err != nil {
		observeGateway(op, "unavailable", start)
		return PaymentSnapshot{}, &GatewayError{Op: op, Kind: ErrGatewayUnavailable, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		observeGateway(op, "unavailable", start)
		return PaymentSnapshot{}, &GatewayError{Op: op, StatusCode: resp.StatusCode, Body: truncateBody(data), Kind: ErrGatewayUnavailable}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var pr paymentResponse
	if err := dec.Decode(&pr); err != nil {
		observeGateway(op, "unavailable", start)
		return PaymentSnapshot{}, &GatewayError{Op: op, StatusCode: resp.StatusCode, Body: truncateBody(data), Kind: ErrGatewayUnavailable, Err: err}
	}
	observeGateway(op, "ok", start)

	snap := PaymentSnapshot{
		ID:           pr.ID.String(),
		Status:       pr.Status,
		StatusDetail: pr.StatusDetail,
		LastUpdated:  parseGatewayTime(pr.DateLastUpdated),
		Raw:          json.RawMessage(data),
	}
	if snap.ID == "" {
		snap.ID = paymentID
	}
	if pr.ExternalReference != nil {
		snap.ExternalReference = strings.TrimSpace(*pr.ExternalReference)
	}
	return snap, nil
}

func (m MercadoPago) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	base := strings.TrimRight(m.BaseURL, "/")
	if base == "" {
		base = "https://api.mercadopago.com"
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, base+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.AccessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (m MercadoPago) send(ctx context.Context, doer Doer, req *http.Request) (*http.Response, []byte, error) {
	if doer == nil {
		return nil, nil, errors.New("gateway http client not configured")
	}
	resp, err := doer.Do(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxGatewayResponse))
	if err != nil {
		return nil, nil, fmt.Errorf("read gateway response: %w", err)
	}
	return resp, data, nil
}

// parseGatewayTime accepts the gateway's ISO-8601 timestamps, which carry
// milliseconds and a numeric offset. Unparseable values yield the zero time.
func parseGatewayTime(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.000-0700", "2006-01-02T15:04:05-0700"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC()
	}
	return time.Time{}
}

func observeGateway(op, result string, start time.Time) {
	if obs.GatewayRequestDuration == nil {
		return
	}
	obs.GatewayRequestDuration.WithLabelValues(op, result).Observe(obs.DurationMillis(time.Since(start)))
}
