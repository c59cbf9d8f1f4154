package payment_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/wsplatform/checkout-api/internal/payment"
)

type harness struct {
	gw      *fakeGateway
	store   *memStore
	retry   *recordingRetrier
	router  http.Handler
	webhook payment.Webhook
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{gw: newFakeGateway(), store: newMemStore(), retry: &recordingRetrier{}}
	rc := &payment.Reconciler{Gateway: h.gw, Store: h.store, Logger: zerolog.Nop()}
	h.webhook = payment.Webhook{Reconciler: rc, Retry: h.retry, Logger: zerolog.Nop()}
	handler := &payment.Handler{Svc: newService(h.gw, h.store)}

	r := chi.NewRouter()
	r.Post("/payment/preference", handler.Preference)
	r.Post(payment.WebhookPath, h.webhook.Handle)
	r.Get("/payment/status/{externalReference}", handler.Status)
	h.router = r
	return h
}

func (h *harness) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.router.ServeHTTP(rr, req)
	return rr
}

func (h *harness) status(t *testing.T, ref string) payment.ApprovalStatus {
	t.Helper()
	rr := h.do(http.MethodGet, "/payment/status/"+ref, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var out payment.ApprovalStatus
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func TestPreferenceEndpoint(t *testing.T) {
	h := newHarness(t)
	rr := h.do(http.MethodPost, "/payment/preference", `{"externalReference":"buyer@example.com"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"id":"pref-1","redirectUrl":"https://www.mercadopago.com.br/checkout/v1/redirect?pref_id=pref-1","sandboxRedirectUrl":"https://sandbox.mercadopago.com.br/checkout/v1/redirect?pref_id=pref-1","externalReference":"buyer@example.com"}`, rr.Body.String())
	require.Zero(t, h.store.len())
}

func TestPreferenceEndpointErrors(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/payment/preference", `{"externalReference":"  "}`).Code)
	require.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/payment/preference", `nope`).Code)

	h.gw.prefErr = &payment.GatewayError{Op: "create preference", StatusCode: 400, Kind: payment.ErrGateway}
	rr := h.do(http.MethodPost, "/payment/preference", `{"externalReference":"buyer@example.com"}`)
	require.Equal(t, http.StatusBadGateway, rr.Code)
	require.Contains(t, rr.Body.String(), "GATEWAY_ERROR")

	h.gw.prefErr = &payment.GatewayError{Op: "create preference", Kind: payment.ErrGatewayUnavailable}
	rr = h.do(http.MethodPost, "/payment/preference", `{"externalReference":"buyer@example.com"}`)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestWebhookApprovedFlow(t *testing.T) {
	h := newHarness(t)
	h.gw.addPayment("123", "buyer@example.com", "approved", baseTime)

	rr := h.do(http.MethodPost, payment.WebhookPath, `{"data":{"id":"123"}}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"received":true,"paymentId":"123"}`, rr.Body.String())

	got := h.status(t, "buyer@example.com")
	require.True(t, got.Approved)
	require.Equal(t, payment.StatusApproved, got.Status)
}

func TestWebhookWithoutPaymentID(t *testing.T) {
	h := newHarness(t)
	rr := h.do(http.MethodPost, payment.WebhookPath, `{"action":"payment.created"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "INVALID_PAYLOAD")
	require.Zero(t, h.gw.fetchCount())
	require.Empty(t, h.retry.ids)
}

func TestWebhookGatewayTimeoutThenRetry(t *testing.T) {
	h := newHarness(t)
	h.gw.addPayment("123", "buyer@example.com", "approved", baseTime)
	h.gw.delays["123"] = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodPost, payment.WebhookPath, strings.NewReader(`{"data":{"id":"123"}}`)).WithContext(ctx)
	rr := httptest.NewRecorder()
	h.router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Zero(t, h.store.len())
	require.Equal(t, []string{"123"}, h.retry.ids)

	h.gw.mu.Lock()
	delete(h.gw.delays, "123")
	h.gw.mu.Unlock()
	rr = h.do(http.MethodPost, payment.WebhookPath, `{"data":{"id":"123"}}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, h.status(t, "buyer@example.com").Approved)
}

func TestWebhookConcurrentOutOfOrderDelivery(t *testing.T) {
	h := newHarness(t)
	h.gw.addPayment("123", "buyer@example.com", "pending", baseTime)
	h.gw.addPayment("124", "buyer@example.com", "approved", baseTime.Add(time.Minute))
	// the older payment resolves last
	h.gw.delays["123"] = 30 * time.Millisecond

	var wg sync.WaitGroup
	for _, id := range []string{"124", "123"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			rr := h.do(http.MethodPost, payment.WebhookPath, `{"data":{"id":"`+id+`"}}`)
			require.Equal(t, http.StatusOK, rr.Code)
		}(id)
	}
	wg.Wait()

	got := h.status(t, "buyer@example.com")
	require.True(t, got.Approved)
	require.Equal(t, payment.StatusApproved, got.Status)
	require.Equal(t, 1, h.store.len())
}

func TestWebhookRedeliveryIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.gw.addPayment("123", "buyer@example.com", "approved", baseTime)

	for i := 0; i < 5; i++ {
		rr := h.do(http.MethodPost, payment.WebhookPath, `{"type":"payment","data":{"id":123}}`)
		require.Equal(t, http.StatusOK, rr.Code)
	}
	require.Equal(t, 1, h.store.len())
	rec, ok, err := h.store.Get(context.Background(), "buyer@example.com")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, payment.StatusApproved, rec.Status)
}

func TestWebhookUnattributablePaymentIsAcknowledged(t *testing.T) {
	h := newHarness(t)
	h.gw.addPayment("55", "", "approved", baseTime)

	rr := h.do(http.MethodPost, payment.WebhookPath, `{"id":55}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"received":true,"paymentId":"55"}`, rr.Body.String())
	require.Zero(t, h.store.len())
	require.Empty(t, h.retry.ids)
}

func TestWebhookSignatureRequired(t *testing.T) {
	h := newHarness(t)
	h.gw.addPayment("123", "buyer@example.com", "approved", baseTime)
	verifier := payment.SignatureVerifier{Secret: "s3cret"}
	h.webhook.Verifier = verifier
	r := chi.NewRouter()
	r.Post(payment.WebhookPath, h.webhook.Handle)

	req := httptest.NewRequest(http.MethodPost, payment.WebhookPath+"?data.id=123&type=payment", strings.NewReader(`{"data":{"id":"123"}}`))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Zero(t, h.gw.fetchCount())

	req = signedRequest(verifier, "123", "req-9", "1704908010")
	req.Body = http.NoBody
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 1, h.store.len())
}

func TestWebhookRejectsBodyIDOutsideSignature(t *testing.T) {
	h := newHarness(t)
	h.gw.addPayment("123", "buyer@example.com", "approved", baseTime)
	h.gw.addPayment("999", "other@example.com", "approved", baseTime)
	verifier := payment.SignatureVerifier{Secret: "s3cret"}
	h.webhook.Verifier = verifier
	r := chi.NewRouter()
	r.Post(payment.WebhookPath, h.webhook.Handle)

	req := signedRequest(verifier, "123", "req-9", "1704908010")
	req.Body = io.NopCloser(strings.NewReader(`{"data":{"id":"999"}}`))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Contains(t, rr.Body.String(), "INVALID_SIGNATURE")
	require.Zero(t, h.gw.fetchCount())
	require.Zero(t, h.store.len())
}

func TestWebhookVerifiesBodyIDWithoutQuery(t *testing.T) {
	h := newHarness(t)
	h.gw.addPayment("123", "buyer@example.com", "approved", baseTime)
	verifier := payment.SignatureVerifier{Secret: "s3cret"}
	h.webhook.Verifier = verifier
	r := chi.NewRouter()
	r.Post(payment.WebhookPath, h.webhook.Handle)

	// signature made for 123, body names 999 and no query id is sent
	req := httptest.NewRequest(http.MethodPost, payment.WebhookPath, strings.NewReader(`{"data":{"id":"999"}}`))
	req.Header.Set("x-request-id", "req-9")
	req.Header.Set("x-signature", "ts=1704908010,v1="+verifier.Sign("123", "req-9", "1704908010"))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	req = httptest.NewRequest(http.MethodPost, payment.WebhookPath, strings.NewReader(`{"data":{"id":"123"}}`))
	req.Header.Set("x-request-id", "req-9")
	req.Header.Set("x-signature", "ts=1704908010,v1="+verifier.Sign("123", "req-9", "1704908010"))
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 1, h.store.len())
}

func TestStatusUnknownReference(t *testing.T) {
	h := newHarness(t)
	rr := h.do(http.MethodGet, "/payment/status/never@example.com", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"externalReference":"never@example.com","approved":false}`, rr.Body.String())
}

func TestStatusDecodesEscapedReference(t *testing.T) {
	h := newHarness(t)
	_, err := h.store.Upsert(context.Background(), payment.Record{ExternalReference: "+55 11 99999-0000", Status: payment.StatusApproved, UpdatedAt: baseTime})
	require.NoError(t, err)
	got := h.status(t, "%2B55%2011%2099999-0000")
	require.Equal(t, "+55 11 99999-0000", got.ExternalReference)
	require.True(t, got.Approved)
}

func TestStatusKeepsLiteralPercent(t *testing.T) {
	h := newHarness(t)
	_, err := h.store.Upsert(context.Background(), payment.Record{ExternalReference: "a%40b", Status: payment.StatusApproved, UpdatedAt: baseTime})
	require.NoError(t, err)

	got := h.status(t, "a%2540b")
	require.Equal(t, "a%40b", got.ExternalReference)
	require.True(t, got.Approved)
}

func TestHandleNotificationDirect(t *testing.T) {
	h := newHarness(t)
	h.gw.addPayment("8", "buyer@example.com", "rejected", baseTime)
	id, err := h.webhook.HandleNotification(context.Background(), []byte(`{"data":{"id":"8"}}`), nil)
	require.NoError(t, err)
	require.Equal(t, "8", id)

	_, err = h.webhook.HandleNotification(context.Background(), []byte(`{}`), nil)
	require.ErrorIs(t, err, payment.ErrInvalidPayload)
}
