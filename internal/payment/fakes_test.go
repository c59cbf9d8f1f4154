package payment_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/wsplatform/checkout-api/internal/payment"
)

type memStore struct {
	mu      sync.Mutex
	records map[string]payment.Record
	upserts int
	failGet error
	failPut error
}

func newMemStore() *memStore {
	return &memStore{records: map[string]payment.Record{}}
}

func (s *memStore) Upsert(_ context.Context, rec payment.Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPut != nil {
		return false, s.failPut
	}
	s.upserts++
	if cur, ok := s.records[rec.ExternalReference]; ok && rec.UpdatedAt.Before(cur.UpdatedAt) {
		return false, nil
	}
	s.records[rec.ExternalReference] = rec
	return true, nil
}

func (s *memStore) Get(_ context.Context, ref string) (payment.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet != nil {
		return payment.Record{}, false, s.failGet
	}
	rec, ok := s.records[ref]
	return rec, ok, nil
}

func (s *memStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

type fakeGateway struct {
	mu        sync.Mutex
	payments  map[string]payment.PaymentSnapshot
	delays    map[string]time.Duration
	fetchErr  error
	fetches   []string
	prefReq   []payment.PreferenceRequest
	prefErr   error
	prefReply payment.Preference
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		payments: map[string]payment.PaymentSnapshot{},
		delays:   map[string]time.Duration{},
		prefReply: payment.Preference{
			ID:               "pref-1",
			InitPoint:        "https://www.mercadopago.com.br/checkout/v1/redirect?pref_id=pref-1",
			SandboxInitPoint: "https://sandbox.mercadopago.com.br/checkout/v1/redirect?pref_id=pref-1",
		},
	}
}

func (g *fakeGateway) addPayment(id, ref, status string, updated time.Time) {
	raw, _ := json.Marshal(map[string]any{
		"id":                 id,
		"external_reference": ref,
		"status":             status,
		"date_last_updated":  updated.Format(time.RFC3339Nano),
	})
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payments[id] = payment.PaymentSnapshot{
		ID:                id,
		ExternalReference: ref,
		Status:            status,
		LastUpdated:       updated,
		Raw:               raw,
	}
}

func (g *fakeGateway) CreatePreference(_ context.Context, req payment.PreferenceRequest) (payment.Preference, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prefReq = append(g.prefReq, req)
	if g.prefErr != nil {
		return payment.Preference{}, g.prefErr
	}
	return g.prefReply, nil
}

func (g *fakeGateway) FetchPayment(ctx context.Context, id string) (payment.PaymentSnapshot, error) {
	g.mu.Lock()
	g.fetches = append(g.fetches, id)
	delay := g.delays[id]
	fetchErr := g.fetchErr
	snap, ok := g.payments[id]
	g.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return payment.PaymentSnapshot{}, &payment.GatewayError{Op: "fetch payment", Kind: payment.ErrGatewayUnavailable, Err: ctx.Err()}
		}
	}
	if fetchErr != nil {
		return payment.PaymentSnapshot{}, fetchErr
	}
	if !ok {
		return payment.PaymentSnapshot{}, &payment.GatewayError{Op: "fetch payment", StatusCode: 404, Kind: payment.ErrGatewayUnavailable}
	}
	return snap, nil
}

func (g *fakeGateway) fetchCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.fetches)
}

type recordingPublisher struct {
	mu      sync.Mutex
	changes []payment.StatusChange
	err     error
}

func (p *recordingPublisher) PublishStatusChange(_ context.Context, c payment.StatusChange) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, c)
	return p.err
}

type recordingRetrier struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingRetrier) EnqueueReconcile(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
	return nil
}

type failingLocker struct{}

func (failingLocker) WithLock(context.Context, string, time.Duration, func(context.Context) error) error {
	return errors.New("redis down")
}

var errStoreDown = errors.New("store down")
