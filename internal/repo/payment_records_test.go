package repo_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	dbgen "github.com/wsplatform/checkout-api/internal/db/gen"
	"github.com/wsplatform/checkout-api/internal/payment"
	"github.com/wsplatform/checkout-api/internal/repo"
)

type paymentRecordsStub struct {
	upserts []dbgen.UpsertPaymentRecordParams
	rows    int64
	row     dbgen.PaymentRecord
	getErr  error
}

func (s *paymentRecordsStub) UpsertPaymentRecord(_ context.Context, arg dbgen.UpsertPaymentRecordParams) (int64, error) {
	s.upserts = append(s.upserts, arg)
	return s.rows, nil
}

func (s *paymentRecordsStub) GetPaymentRecord(_ context.Context, _ string) (dbgen.PaymentRecord, error) {
	return s.row, s.getErr
}

func TestPaymentRecordsUpsertMapsParams(t *testing.T) {
	stub := &paymentRecordsStub{rows: 1}
	store := repo.PaymentRecords{Q: stub}
	updated := time.Date(2024, 3, 1, 10, 0, 0, 0, time.FixedZone("BRT", -3*3600))

	applied, err := store.Upsert(context.Background(), payment.Record{
		ExternalReference: "buyer@example.com",
		PaymentID:         "123",
		Status:            payment.StatusApproved,
		RawPayload:        json.RawMessage(`{"id":123}`),
		UpdatedAt:         updated,
		ReconciledAt:      updated.Add(time.Second),
	})
	require.NoError(t, err)
	require.True(t, applied)
	require.Len(t, stub.upserts, 1)
	got := stub.upserts[0]
	require.Equal(t, "approved", got.Status)
	require.Equal(t, `{"id":123}`, string(got.RawPayload))
	require.Equal(t, time.UTC, got.UpdatedAt.Time.Location())
	require.True(t, got.UpdatedAt.Time.Equal(updated))
}

func TestPaymentRecordsUpsertStale(t *testing.T) {
	stub := &paymentRecordsStub{rows: 0}
	applied, err := repo.PaymentRecords{Q: stub}.Upsert(context.Background(), payment.Record{ExternalReference: "a", RawPayload: json.RawMessage("garbage")})
	require.NoError(t, err)
	require.False(t, applied)
	require.Equal(t, "{}", string(stub.upserts[0].RawPayload))
}

func TestPaymentRecordsGetMissing(t *testing.T) {
	stub := &paymentRecordsStub{getErr: pgx.ErrNoRows}
	_, ok, err := repo.PaymentRecords{Q: stub}.Get(context.Background(), "nobody")
	require.NoError(t, err)
	require.False(t, ok)

	stub.getErr = errors.New("conn reset")
	_, _, err = repo.PaymentRecords{Q: stub}.Get(context.Background(), "nobody")
	require.Error(t, err)
}
