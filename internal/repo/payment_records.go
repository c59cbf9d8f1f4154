package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	dbgen "github.com/wsplatform/checkout-api/internal/db/gen"
	"github.com/wsplatform/checkout-api/internal/obs"
	"github.com/wsplatform/checkout-api/internal/payment"
)

// PaymentRecordsQuerier is the slice of generated queries PaymentRecords needs.
type PaymentRecordsQuerier interface {
	UpsertPaymentRecord(ctx context.Context, arg dbgen.UpsertPaymentRecordParams) (int64, error)
	GetPaymentRecord(ctx context.Context, externalReference string) (dbgen.PaymentRecord, error)
}

// PaymentRecords is the Postgres payment.Store. The conditional upsert is a
// single statement, so the row lock taken on conflict serialises writers for
// one reference while other references proceed.
type PaymentRecords struct {
	Q PaymentRecordsQuerier
}

var _ payment.Store = PaymentRecords{}

// Upsert applies rec unless the stored record is newer.
func (r PaymentRecords) Upsert(ctx context.Context, rec payment.Record) (bool, error) {
	raw := []byte(rec.RawPayload)
	if len(raw) == 0 || !json.Valid(raw) {
		raw = []byte("{}")
	}
	rows, err := r.Q.UpsertPaymentRecord(ctx, dbgen.UpsertPaymentRecordParams{
		ExternalReference: rec.ExternalReference,
		PaymentID:         rec.PaymentID,
		Status:            string(rec.Status),
		RawPayload:        raw,
		UpdatedAt:         pgtype.Timestamptz{Time: rec.UpdatedAt.UTC(), Valid: true},
		ReconciledAt:      pgtype.Timestamptz{Time: rec.ReconciledAt.UTC(), Valid: true},
	})
	if err != nil {
		obs.IncCounter(obs.PaymentStoreUpsertTotal, "postgres", "error")
		return false, fmt.Errorf("upsert payment record: %w", err)
	}
	applied := rows > 0
	obs.IncCounter(obs.PaymentStoreUpsertTotal, "postgres", upsertResult(applied))
	return applied, nil
}

// Get returns the record for externalReference, ok=false when absent.
func (r PaymentRecords) Get(ctx context.Context, externalReference string) (payment.Record, bool, error) {
	row, err := r.Q.GetPaymentRecord(ctx, externalReference)
	if errors.Is(err, pgx.ErrNoRows) {
		return payment.Record{}, false, nil
	}
	if err != nil {
		return payment.Record{}, false, fmt.Errorf("get payment record: %w", err)
	}
	return payment.Record{
		ExternalReference: row.ExternalReference,
		PaymentID:         row.PaymentID,
		Status:            payment.Status(row.Status),
		RawPayload:        json.RawMessage(row.RawPayload),
		UpdatedAt:         row.UpdatedAt.Time.UTC(),
		ReconciledAt:      row.ReconciledAt.Time.UTC(),
	}, true, nil
}

func upsertResult(applied bool) string {
	if applied {
		return "applied"
	}
	return "stale"
}
