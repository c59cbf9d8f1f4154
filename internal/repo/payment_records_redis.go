package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/wsplatform/checkout-api/internal/obs"
	"github.com/wsplatform/checkout-api/internal/payment"
)

const paymentRecordPrefix = "payment:record:"

// upsertRecordScript replaces the hash at KEYS[1] unless its updated_at
// (unix microseconds) is newer than ARGV[3]. Returns 1 when applied.
var upsertRecordScript = redis.NewScript(`
local current = redis.call("HGET", KEYS[1], "updated_at")
if current and tonumber(current) > tonumber(ARGV[3]) then
  return 0
end
redis.call("DEL", KEYS[1])
redis.call("HSET", KEYS[1],
  "payment_id", ARGV[1],
  "status", ARGV[2],
  "updated_at", ARGV[3],
  "reconciled_at", ARGV[4],
  "raw", ARGV[5])
return 1
`)

// RedisPaymentRecords is the Redis payment.Store: one hash per reference,
// written by a Lua script so the compare and the replace are atomic.
type RedisPaymentRecords struct {
	R redis.Cmdable
}

var _ payment.Store = RedisPaymentRecords{}

// Upsert applies rec unless the stored record is newer.
func (s RedisPaymentRecords) Upsert(ctx context.Context, rec payment.Record) (bool, error) {
	res, err := upsertRecordScript.Run(ctx, s.R, []string{paymentRecordPrefix + rec.ExternalReference},
		rec.PaymentID,
		string(rec.Status),
		rec.UpdatedAt.UnixMicro(),
		rec.ReconciledAt.UnixMicro(),
		string(rec.RawPayload),
	).Int64()
	if err != nil {
		obs.IncCounter(obs.PaymentStoreUpsertTotal, "redis", "error")
		return false, fmt.Errorf("upsert payment record: %w", err)
	}
	applied := res == 1
	obs.IncCounter(obs.PaymentStoreUpsertTotal, "redis", upsertResult(applied))
	return applied, nil
}

// Get returns the record for externalReference, ok=false when absent.
func (s RedisPaymentRecords) Get(ctx context.Context, externalReference string) (payment.Record, bool, error) {
	fields, err := s.R.HGetAll(ctx, paymentRecordPrefix+externalReference).Result()
	if err != nil {
		return payment.Record{}, false, fmt.Errorf("get payment record: %w", err)
	}
	if len(fields) == 0 {
		return payment.Record{}, false, nil
	}
	rec := payment.Record{
		ExternalReference: externalReference,
		PaymentID:         fields["payment_id"],
		Status:            payment.Status(fields["status"]),
		UpdatedAt:         microsToTime(fields["updated_at"]),
		ReconciledAt:      microsToTime(fields["reconciled_at"]),
	}
	if raw := fields["raw"]; raw != "" {
		rec.RawPayload = json.RawMessage(raw)
	}
	return rec, true, nil
}

func microsToTime(v string) time.Time {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMicro(n).UTC()
}
