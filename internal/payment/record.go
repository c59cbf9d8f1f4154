package payment

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// Status is the normalised lifecycle state of a payment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
	StatusUnknown   Status = "unknown"
)

// NormaliseStatus folds the gateway's payment status vocabulary into Status.
func NormaliseStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "approved":
		return StatusApproved
	case "pending", "in_process", "in_mediation", "authorized":
		return StatusPending
	case "rejected":
		return StatusRejected
	case "cancelled", "refunded", "charged_back":
		return StatusCancelled
	default:
		return StatusUnknown
	}
}

// Record is the latest known payment state for one buyer reference.
type Record struct {
	ExternalReference string
	PaymentID         string
	Status            Status
	RawPayload        json.RawMessage
	// UpdatedAt orders competing writes for the same reference.
	UpdatedAt    time.Time
	ReconciledAt time.Time
}

// Store persists one Record per external reference.
//
// Upsert applies rec only when no record exists for the reference or when
// rec.UpdatedAt is not older than the stored one, and reports whether it did.
// Get reports ok=false, not an error, for unknown references.
type Store interface {
	Upsert(ctx context.Context, rec Record) (applied bool, err error)
	Get(ctx context.Context, externalReference string) (rec Record, ok bool, err error)
}
