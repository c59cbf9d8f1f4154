package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"
)

// TypeReconcilePayment is the asynq task type for background reconciliation.
const TypeReconcilePayment = "payment:reconcile"

// ReconcilePayload identifies the gateway payment to re-read.
type ReconcilePayload struct {
	PaymentID string `json:"paymentId"`
}

// NewReconcileTask builds a reconcile task for paymentID.
func NewReconcileTask(paymentID string) (*asynq.Task, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, errors.New("jobs: payment id is required")
	}
	payload, err := json.Marshal(ReconcilePayload{PaymentID: paymentID})
	if err != nil {
		return nil, fmt.Errorf("jobs: encode payload: %w", err)
	}
	return asynq.NewTask(TypeReconcilePayment, payload), nil
}

// TaskID is the dedupe id used for paymentID. While a task with this id is
// pending or retrying, further enqueues for the same payment are no-ops.
func TaskID(paymentID string) string {
	return "reconcile:" + strings.TrimSpace(paymentID)
}
