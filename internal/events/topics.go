package events

import "github.com/wsplatform/checkout-api/internal/payment"

// Routing keys for payment status change events published to the exchange.
const (
	TopicPaymentApproved  = "payment.approved"
	TopicPaymentPending   = "payment.pending"
	TopicPaymentRejected  = "payment.rejected"
	TopicPaymentCancelled = "payment.cancelled"
	TopicPaymentUnknown   = "payment.unknown"
)

// TopicFor maps a payment status to its routing key.
func TopicFor(status payment.Status) string {
	switch status {
	case payment.StatusApproved:
		return TopicPaymentApproved
	case payment.StatusPending:
		return TopicPaymentPending
	case payment.StatusRejected:
		return TopicPaymentRejected
	case payment.StatusCancelled:
		return TopicPaymentCancelled
	default:
		return TopicPaymentUnknown
	}
}
