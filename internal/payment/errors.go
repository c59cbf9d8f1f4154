package payment

import (
	"errors"
	"fmt"
)

var (
	// ErrGateway means the gateway answered and rejected the request.
	ErrGateway = errors.New("payment gateway rejected request")
	// ErrGatewayUnavailable covers timeouts, transport failures, 5xx answers
	// and an open circuit. Callers may retry.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrInvalidPayload means a notification carried no payment id.
	ErrInvalidPayload = errors.New("notification has no payment id")
	// ErrUnattributablePayment means the canonical payment has no external reference.
	ErrUnattributablePayment = errors.New("payment has no external reference")
	// ErrInvalidReference rejects empty or oversized buyer references.
	ErrInvalidReference = errors.New("invalid external reference")
)

const maxErrorBody = 512

// GatewayError describes a failed gateway call. It matches ErrGateway or
// ErrGatewayUnavailable through errors.Is and never carries credentials.
type GatewayError struct {
	Op         string
	StatusCode int
	Body       string
	Kind       error
	Err        error
}

func (e *GatewayError) Error() string {
	msg := e.Kind.Error() + ": " + e.Op
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" status=%d", e.StatusCode)
	}
	if e.Body != "" {
		msg += " body=" + e.Body
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GatewayError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsRetryable reports whether err is worth redelivering later.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrInvalidPayload) &&
		!errors.Is(err, ErrUnattributablePayment) &&
		!errors.Is(err, ErrInvalidReference) &&
		!errors.Is(err, ErrGateway)
}

func truncateBody(b []byte) string {
	if len(b) > maxErrorBody {
		return string(b[:maxErrorBody]) + "..."
	}
	return string(b)
}
