package payment_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wsplatform/checkout-api/internal/payment"
)

func TestNormaliseStatus(t *testing.T) {
	cases := map[string]payment.Status{
		"approved":     payment.StatusApproved,
		" APPROVED ":   payment.StatusApproved,
		"pending":      payment.StatusPending,
		"in_process":   payment.StatusPending,
		"in_mediation": payment.StatusPending,
		"authorized":   payment.StatusPending,
		"rejected":     payment.StatusRejected,
		"cancelled":    payment.StatusCancelled,
		"refunded":     payment.StatusCancelled,
		"charged_back": payment.StatusCancelled,
		"":             payment.StatusUnknown,
		"mystery":      payment.StatusUnknown,
	}
	for raw, want := range cases {
		require.Equal(t, want, payment.NormaliseStatus(raw), raw)
	}
}

func TestGatewayErrorMatching(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := &payment.GatewayError{Op: "fetch payment", Kind: payment.ErrGatewayUnavailable, Err: cause}
	require.ErrorIs(t, err, payment.ErrGatewayUnavailable)
	require.ErrorIs(t, err, cause)
	require.NotErrorIs(t, err, payment.ErrGateway)
	require.True(t, payment.IsRetryable(err))

	rejected := &payment.GatewayError{Op: "create preference", StatusCode: 400, Body: "bad", Kind: payment.ErrGateway}
	require.Contains(t, rejected.Error(), "status=400")
	require.False(t, payment.IsRetryable(rejected))
	require.False(t, payment.IsRetryable(payment.ErrInvalidPayload))
	require.False(t, payment.IsRetryable(nil))
}
