package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentError_Is(t *testing.T) {
	tests := []struct {
		err      *PaymentError
		sentinel error
	}{
		{Validation("amount must be positive"), ErrValidation},
		{AuthConfig("stripe", errors.New("empty key")), ErrAuthConfig},
		{GatewayUnavailable("stripe", errors.New("dial tcp")), ErrGatewayUnavailable},
		{GatewayRejected("stripe", "card_declined", "declined"), ErrGatewayRejected},
		{MalformedResponse("stripe", "missing id"), ErrMalformedResponse},
		{IpnAuthentication("alipay", errors.New("bad sign")), ErrIpnAuthentication},
		{IpnParse("alipay", errors.New("bad body")), ErrIpnParse},
		{IllegalTransition("captured", "pending"), ErrIllegalTransition},
		{UnsupportedOperation("ticket", "capture", ""), ErrUnsupportedOperation},
	}

	for _, tt := range tests {
		t.Run(string(tt.err.Kind), func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.True(t, errors.Is(wrapped, tt.sentinel))
			assert.Equal(t, tt.err.Kind, KindOf(wrapped))
			for _, other := range kindSentinels {
				if other != tt.sentinel {
					assert.False(t, errors.Is(wrapped, other))
				}
			}
		})
	}
}

func TestPaymentError_Retryable(t *testing.T) {
	assert.True(t, IsRetryable(GatewayUnavailable("mercadopago", errors.New("timeout"))))
	assert.False(t, IsRetryable(GatewayRejected("mercadopago", "cc_rejected_other_reason", "")))
	assert.False(t, IsRetryable(MalformedResponse("mercadopago", "id")))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestPaymentError_Message(t *testing.T) {
	err := GatewayRejected("stripe", "card_declined", "Your card was declined.")
	assert.Equal(t, "GATEWAY_REJECTED [stripe] (card_declined): Your card was declined.", err.Error())

	pe, ok := AsPaymentError(fmt.Errorf("wrap: %w", err))
	require.True(t, ok)
	assert.Equal(t, "card_declined", pe.Code)
}

func TestPaymentError_StatusCode(t *testing.T) {
	tests := []struct {
		err      *PaymentError
		expected int
	}{
		{Validation("x"), http.StatusUnprocessableEntity},
		{UnsupportedOperation("wallet", "capture", ""), http.StatusUnprocessableEntity},
		{GatewayRejected("stripe", "", ""), http.StatusPaymentRequired},
		{GatewayUnavailable("stripe", nil), http.StatusServiceUnavailable},
		{MalformedResponse("stripe", "id"), http.StatusBadGateway},
		{IpnAuthentication("alipay", nil), http.StatusUnauthorized},
		{IpnParse("wechat", nil), http.StatusBadRequest},
		{IllegalTransition("captured", "pending"), http.StatusConflict},
		{AuthConfig("wechat", nil), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.err.StatusCode(), tt.err.Error())
	}
}

func TestUnsupportedOperation_Message(t *testing.T) {
	assert.Equal(t, "UNSUPPORTED_OPERATION: capture not supported by ticket", UnsupportedOperation("ticket", "capture", "").Error())
	assert.Equal(t, "UNSUPPORTED_OPERATION: cancel not supported by credit_card: already captured",
		UnsupportedOperation("credit_card", "cancel", "already captured").Error())
	assert.Equal(t, "ILLEGAL_TRANSITION: captured -> pending", IllegalTransition("captured", "pending").Error())
}
