package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies payment failures.
type Kind string

const (
	KindValidation           Kind = "VALIDATION_ERROR"
	KindAuthConfig           Kind = "AUTH_CONFIG_ERROR"
	KindGatewayUnavailable   Kind = "GATEWAY_UNAVAILABLE"
	KindGatewayRejected      Kind = "GATEWAY_REJECTED"
	KindMalformedResponse    Kind = "MALFORMED_RESPONSE"
	KindIpnAuthentication    Kind = "IPN_AUTHENTICATION_ERROR"
	KindIpnParse             Kind = "IPN_PARSE_ERROR"
	KindIllegalTransition    Kind = "ILLEGAL_TRANSITION"
	KindUnsupportedOperation Kind = "UNSUPPORTED_OPERATION"
)

// Payment error sentinels, one per Kind. Match with errors.Is.
var (
	ErrValidation           = errors.New("validation error")
	ErrAuthConfig           = errors.New("gateway credentials invalid")
	ErrGatewayUnavailable   = errors.New("gateway unavailable")
	ErrGatewayRejected      = errors.New("gateway rejected request")
	ErrMalformedResponse    = errors.New("malformed gateway response")
	ErrIpnAuthentication    = errors.New("ipn authentication failed")
	ErrIpnParse             = errors.New("ipn payload malformed")
	ErrIllegalTransition    = errors.New("illegal status transition")
	ErrUnsupportedOperation = errors.New("unsupported operation")
)

var kindSentinels = map[Kind]error{
	KindValidation:           ErrValidation,
	KindAuthConfig:           ErrAuthConfig,
	KindGatewayUnavailable:   ErrGatewayUnavailable,
	KindGatewayRejected:      ErrGatewayRejected,
	KindMalformedResponse:    ErrMalformedResponse,
	KindIpnAuthentication:    ErrIpnAuthentication,
	KindIpnParse:             ErrIpnParse,
	KindIllegalTransition:    ErrIllegalTransition,
	KindUnsupportedOperation: ErrUnsupportedOperation,
}

// PaymentError is a typed failure raised by gateways, methods and the lifecycle.
type PaymentError struct {
	Kind    Kind
	Gateway string
	// Code is the provider's own error or decline code, if any.
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *PaymentError) Error() string {
	msg := string(e.Kind)
	if e.Gateway != "" {
		msg += " [" + e.Gateway + "]"
	}
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the wrapped error.
func (e *PaymentError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's Kind, or another PaymentError of the same Kind.
func (e *PaymentError) Is(target error) bool {
	if t, ok := target.(*PaymentError); ok {
		return e.Kind == t.Kind
	}
	return kindSentinels[e.Kind] == target
}

// Retryable returns true if the same request may succeed later.
func (e *PaymentError) Retryable() bool {
	return e.Kind == KindGatewayUnavailable
}

// StatusCode returns the HTTP status for the error.
func (e *PaymentError) StatusCode() int {
	switch e.Kind {
	case KindValidation, KindUnsupportedOperation:
		return http.StatusUnprocessableEntity
	case KindGatewayRejected:
		return http.StatusPaymentRequired
	case KindGatewayUnavailable:
		return http.StatusServiceUnavailable
	case KindMalformedResponse:
		return http.StatusBadGateway
	case KindIpnAuthentication:
		return http.StatusUnauthorized
	case KindIpnParse:
		return http.StatusBadRequest
	case KindIllegalTransition:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Validation creates a ValidationError.
func Validation(format string, args ...any) *PaymentError {
	return &PaymentError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// AuthConfig creates an AuthConfigError.
func AuthConfig(gateway string, err error) *PaymentError {
	return &PaymentError{Kind: KindAuthConfig, Gateway: gateway, Err: err}
}

// GatewayUnavailable creates a transient GatewayUnavailable error.
func GatewayUnavailable(gateway string, err error) *PaymentError {
	return &PaymentError{Kind: KindGatewayUnavailable, Gateway: gateway, Err: err}
}

// GatewayRejected creates a terminal business rejection.
func GatewayRejected(gateway, code, message string) *PaymentError {
	return &PaymentError{Kind: KindGatewayRejected, Gateway: gateway, Code: code, Message: message}
}

// MalformedResponse creates a MalformedResponse error naming the missing part.
func MalformedResponse(gateway, what string) *PaymentError {
	return &PaymentError{Kind: KindMalformedResponse, Gateway: gateway, Message: what}
}

// IpnAuthentication creates an IpnAuthenticationError.
func IpnAuthentication(gateway string, err error) *PaymentError {
	return &PaymentError{Kind: KindIpnAuthentication, Gateway: gateway, Err: err}
}

// IpnParse creates an IpnParseError.
func IpnParse(gateway string, err error) *PaymentError {
	return &PaymentError{Kind: KindIpnParse, Gateway: gateway, Err: err}
}

// IllegalTransition creates an IllegalTransition error.
func IllegalTransition(from, to string) *PaymentError {
	return &PaymentError{Kind: KindIllegalTransition, Message: from + " -> " + to}
}

// UnsupportedOperation creates an UnsupportedOperation error.
func UnsupportedOperation(method, operation, reason string) *PaymentError {
	msg := operation + " not supported by " + method
	if reason != "" {
		msg += ": " + reason
	}
	return &PaymentError{Kind: KindUnsupportedOperation, Message: msg}
}

// AsPaymentError extracts a PaymentError from an error chain.
func AsPaymentError(err error) (*PaymentError, bool) {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// KindOf returns the Kind of a payment error, or "" if err is not one.
func KindOf(err error) Kind {
	if pe, ok := AsPaymentError(err); ok {
		return pe.Kind
	}
	return ""
}

// IsRetryable returns true if err is a transient gateway failure.
func IsRetryable(err error) bool {
	if pe, ok := AsPaymentError(err); ok {
		return pe.Retryable()
	}
	return false
}
