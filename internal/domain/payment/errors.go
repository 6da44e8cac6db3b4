package payment

import "errors"

var (
	// ErrPaymentNotFound is returned when a payment is not found.
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrGatewayNotRegistered is returned when no adapter serves the gateway.
	ErrGatewayNotRegistered = errors.New("gateway not registered")

	// ErrMethodNotSupported is returned when the gateway has no such instrument.
	ErrMethodNotSupported = errors.New("payment method not supported by gateway")

	// ErrConcurrentUpdate is returned when a payment kept changing under us.
	ErrConcurrentUpdate = errors.New("payment updated concurrently")

	// ErrRequestConflict is returned when a request id is reused with a different payment.
	ErrRequestConflict = errors.New("request id already used for a different payment")

	// ErrPaymentBusy is returned when the payment's lock could not be taken in time.
	ErrPaymentBusy = errors.New("payment is being processed")
)
