package paymenthttp

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/paygate/server/internal/domain/payment"
	"github.com/paygate/server/internal/model"
	apperrors "github.com/paygate/server/internal/utils/errors"
	"github.com/paygate/server/internal/utils/middleware"
)

// tenantID returns the authenticated tenant or writes a 401.
func tenantID(c *gin.Context) (string, bool) {
	id := middleware.GetTenantID(c)
	if id == "" {
		c.JSON(http.StatusUnauthorized, model.PaymentErrorResponse{
			Code:    "UNAUTHORIZED",
			Message: "Tenant not resolved",
		})
		return "", false
	}
	return id, true
}

func badRequest(c *gin.Context, code, message string) {
	c.JSON(http.StatusBadRequest, model.PaymentErrorResponse{Code: code, Message: message})
}

// handleError maps payment errors to HTTP responses.
func handleError(c *gin.Context, err error) {
	_ = c.Error(err)

	if pe, ok := apperrors.AsPaymentError(err); ok {
		message := pe.Message
		if message == "" {
			message = kindMessage(pe.Kind)
		}
		c.JSON(pe.StatusCode(), model.PaymentErrorResponse{
			Code:         string(pe.Kind),
			Message:      message,
			Retryable:    pe.Retryable(),
			Gateway:      pe.Gateway,
			ProviderCode: pe.Code,
		})
		return
	}

	var statusCode int
	var errorCode string
	var message string
	var retryable bool

	switch {
	case errors.Is(err, payment.ErrPaymentNotFound):
		statusCode = http.StatusNotFound
		errorCode = "PAYMENT_NOT_FOUND"
		message = "Payment not found"

	case errors.Is(err, payment.ErrGatewayNotRegistered):
		statusCode = http.StatusBadRequest
		errorCode = "GATEWAY_NOT_SUPPORTED"
		message = "Gateway not supported"

	case errors.Is(err, payment.ErrMethodNotSupported):
		statusCode = http.StatusUnprocessableEntity
		errorCode = "METHOD_NOT_SUPPORTED"
		message = "Payment method not offered by this gateway"

	case errors.Is(err, payment.ErrRequestConflict):
		statusCode = http.StatusConflict
		errorCode = "REQUEST_CONFLICT"
		message = "Request id already used for a different payment"

	case errors.Is(err, payment.ErrConcurrentUpdate):
		statusCode = http.StatusConflict
		errorCode = "CONCURRENT_UPDATE"
		message = "Payment changed while processing, retry"
		retryable = true

	case errors.Is(err, payment.ErrPaymentBusy):
		statusCode = http.StatusConflict
		errorCode = "PAYMENT_BUSY"
		message = "Payment is being processed, retry"
		retryable = true

	default:
		statusCode = http.StatusInternalServerError
		errorCode = "INTERNAL_ERROR"
		message = "Internal server error"
		retryable = true
	}

	c.JSON(statusCode, model.PaymentErrorResponse{
		Code:      errorCode,
		Message:   message,
		Retryable: retryable,
	})
}

func kindMessage(kind apperrors.Kind) string {
	switch kind {
	case apperrors.KindAuthConfig:
		return "Gateway account is not configured"
	case apperrors.KindGatewayUnavailable:
		return "Gateway temporarily unavailable"
	case apperrors.KindGatewayRejected:
		return "Gateway rejected the request"
	case apperrors.KindMalformedResponse:
		return "Gateway returned an unexpected response"
	default:
		return "Request failed"
	}
}
