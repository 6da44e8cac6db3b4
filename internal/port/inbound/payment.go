package inbound

import "github.com/gin-gonic/gin"

// PaymentHttpPort defines HTTP handler interface for payment operations.
type PaymentHttpPort interface {
	// CreatePayment handles POST /payments
	CreatePayment(c *gin.Context)

	// GetPayment handles GET /payments/:id
	GetPayment(c *gin.Context)

	// ListPayments handles GET /payments
	ListPayments(c *gin.Context)

	// CapturePayment handles POST /payments/:gateway/:reference/capture
	CapturePayment(c *gin.Context)

	// CancelPayment handles POST /payments/:gateway/:reference/cancel
	CancelPayment(c *gin.Context)

	// ChargeBackPayment handles POST /payments/:gateway/:reference/chargeback
	ChargeBackPayment(c *gin.Context)
}

// WebhookHttpPort defines HTTP handler interface for gateway notifications.
type WebhookHttpPort interface {
	// HandleWebhook handles POST /webhooks/:gateway
	// Replies with the gateway's own acknowledgement.
	HandleWebhook(c *gin.Context)
}
