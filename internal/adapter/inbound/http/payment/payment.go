package paymenthttp

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/paygate/server/internal/domain/payment"
	"github.com/paygate/server/internal/model"
	"github.com/paygate/server/internal/port/inbound"
)

// PaymentHandler handles payment HTTP requests.
type PaymentHandler struct {
	domain payment.PaymentDomain
}

// NewPaymentHandler creates a new payment handler.
func NewPaymentHandler(domain payment.PaymentDomain) *PaymentHandler {
	return &PaymentHandler{domain: domain}
}

// RegisterRoutes registers payment routes.
func (h *PaymentHandler) RegisterRoutes(r *gin.RouterGroup) {
	payments := r.Group("/payments")
	{
		payments.POST("", h.CreatePayment)
		payments.GET("", h.ListPayments)
		payments.GET("/:id", h.GetPayment)
		payments.POST("/:gateway/:reference/capture", h.CapturePayment)
		payments.POST("/:gateway/:reference/cancel", h.CancelPayment)
		payments.POST("/:gateway/:reference/chargeback", h.ChargeBackPayment)
	}
}

// CreatePayment handles POST /payments.
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		return
	}

	var req model.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_INPUT", err.Error())
		return
	}

	result, err := h.domain.CreatePayment(c.Request.Context(), req.ToPaymentRequest(tenant))
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// GetPayment handles GET /payments/:id.
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "INVALID_ID", "Invalid payment ID")
		return
	}

	p, err := h.domain.GetPayment(c.Request.Context(), tenant, id)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, p)
}

// ListPayments handles GET /payments.
func (h *PaymentHandler) ListPayments(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		return
	}

	var filter model.PaymentFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		badRequest(c, "INVALID_INPUT", err.Error())
		return
	}
	filter.TenantID = tenant
	filter.DefaultPagination()

	payments, total, err := h.domain.ListPayments(c.Request.Context(), filter)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewPaginatedResponse(payments, total, filter.Page, filter.PageSize))
}

// CapturePayment handles POST /payments/:gateway/:reference/capture.
// The body is optional; without an amount the full payment is captured.
func (h *PaymentHandler) CapturePayment(c *gin.Context) {
	tenant, gateway, reference, ok := lifecycleTarget(c)
	if !ok {
		return
	}

	var req model.CapturePaymentRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "INVALID_INPUT", err.Error())
			return
		}
	}

	result, err := h.domain.CapturePayment(c.Request.Context(), tenant, gateway, reference, req.Amount)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// CancelPayment handles POST /payments/:gateway/:reference/cancel.
func (h *PaymentHandler) CancelPayment(c *gin.Context) {
	tenant, gateway, reference, ok := lifecycleTarget(c)
	if !ok {
		return
	}

	result, err := h.domain.CancelPayment(c.Request.Context(), tenant, gateway, reference)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ChargeBackPayment handles POST /payments/:gateway/:reference/chargeback.
func (h *PaymentHandler) ChargeBackPayment(c *gin.Context) {
	tenant, gateway, reference, ok := lifecycleTarget(c)
	if !ok {
		return
	}

	result, err := h.domain.ChargeBackPayment(c.Request.Context(), tenant, gateway, reference)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func lifecycleTarget(c *gin.Context) (tenant string, gateway model.GatewayType, reference string, ok bool) {
	tenant, ok = tenantID(c)
	if !ok {
		return "", "", "", false
	}
	gateway = model.GatewayType(c.Param("gateway"))
	reference = c.Param("reference")
	if gateway == "" || reference == "" {
		badRequest(c, "INVALID_INPUT", "gateway and reference are required")
		return "", "", "", false
	}
	return tenant, gateway, reference, true
}

// Compile-time check
var _ inbound.PaymentHttpPort = (*PaymentHandler)(nil)
