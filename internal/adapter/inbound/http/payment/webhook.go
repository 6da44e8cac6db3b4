package paymenthttp

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/paygate/server/internal/domain/payment"
	"github.com/paygate/server/internal/model"
	"github.com/paygate/server/internal/port/inbound"
)

// maxIpnBody bounds notification payloads.
const maxIpnBody = 1 << 20

// WebhookHandler handles gateway notification requests.
type WebhookHandler struct {
	domain payment.PaymentDomain
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(domain payment.PaymentDomain) *WebhookHandler {
	return &WebhookHandler{domain: domain}
}

// RegisterRoutes registers webhook routes.
func (h *WebhookHandler) RegisterRoutes(r gin.IRouter) {
	r.POST("/webhooks/:gateway", h.HandleWebhook)
}

// HandleWebhook handles POST /webhooks/:gateway?tenant=<id>.
// The body is passed on untouched; signatures are computed over the raw bytes.
func (h *WebhookHandler) HandleWebhook(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxIpnBody))
	if err != nil {
		c.Status(http.StatusRequestEntityTooLarge)
		return
	}

	gateway := model.GatewayType(c.Param("gateway"))
	resp, err := h.domain.HandleIpn(c.Request.Context(), gateway, c.Query("tenant"), body, c.Request.Header)
	if err != nil {
		_ = c.Error(err)
	}

	if len(resp.Body) == 0 {
		c.Status(resp.StatusCode)
		return
	}
	c.Data(resp.StatusCode, resp.ContentType, resp.Body)
}

// Compile-time check
var _ inbound.WebhookHttpPort = (*WebhookHandler)(nil)
