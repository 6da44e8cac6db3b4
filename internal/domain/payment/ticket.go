package payment

import (
	"context"

	"github.com/paygate/server/internal/model"
	"github.com/paygate/server/internal/port/outbound"
	apperrors "github.com/paygate/server/internal/utils/errors"
)

// Ticket is a printable cash voucher (boleto) the buyer pays offline.
type Ticket struct {
	baseMethod
}

// NewTicket binds the ticket instrument to a gateway.
func NewTicket(gw outbound.GatewayPort) *Ticket {
	return &Ticket{baseMethod{gateway: gw, methodType: model.MethodTicket, action: model.ActionPrint}}
}

// ValidatePayment requires the buyer identity printed on the ticket.
func (m *Ticket) ValidatePayment(req *model.PaymentRequest) error {
	if err := m.validateCommon(req); err != nil {
		return err
	}
	switch {
	case req.Buyer.Name == "":
		return apperrors.Validation("buyer name is required")
	case req.Buyer.Email == "":
		return apperrors.Validation("buyer email is required")
	case req.Buyer.Document == "":
		return apperrors.Validation("buyer document is required")
	}
	return nil
}

// CapturePayment is never possible: a paid ticket is already captured.
func (m *Ticket) CapturePayment(ctx context.Context, client outbound.GatewayClient, payment *model.Payment, amount *model.Money) (*ActionResult, error) {
	return nil, m.unsupported("capture", payment.Status)
}

// CancelPayment withdraws an unpaid ticket.
func (m *Ticket) CancelPayment(ctx context.Context, client outbound.GatewayClient, payment *model.Payment) (*ActionResult, error) {
	if payment.Status != model.StatusPending {
		return nil, m.unsupported("cancel", payment.Status)
	}
	resp, err := m.gateway.CancelPayment(ctx, client, payment.Reference)
	if err != nil {
		return nil, err
	}
	return m.translate(resp), nil
}

// ChargeBackPayment is never possible: cash cannot be disputed.
func (m *Ticket) ChargeBackPayment(ctx context.Context, client outbound.GatewayClient, payment *model.Payment) (*ActionResult, error) {
	return nil, m.unsupported("chargeback", payment.Status)
}

var _ GatewayMethod = (*Ticket)(nil)
