package payment

import (
	"context"

	"github.com/paygate/server/internal/model"
	"github.com/paygate/server/internal/port/outbound"
	apperrors "github.com/paygate/server/internal/utils/errors"
)

// Wallet redirects the buyer to a wallet app or QR code.
type Wallet struct {
	baseMethod
	scenes map[model.PaymentScene]bool
}

// NewWallet binds the wallet instrument to a gateway offering the given scenes.
func NewWallet(gw outbound.GatewayPort, scenes ...model.PaymentScene) *Wallet {
	w := &Wallet{
		baseMethod: baseMethod{gateway: gw, methodType: model.MethodWallet, action: model.ActionRedirect},
		scenes:     make(map[model.PaymentScene]bool, len(scenes)),
	}
	for _, s := range scenes {
		w.scenes[s] = true
	}
	return w
}

// ValidatePayment checks the checkout scene. An empty scene takes the gateway default.
func (m *Wallet) ValidatePayment(req *model.PaymentRequest) error {
	if err := m.validateCommon(req); err != nil {
		return err
	}
	if req.Scene != "" && !m.scenes[req.Scene] {
		return apperrors.Validation("scene %q is not offered by %s", req.Scene, m.GatewayType())
	}
	return nil
}

// CapturePayment is never possible: the wallet settles when the buyer pays.
func (m *Wallet) CapturePayment(ctx context.Context, client outbound.GatewayClient, payment *model.Payment, amount *model.Money) (*ActionResult, error) {
	return nil, m.unsupported("capture", payment.Status)
}

// CancelPayment closes the order before the buyer paid.
func (m *Wallet) CancelPayment(ctx context.Context, client outbound.GatewayClient, payment *model.Payment) (*ActionResult, error) {
	if payment.Status != model.StatusPending {
		return nil, m.unsupported("cancel", payment.Status)
	}
	resp, err := m.gateway.CancelPayment(ctx, client, payment.Reference)
	if err != nil {
		return nil, err
	}
	return m.translate(resp), nil
}

// ChargeBackPayment is never possible through the wallet.
func (m *Wallet) ChargeBackPayment(ctx context.Context, client outbound.GatewayClient, payment *model.Payment) (*ActionResult, error) {
	return nil, m.unsupported("chargeback", payment.Status)
}

var _ GatewayMethod = (*Wallet)(nil)
