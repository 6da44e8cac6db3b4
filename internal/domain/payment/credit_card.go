package payment

import (
	"context"

	"github.com/paygate/server/internal/model"
	"github.com/paygate/server/internal/port/outbound"
	apperrors "github.com/paygate/server/internal/utils/errors"
)

const maxInstallments = 24

// chargebackDetail is recorded when a chargeback is reported synchronously.
var chargebackDetail = model.StatusDetail{Code: "chargeback", Message: "Chargeback recorded"}

// CreditCard authorizes a tokenized card and captures it later.
type CreditCard struct {
	baseMethod
}

// NewCreditCard binds the card instrument to a gateway.
func NewCreditCard(gw outbound.GatewayPort) *CreditCard {
	return &CreditCard{baseMethod{gateway: gw, methodType: model.MethodCreditCard, action: model.ActionDirect}}
}

// ValidatePayment checks the card data on top of the common checks.
func (m *CreditCard) ValidatePayment(req *model.PaymentRequest) error {
	if err := m.validateCommon(req); err != nil {
		return err
	}
	if req.Card == nil || req.Card.Token == "" {
		return apperrors.Validation("card token is required")
	}
	if req.Card.HolderName == "" {
		return apperrors.Validation("card holder name is required")
	}
	if req.Installments < 0 || req.Installments > maxInstallments {
		return apperrors.Validation("installments must be between 1 and %d", maxInstallments)
	}
	return nil
}

// CapturePayment captures an authorized card. A nil amount captures in full.
func (m *CreditCard) CapturePayment(ctx context.Context, client outbound.GatewayClient, payment *model.Payment, amount *model.Money) (*ActionResult, error) {
	if payment.Status != model.StatusAuthorized {
		return nil, m.unsupported("capture", payment.Status)
	}
	if amount != nil {
		if amount.Currency != payment.Currency {
			return nil, apperrors.Validation("capture currency %s does not match %s", amount.Currency, payment.Currency)
		}
		if !amount.Amount.IsPositive() || amount.Amount.GreaterThan(payment.Amount) {
			return nil, apperrors.Validation("capture amount must be positive and at most %s", payment.Amount.String())
		}
		if !amount.IsExact() {
			return nil, apperrors.Validation("capture amount %s is finer than the smallest unit of %s", amount.Amount.String(), amount.Currency)
		}
	}

	resp, err := m.gateway.CapturePayment(ctx, client, payment.Reference, amount)
	if err != nil {
		return nil, err
	}
	return m.translate(resp), nil
}

// CancelPayment voids a card payment that was not captured yet.
func (m *CreditCard) CancelPayment(ctx context.Context, client outbound.GatewayClient, payment *model.Payment) (*ActionResult, error) {
	if !statusIn(payment.Status, model.StatusPending, model.StatusAuthorized) {
		return nil, m.unsupported("cancel", payment.Status)
	}
	resp, err := m.gateway.CancelPayment(ctx, client, payment.Reference)
	if err != nil {
		return nil, err
	}
	return m.translate(resp), nil
}

// ChargeBackPayment records a chargeback the card network raised. There is
// nothing to ask the gateway.
func (m *CreditCard) ChargeBackPayment(ctx context.Context, client outbound.GatewayClient, payment *model.Payment) (*ActionResult, error) {
	if payment.Status != model.StatusCaptured {
		return nil, m.unsupported("chargeback", payment.Status)
	}
	return &ActionResult{Status: model.StatusChargedBack, Detail: chargebackDetail}, nil
}

var _ GatewayMethod = (*CreditCard)(nil)
