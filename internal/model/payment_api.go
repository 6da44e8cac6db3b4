package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// CreatePaymentRequest is the HTTP body of POST /payments.
type CreatePaymentRequest struct {
	RequestID    string          `json:"request_id" binding:"required,max=64"`
	Gateway      GatewayType     `json:"gateway" binding:"required"`
	Method       MethodType      `json:"method" binding:"required"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency" binding:"required,len=3"`
	Description  string          `json:"description" binding:"max=255"`
	Installments int             `json:"installments"`
	Scene        PaymentScene    `json:"scene"`
	Card         *CardInput      `json:"card"`
	Buyer        Buyer           `json:"buyer"`
	Items        []CartItem      `json:"items"`
	ReturnURL    string          `json:"return_url"`
}

// CardInput is the card part of CreatePaymentRequest.
type CardInput struct {
	Token      string `json:"token"`
	HolderName string `json:"holder_name"`
	Brand      string `json:"brand"`
	LastFour   string `json:"last_four"`
}

// ToPaymentRequest builds the domain request for a tenant.
func (r *CreatePaymentRequest) ToPaymentRequest(tenantID string) *PaymentRequest {
	req := &PaymentRequest{
		TenantID:     tenantID,
		RequestID:    r.RequestID,
		Gateway:      r.Gateway,
		Method:       r.Method,
		Amount:       r.Amount,
		Currency:     strings.ToUpper(r.Currency),
		Description:  r.Description,
		Installments: r.Installments,
		Scene:        r.Scene,
		Buyer:        r.Buyer,
		Items:        r.Items,
		ReturnURL:    r.ReturnURL,
	}
	if r.Card != nil {
		req.Card = &CardData{
			Token:      r.Card.Token,
			HolderName: r.Card.HolderName,
			Brand:      r.Card.Brand,
			LastFour:   r.Card.LastFour,
		}
	}
	return req
}

// CapturePaymentRequest is the optional HTTP body of a capture call.
type CapturePaymentRequest struct {
	Amount *decimal.Decimal `json:"amount"`
}

// PaymentErrorResponse is returned for failed lifecycle calls.
type PaymentErrorResponse struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Retryable    bool   `json:"retryable"`
	Gateway      string `json:"gateway,omitempty"`
	ProviderCode string `json:"provider_code,omitempty"`
}

// PaymentFilter lists a tenant's payments.
type PaymentFilter struct {
	PaginationRequest
	TenantID            string          `json:"-" form:"-"`
	Status              CanonicalStatus `json:"status" form:"status"`
	Gateway             GatewayType     `json:"gateway" form:"gateway"`
	NeedsReconciliation *bool           `json:"needs_reconciliation" form:"needs_reconciliation"`
}
