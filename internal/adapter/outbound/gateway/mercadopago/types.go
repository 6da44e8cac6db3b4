package mercadopago

import (
	"encoding/json"

	"github.com/paygate/server/internal/model"
)

const boletoMethodID = "bolbradesco"

type identification struct {
	Type   string `json:"type,omitempty"`
	Number string `json:"number,omitempty"`
}

type payer struct {
	Email          string          `json:"email,omitempty"`
	FirstName      string          `json:"first_name,omitempty"`
	LastName       string          `json:"last_name,omitempty"`
	Identification *identification `json:"identification,omitempty"`
}

type item struct {
	ID        string      `json:"id,omitempty"`
	Title     string      `json:"title"`
	Quantity  int         `json:"quantity"`
	UnitPrice json.Number `json:"unit_price"`
}

type additionalInfo struct {
	Items     []item `json:"items,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
}

// paymentRequest is the body of POST /v1/payments.
type paymentRequest struct {
	TransactionAmount json.Number       `json:"transaction_amount"`
	Description       string            `json:"description,omitempty"`
	PaymentMethodID   string            `json:"payment_method_id"`
	Token             string            `json:"token,omitempty"`
	Installments      int               `json:"installments,omitempty"`
	Capture           *bool             `json:"capture,omitempty"`
	BinaryMode        bool              `json:"binary_mode"`
	ExternalReference string            `json:"external_reference"`
	NotificationURL   string            `json:"notification_url,omitempty"`
	Payer             payer             `json:"payer"`
	AdditionalInfo    *additionalInfo   `json:"additional_info,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

type updateRequest struct {
	Capture           *bool       `json:"capture,omitempty"`
	Status            string      `json:"status,omitempty"`
	TransactionAmount json.Number `json:"transaction_amount,omitempty"`
}

type transactionDetails struct {
	ExternalResourceURL string `json:"external_resource_url"`
}

type barcode struct {
	Content string `json:"content"`
}

// payment is the part of the payment resource the adapter reads.
type payment struct {
	ID                 json.Number        `json:"id"`
	Status             string             `json:"status"`
	StatusDetail       string             `json:"status_detail"`
	ExternalReference  string             `json:"external_reference"`
	PaymentMethodID    string             `json:"payment_method_id"`
	DateOfExpiration   string             `json:"date_of_expiration"`
	TransactionDetails transactionDetails `json:"transaction_details"`
	Barcode            *barcode           `json:"barcode"`
}

func (p *payment) toResponse(raw []byte) *model.ProviderResponse {
	resp := &model.ProviderResponse{
		Gateway:      model.GatewayMercadoPago,
		NativeStatus: p.Status,
		NativeDetail: p.StatusDetail,
		Fields: map[string]string{
			"id":                 p.ID.String(),
			"external_reference": p.ExternalReference,
			"payment_method_id":  p.PaymentMethodID,
			"ticket_url":         p.TransactionDetails.ExternalResourceURL,
			"date_of_expiration": p.DateOfExpiration,
		},
		Raw: raw,
	}
	if p.Barcode != nil {
		resp.Fields["barcode"] = p.Barcode.Content
	}
	return resp
}

type apiCause struct {
	Code        json.Number `json:"code"`
	Description string      `json:"description"`
}

// apiError is the error body of every endpoint.
type apiError struct {
	Message string     `json:"message"`
	Error   string     `json:"error"`
	Status  int        `json:"status"`
	Cause   []apiCause `json:"cause"`
}

// notification is the body of a webhook call.
type notification struct {
	ID          json.Number `json:"id"`
	Type        string      `json:"type"`
	Action      string      `json:"action"`
	DateCreated string      `json:"date_created"`
	Data        struct {
		ID string `json:"id"`
	} `json:"data"`
}
