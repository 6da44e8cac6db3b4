package mercadopago

import "github.com/paygate/server/internal/model"

// Mercado Pago reuses its status words in both vocabularies, but a
// notification's "approved" and a create response's "approved" are kept in
// separate tables so either side can change alone.
var statusTable = model.StatusTable{
	Authorize: model.StatusMap{
		"pending":    model.StatusPending,
		"in_process": model.StatusPending,
		"authorized": model.StatusAuthorized,
		"approved":   model.StatusCaptured,
		"rejected":   model.StatusFailed,
		"cancelled":  model.StatusCancelled,
	},
	Ipn: model.StatusMap{
		"pending":      model.StatusPending,
		"in_process":   model.StatusPending,
		"authorized":   model.StatusAuthorized,
		"approved":     model.StatusCaptured,
		"rejected":     model.StatusFailed,
		"cancelled":    model.StatusCancelled,
		"refunded":     model.StatusRefunded,
		"charged_back": model.StatusChargedBack,
	},
}

var detailTable = model.DetailTable{
	Authorize: model.StatusDetailMap{
		"accredited":                           {Code: "accredited", Message: "Payment credited"},
		"pending_capture":                      {Code: "pending_capture", Message: "Authorized, awaiting capture"},
		"pending_waiting_payment":              {Code: "pending_waiting_payment", Message: "Waiting for the ticket to be paid"},
		"pending_contingency":                  {Code: "pending_contingency", Message: "Payment is being processed"},
		"pending_review_manual":                {Code: "pending_review_manual", Message: "Payment is under review"},
		"cc_rejected_bad_filled_card_number":   {Code: "invalid_card_number", Message: "Invalid card number"},
		"cc_rejected_bad_filled_date":          {Code: "invalid_expiration_date", Message: "Invalid expiration date"},
		"cc_rejected_bad_filled_security_code": {Code: "invalid_security_code", Message: "Invalid security code"},
		"cc_rejected_bad_filled_other":         {Code: "invalid_card_data", Message: "Invalid card data"},
		"cc_rejected_call_for_authorize":       {Code: "call_for_authorize", Message: "The card issuer requires authorization"},
		"cc_rejected_card_disabled":            {Code: "card_disabled", Message: "The card is disabled"},
		"cc_rejected_duplicated_payment":       {Code: "duplicated_payment", Message: "Duplicated payment"},
		"cc_rejected_high_risk":                {Code: "high_risk", Message: "Declined by fraud prevention"},
		"cc_rejected_insufficient_amount":      {Code: "insufficient_funds", Message: "Insufficient funds"},
		"cc_rejected_max_attempts":             {Code: "max_attempts", Message: "Too many attempts"},
		"cc_rejected_other_reason":             {Code: "card_declined", Message: "The card was declined"},
		"by_collector":                         {Code: "cancelled_by_merchant", Message: "Cancelled by the merchant"},
		"by_payer":                             {Code: "cancelled_by_payer", Message: "Cancelled by the payer"},
		"expired":                              {Code: "expired", Message: "The payment expired"},
	},
	Ipn: model.StatusDetailMap{
		"accredited":                      {Code: "accredited", Message: "Payment credited"},
		"pending_capture":                 {Code: "pending_capture", Message: "Authorized, awaiting capture"},
		"pending_waiting_payment":         {Code: "pending_waiting_payment", Message: "Waiting for the ticket to be paid"},
		"pending_contingency":             {Code: "pending_contingency", Message: "Payment is being processed"},
		"pending_review_manual":           {Code: "pending_review_manual", Message: "Payment is under review"},
		"cc_rejected_high_risk":           {Code: "high_risk", Message: "Declined by fraud prevention"},
		"cc_rejected_insufficient_amount": {Code: "insufficient_funds", Message: "Insufficient funds"},
		"cc_rejected_other_reason":        {Code: "card_declined", Message: "The card was declined"},
		"by_collector":                    {Code: "cancelled_by_merchant", Message: "Cancelled by the merchant"},
		"by_payer":                        {Code: "cancelled_by_payer", Message: "Cancelled by the payer"},
		"expired":                         {Code: "expired", Message: "The ticket expired unpaid"},
		"refunded":                        {Code: "refunded", Message: "The payment was refunded"},
		"settled":                         {Code: "chargeback_settled", Message: "Chargeback settled"},
		"reimbursed":                      {Code: "chargeback_reimbursed", Message: "Chargeback reimbursed"},
	},
}
