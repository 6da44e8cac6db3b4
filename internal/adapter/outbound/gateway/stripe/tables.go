package stripe

import "github.com/paygate/server/internal/model"

// Event types carried as the IPN native status.
const (
	eventCreated           = "payment_intent.created"
	eventProcessing        = "payment_intent.processing"
	eventRequiresAction    = "payment_intent.requires_action"
	eventCapturable        = "payment_intent.amount_capturable_updated"
	eventSucceeded         = "payment_intent.succeeded"
	eventPaymentFailed     = "payment_intent.payment_failed"
	eventCanceled          = "payment_intent.canceled"
	eventDisputeCreated    = "charge.dispute.created"
	eventChargeRefunded    = "charge.refunded"
	eventPartialRefund     = "charge.refunded.partial"
	objectPaymentIntent    = "payment_intent"
	disputeReasonFraud     = "fraudulent"
	disputeReasonNotRecv   = "product_not_received"
	disputeReasonNotAsDesc = "product_unacceptable"
)

// eventPartialRefund is our name for a charge.refunded event whose charge is
// not fully refunded. It has no canonical status and translates to unknown.
var statusTable = model.StatusTable{
	Authorize: model.StatusMap{
		"requires_payment_method": model.StatusFailed,
		"requires_confirmation":   model.StatusPending,
		"requires_action":         model.StatusPending,
		"processing":              model.StatusPending,
		"requires_capture":        model.StatusAuthorized,
		"succeeded":               model.StatusCaptured,
		"canceled":                model.StatusCancelled,
	},
	Ipn: model.StatusMap{
		eventCreated:        model.StatusCreated,
		eventProcessing:     model.StatusPending,
		eventRequiresAction: model.StatusPending,
		eventCapturable:     model.StatusAuthorized,
		eventSucceeded:      model.StatusCaptured,
		eventPaymentFailed:  model.StatusFailed,
		eventCanceled:       model.StatusCancelled,
		eventDisputeCreated: model.StatusChargedBack,
		eventChargeRefunded: model.StatusRefunded,
	},
}

var detailTable = model.DetailTable{
	Authorize: model.StatusDetailMap{
		"requires_payment_method": {Code: "payment_method_failed", Message: "The payment method was declined"},
		"requires_confirmation":   {Code: "awaiting_confirmation", Message: "Awaiting confirmation"},
		"requires_action":         {Code: "authentication_required", Message: "Customer authentication required"},
		"processing":              {Code: "processing", Message: "Payment is processing"},
		"requires_capture":        {Code: "authorized", Message: "Authorized, awaiting capture"},
		"succeeded":               {Code: "captured", Message: "Payment captured"},
		"canceled":                {Code: "cancelled", Message: "Payment cancelled"},
		"card_declined":           {Code: "card_declined", Message: "The card was declined"},
		"insufficient_funds":      {Code: "insufficient_funds", Message: "Insufficient funds"},
		"expired_card":            {Code: "expired_card", Message: "The card has expired"},
		"incorrect_cvc":           {Code: "incorrect_cvc", Message: "The security code is incorrect"},
		"processing_error":        {Code: "processing_error", Message: "The card could not be processed"},
		"fraudulent":              {Code: "suspected_fraud", Message: "Declined as suspected fraud"},
	},
	Ipn: model.StatusDetailMap{
		eventCreated:           {Code: "created", Message: "Payment created"},
		eventProcessing:        {Code: "processing", Message: "Payment is processing"},
		eventRequiresAction:    {Code: "authentication_required", Message: "Customer authentication required"},
		eventCapturable:        {Code: "authorized", Message: "Authorized, awaiting capture"},
		eventSucceeded:         {Code: "captured", Message: "Payment captured"},
		eventPaymentFailed:     {Code: "payment_failed", Message: "The payment failed"},
		eventCanceled:          {Code: "cancelled", Message: "Payment cancelled"},
		eventDisputeCreated:    {Code: "dispute_opened", Message: "The cardholder disputed the charge"},
		eventChargeRefunded:    {Code: "refunded", Message: "The charge was refunded"},
		eventPartialRefund:     {Code: "partially_refunded", Message: "Part of the charge was refunded"},
		disputeReasonFraud:     {Code: "dispute_fraudulent", Message: "Disputed as fraudulent"},
		disputeReasonNotRecv:   {Code: "dispute_not_received", Message: "Disputed as not received"},
		disputeReasonNotAsDesc: {Code: "dispute_unacceptable", Message: "Disputed as not as described"},
		"card_declined":        {Code: "card_declined", Message: "The card was declined"},
		"insufficient_funds":   {Code: "insufficient_funds", Message: "Insufficient funds"},
	},
}
