package wechat

import "github.com/paygate/server/internal/model"

// trade_state values of the v3 transaction API.
const (
	stateNotPay     = "NOTPAY"
	stateUserPaying = "USERPAYING"
	stateSuccess    = "SUCCESS"
	stateClosed     = "CLOSED"
	stateRevoked    = "REVOKED"
	statePayError   = "PAYERROR"
	stateRefund     = "REFUND"

	// statePartialRefund is a REFUND.SUCCESS for less than the order total.
	// It has no canonical status and translates to unknown.
	statePartialRefund = "REFUND_PARTIAL"
)

var statusTable = model.StatusTable{
	Authorize: model.StatusMap{
		stateNotPay:     model.StatusPending,
		stateUserPaying: model.StatusPending,
		stateSuccess:    model.StatusCaptured,
		stateClosed:     model.StatusCancelled,
		stateRevoked:    model.StatusCancelled,
		statePayError:   model.StatusFailed,
	},
	Ipn: model.StatusMap{
		stateNotPay:     model.StatusPending,
		stateUserPaying: model.StatusPending,
		stateSuccess:    model.StatusCaptured,
		stateClosed:     model.StatusCancelled,
		stateRevoked:    model.StatusCancelled,
		statePayError:   model.StatusFailed,
		stateRefund:     model.StatusRefunded,
	},
}

var detailTable = model.DetailTable{
	Authorize: model.StatusDetailMap{
		stateNotPay:     {Code: "waiting_buyer", Message: "Waiting for the buyer to pay"},
		stateUserPaying: {Code: "buyer_paying", Message: "The buyer is entering the password"},
		stateSuccess:    {Code: "paid", Message: "Payment received"},
		stateClosed:     {Code: "closed", Message: "Order closed"},
		stateRevoked:    {Code: "revoked", Message: "Order revoked"},
		statePayError:   {Code: "pay_error", Message: "The payment failed"},
	},
	Ipn: model.StatusDetailMap{
		stateNotPay:        {Code: "waiting_buyer", Message: "Waiting for the buyer to pay"},
		stateUserPaying:    {Code: "buyer_paying", Message: "The buyer is entering the password"},
		stateSuccess:       {Code: "paid", Message: "Payment received"},
		stateClosed:        {Code: "closed", Message: "Order closed"},
		stateRevoked:       {Code: "revoked", Message: "Order revoked"},
		statePayError:      {Code: "pay_error", Message: "The payment failed"},
		stateRefund:        {Code: "refunded", Message: "The payment was refunded"},
		statePartialRefund: {Code: "partially_refunded", Message: "Part of the payment was refunded"},
	},
}
