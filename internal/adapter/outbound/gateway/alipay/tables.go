package alipay

import "github.com/paygate/server/internal/model"

const (
	tradeWaitBuyerPay = "WAIT_BUYER_PAY"
	tradeSuccess      = "TRADE_SUCCESS"
	tradeFinished     = "TRADE_FINISHED"
	tradeClosed       = "TRADE_CLOSED"

	// Alipay reuses the trade status for refunds and adds gmt_refund. A full
	// refund closes the trade; a partial one leaves it in TRADE_SUCCESS.
	tradeClosedRefund  = "TRADE_CLOSED_REFUND"
	tradePartialRefund = "TRADE_SUCCESS_REFUND"
)

// tradePartialRefund has no canonical status and is left out of the Ipn table
// so it translates to unknown and flags the payment for reconciliation.
var statusTable = model.StatusTable{
	Authorize: model.StatusMap{
		tradeWaitBuyerPay: model.StatusPending,
		tradeSuccess:      model.StatusCaptured,
		tradeFinished:     model.StatusCaptured,
		tradeClosed:       model.StatusCancelled,
	},
	Ipn: model.StatusMap{
		tradeWaitBuyerPay: model.StatusPending,
		tradeSuccess:      model.StatusCaptured,
		tradeFinished:     model.StatusCaptured,
		tradeClosed:       model.StatusCancelled,
		tradeClosedRefund: model.StatusRefunded,
	},
}

var detailTable = model.DetailTable{
	Authorize: model.StatusDetailMap{
		tradeWaitBuyerPay: {Code: "waiting_buyer", Message: "Waiting for the buyer to pay"},
		tradeSuccess:      {Code: "paid", Message: "Payment received"},
		tradeFinished:     {Code: "finished", Message: "Trade finished"},
		tradeClosed:       {Code: "closed", Message: "Trade closed"},
	},
	Ipn: model.StatusDetailMap{
		tradeWaitBuyerPay:  {Code: "waiting_buyer", Message: "Waiting for the buyer to pay"},
		tradeSuccess:       {Code: "paid", Message: "Payment received"},
		tradeFinished:      {Code: "finished", Message: "Trade finished, no refund possible"},
		tradeClosed:        {Code: "closed", Message: "Trade closed unpaid"},
		tradeClosedRefund:  {Code: "refunded", Message: "Trade closed by a full refund"},
		tradePartialRefund: {Code: "partially_refunded", Message: "Part of the payment was refunded"},
	},
}
