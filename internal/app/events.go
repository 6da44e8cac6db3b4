package app

import (
	"context"

	"go.uber.org/zap"

	"github.com/paygate/server/internal/infra/events"
)

// newPaymentEventLogger writes one structured line per lifecycle event.
// Downstream tooling tails these lines for status changes and reconciliation work.
func newPaymentEventLogger(zapLog *zap.Logger) events.Handler {
	log := zapLog.Named("payment-events")
	return events.NewHandlerFunc(
		[]string{events.PaymentStatusChangedType, events.PaymentFlaggedType},
		func(_ context.Context, event events.Event) error {
			switch e := event.(type) {
			case *events.PaymentStatusChanged:
				log.Info("payment status changed",
					zap.String("event_id", e.EventID().String()),
					zap.String("payment_id", e.AggregateID().String()),
					zap.String("tenant_id", e.TenantID),
					zap.String("gateway", e.Gateway),
					zap.String("reference", e.Reference),
					zap.String("from", e.From),
					zap.String("to", e.To),
					zap.String("source", e.Source),
				)
			case *events.PaymentFlagged:
				log.Warn("payment flagged for reconciliation",
					zap.String("event_id", e.EventID().String()),
					zap.String("payment_id", e.AggregateID().String()),
					zap.String("tenant_id", e.TenantID),
					zap.String("gateway", e.Gateway),
					zap.String("reference", e.Reference),
					zap.String("reason", e.Reason),
				)
			}
			return nil
		},
	)
}
