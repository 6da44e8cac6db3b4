package payment

import (
	"context"

	"github.com/paygate/server/internal/infra/events"
	"github.com/paygate/server/internal/model"
)

// EventPublisher receives lifecycle events once they are persisted.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event)
}

func (d *paymentDomain) publishStatusChanged(ctx context.Context, p *model.Payment, from model.CanonicalStatus, source string) {
	if d.Events == nil {
		return
	}
	d.Events.Publish(ctx, &events.PaymentStatusChanged{
		BaseEvent: events.NewBaseEvent(events.PaymentStatusChangedType, p.ID, d.now()),
		TenantID:  p.TenantID,
		Gateway:   string(p.Gateway),
		Reference: p.Reference,
		From:      string(from),
		To:        string(p.Status),
		Source:    source,
	})
}

func (d *paymentDomain) publishFlagged(ctx context.Context, p *model.Payment) {
	if d.Events == nil {
		return
	}
	d.Events.Publish(ctx, &events.PaymentFlagged{
		BaseEvent: events.NewBaseEvent(events.PaymentFlaggedType, p.ID, d.now()),
		TenantID:  p.TenantID,
		Gateway:   string(p.Gateway),
		Reference: p.Reference,
		Reason:    p.ReconciliationReason,
	})
}
