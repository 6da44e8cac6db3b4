package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newStatusChanged() *PaymentStatusChanged {
	return &PaymentStatusChanged{
		BaseEvent: NewBaseEvent(PaymentStatusChangedType, uuid.New(), time.Now()),
		Gateway:   "stripe",
		Reference: "pi_1",
		From:      "authorized",
		To:        "captured",
		Source:    "capture",
	}
}

func TestBus_Publish(t *testing.T) {
	ctx := context.Background()

	t.Run("routes by event type", func(t *testing.T) {
		bus := NewBus(zap.NewNop())
		var changed, flagged int
		bus.Register(NewHandlerFunc([]string{PaymentStatusChangedType}, func(context.Context, Event) error {
			changed++
			return nil
		}))
		bus.Register(NewHandlerFunc([]string{PaymentFlaggedType}, func(context.Context, Event) error {
			flagged++
			return nil
		}))

		bus.Publish(ctx, newStatusChanged())

		assert.Equal(t, 1, changed)
		assert.Equal(t, 0, flagged)
	})

	t.Run("handlers see the concrete event", func(t *testing.T) {
		bus := NewBus(nil)
		var got *PaymentStatusChanged
		bus.Register(NewHandlerFunc([]string{PaymentStatusChangedType}, func(_ context.Context, e Event) error {
			got, _ = e.(*PaymentStatusChanged)
			return nil
		}))

		event := newStatusChanged()
		bus.Publish(ctx, event)

		if assert.NotNil(t, got) {
			assert.Equal(t, "captured", got.To)
			assert.Equal(t, event.EventID(), got.EventID())
		}
	})

	t.Run("failures are isolated", func(t *testing.T) {
		bus := NewBus(zap.NewNop())
		var order []string
		bus.Register(NewHandlerFunc([]string{PaymentStatusChangedType}, func(context.Context, Event) error {
			order = append(order, "error")
			return errors.New("boom")
		}))
		bus.Register(NewHandlerFunc([]string{PaymentStatusChangedType}, func(context.Context, Event) error {
			order = append(order, "panic")
			panic("boom")
		}))
		bus.Register(NewHandlerFunc([]string{PaymentStatusChangedType}, func(context.Context, Event) error {
			order = append(order, "ok")
			return nil
		}))

		assert.NotPanics(t, func() { bus.Publish(ctx, newStatusChanged()) })
		assert.Equal(t, []string{"error", "panic", "ok"}, order)
	})

	t.Run("no handlers", func(t *testing.T) {
		bus := NewBus(zap.NewNop())
		assert.NotPanics(t, func() { bus.Publish(ctx, newStatusChanged()) })
	})
}
