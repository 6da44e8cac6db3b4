package events

import (
	"time"

	"github.com/google/uuid"
)

// Event is a domain event carried by the Bus.
type Event interface {
	EventID() uuid.UUID
	// EventType names the event, e.g. "payment.status_changed".
	EventType() string
	OccurredAt() time.Time
	// AggregateID identifies the payment the event belongs to.
	AggregateID() uuid.UUID
}

// BaseEvent carries the fields every event shares. Embed it in concrete events.
type BaseEvent struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Aggregate uuid.UUID `json:"aggregate_id"`
}

func (e BaseEvent) EventID() uuid.UUID     { return e.ID }
func (e BaseEvent) EventType() string      { return e.Type }
func (e BaseEvent) OccurredAt() time.Time  { return e.Timestamp }
func (e BaseEvent) AggregateID() uuid.UUID { return e.Aggregate }

// NewBaseEvent stamps a new event of the given type.
func NewBaseEvent(eventType string, aggregateID uuid.UUID, at time.Time) BaseEvent {
	return BaseEvent{
		ID:        uuid.New(),
		Type:      eventType,
		Timestamp: at,
		Aggregate: aggregateID,
	}
}
