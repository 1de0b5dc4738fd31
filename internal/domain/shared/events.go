package shared

import (
	"context"
	"strconv"
	"time"
)

// EventType identifies a domain event.
type EventType string

const (
	// EventPersonCreated is published after the creating transaction committed.
	EventPersonCreated EventType = "person.created"
)

// Event is implemented by every domain event.
type Event interface {
	EventType() EventType
	OccurredAt() time.Time
	AggregateID() string
}

// BaseEvent carries the fields common to all events.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
	}
}

// PersonCreatedEvent announces a newly committed person.
type PersonCreatedEvent struct {
	BaseEvent
	PersonID int64 `json:"person_id"`
}

// NewPersonCreatedEvent creates a PersonCreatedEvent.
func NewPersonCreatedEvent(personID int64, correlationID string) PersonCreatedEvent {
	base := NewBaseEvent(EventPersonCreated, strconv.FormatInt(personID, 10))
	base.CorrelationID = correlationID
	return PersonCreatedEvent{BaseEvent: base, PersonID: personID}
}

// EventHandler processes one event.
type EventHandler func(ctx context.Context, event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	Subscribe(eventType EventType, handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

type correlationKey struct{}

// WithCorrelationID attaches the ID of the request that caused an event.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the ID attached by WithCorrelationID, or "".
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}
