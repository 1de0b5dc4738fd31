package enrichment

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/people-hub/peoplehub/internal/domain/person"
	"github.com/people-hub/peoplehub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// POST-COMMIT HOOK: EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// EventScheduler schedules enrichment by publishing person.created.
// The creation use case calls it after its transaction committed.
type EventScheduler struct {
	publisher shared.EventPublisher
}

// NewEventScheduler creates an EventScheduler.
func NewEventScheduler(publisher shared.EventPublisher) *EventScheduler {
	return &EventScheduler{publisher: publisher}
}

// ScheduleEnrichment publishes one person.created event.
func (s *EventScheduler) ScheduleEnrichment(ctx context.Context, id person.ID) error {
	event := shared.NewPersonCreatedEvent(id.Int64(), shared.CorrelationID(ctx))
	if err := s.publisher.Publish(ctx, event); err != nil {
		return fmt.Errorf("publish %s for person %d: %w", event.EventType(), id, err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENT HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// ErrUnexpectedEvent is returned for events the handler cannot process.
var ErrUnexpectedEvent = errors.New("enrichment: unexpected event")

// PersonCreatedHandler runs the enricher for every person.created event.
func PersonCreatedHandler(enricher Enricher) shared.EventHandler {
	return func(ctx context.Context, event shared.Event) error {
		id, err := personIDOf(event)
		if err != nil {
			return err
		}
		return enricher.Enrich(ctx, id)
	}
}

// Subscribe registers the handler for person.created on sub.
func Subscribe(sub shared.EventSubscriber, enricher Enricher) error {
	return sub.Subscribe(shared.EventPersonCreated, PersonCreatedHandler(enricher))
}

func personIDOf(event shared.Event) (person.ID, error) {
	switch e := event.(type) {
	case shared.PersonCreatedEvent:
		return person.ID(e.PersonID), nil
	case *shared.PersonCreatedEvent:
		return person.ID(e.PersonID), nil
	}
	if event.EventType() == shared.EventPersonCreated {
		if id, err := strconv.ParseInt(event.AggregateID(), 10, 64); err == nil && id > 0 {
			return person.ID(id), nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrUnexpectedEvent, event.EventType())
}
