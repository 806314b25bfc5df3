package services

import (
	"context"
	"fmt"

	"society-ticketing/internal/logging"
	"society-ticketing/internal/models"

	"github.com/sirupsen/logrus"
)

// EventService applies event lifecycle changes and their side effects.
type EventService struct {
	events   EventStore
	carts    CartStore
	students StudentStore
	tickets  TicketCounter
	notifier Notifier
	clock    Clock
}

// NewEventService creates a new event service
func NewEventService(events EventStore, carts CartStore, students StudentStore, tickets TicketCounter, notifier Notifier, clock Clock) *EventService {
	return &EventService{
		events:   events,
		carts:    carts,
		students: students,
		tickets:  tickets,
		notifier: notifier,
		clock:    clock,
	}
}

// CancellationResult reports the effects of cancelling an event.
type CancellationResult struct {
	Event       *models.EventCancellation `json:"event"`
	PurgedLines []*models.TicketLine      `json:"purged_lines"`
	Recipients  []Recipient               `json:"recipients"`
}

// ModificationResult reports the effects of changing an event.
type ModificationResult struct {
	Event      *models.EventModified `json:"event"`
	Recipients []Recipient           `json:"recipients"`
}

// CancelEvent cancels the event, removes it from every cart and notifies
// its buyers and the students who saved it.
func (s *EventService) CancelEvent(ctx context.Context, eventID int64) (*CancellationResult, error) {
	event, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	cancelled, err := event.Cancel(s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := s.events.UpdateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to cancel event: %w", err)
	}

	purged, err := s.carts.PurgeEventLines(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to remove cancelled event from carts: %w", err)
	}

	recipients, err := s.audience(ctx, eventID)
	if err != nil {
		return nil, err
	}

	log := logging.FromContext(ctx).WithFields(logrus.Fields{
		"event_id":     eventID,
		"purged_lines": len(purged),
		"recipients":   len(recipients),
	})
	if err := s.notifier.SendEventCancelledNotice(ctx, eventID, recipients); err != nil {
		log.WithError(err).Error("Failed to send event cancelled notice")
	}
	log.Info("Event cancelled")

	return &CancellationResult{Event: cancelled, PurgedLines: purged, Recipients: recipients}, nil
}

// ModifyEvent applies u and notifies the event's audience.
func (s *EventService) ModifyEvent(ctx context.Context, eventID int64, u models.EventUpdate) (*ModificationResult, error) {
	event, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	sold, err := s.tickets.CountSold(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to count sold tickets: %w", err)
	}

	modified, err := event.ApplyUpdate(u, sold, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if len(modified.Changed) == 0 {
		return &ModificationResult{Event: modified}, nil
	}

	if err := s.events.UpdateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to update event: %w", err)
	}

	recipients, err := s.audience(ctx, eventID)
	if err != nil {
		return nil, err
	}

	log := logging.FromContext(ctx).WithFields(logrus.Fields{
		"event_id":   eventID,
		"changed":    modified.Changed,
		"recipients": len(recipients),
	})
	if err := s.notifier.SendEventModifiedNotice(ctx, eventID, recipients); err != nil {
		log.WithError(err).Error("Failed to send event modified notice")
	}
	log.Info("Event modified")

	return &ModificationResult{Event: modified, Recipients: recipients}, nil
}

// audience is the event's buyers followed by savers who did not buy.
func (s *EventService) audience(ctx context.Context, eventID int64) ([]Recipient, error) {
	buyers, err := s.students.ListEventBuyers(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list buyers: %w", err)
	}
	savers, err := s.students.ListEventSavers(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list savers: %w", err)
	}

	seen := models.NewIDSet()
	recipients := make([]Recipient, 0, len(buyers)+len(savers))
	for _, group := range [][]*models.Student{buyers, savers} {
		for _, st := range group {
			if seen.Has(st.ID) {
				continue
			}
			seen.Add(st.ID)
			recipients = append(recipients, Recipient{StudentID: st.ID, Name: st.FullName, Email: st.Email})
		}
	}
	return recipients, nil
}
