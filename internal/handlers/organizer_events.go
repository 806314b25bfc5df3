package handlers

import (
	"net/http"
	"time"

	"society-ticketing/internal/middleware"
	"society-ticketing/internal/models"
	"society-ticketing/internal/services"
)

// EventHandler serves inventory and the organizer lifecycle operations
type EventHandler struct {
	events       services.EventStore
	ledger       *services.InventoryLedger
	eventService *services.EventService
}

// NewEventHandler creates a new event handler
func NewEventHandler(events services.EventStore, ledger *services.InventoryLedger, eventService *services.EventService) *EventHandler {
	return &EventHandler{events: events, ledger: ledger, eventService: eventService}
}

// InventoryResponse is the live remaining stock of an event.
type InventoryResponse struct {
	EventID   int64              `json:"event_id"`
	Status    models.EventStatus `json:"status"`
	Remaining models.Quantities  `json:"remaining"`
	// Released reports whether standard tickets are on sale yet.
	Released bool `json:"released"`
}

// LifecycleResponse summarises a cancel or modify without exposing the
// students who were notified.
type LifecycleResponse struct {
	EventID     int64     `json:"event_id"`
	Status      string    `json:"status"`
	Changed     []string  `json:"changed,omitempty"`
	PurgedLines int       `json:"purged_lines"`
	Notified    int       `json:"notified"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Inventory returns the remaining tickets per class
func (h *EventHandler) Inventory(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r, "eventID")
	if !ok {
		return
	}
	event, err := h.events.GetEvent(r.Context(), eventID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	remaining, err := h.ledger.Inventory(r.Context(), event)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, InventoryResponse{
		EventID:   event.ID,
		Status:    event.Status,
		Remaining: remaining,
		Released:  remaining.EarlyBird == 0,
	})
}

// CancelEvent cancels an event the student organizes
func (h *EventHandler) CancelEvent(w http.ResponseWriter, r *http.Request) {
	eventID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	result, err := h.eventService.CancelEvent(r.Context(), eventID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, LifecycleResponse{
		EventID:     result.Event.EventID,
		Status:      string(models.EventCancelled),
		PurgedLines: len(result.PurgedLines),
		Notified:    len(result.Recipients),
		OccurredAt:  result.Event.OccurredAt,
	})
}

// ModifyEvent changes the details of an event the student organizes
func (h *EventHandler) ModifyEvent(w http.ResponseWriter, r *http.Request) {
	eventID, ok := h.authorize(w, r)
	if !ok {
		return
	}
	var update models.EventUpdate
	if !decodeJSON(w, r, &update) {
		return
	}

	result, err := h.eventService.ModifyEvent(r.Context(), eventID, update)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, LifecycleResponse{
		EventID:    result.Event.EventID,
		Status:     string(models.EventActive),
		Changed:    result.Event.Changed,
		Notified:   len(result.Recipients),
		OccurredAt: result.Event.OccurredAt,
	})
}

// authorize admits committee members of the host or a co-organizer.
func (h *EventHandler) authorize(w http.ResponseWriter, r *http.Request) (int64, bool) {
	eventID, ok := pathID(w, r, "eventID")
	if !ok {
		return 0, false
	}
	event, err := h.events.GetEvent(r.Context(), eventID)
	if err != nil {
		writeServiceError(w, r, err)
		return 0, false
	}

	actor := studentID(r)
	for _, society := range event.Organizers() {
		if society.CommitteeMembers.Has(actor) {
			return eventID, true
		}
	}
	middleware.WriteError(w, r, http.StatusForbidden, middleware.ErrorDetail{
		Code:    "FORBIDDEN",
		Message: "only the organizing committee can change this event",
	})
	return 0, false
}
