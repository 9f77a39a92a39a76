// Package notify publishes ticket lifecycle events for the mailer and other
// downstream consumers.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	TicketBooked   EventType = "ticket.booked"
	TicketPaid     EventType = "ticket.paid"
	TicketFailed   EventType = "ticket.failed"
	TicketCanceled EventType = "ticket.canceled"
	TicketUsed     EventType = "ticket.used"
	TicketExpired  EventType = "ticket.expired"
)

type Event struct {
	ID         uuid.UUID   `json:"id"`
	Type       EventType   `json:"type"`
	UserID     int64       `json:"user_id"`
	ScheduleID int64       `json:"schedule_id,omitempty"`
	TicketIDs  []uuid.UUID `json:"ticket_ids"`
	IntentID   string      `json:"payment_intent_id,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// NewEvent stamps an event with a fresh id and the current time.
func NewEvent(typ EventType, userID int64, ticketIDs ...uuid.UUID) Event {
	return Event{
		ID:         uuid.New(),
		Type:       typ,
		UserID:     userID,
		TicketIDs:  ticketIDs,
		OccurredAt: time.Now().UTC(),
	}
}

func (e Event) encode() ([]byte, error) {
	return json.Marshal(e)
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
