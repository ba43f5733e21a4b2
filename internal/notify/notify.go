package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Event string

const (
	EventBookingCreated    Event = "booking.created"
	EventBookingCancelled  Event = "booking.cancelled"
	EventSessionStarted    Event = "session.started"
	EventSessionCompleted  Event = "session.completed"
	EventSessionCancelled  Event = "session.cancelled"
	EventRequestReceived   Event = "request.received"
	EventRequestAccepted   Event = "request.accepted"
	EventRequestRejected   Event = "request.rejected"
	EventRequestExpired    Event = "request.expired"
	EventProposalReceived  Event = "proposal.received"
	EventProjectFunded     Event = "project.funded"
	EventProjectCompleted  Event = "project.completed"
	EventProjectCancelled  Event = "project.cancelled"
	EventProjectDelivered  Event = "project.delivered"
	EventReservationLapsed Event = "reservation.lapsed"
)

// Message уведомление пользователю
type Message struct {
	UserID   uuid.UUID         `json:"user_id"`
	Event    Event             `json:"event"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Subject  string            `json:"subject,omitempty"` // id сущности, к которой относится событие
	Metadata map[string]string `json:"metadata,omitempty"`
	SentAt   time.Time         `json:"sent_at"`
}

// Sink канал доставки уведомлений
type Sink interface {
	Send(ctx context.Context, msg Message) error
}
