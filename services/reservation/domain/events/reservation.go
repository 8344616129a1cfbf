package events

import (
	"time"

	"github.com/google/uuid"
)

// Watermill topics published by the reservation store inside its transactions.
const (
	TopicReservationOpened    = "reservation.opened"
	TopicReservationClosed    = "reservation.closed"
	TopicReservationCancelled = "reservation.cancelled"
)

// ReservationOpenedEvent is published after a new reservation is inserted.
type ReservationOpenedEvent struct {
	EventID       uuid.UUID `json:"event_id"`
	Version       int       `json:"version"`
	ReservationID uuid.UUID `json:"reservation_id"`
	UserID        uuid.UUID `json:"user_id"`
	ItemID        uuid.UUID `json:"item_id"`
	HoldsCapacity bool      `json:"holds_capacity"`
	DueAt         time.Time `json:"due_at"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// ReservationClosedEvent is published when a reservation is closed or cancelled.
// Consumers subscribe to TopicReservationClosed to maintain fine read models.
type ReservationClosedEvent struct {
	EventID       uuid.UUID `json:"event_id"`
	Version       int       `json:"version"`
	ReservationID uuid.UUID `json:"reservation_id"`
	UserID        uuid.UUID `json:"user_id"`
	ItemID        uuid.UUID `json:"item_id"`
	Cancelled     bool      `json:"cancelled"`
	Fine          int64     `json:"fine"`
	ClosedAt      time.Time `json:"closed_at"`
	OccurredAt    time.Time `json:"occurred_at"`
}
