package models

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a reservation. Closed and Cancelled are terminal.
type Status string

const (
	StatusOpen      Status = "open"
	StatusClosed    Status = "closed"
	StatusCancelled Status = "cancelled"
)

// Stage refines an open reservation: pending until staff hand the unit over.
type Stage string

const (
	StagePending Stage = "pending"
	StageActive  Stage = "active"
)

// Reservation records that a user holds one unit of an item for a bounded period.
// Once Closed or Cancelled it is never modified again.
type Reservation struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	ItemID        uuid.UUID
	Status        Status
	Stage         Stage
	HoldsCapacity bool // false for unlimited items
	DurationDays  int
	Price         int64 // minor units, informational
	OpenedAt      time.Time
	DueAt         time.Time
	ClosedAt      *time.Time
	Fine          *int64 // nil while open
}

// NewReservation builds an open reservation on item starting at now.
func NewReservation(userID uuid.UUID, item *Item, d Duration, now time.Time) *Reservation {
	return &Reservation{
		ID:            uuid.New(),
		UserID:        userID,
		ItemID:        item.ID,
		Status:        StatusOpen,
		Stage:         item.Kind.InitialStage(),
		HoldsCapacity: !item.Unlimited,
		DurationDays:  d.Days(),
		Price:         item.PricePerUnit * int64(d.Days()),
		OpenedAt:      now,
		DueAt:         now.Add(d.Std()),
	}
}

// IsOpen reports whether the reservation is still open.
func (r *Reservation) IsOpen() bool {
	return r.Status == StatusOpen
}

// Clone returns a deep copy.
func (r *Reservation) Clone() *Reservation {
	c := *r
	if r.ClosedAt != nil {
		t := *r.ClosedAt
		c.ClosedAt = &t
	}
	if r.Fine != nil {
		f := *r.Fine
		c.Fine = &f
	}
	return &c
}
