package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ghuser/campusreserve/services/reservation/domain/models"
)

// Catalog is the read-only view of inventory items.
type Catalog interface {
	// Get returns ErrItemNotFound when no item has the given id.
	Get(ctx context.Context, id uuid.UUID) (*models.Item, error)

	// List returns items ordered by name. An empty kind lists every item.
	List(ctx context.Context, kind models.Kind) ([]*models.Item, error)
}

// Ledger is the sole writer of available capacity counters. Each method is a
// single atomic step on one item; implementations return ErrBusy when the
// per-item lock cannot be acquired within their timeout.
type Ledger interface {
	// TryDecrement takes one unit. Returns ErrInsufficientCapacity when none is left.
	TryDecrement(ctx context.Context, itemID uuid.UUID) error

	// Increment gives one unit back. Returns ErrCapacityOverflow, without
	// changing anything, when the item is already fully available.
	Increment(ctx context.Context, itemID uuid.UUID) error

	// Available returns the current available capacity.
	Available(ctx context.Context, itemID uuid.UUID) (int, error)
}

// ReservationStore is the durable, append-only history of reservations.
type ReservationStore interface {
	// Insert stores a new open reservation. Returns ErrDuplicateOpenReservation
	// when the user already has an open reservation on the same item.
	Insert(ctx context.Context, r *models.Reservation) error

	// FindOpen returns the user's open reservation on the item or ErrReservationNotFound.
	FindOpen(ctx context.Context, userID, itemID uuid.UUID) (*models.Reservation, error)

	// FindByID returns ErrReservationNotFound when absent.
	FindByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error)

	// ListOpenByUser returns open reservations, most recently opened first.
	ListOpenByUser(ctx context.Context, userID uuid.UUID) ([]*models.Reservation, error)

	// MarkClosed moves an open reservation to Closed (or Cancelled) in a single
	// conditional write. A reservation that is no longer open yields
	// ErrAlreadyClosed; cancelling one past the pending stage yields ErrNotCancellable.
	MarkClosed(ctx context.Context, id uuid.UUID, closedAt time.Time, fine int64, cancelled bool) (*models.Reservation, error)

	// MarkActive moves an open reservation from pending to active. Already
	// active reservations are returned unchanged.
	MarkActive(ctx context.Context, id uuid.UUID) (*models.Reservation, error)

	// FineTotals sums fines over the user's closed reservations.
	FineTotals(ctx context.Context, userID uuid.UUID) (models.FineSummary, error)
}
