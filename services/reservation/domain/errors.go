package domain

import "errors"

// Sentinel errors for the reservation domain. Use errors.Is() to check these.
var (
	// ErrItemNotFound indicates the requested catalog item does not exist.
	ErrItemNotFound = errors.New("item not found")

	// ErrOutOfStock indicates the item has no available capacity left.
	ErrOutOfStock = errors.New("item out of stock")

	// ErrAlreadyReserved indicates the user already holds an open reservation on the item.
	ErrAlreadyReserved = errors.New("item already reserved by user")

	// ErrReservationNotFound indicates the requested reservation does not exist.
	ErrReservationNotFound = errors.New("reservation not found")

	// ErrNotAuthorized indicates the reservation belongs to a different user.
	ErrNotAuthorized = errors.New("reservation belongs to another user")

	// ErrAlreadyClosed indicates the reservation is no longer open.
	ErrAlreadyClosed = errors.New("reservation already closed")

	// ErrNotCancellable indicates the reservation has progressed past the pending stage.
	ErrNotCancellable = errors.New("reservation can no longer be cancelled")

	// ErrInvalidDuration indicates a duration outside the accepted range.
	ErrInvalidDuration = errors.New("invalid reservation duration")

	// ErrCapacityOverflow indicates a release would push available capacity above
	// the item's total. The ledger and store have diverged; operators must be alerted.
	ErrCapacityOverflow = errors.New("capacity overflow")

	// ErrBusy indicates the per-item lock could not be acquired in time. Retryable.
	ErrBusy = errors.New("item busy, try again")
)

// Errors returned by the ledger and store. The engine translates them before
// they reach callers.
var (
	// ErrInsufficientCapacity is returned by Ledger.TryDecrement when nothing is left.
	ErrInsufficientCapacity = errors.New("insufficient capacity")

	// ErrDuplicateOpenReservation is returned by ReservationStore.Insert when the
	// user already has an open reservation on the item.
	ErrDuplicateOpenReservation = errors.New("duplicate open reservation")
)
