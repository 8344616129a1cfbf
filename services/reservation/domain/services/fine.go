// Package services contains stateless domain services for the reservation
// bounded context.
package services

import "time"

const day = 24 * time.Hour

// DefaultFineRatePerDay is 5 rupees expressed in paise.
const DefaultFineRatePerDay int64 = 500

// FineCalculator computes overdue penalties. Any partial day late counts as a
// full day.
type FineCalculator struct {
	RatePerDay int64 // minor units
}

// NewFineCalculator returns a FineCalculator charging rate per day late.
func NewFineCalculator(rate int64) FineCalculator {
	return FineCalculator{RatePerDay: rate}
}

// Compute returns 0 when closedAt <= dueAt, otherwise ceil(days late) * RatePerDay.
func (c FineCalculator) Compute(dueAt, closedAt time.Time) int64 {
	return DaysLate(dueAt, closedAt) * c.RatePerDay
}

// DaysLate returns the number of started days between dueAt and closedAt.
func DaysLate(dueAt, closedAt time.Time) int64 {
	late := closedAt.Sub(dueAt)
	if late <= 0 {
		return 0
	}
	return int64((late + day - 1) / day)
}
