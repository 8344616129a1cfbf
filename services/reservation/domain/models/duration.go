package models

import (
	"fmt"
	"time"
)

const (
	MinDurationDays = 1
	MaxDurationDays = 30
)

// Duration is a reservation length in whole days.
type Duration int

// NewDuration validates days against the accepted 1–30 range.
func NewDuration(days int) (Duration, error) {
	if days < MinDurationDays || days > MaxDurationDays {
		return 0, fmt.Errorf("duration must be between %d and %d days, got %d", MinDurationDays, MaxDurationDays, days)
	}
	return Duration(days), nil
}

// Days returns the number of days.
func (d Duration) Days() int {
	return int(d)
}

// Std converts the duration to a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d) * 24 * time.Hour
}
