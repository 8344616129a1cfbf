package models

// FineSummary aggregates the fines a user has been charged.
type FineSummary struct {
	Total       int64 // minor units
	LateReturns int   // closed reservations with a non-zero fine
}
