package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind classifies catalog items by the campus service that offers them.
type Kind string

const (
	KindBook      Kind = "book"
	KindEquipment Kind = "equipment"
	KindLaundry   Kind = "laundry"
	KindMenu      Kind = "menu"
)

// ParseKind validates s as a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindBook, KindEquipment, KindLaundry, KindMenu:
		return k, nil
	default:
		return "", fmt.Errorf("unknown item kind %q", s)
	}
}

// Unlimited reports whether items of this kind have no capacity constraint.
// Laundry services and menu items are simple orders and never touch the ledger.
func (k Kind) Unlimited() bool {
	return k == KindLaundry || k == KindMenu
}

// InitialStage is the stage a new reservation starts in. Books are handed over
// at the desk when issued; everything else waits for staff to activate it.
func (k Kind) InitialStage() Stage {
	if k == KindBook {
		return StageActive
	}
	return StagePending
}

func (k Kind) String() string {
	return string(k)
}

// Item is a catalog entry with a finite (or unlimited) number of units.
type Item struct {
	ID                uuid.UUID
	Name              string
	Kind              Kind
	TotalCapacity     int
	AvailableCapacity int
	Unlimited         bool
	PricePerUnit      int64 // minor units
	CreatedAt         time.Time
}

// NewItem constructs an Item with all units available.
func NewItem(name string, kind Kind, totalCapacity int, pricePerUnit int64) (*Item, error) {
	if name == "" {
		return nil, fmt.Errorf("item name must not be empty")
	}
	if totalCapacity < 0 {
		return nil, fmt.Errorf("total capacity must not be negative")
	}
	if pricePerUnit < 0 {
		return nil, fmt.Errorf("price must not be negative")
	}
	return &Item{
		ID:                uuid.New(),
		Name:              name,
		Kind:              kind,
		TotalCapacity:     totalCapacity,
		AvailableCapacity: totalCapacity,
		Unlimited:         kind.Unlimited(),
		PricePerUnit:      pricePerUnit,
		CreatedAt:         time.Now().UTC(),
	}, nil
}
