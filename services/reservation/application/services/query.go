package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ghuser/campusreserve/pkg/logger"
	"github.com/ghuser/campusreserve/services/reservation/domain"
	"github.com/ghuser/campusreserve/services/reservation/domain/models"
	"github.com/ghuser/campusreserve/services/reservation/domain/repositories"
)

// FineCache is the read-through cache in front of Store.FineTotals.
type FineCache interface {
	Get(ctx context.Context, userID uuid.UUID) (models.FineSummary, error)
	Set(ctx context.Context, userID uuid.UUID, sum models.FineSummary) error
}

// Availability is the live capacity of one item.
type Availability struct {
	ItemID    uuid.UUID
	Available int
	Total     int
	Unlimited bool
}

// Query serves the read paths. It never mutates state.
type Query struct {
	catalog repositories.Catalog
	ledger  repositories.Ledger
	store   repositories.ReservationStore
	fines   FineCache
	log     logger.Logger
}

// NewQuery returns a Query. fines may be nil.
func NewQuery(catalog repositories.Catalog, ledger repositories.Ledger, store repositories.ReservationStore, fines FineCache, log logger.Logger) *Query {
	return &Query{catalog: catalog, ledger: ledger, store: store, fines: fines, log: log}
}

// ListOpenByUser returns the user's open reservations, most recent first.
func (q *Query) ListOpenByUser(ctx context.Context, userID uuid.UUID) ([]*models.Reservation, error) {
	list, err := q.store.ListOpenByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list open reservations: %w", err)
	}
	return list, nil
}

// Get returns a reservation owned by userID.
func (q *Query) Get(ctx context.Context, userID, reservationID uuid.UUID) (*models.Reservation, error) {
	r, err := q.store.FindByID(ctx, reservationID)
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	if r.UserID != userID {
		return nil, domain.ErrNotAuthorized
	}
	return r, nil
}

// ItemAvailability reads the item's capacity from the ledger.
func (q *Query) ItemAvailability(ctx context.Context, itemID uuid.UUID) (Availability, error) {
	item, err := q.Item(ctx, itemID)
	if err != nil {
		return Availability{}, err
	}
	return Availability{
		ItemID:    item.ID,
		Available: item.AvailableCapacity,
		Total:     item.TotalCapacity,
		Unlimited: item.Unlimited,
	}, nil
}

// Item returns a catalog item with its available capacity taken from the ledger.
func (q *Query) Item(ctx context.Context, itemID uuid.UUID) (*models.Item, error) {
	item, err := q.catalog.Get(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if err := q.withAvailability(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// ListItems returns catalog items of the given kind, or all items when kind is empty.
func (q *Query) ListItems(ctx context.Context, kind models.Kind) ([]*models.Item, error) {
	items, err := q.catalog.List(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	for _, it := range items {
		if err := q.withAvailability(ctx, it); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// FineSummary returns the user's total fines. The cache is consulted first and
// warmed from the store on a miss.
func (q *Query) FineSummary(ctx context.Context, userID uuid.UUID) (models.FineSummary, error) {
	if q.fines != nil {
		sum, err := q.fines.Get(ctx, userID)
		if err == nil {
			return sum, nil
		}
		if !errors.Is(err, redis.Nil) {
			q.log.WarnContext(ctx, "fine cache read failed", "user_id", userID, "error", err)
		}
	}

	sum, err := q.store.FineTotals(ctx, userID)
	if err != nil {
		return models.FineSummary{}, fmt.Errorf("fine totals: %w", err)
	}

	if q.fines != nil {
		if err := q.fines.Set(ctx, userID, sum); err != nil {
			q.log.WarnContext(ctx, "fine cache write failed", "user_id", userID, "error", err)
		}
	}
	return sum, nil
}

func (q *Query) withAvailability(ctx context.Context, item *models.Item) error {
	if item.Unlimited {
		return nil
	}
	n, err := q.ledger.Available(ctx, item.ID)
	if err != nil {
		return fmt.Errorf("item availability: %w", err)
	}
	item.AvailableCapacity = n
	return nil
}
