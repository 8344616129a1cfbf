package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ghuser/campusreserve/pkg/database"
	"github.com/ghuser/campusreserve/services/reservation/domain"
	"github.com/ghuser/campusreserve/services/reservation/domain/models"
)

const (
	itemColumns = `id, name, kind, total_capacity, available_capacity, unlimited, price_per_unit, created_at`

	getItemSQL = `SELECT ` + itemColumns + ` FROM items WHERE id = $1`

	listItemsSQL = `SELECT ` + itemColumns + ` FROM items
WHERE $1 = '' OR kind = $1
ORDER BY name`

	itemExistsSQL = `SELECT EXISTS (SELECT 1 FROM items WHERE id = $1)`

	setLockTimeoutSQL = `SELECT set_config('lock_timeout', $1, true)`

	decrementSQL = `UPDATE items SET available_capacity = available_capacity - 1
WHERE id = $1 AND NOT unlimited AND available_capacity > 0`

	incrementSQL = `UPDATE items SET available_capacity = available_capacity + 1
WHERE id = $1 AND NOT unlimited AND available_capacity < total_capacity`

	availableSQL = `SELECT available_capacity FROM items WHERE id = $1`

	driftSQL = `SELECT i.id, i.total_capacity, i.available_capacity, COUNT(r.id)
FROM items i
LEFT JOIN reservations r ON r.item_id = i.id AND r.status = 'open' AND r.holds_capacity
WHERE NOT i.unlimited
GROUP BY i.id, i.total_capacity, i.available_capacity
HAVING i.available_capacity + COUNT(r.id) <> i.total_capacity`
)

// CapacityDrift is an item whose counter and open reservations disagree.
type CapacityDrift struct {
	ItemID    uuid.UUID
	Total     int
	Available int
	Held      int
}

const defaultLockTimeout = 2 * time.Second

// ItemRepository is the Postgres catalog and capacity ledger. Capacity changes
// are single conditional UPDATEs, so the row lock taken by the UPDATE is the
// per-item mutex and the WHERE clause is the capacity check.
type ItemRepository struct {
	db          *database.Database
	lockTimeout time.Duration
}

// NewItemRepository returns an ItemRepository. A non-positive lockTimeout
// falls back to 2s.
func NewItemRepository(db *database.Database, lockTimeout time.Duration) *ItemRepository {
	if lockTimeout <= 0 {
		lockTimeout = defaultLockTimeout
	}
	return &ItemRepository{db: db, lockTimeout: lockTimeout}
}

// Get retrieves an item by ID. Returns ErrItemNotFound if not found.
func (r *ItemRepository) Get(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	item, err := scanItem(r.db.DB().QueryRowContext(ctx, getItemSQL, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrItemNotFound
		}
		return nil, fmt.Errorf("query item: %w", err)
	}
	return item, nil
}

// List returns items of kind ordered by name; an empty kind returns all items.
func (r *ItemRepository) List(ctx context.Context, kind models.Kind) ([]*models.Item, error) {
	rows, err := r.db.DB().QueryContext(ctx, listItemsSQL, string(kind))
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var items []*models.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

// TryDecrement takes one unit of capacity.
func (r *ItemRepository) TryDecrement(ctx context.Context, itemID uuid.UUID) error {
	return r.adjust(ctx, itemID, decrementSQL, domain.ErrInsufficientCapacity)
}

// Increment returns one unit of capacity. It refuses to exceed total_capacity.
func (r *ItemRepository) Increment(ctx context.Context, itemID uuid.UUID) error {
	return r.adjust(ctx, itemID, incrementSQL, domain.ErrCapacityOverflow)
}

// Available reads the current available capacity.
func (r *ItemRepository) Available(ctx context.Context, itemID uuid.UUID) (int, error) {
	var n int
	if err := r.db.DB().QueryRowContext(ctx, availableSQL, itemID).Scan(&n); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrItemNotFound
		}
		return 0, fmt.Errorf("query availability: %w", err)
	}
	return n, nil
}

// Drift lists items where available plus held capacity differs from total.
// An Open in flight between its decrement and insert shows up transiently.
func (r *ItemRepository) Drift(ctx context.Context) ([]CapacityDrift, error) {
	rows, err := r.db.DB().QueryContext(ctx, driftSQL)
	if err != nil {
		return nil, fmt.Errorf("query capacity drift: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []CapacityDrift
	for rows.Next() {
		var d CapacityDrift
		if err := rows.Scan(&d.ItemID, &d.Total, &d.Available, &d.Held); err != nil {
			return nil, fmt.Errorf("scan capacity drift: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate capacity drift: %w", err)
	}
	return out, nil
}

// adjust runs a conditional capacity UPDATE under a bounded lock wait. When no
// row matches it reports refused, or ErrItemNotFound if the item is missing.
func (r *ItemRepository) adjust(ctx context.Context, itemID uuid.UUID, stmt string, refused error) error {
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, setLockTimeoutSQL, lockTimeoutSetting(r.lockTimeout)); err != nil {
			return fmt.Errorf("set lock timeout: %w", err)
		}

		res, err := tx.ExecContext(ctx, stmt, itemID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 1 {
			return nil
		}

		var exists bool
		if err := tx.QueryRowContext(ctx, itemExistsSQL, itemID).Scan(&exists); err != nil {
			return fmt.Errorf("check item exists: %w", err)
		}
		if !exists {
			return domain.ErrItemNotFound
		}
		return refused
	})
	if database.HasCode(err, database.CodeLockNotAvailable) {
		return domain.ErrBusy
	}
	return err
}

func lockTimeoutSetting(d time.Duration) string {
	return fmt.Sprintf("%dms", d.Milliseconds())
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*models.Item, error) {
	var (
		item models.Item
		kind string
	)
	if err := row.Scan(
		&item.ID,
		&item.Name,
		&kind,
		&item.TotalCapacity,
		&item.AvailableCapacity,
		&item.Unlimited,
		&item.PricePerUnit,
		&item.CreatedAt,
	); err != nil {
		return nil, err
	}
	item.Kind = models.Kind(kind)
	return &item, nil
}
