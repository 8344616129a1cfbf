// Package memory holds in-process implementations of the reservation
// repositories. They back the engine in tests and in single-node demos.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/ghuser/campusreserve/services/reservation/domain"
	"github.com/ghuser/campusreserve/services/reservation/domain/models"
)

// Catalog is a read-mostly item store.
type Catalog struct {
	mu    sync.RWMutex
	items map[uuid.UUID]models.Item
}

// NewCatalog returns a Catalog holding items.
func NewCatalog(items ...*models.Item) *Catalog {
	c := &Catalog{items: make(map[uuid.UUID]models.Item, len(items))}
	for _, it := range items {
		c.items[it.ID] = *it
	}
	return c
}

// Add inserts or replaces an item.
func (c *Catalog) Add(item *models.Item) {
	c.mu.Lock()
	c.items[item.ID] = *item
	c.mu.Unlock()
}

func (c *Catalog) Get(_ context.Context, id uuid.UUID) (*models.Item, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	it, ok := c.items[id]
	if !ok {
		return nil, domain.ErrItemNotFound
	}
	return &it, nil
}

func (c *Catalog) List(_ context.Context, kind models.Kind) ([]*models.Item, error) {
	c.mu.RLock()
	out := make([]*models.Item, 0, len(c.items))
	for _, it := range c.items {
		if kind != "" && it.Kind != kind {
			continue
		}
		it := it
		out = append(out, &it)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
