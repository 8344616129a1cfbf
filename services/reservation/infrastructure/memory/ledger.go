package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/ghuser/campusreserve/services/reservation/domain"
	"github.com/ghuser/campusreserve/services/reservation/domain/models"
)

const defaultLockTimeout = 2 * time.Second

// counter is one item's capacity. sem serializes every mutation of available.
type counter struct {
	sem       *semaphore.Weighted
	total     int
	available int
}

// Ledger keeps capacity counters in memory behind a per-item lock with a
// bounded wait. Items on different counters never contend.
type Ledger struct {
	mu          sync.RWMutex
	counters    map[uuid.UUID]*counter
	lockTimeout time.Duration
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithLockTimeout bounds how long a mutation waits for the per-item lock.
func WithLockTimeout(d time.Duration) LedgerOption {
	return func(l *Ledger) {
		if d > 0 {
			l.lockTimeout = d
		}
	}
}

// NewLedger returns an empty Ledger. Register items with Track.
func NewLedger(opts ...LedgerOption) *Ledger {
	l := &Ledger{
		counters:    make(map[uuid.UUID]*counter),
		lockTimeout: defaultLockTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Track starts counting capacity for item. Unlimited items are ignored.
func (l *Ledger) Track(items ...*models.Item) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, it := range items {
		if it.Unlimited {
			continue
		}
		l.counters[it.ID] = &counter{
			sem:       semaphore.NewWeighted(1),
			total:     it.TotalCapacity,
			available: it.AvailableCapacity,
		}
	}
}

func (l *Ledger) TryDecrement(ctx context.Context, itemID uuid.UUID) error {
	return l.mutate(ctx, itemID, func(c *counter) error {
		if c.available <= 0 {
			return domain.ErrInsufficientCapacity
		}
		c.available--
		return nil
	})
}

func (l *Ledger) Increment(ctx context.Context, itemID uuid.UUID) error {
	return l.mutate(ctx, itemID, func(c *counter) error {
		if c.available >= c.total {
			return domain.ErrCapacityOverflow
		}
		c.available++
		return nil
	})
}

func (l *Ledger) Available(ctx context.Context, itemID uuid.UUID) (int, error) {
	var n int
	err := l.mutate(ctx, itemID, func(c *counter) error {
		n = c.available
		return nil
	})
	return n, err
}

func (l *Ledger) mutate(ctx context.Context, itemID uuid.UUID, fn func(*counter) error) error {
	l.mu.RLock()
	c, ok := l.counters[itemID]
	l.mu.RUnlock()
	if !ok {
		return domain.ErrItemNotFound
	}

	lockCtx, cancel := context.WithTimeout(ctx, l.lockTimeout)
	defer cancel()
	if err := c.sem.Acquire(lockCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.ErrBusy
		}
		return err
	}
	defer c.sem.Release(1)

	return fn(c)
}
