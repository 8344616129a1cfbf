// Package redisledger keeps capacity counters in Redis. Every check-and-adjust
// is a Lua script, which Redis runs atomically.
package redisledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ghuser/campusreserve/services/reservation/domain"
	"github.com/ghuser/campusreserve/services/reservation/domain/repositories"
)

const (
	keyPrefix          = "ledger"
	defaultLockTimeout = 2 * time.Second

	missing  = -2
	rejected = -1
)

// KEYS[1] ledger hash. Returns the new available count, -1 if none is left,
// -2 if the counter is not seeded.
var decrementScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -2 end
local available = tonumber(redis.call('HGET', KEYS[1], 'available'))
if available <= 0 then return -1 end
return redis.call('HINCRBY', KEYS[1], 'available', -1)
`)

// KEYS[1] ledger hash. Returns the new available count, -1 if it is already
// at total, -2 if the counter is not seeded.
var incrementScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -2 end
local available = tonumber(redis.call('HGET', KEYS[1], 'available'))
local total = tonumber(redis.call('HGET', KEYS[1], 'total'))
if available >= total then return -1 end
return redis.call('HINCRBY', KEYS[1], 'available', 1)
`)

// KEYS[1] ledger hash, ARGV[1] available, ARGV[2] total. Seeds only once.
var seedScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then return 0 end
redis.call('HSET', KEYS[1], 'available', ARGV[1], 'total', ARGV[2])
return 1
`)

// HeldCounter counts the open reservations holding a unit of an item.
type HeldCounter interface {
	HeldCount(ctx context.Context, itemID uuid.UUID) (int, error)
}

// Ledger implements repositories.Ledger on Redis. A counter is seeded the
// first time its item is touched, and again whenever the key has been lost,
// as total capacity minus the units held by open reservations. The catalog's
// available_capacity column is not consulted: with this backend nothing
// writes it.
type Ledger struct {
	client      redis.UniversalClient
	catalog     repositories.Catalog
	held        HeldCounter
	lockTimeout time.Duration
}

// New returns a Ledger. A non-positive timeout falls back to 2s.
func New(client redis.UniversalClient, catalog repositories.Catalog, held HeldCounter, timeout time.Duration) *Ledger {
	if timeout <= 0 {
		timeout = defaultLockTimeout
	}
	return &Ledger{client: client, catalog: catalog, held: held, lockTimeout: timeout}
}

func (l *Ledger) TryDecrement(ctx context.Context, itemID uuid.UUID) error {
	return l.run(ctx, itemID, decrementScript, domain.ErrInsufficientCapacity)
}

func (l *Ledger) Increment(ctx context.Context, itemID uuid.UUID) error {
	return l.run(ctx, itemID, incrementScript, domain.ErrCapacityOverflow)
}

func (l *Ledger) Available(ctx context.Context, itemID uuid.UUID) (int, error) {
	for attempt := 0; attempt < 2; attempt++ {
		n, err := l.client.HGet(ctx, key(itemID), "available").Int()
		if err == nil {
			return n, nil
		}
		if !errors.Is(err, redis.Nil) {
			return 0, l.mapErr(ctx, fmt.Errorf("read availability: %w", err))
		}
		if err := l.seed(ctx, itemID); err != nil {
			return 0, err
		}
	}
	return 0, fmt.Errorf("ledger for %s vanished after seeding", itemID)
}

func (l *Ledger) run(ctx context.Context, itemID uuid.UUID, script *redis.Script, refused error) error {
	callCtx, cancel := context.WithTimeout(ctx, l.lockTimeout)
	defer cancel()

	for attempt := 0; attempt < 2; attempt++ {
		res, err := script.Run(callCtx, l.client, []string{key(itemID)}).Int()
		if err != nil {
			return l.mapErr(ctx, fmt.Errorf("run ledger script: %w", err))
		}
		switch res {
		case rejected:
			return refused
		case missing:
			if err := l.seed(callCtx, itemID); err != nil {
				return l.mapErr(ctx, err)
			}
		default:
			return nil
		}
	}
	return fmt.Errorf("ledger for %s vanished after seeding", itemID)
}

func (l *Ledger) seed(ctx context.Context, itemID uuid.UUID) error {
	item, err := l.catalog.Get(ctx, itemID)
	if err != nil {
		return err
	}
	if item.Unlimited {
		return domain.ErrItemNotFound
	}
	held, err := l.held.HeldCount(ctx, itemID)
	if err != nil {
		return fmt.Errorf("count held capacity: %w", err)
	}
	available := item.TotalCapacity - held
	if available < 0 {
		return fmt.Errorf("seed ledger for %s: %d units held of %d: %w",
			itemID, held, item.TotalCapacity, domain.ErrCapacityOverflow)
	}
	if err := seedScript.Run(ctx, l.client, []string{key(itemID)}, available, item.TotalCapacity).Err(); err != nil {
		return fmt.Errorf("seed ledger: %w", err)
	}
	return nil
}

// mapErr turns our own deadline into ErrBusy. Caller cancellation is passed through.
func (l *Ledger) mapErr(ctx context.Context, err error) error {
	if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrBusy
	}
	return err
}

func key(itemID uuid.UUID) string {
	return fmt.Sprintf("%s:%s", keyPrefix, itemID)
}
