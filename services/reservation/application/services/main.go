package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/ghuser/campusreserve/pkg/app"
	"github.com/ghuser/campusreserve/pkg/cache"
	"github.com/ghuser/campusreserve/pkg/clock"
	"github.com/ghuser/campusreserve/pkg/config"
	"github.com/ghuser/campusreserve/services/reservation/domain/models"
	"github.com/ghuser/campusreserve/services/reservation/domain/repositories"
	"github.com/ghuser/campusreserve/services/reservation/infrastructure/persistence/postgres"
	"github.com/ghuser/campusreserve/services/reservation/infrastructure/redisledger"
	"github.com/ghuser/campusreserve/services/reservation/infrastructure/workflows"
)

// Services is the application-layer service container for this bounded context.
// It wires domain services with their infrastructure implementations.
type Services struct {
	Engine *Engine
	Query  *Query
	Ledger repositories.Ledger
}

// New wires the reservation services with infrastructure from the Application container.
func New(a *app.Application) *Services {
	cfg := a.Config
	items := postgres.NewItemRepository(a.Db, cfg.LedgerLockTimeout)
	store := postgres.NewReservationRepository(a.Db, a.EventBus)

	var ledger repositories.Ledger = items
	if cfg.LedgerBackend == config.LedgerRedis && a.Redis != nil {
		ledger = redisledger.New(a.Redis.Client(), items, store, cfg.LedgerLockTimeout)
	}

	opts := []EngineOption{
		WithLogger(a.Logger),
		WithFineRate(cfg.FineRatePerDay),
		WithBusyRetries(cfg.LedgerBusyRetries),
	}
	if a.TemporalClient != nil {
		opts = append(opts, WithReleaseScheduler(workflows.NewReleaseScheduler(a.TemporalClient.Client, a.TemporalClient.TaskQueue)))
	}

	var fines FineCache
	if a.Redis != nil {
		fines = redisFineCache{cache.NewFineCache(a.Redis)}
	}

	return &Services{
		Engine: NewEngine(items, ledger, store, clock.NewSystem(), opts...),
		Query:  NewQuery(items, ledger, store, fines, a.Logger),
		Ledger: ledger,
	}
}

// redisFineCache adapts cache.FineCache to the FineCache port.
type redisFineCache struct {
	c *cache.FineCache
}

func (r redisFineCache) Get(ctx context.Context, userID uuid.UUID) (models.FineSummary, error) {
	f, err := r.c.Get(ctx, userID)
	if err != nil {
		return models.FineSummary{}, err
	}
	return models.FineSummary{Total: f.Total, LateReturns: f.LateReturns}, nil
}

func (r redisFineCache) Set(ctx context.Context, userID uuid.UUID, sum models.FineSummary) error {
	return r.c.Set(ctx, userID, &cache.CachedFines{Total: sum.Total, LateReturns: sum.LateReturns})
}
