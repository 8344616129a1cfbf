package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/ghuser/campusreserve/pkg/app"
	"github.com/ghuser/campusreserve/pkg/cache"
	"github.com/ghuser/campusreserve/pkg/config"
	"github.com/ghuser/campusreserve/pkg/database"
	"github.com/ghuser/campusreserve/pkg/events"
	"github.com/ghuser/campusreserve/pkg/httpx"
	"github.com/ghuser/campusreserve/pkg/logger"
	"github.com/ghuser/campusreserve/pkg/telemetry"
	"github.com/ghuser/campusreserve/pkg/workflows"
	appsvcs "github.com/ghuser/campusreserve/services/reservation/application/services"
	reservationEvents "github.com/ghuser/campusreserve/services/reservation/domain/events"
	"github.com/ghuser/campusreserve/services/reservation/domain/repositories"
	"github.com/ghuser/campusreserve/services/reservation/infrastructure/persistence/postgres"
	releaseWorkflows "github.com/ghuser/campusreserve/services/reservation/infrastructure/workflows"
)

const auditInterval = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := config.ValidateForProduction(cfg); err != nil {
		slog.Error("production config validation failed", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg)

	ctx := context.Background()

	otelShutdown, metricsHandler, err := telemetry.Setup(ctx, cfg)
	if err != nil {
		log.Error("failed to setup otel", "error", err)
		os.Exit(1)
	}
	defer otelShutdown(ctx) //nolint:errcheck

	if cfg.MetricsAddr != "" {
		metricsSrv := httpx.NewServer(cfg.MetricsAddr, metricsHandler, 0)
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server error", "error", err)
			}
		}()
		defer metricsSrv.Close() //nolint:errcheck
		log.Info("worker metrics listening", "addr", cfg.MetricsAddr)
	}

	if err := telemetry.SetupSentry(cfg); err != nil {
		log.Warn("failed to setup sentry, continuing without crash reporting", "error", err)
	}
	defer telemetry.SentryFlush()

	pool, err := database.NewPool(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1) //nolint:gocritic
	}
	defer pool.Close()
	log.Info("database pool connected")

	eventBus, err := events.NewEventBus(cfg, log)
	if err != nil {
		log.Error("failed to setup event bus", "error", err)
		os.Exit(1) //nolint:gocritic
	}
	defer eventBus.Close() //nolint:errcheck

	redisClient, err := cache.NewRedisClient(cfg)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1) //nolint:gocritic
	}
	defer redisClient.Close() //nolint:errcheck
	log.Info("redis connected")

	var temporalClient *workflows.TemporalClient
	if cfg.TemporalEnabled {
		temporalClient, err = workflows.NewTemporalClient(ctx, cfg, log)
		if err != nil {
			log.Error("failed to initialize temporal client", "error", err)
			os.Exit(1) //nolint:gocritic
		}
		defer temporalClient.Close()
	}

	appConfig := &app.Application{
		Config:         cfg,
		Db:             pool,
		Logger:         log,
		EventBus:       eventBus,
		Redis:          redisClient,
		TemporalClient: temporalClient,
	}
	svcs := appsvcs.New(appConfig)

	if err := registerSubscribers(ctx, appConfig); err != nil {
		log.Error("failed to register subscribers", "error", err)
		os.Exit(1) //nolint:gocritic
	}

	if temporalClient != nil {
		w := temporalClient.NewWorker()
		releaseWorkflows.Register(w, &releaseWorkflows.Activities{Ledger: svcs.Ledger, Log: log})
		if err := w.Start(); err != nil {
			log.Error("failed to start temporal worker", "error", err)
			os.Exit(1) //nolint:gocritic
		}
		defer w.Stop()
		log.Info("temporal worker started", "task_queue", temporalClient.TaskQueue)
	}

	auditCtx, cancelAudit := context.WithCancel(ctx)
	items := postgres.NewItemRepository(pool, cfg.LedgerLockTimeout)
	drift := items.Drift
	if cfg.LedgerBackend == config.LedgerRedis {
		drift = ledgerDrift(items, svcs.Ledger, postgres.NewReservationRepository(pool, nil))
	}
	go runCapacityAudit(auditCtx, appConfig, drift)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancelAudit()

	// EventBus.Close() (via defer) waits up to 30s for in-flight handlers.
	log.Info("worker stopped")
}

// registerSubscribers wires all domain event handlers.
// Add new topics here as more services publish events.
func registerSubscribers(ctx context.Context, a *app.Application) error {
	errCh, err := a.EventBus.Subscribe(ctx, reservationEvents.TopicReservationClosed, handleReservationClosed(a))
	if err != nil {
		return err
	}

	// Drain subscriber errors in background so the channel never blocks.
	go func() {
		for err := range errCh {
			a.Logger.ErrorContext(ctx, "subscriber error",
				"topic", reservationEvents.TopicReservationClosed,
				"error", err,
			)
		}
	}()

	a.Logger.Info("event subscribers registered", "topics", []string{reservationEvents.TopicReservationClosed})
	return nil
}

// handleReservationClosed drops the user's cached fine summary so the next
// read recomputes it from the store. Redelivery is harmless.
func handleReservationClosed(a *app.Application) events.Handler {
	fineCache := cache.NewFineCache(a.Redis)
	return func(ctx context.Context, msg *message.Message) error {
		evt, err := events.Decode[reservationEvents.ReservationClosedEvent](msg)
		if err != nil {
			return err
		}
		if evt.Fine == 0 {
			return nil
		}

		if err := fineCache.Invalidate(ctx, evt.UserID); err != nil {
			return err
		}
		a.Logger.InfoContext(ctx, "fine cache invalidated",
			"user_id", evt.UserID, "reservation_id", evt.ReservationID, "fine", evt.Fine)
		return nil
	}
}

type driftFunc func(ctx context.Context) ([]postgres.CapacityDrift, error)

// ledgerDrift audits a ledger kept outside Postgres: each tracked item's
// counter plus its held reservations must equal its total.
func ledgerDrift(items *postgres.ItemRepository, ledger repositories.Ledger, store *postgres.ReservationRepository) driftFunc {
	return func(ctx context.Context) ([]postgres.CapacityDrift, error) {
		all, err := items.List(ctx, "")
		if err != nil {
			return nil, err
		}
		var out []postgres.CapacityDrift
		for _, item := range all {
			if item.Unlimited {
				continue
			}
			available, err := ledger.Available(ctx, item.ID)
			if err != nil {
				return nil, fmt.Errorf("read counter for %s: %w", item.ID, err)
			}
			held, err := store.HeldCount(ctx, item.ID)
			if err != nil {
				return nil, err
			}
			if available+held != item.TotalCapacity {
				out = append(out, postgres.CapacityDrift{
					ItemID: item.ID, Total: item.TotalCapacity, Available: available, Held: held,
				})
			}
		}
		return out, nil
	}
}

// runCapacityAudit compares each item's counter with its open reservations.
// An item drifting on two consecutive passes is reported as critical; a single
// pass can catch an Open between its decrement and insert. Runs until ctx is cancelled.
func runCapacityAudit(ctx context.Context, a *app.Application, drift driftFunc) {
	ticker := time.NewTicker(auditInterval)
	defer ticker.Stop()

	drifting, _ := otel.Meter("github.com/ghuser/campusreserve/cmd/worker").Int64Gauge(
		"reservation.capacity_drift_items",
		metric.WithDescription("Items whose capacity drifted on two consecutive audits"))

	suspects := make(map[uuid.UUID]postgres.CapacityDrift)
	for {
		select {
		case <-ctx.Done():
			a.Logger.Info("capacity audit shutting down")
			return
		case <-ticker.C:
			found, err := drift(ctx)
			if err != nil {
				a.Logger.WarnContext(ctx, "capacity audit failed", "error", err)
				continue
			}
			next := make(map[uuid.UUID]postgres.CapacityDrift, len(found))
			var confirmed int64
			for _, d := range found {
				if prev, ok := suspects[d.ItemID]; ok && prev == d {
					confirmed++
					logger.Critical(ctx, a.Logger, "capacity ledger drift",
						"item_id", d.ItemID, "total", d.Total, "available", d.Available, "held", d.Held)
				}
				next[d.ItemID] = d
			}
			suspects = next
			drifting.Record(ctx, confirmed)
		}
	}
}
