package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ghuser/campusreserve/pkg/clock"
	"github.com/ghuser/campusreserve/pkg/logger"
	"github.com/ghuser/campusreserve/pkg/telemetry"
	"github.com/ghuser/campusreserve/services/reservation/domain"
	"github.com/ghuser/campusreserve/services/reservation/domain/models"
	"github.com/ghuser/campusreserve/services/reservation/domain/repositories"
	domainsvcs "github.com/ghuser/campusreserve/services/reservation/domain/services"
)

const (
	instrumentationName     = "github.com/ghuser/campusreserve/services/reservation"
	defaultBusyRetries      = 3
	defaultRetryBase        = 20 * time.Millisecond
	defaultDetachedDeadline = 5 * time.Second
)

// ReleaseScheduler hands a capacity release that could not be completed inline
// to a durable background process.
type ReleaseScheduler interface {
	ScheduleRelease(ctx context.Context, reservationID, itemID uuid.UUID) error
}

// Engine opens and closes reservations against the capacity ledger.
//
// Capacity and reservation records live behind separate atomic steps. Open
// takes capacity first and gives it back if the insert fails; Close marks the
// reservation first and only the winner of that conditional write releases
// capacity.
type Engine struct {
	catalog  repositories.Catalog
	ledger   repositories.Ledger
	store    repositories.ReservationStore
	clock    clock.Clock
	fines    domainsvcs.FineCalculator
	log      logger.Logger
	releases ReleaseScheduler

	busyRetries      uint
	retryBase        time.Duration
	detachedDeadline time.Duration

	tracer    trace.Tracer
	opened    metric.Int64Counter
	closed    metric.Int64Counter
	overflows metric.Int64Counter
	handoffs  metric.Int64Counter
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithFineRate sets the fine charged per day late, in minor units.
func WithFineRate(rate int64) EngineOption {
	return func(e *Engine) {
		if rate >= 0 {
			e.fines = domainsvcs.NewFineCalculator(rate)
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(log logger.Logger) EngineOption {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithReleaseScheduler sets where failed capacity releases are handed off.
func WithReleaseScheduler(s ReleaseScheduler) EngineOption {
	return func(e *Engine) { e.releases = s }
}

// WithBusyRetries bounds how many times a Busy ledger step is retried.
func WithBusyRetries(n int) EngineOption {
	return func(e *Engine) {
		if n >= 0 {
			e.busyRetries = uint(n)
		}
	}
}

// WithRetryBase sets the first backoff interval between retries.
func WithRetryBase(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.retryBase = d
		}
	}
}

// NewEngine returns an Engine wired to the given catalog, ledger and store.
func NewEngine(catalog repositories.Catalog, ledger repositories.Ledger, store repositories.ReservationStore, clk clock.Clock, opts ...EngineOption) *Engine {
	e := &Engine{
		catalog:          catalog,
		ledger:           ledger,
		store:            store,
		clock:            clk,
		fines:            domainsvcs.NewFineCalculator(domainsvcs.DefaultFineRatePerDay),
		log:              logger.NewWriter(io.Discard, "error"),
		busyRetries:      defaultBusyRetries,
		retryBase:        defaultRetryBase,
		detachedDeadline: defaultDetachedDeadline,
		tracer:           otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(e)
	}

	meter := otel.Meter(instrumentationName)
	// Instrument constructors return usable no-op instruments alongside any error.
	e.opened, _ = meter.Int64Counter("reservation.opened",
		metric.WithDescription("Open attempts by outcome"))
	e.closed, _ = meter.Int64Counter("reservation.closed",
		metric.WithDescription("Close and cancel attempts by outcome"))
	e.overflows, _ = meter.Int64Counter("reservation.capacity_overflow",
		metric.WithDescription("Releases rejected because capacity was already full"))
	e.handoffs, _ = meter.Int64Counter("reservation.release_handoff",
		metric.WithDescription("Capacity releases handed to the background workflow"))
	return e
}

// Open reserves one unit of itemID for userID for the given number of days.
func (e *Engine) Open(ctx context.Context, userID, itemID uuid.UUID, days int) (_ *models.Reservation, err error) {
	ctx, span := e.tracer.Start(ctx, "reservation.Open", trace.WithAttributes(
		attribute.String("user_id", userID.String()),
		attribute.String("item_id", itemID.String()),
	))
	defer func() { e.finishSpan(ctx, span, e.opened, err) }()

	duration, err := models.NewDuration(days)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidDuration, err)
	}

	item, err := e.catalog.Get(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}

	switch _, err := e.store.FindOpen(ctx, userID, itemID); {
	case err == nil:
		return nil, domain.ErrAlreadyReserved
	case !errors.Is(err, domain.ErrReservationNotFound):
		return nil, fmt.Errorf("find open reservation: %w", err)
	}

	r := models.NewReservation(userID, item, duration, e.clock.Now())

	if r.HoldsCapacity {
		if err := e.retryBusy(ctx, func() error { return e.ledger.TryDecrement(ctx, itemID) }); err != nil {
			if errors.Is(err, domain.ErrInsufficientCapacity) {
				return nil, domain.ErrOutOfStock
			}
			return nil, fmt.Errorf("take capacity: %w", err)
		}
	}

	if err := e.store.Insert(ctx, r); err != nil {
		return e.compensateOpen(ctx, r, err)
	}

	e.log.InfoContext(ctx, "reservation opened",
		"reservation_id", r.ID, "item_id", itemID, "user_id", userID, "due_at", r.DueAt)
	return r, nil
}

// compensateOpen undoes the capacity taken by Open after the insert failed.
// It runs detached from the caller so an abandoned request still gives the
// unit back.
func (e *Engine) compensateOpen(ctx context.Context, r *models.Reservation, insertErr error) (*models.Reservation, error) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.detachedDeadline)
	defer cancel()

	dup := errors.Is(insertErr, domain.ErrDuplicateOpenReservation)
	if !dup {
		// The insert may have committed before the error surfaced. Only a
		// confirmed absence gives the unit back.
		existing, err := e.store.FindByID(dctx, r.ID)
		switch {
		case err == nil:
			return existing, nil
		case !errors.Is(err, domain.ErrReservationNotFound):
			err = errors.Join(fmt.Errorf("insert reservation: %w", insertErr), fmt.Errorf("confirm insert: %w", err))
			e.alert(ctx, "open left in unknown state", err, r)
			return nil, err
		}
	}

	if r.HoldsCapacity {
		if err := e.release(dctx, r); err != nil {
			return nil, err
		}
	}

	if dup {
		return nil, domain.ErrAlreadyReserved
	}
	return nil, fmt.Errorf("insert reservation: %w", insertErr)
}

// Close returns a reservation, charging a fine when it is past due.
func (e *Engine) Close(ctx context.Context, userID, reservationID uuid.UUID) (*models.Reservation, error) {
	return e.closeByID(ctx, "reservation.Close", userID, reservationID, false)
}

// Cancel withdraws a reservation that has not been handed over yet. No fine is charged.
func (e *Engine) Cancel(ctx context.Context, userID, reservationID uuid.UUID) (*models.Reservation, error) {
	return e.closeByID(ctx, "reservation.Cancel", userID, reservationID, true)
}

// CloseByItem returns the user's open reservation on itemID.
func (e *Engine) CloseByItem(ctx context.Context, userID, itemID uuid.UUID) (_ *models.Reservation, err error) {
	ctx, span := e.tracer.Start(ctx, "reservation.CloseByItem", trace.WithAttributes(
		attribute.String("user_id", userID.String()),
		attribute.String("item_id", itemID.String()),
	))
	defer func() { e.finishSpan(ctx, span, e.closed, err) }()

	r, err := e.store.FindOpen(ctx, userID, itemID)
	if err != nil {
		return nil, fmt.Errorf("find open reservation: %w", err)
	}
	return e.finish(ctx, r, false)
}

func (e *Engine) closeByID(ctx context.Context, op string, userID, reservationID uuid.UUID, cancelled bool) (_ *models.Reservation, err error) {
	ctx, span := e.tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("user_id", userID.String()),
		attribute.String("reservation_id", reservationID.String()),
	))
	defer func() { e.finishSpan(ctx, span, e.closed, err) }()

	r, err := e.store.FindByID(ctx, reservationID)
	if err != nil {
		return nil, fmt.Errorf("find reservation: %w", err)
	}
	if r.UserID != userID {
		return nil, domain.ErrNotAuthorized
	}
	if !r.IsOpen() {
		return nil, domain.ErrAlreadyClosed
	}
	if cancelled && r.Stage != models.StagePending {
		return nil, domain.ErrNotCancellable
	}
	return e.finish(ctx, r, cancelled)
}

// finish marks r closed or cancelled and, if this call won the conditional
// write, gives its unit back to the ledger.
func (e *Engine) finish(ctx context.Context, r *models.Reservation, cancelled bool) (*models.Reservation, error) {
	now := e.clock.Now()
	var fine int64
	if !cancelled {
		fine = e.fines.Compute(r.DueAt, now)
	}

	closed, err := e.store.MarkClosed(ctx, r.ID, now, fine, cancelled)
	if err != nil {
		return nil, fmt.Errorf("mark closed: %w", err)
	}

	if closed.HoldsCapacity {
		// The record is final; the release must not be abandoned with the request.
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.detachedDeadline)
		defer cancel()
		if err := e.release(dctx, closed); err != nil {
			return nil, err
		}
	}

	e.log.InfoContext(ctx, "reservation closed",
		"reservation_id", closed.ID, "item_id", closed.ItemID, "user_id", closed.UserID,
		"status", closed.Status, "fine", fine)
	return closed, nil
}

// Activate moves an open reservation from pending to active. Staff only.
func (e *Engine) Activate(ctx context.Context, reservationID uuid.UUID) (_ *models.Reservation, err error) {
	ctx, span := e.tracer.Start(ctx, "reservation.Activate", trace.WithAttributes(
		attribute.String("reservation_id", reservationID.String()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	r, err := e.store.MarkActive(ctx, reservationID)
	if err != nil {
		return nil, fmt.Errorf("mark active: %w", err)
	}
	e.log.InfoContext(ctx, "reservation activated", "reservation_id", r.ID, "item_id", r.ItemID)
	return r, nil
}

// release gives one unit of r's item back to the ledger. Transient failures
// are retried; when they persist the release is handed to the scheduler. An
// overflow is never retried or corrected: it is alerted and surfaced as
// ErrCapacityOverflow.
func (e *Engine) release(ctx context.Context, r *models.Reservation) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := e.ledger.Increment(ctx, r.ItemID)
		if errors.Is(err, domain.ErrCapacityOverflow) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, e.retryOptions()...)
	if err == nil {
		return nil
	}

	if errors.Is(err, domain.ErrCapacityOverflow) {
		e.overflows.Add(ctx, 1, metric.WithAttributes(attribute.String("item_id", r.ItemID.String())))
		e.alert(ctx, "capacity overflow on release", err, r)
		return fmt.Errorf("release capacity: %w", domain.ErrCapacityOverflow)
	}

	if e.releases != nil {
		serr := e.releases.ScheduleRelease(ctx, r.ID, r.ItemID)
		if serr == nil {
			e.handoffs.Add(ctx, 1)
			e.log.WarnContext(ctx, "capacity release handed off",
				"reservation_id", r.ID, "item_id", r.ItemID, "error", err)
			return nil
		}
		err = errors.Join(err, fmt.Errorf("schedule release: %w", serr))
	}

	e.alert(ctx, "capacity release failed", err, r)
	return nil
}

// retryBusy runs fn, retrying only ErrBusy up to busyRetries more times.
func (e *Engine) retryBusy(ctx context.Context, fn func() error) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := fn()
		if err != nil && !errors.Is(err, domain.ErrBusy) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, e.retryOptions()...)
	return err
}

func (e *Engine) retryOptions() []backoff.RetryOption {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.retryBase
	b.MaxInterval = 20 * e.retryBase
	return []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(e.busyRetries + 1),
	}
}

func (e *Engine) alert(ctx context.Context, msg string, err error, r *models.Reservation) {
	logger.Critical(ctx, e.log, msg,
		"reservation_id", r.ID, "item_id", r.ItemID, "user_id", r.UserID, "error", err)
	telemetry.CaptureCritical(ctx, fmt.Errorf("%s: %w", msg, err), map[string]string{
		"reservation_id": r.ID.String(),
		"item_id":        r.ItemID.String(),
	})
}

func (e *Engine) finishSpan(ctx context.Context, span trace.Span, counter metric.Int64Counter, err error) {
	outcome := "ok"
	if err != nil {
		outcome = outcomeOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	counter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	span.End()
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, domain.ErrOutOfStock):
		return "out_of_stock"
	case errors.Is(err, domain.ErrAlreadyReserved):
		return "already_reserved"
	case errors.Is(err, domain.ErrAlreadyClosed):
		return "already_closed"
	case errors.Is(err, domain.ErrBusy):
		return "busy"
	case errors.Is(err, domain.ErrCapacityOverflow):
		return "capacity_overflow"
	default:
		return "error"
	}
}
