package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ghuser/campusreserve/pkg/database"
	"github.com/ghuser/campusreserve/pkg/events"
	"github.com/ghuser/campusreserve/services/reservation/domain"
	domainevents "github.com/ghuser/campusreserve/services/reservation/domain/events"
	"github.com/ghuser/campusreserve/services/reservation/domain/models"
)

const (
	reservationColumns = `id, user_id, item_id, status, stage, holds_capacity, duration_days, price, opened_at, due_at, closed_at, fine`

	insertReservationSQL = `INSERT INTO reservations (` + reservationColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULL, NULL)`

	findOpenSQL = `SELECT ` + reservationColumns + ` FROM reservations
WHERE user_id = $1 AND item_id = $2 AND status = 'open'`

	findByIDSQL = `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`

	listOpenByUserSQL = `SELECT ` + reservationColumns + ` FROM reservations
WHERE user_id = $1 AND status = 'open'
ORDER BY opened_at DESC`

	markClosedSQL = `UPDATE reservations SET status = $2, closed_at = $3, fine = $4
WHERE id = $1 AND status = 'open' AND (NOT $5::boolean OR stage = 'pending')
RETURNING ` + reservationColumns

	markActiveSQL = `UPDATE reservations SET stage = 'active'
WHERE id = $1 AND status = 'open'
RETURNING ` + reservationColumns

	reservationStateSQL = `SELECT status, stage FROM reservations WHERE id = $1`

	fineTotalsSQL = `SELECT COALESCE(SUM(fine), 0), COUNT(*) FILTER (WHERE fine > 0)
FROM reservations
WHERE user_id = $1 AND status <> 'open'`

	heldCountSQL = `SELECT COUNT(*) FROM reservations
WHERE item_id = $1 AND status = 'open' AND holds_capacity`

	openReservationConstraint = "reservations_one_open_per_user_item"
)

// ReservationRepository implements repositories.ReservationStore against PostgreSQL.
// State changes publish domain events in the same transaction (outbox).
type ReservationRepository struct {
	db  *database.Database
	bus *events.EventBus
}

// NewReservationRepository returns a ReservationRepository. bus may be nil, in
// which case no events are published.
func NewReservationRepository(db *database.Database, bus *events.EventBus) *ReservationRepository {
	return &ReservationRepository{db: db, bus: bus}
}

// Insert stores a new open reservation and publishes ReservationOpenedEvent.
// The partial unique index turns a concurrent second checkout into
// ErrDuplicateOpenReservation.
func (r *ReservationRepository) Insert(ctx context.Context, res *models.Reservation) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, insertReservationSQL,
			res.ID,
			res.UserID,
			res.ItemID,
			string(res.Status),
			string(res.Stage),
			res.HoldsCapacity,
			res.DurationDays,
			res.Price,
			res.OpenedAt,
			res.DueAt,
		); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == database.CodeUniqueViolation && pgErr.ConstraintName == openReservationConstraint {
				return domain.ErrDuplicateOpenReservation
			}
			return fmt.Errorf("insert reservation: %w", err)
		}

		if r.bus != nil {
			evt := domainevents.ReservationOpenedEvent{
				EventID:       uuid.New(),
				Version:       1,
				ReservationID: res.ID,
				UserID:        res.UserID,
				ItemID:        res.ItemID,
				HoldsCapacity: res.HoldsCapacity,
				DueAt:         res.DueAt,
				OccurredAt:    res.OpenedAt,
			}
			if err := r.publish(ctx, tx, domainevents.TopicReservationOpened, evt.EventID, evt); err != nil {
				return fmt.Errorf("publish reservation opened: %w", err)
			}
		}
		return nil
	})
}

// FindOpen returns the user's open reservation on itemID.
func (r *ReservationRepository) FindOpen(ctx context.Context, userID, itemID uuid.UUID) (*models.Reservation, error) {
	res, err := scanReservation(r.db.DB().QueryRowContext(ctx, findOpenSQL, userID, itemID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrReservationNotFound
		}
		return nil, fmt.Errorf("query open reservation: %w", err)
	}
	return res, nil
}

// FindByID returns ErrReservationNotFound if no reservation has the id.
func (r *ReservationRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	res, err := scanReservation(r.db.DB().QueryRowContext(ctx, findByIDSQL, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrReservationNotFound
		}
		return nil, fmt.Errorf("query reservation: %w", err)
	}
	return res, nil
}

// ListOpenByUser returns the user's open reservations, newest first.
func (r *ReservationRepository) ListOpenByUser(ctx context.Context, userID uuid.UUID) ([]*models.Reservation, error) {
	rows, err := r.db.DB().QueryContext(ctx, listOpenByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("query open reservations: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	list := make([]*models.Reservation, 0)
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		list = append(list, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reservations: %w", err)
	}
	return list, nil
}

// MarkClosed closes or cancels an open reservation with a single conditional
// UPDATE and publishes ReservationClosedEvent in the same transaction.
func (r *ReservationRepository) MarkClosed(ctx context.Context, id uuid.UUID, closedAt time.Time, fine int64, cancelled bool) (*models.Reservation, error) {
	status := models.StatusClosed
	topic := domainevents.TopicReservationClosed
	if cancelled {
		status = models.StatusCancelled
		topic = domainevents.TopicReservationCancelled
	}

	var out *models.Reservation
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := scanReservation(tx.QueryRowContext(ctx, markClosedSQL, id, string(status), closedAt, fine, cancelled))
		if errors.Is(err, sql.ErrNoRows) {
			return r.explainNoUpdate(ctx, tx, id)
		}
		if err != nil {
			return fmt.Errorf("mark reservation closed: %w", err)
		}

		if r.bus != nil {
			evt := domainevents.ReservationClosedEvent{
				EventID:       uuid.New(),
				Version:       1,
				ReservationID: res.ID,
				UserID:        res.UserID,
				ItemID:        res.ItemID,
				Cancelled:     cancelled,
				Fine:          fine,
				ClosedAt:      closedAt,
				OccurredAt:    closedAt,
			}
			if err := r.publish(ctx, tx, topic, evt.EventID, evt); err != nil {
				return fmt.Errorf("publish reservation closed: %w", err)
			}
		}
		out = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MarkActive moves an open reservation to the active stage.
func (r *ReservationRepository) MarkActive(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	res, err := scanReservation(r.db.DB().QueryRowContext(ctx, markActiveSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.explainNoUpdate(ctx, r.db.DB(), id)
	}
	if err != nil {
		return nil, fmt.Errorf("mark reservation active: %w", err)
	}
	return res, nil
}

// FineTotals sums the fines charged on the user's finished reservations.
func (r *ReservationRepository) FineTotals(ctx context.Context, userID uuid.UUID) (models.FineSummary, error) {
	var sum models.FineSummary
	if err := r.db.DB().QueryRowContext(ctx, fineTotalsSQL, userID).Scan(&sum.Total, &sum.LateReturns); err != nil {
		return models.FineSummary{}, fmt.Errorf("query fine totals: %w", err)
	}
	return sum, nil
}

// HeldCount counts the open reservations on itemID that hold a unit of capacity.
func (r *ReservationRepository) HeldCount(ctx context.Context, itemID uuid.UUID) (int, error) {
	var n int
	if err := r.db.DB().QueryRowContext(ctx, heldCountSQL, itemID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count held reservations: %w", err)
	}
	return n, nil
}

// explainNoUpdate maps a conditional UPDATE that matched no row to the domain
// error describing why.
func (r *ReservationRepository) explainNoUpdate(ctx context.Context, q database.Querier, id uuid.UUID) error {
	var status, stage string
	if err := q.QueryRowContext(ctx, reservationStateSQL, id).Scan(&status, &stage); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrReservationNotFound
		}
		return fmt.Errorf("query reservation state: %w", err)
	}
	if models.Status(status) != models.StatusOpen {
		return domain.ErrAlreadyClosed
	}
	return domain.ErrNotCancellable
}

func (r *ReservationRepository) publish(ctx context.Context, tx *sql.Tx, topic string, eventID uuid.UUID, event any) error {
	msg, err := events.NewEventMessage(ctx, eventID, 1, event)
	if err != nil {
		return err
	}
	p, err := r.bus.NewTxPublisher(tx)
	if err != nil {
		return fmt.Errorf("create publisher: %w", err)
	}
	return p.Publish(topic, msg)
}

func scanReservation(row rowScanner) (*models.Reservation, error) {
	var (
		res           models.Reservation
		status, stage string
		closedAt      sql.NullTime
		fine          sql.NullInt64
	)
	if err := row.Scan(
		&res.ID,
		&res.UserID,
		&res.ItemID,
		&status,
		&stage,
		&res.HoldsCapacity,
		&res.DurationDays,
		&res.Price,
		&res.OpenedAt,
		&res.DueAt,
		&closedAt,
		&fine,
	); err != nil {
		return nil, err
	}
	res.Status = models.Status(status)
	res.Stage = models.Stage(stage)
	if closedAt.Valid {
		t := closedAt.Time
		res.ClosedAt = &t
	}
	if fine.Valid {
		f := fine.Int64
		res.Fine = &f
	}
	return &res, nil
}
