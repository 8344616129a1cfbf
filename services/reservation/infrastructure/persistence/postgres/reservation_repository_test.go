package postgres_test

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghuser/campusreserve/pkg/database"
	"github.com/ghuser/campusreserve/services/reservation/domain"
	"github.com/ghuser/campusreserve/services/reservation/domain/models"
	"github.com/ghuser/campusreserve/services/reservation/infrastructure/persistence/postgres"
)

var reservationCols = []string{"id", "user_id", "item_id", "status", "stage", "holds_capacity", "duration_days", "price", "opened_at", "due_at", "closed_at", "fine"}

func newReservationRepo(t *testing.T) (*postgres.ReservationRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return postgres.NewReservationRepository(database.New(db), nil), mock
}

func sampleReservation() *models.Reservation {
	item := &models.Item{ID: uuid.New(), Kind: models.KindBook, TotalCapacity: 3, PricePerUnit: 0}
	d, _ := models.NewDuration(14)
	return models.NewReservation(uuid.New(), item, d, time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC))
}

func TestReservationRepository_Insert(t *testing.T) {
	ctx := context.Background()
	r := sampleReservation()
	args := []driver.Value{r.ID, r.UserID, r.ItemID, "open", "active", true, 14, int64(0), r.OpenedAt, r.DueAt}

	t.Run("Success", func(t *testing.T) {
		repo, mock := newReservationRepo(t)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO reservations").WithArgs(args...).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		assert.NoError(t, repo.Insert(ctx, r))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DuplicateOpenReservation", func(t *testing.T) {
		repo, mock := newReservationRepo(t)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO reservations").WithArgs(args...).
			WillReturnError(&pgconn.PgError{Code: database.CodeUniqueViolation, ConstraintName: "reservations_one_open_per_user_item"})
		mock.ExpectRollback()

		assert.ErrorIs(t, repo.Insert(ctx, r), domain.ErrDuplicateOpenReservation)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("OtherUniqueViolationIsNotDuplicate", func(t *testing.T) {
		repo, mock := newReservationRepo(t)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO reservations").WithArgs(args...).
			WillReturnError(&pgconn.PgError{Code: database.CodeUniqueViolation, ConstraintName: "reservations_pkey"})
		mock.ExpectRollback()

		err := repo.Insert(ctx, r)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrDuplicateOpenReservation)
	})
}

func TestReservationRepository_FindByID(t *testing.T) {
	ctx := context.Background()
	r := sampleReservation()
	closedAt := r.DueAt.Add(48 * time.Hour)

	t.Run("ClosedWithFine", func(t *testing.T) {
		repo, mock := newReservationRepo(t)
		mock.ExpectQuery("SELECT (.+) FROM reservations WHERE id = \\$1").
			WithArgs(r.ID).
			WillReturnRows(sqlmock.NewRows(reservationCols).AddRow(
				r.ID.String(), r.UserID.String(), r.ItemID.String(), "closed", "active", true, 14, int64(0),
				r.OpenedAt, r.DueAt, closedAt, int64(1000)))

		got, err := repo.FindByID(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusClosed, got.Status)
		require.NotNil(t, got.Fine)
		assert.Equal(t, int64(1000), *got.Fine)
		require.NotNil(t, got.ClosedAt)
		assert.True(t, got.ClosedAt.Equal(closedAt))
	})

	t.Run("NotFound", func(t *testing.T) {
		repo, mock := newReservationRepo(t)
		mock.ExpectQuery("SELECT (.+) FROM reservations WHERE id = \\$1").
			WithArgs(r.ID).
			WillReturnRows(sqlmock.NewRows(reservationCols))

		_, err := repo.FindByID(ctx, r.ID)
		assert.ErrorIs(t, err, domain.ErrReservationNotFound)
	})
}

func TestReservationRepository_ListOpenByUser(t *testing.T) {
	repo, mock := newReservationRepo(t)
	user := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM reservations\\s+WHERE user_id = \\$1 AND status = 'open'\\s+ORDER BY opened_at DESC").
		WithArgs(user).
		WillReturnRows(sqlmock.NewRows(reservationCols).
			AddRow(uuid.NewString(), user.String(), uuid.NewString(), "open", "pending", true, 3, int64(30000), now, now.Add(72*time.Hour), nil, nil).
			AddRow(uuid.NewString(), user.String(), uuid.NewString(), "open", "active", true, 14, int64(0), now.Add(-time.Hour), now.Add(13*24*time.Hour), nil, nil))

	list, err := repo.ListOpenByUser(context.Background(), user)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Nil(t, list[0].Fine)
	assert.Equal(t, models.StagePending, list[0].Stage)
}

func TestReservationRepository_MarkClosed(t *testing.T) {
	ctx := context.Background()
	r := sampleReservation()
	closedAt := r.DueAt.Add(3 * 24 * time.Hour)

	t.Run("Success", func(t *testing.T) {
		repo, mock := newReservationRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE reservations SET status").
			WithArgs(r.ID, "closed", closedAt, int64(1500), false).
			WillReturnRows(sqlmock.NewRows(reservationCols).AddRow(
				r.ID.String(), r.UserID.String(), r.ItemID.String(), "closed", "active", true, 14, int64(0),
				r.OpenedAt, r.DueAt, closedAt, int64(1500)))
		mock.ExpectCommit()

		got, err := repo.MarkClosed(ctx, r.ID, closedAt, 1500, false)
		require.NoError(t, err)
		assert.Equal(t, models.StatusClosed, got.Status)
		assert.Equal(t, int64(1500), *got.Fine)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("AlreadyClosed", func(t *testing.T) {
		repo, mock := newReservationRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE reservations SET status").
			WithArgs(r.ID, "closed", closedAt, int64(1500), false).
			WillReturnRows(sqlmock.NewRows(reservationCols))
		mock.ExpectQuery("SELECT status, stage FROM reservations").
			WithArgs(r.ID).
			WillReturnRows(sqlmock.NewRows([]string{"status", "stage"}).AddRow("closed", "active"))
		mock.ExpectRollback()

		_, err := repo.MarkClosed(ctx, r.ID, closedAt, 1500, false)
		assert.ErrorIs(t, err, domain.ErrAlreadyClosed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("CancelPastPending", func(t *testing.T) {
		repo, mock := newReservationRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE reservations SET status").
			WithArgs(r.ID, "cancelled", closedAt, int64(0), true).
			WillReturnRows(sqlmock.NewRows(reservationCols))
		mock.ExpectQuery("SELECT status, stage FROM reservations").
			WithArgs(r.ID).
			WillReturnRows(sqlmock.NewRows([]string{"status", "stage"}).AddRow("open", "active"))
		mock.ExpectRollback()

		_, err := repo.MarkClosed(ctx, r.ID, closedAt, 0, true)
		assert.ErrorIs(t, err, domain.ErrNotCancellable)
	})

	t.Run("NotFound", func(t *testing.T) {
		repo, mock := newReservationRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE reservations SET status").
			WillReturnRows(sqlmock.NewRows(reservationCols))
		mock.ExpectQuery("SELECT status, stage FROM reservations").
			WithArgs(r.ID).
			WillReturnRows(sqlmock.NewRows([]string{"status", "stage"}))
		mock.ExpectRollback()

		_, err := repo.MarkClosed(ctx, r.ID, closedAt, 0, false)
		assert.ErrorIs(t, err, domain.ErrReservationNotFound)
	})
}

func TestReservationRepository_MarkActive(t *testing.T) {
	repo, mock := newReservationRepo(t)
	r := sampleReservation()

	mock.ExpectQuery("UPDATE reservations SET stage = 'active'").
		WithArgs(r.ID).
		WillReturnRows(sqlmock.NewRows(reservationCols))
	mock.ExpectQuery("SELECT status, stage FROM reservations").
		WithArgs(r.ID).
		WillReturnRows(sqlmock.NewRows([]string{"status", "stage"}).AddRow("cancelled", "pending"))

	_, err := repo.MarkActive(context.Background(), r.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyClosed)
}

func TestReservationRepository_FineTotals(t *testing.T) {
	repo, mock := newReservationRepo(t)
	user := uuid.New()

	mock.ExpectQuery("SELECT COALESCE\\(SUM\\(fine\\), 0\\)").
		WithArgs(user).
		WillReturnRows(sqlmock.NewRows([]string{"sum", "count"}).AddRow(int64(2500), 2))

	sum, err := repo.FineTotals(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, models.FineSummary{Total: 2500, LateReturns: 2}, sum)
}

func TestReservationRepository_HeldCount(t *testing.T) {
	repo, mock := newReservationRepo(t)
	item := uuid.New()

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM reservations").
		WithArgs(item).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := repo.HeldCount(context.Background(), item)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
