package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ghuser/campusreserve/services/reservation/domain"
	"github.com/ghuser/campusreserve/services/reservation/domain/models"
)

func openReservation(kind models.Kind, userID uuid.UUID, openedAt time.Time) *models.Reservation {
	item, _ := models.NewItem("Item", kind, 2, 100)
	d, _ := models.NewDuration(7)
	return models.NewReservation(userID, item, d, openedAt)
}

func TestStore_InsertRejectsSecondOpenReservation(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	r := openReservation(models.KindBook, uuid.New(), time.Now().UTC())

	if err := s.Insert(ctx, r); err != nil {
		t.Fatalf("insert: %v", err)
	}
	dup := *r
	dup.ID = uuid.New()
	if err := s.Insert(ctx, &dup); !errors.Is(err, domain.ErrDuplicateOpenReservation) {
		t.Fatalf("expected ErrDuplicateOpenReservation, got %v", err)
	}

	found, err := s.FindOpen(ctx, r.UserID, r.ItemID)
	if err != nil || found.ID != r.ID {
		t.Fatalf("FindOpen() = %v, %v", found, err)
	}
}

func TestStore_MarkClosed(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)

	t.Run("closes once then reports already closed", func(t *testing.T) {
		s := NewStore()
		r := openReservation(models.KindBook, uuid.New(), now)
		_ = s.Insert(ctx, r)

		closed, err := s.MarkClosed(ctx, r.ID, now.Add(time.Hour), 0, false)
		if err != nil {
			t.Fatalf("MarkClosed: %v", err)
		}
		if closed.Status != models.StatusClosed || closed.Fine == nil || *closed.Fine != 0 {
			t.Fatalf("unexpected closed reservation: %+v", closed)
		}
		if _, err := s.MarkClosed(ctx, r.ID, now.Add(2*time.Hour), 500, false); !errors.Is(err, domain.ErrAlreadyClosed) {
			t.Fatalf("expected ErrAlreadyClosed, got %v", err)
		}
		if _, err := s.FindOpen(ctx, r.UserID, r.ItemID); !errors.Is(err, domain.ErrReservationNotFound) {
			t.Fatalf("closed reservation must leave the open index, got %v", err)
		}
		again, _ := s.FindByID(ctx, r.ID)
		if *again.Fine != 0 {
			t.Fatal("closed reservation was modified")
		}
	})

	t.Run("cancel only while pending", func(t *testing.T) {
		s := NewStore()
		book := openReservation(models.KindBook, uuid.New(), now)
		_ = s.Insert(ctx, book)
		if _, err := s.MarkClosed(ctx, book.ID, now, 0, true); !errors.Is(err, domain.ErrNotCancellable) {
			t.Fatalf("expected ErrNotCancellable for active book, got %v", err)
		}

		order := openReservation(models.KindMenu, uuid.New(), now)
		_ = s.Insert(ctx, order)
		cancelled, err := s.MarkClosed(ctx, order.ID, now, 0, true)
		if err != nil {
			t.Fatalf("cancel pending order: %v", err)
		}
		if cancelled.Status != models.StatusCancelled {
			t.Fatalf("expected cancelled, got %q", cancelled.Status)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		s := NewStore()
		if _, err := s.MarkClosed(ctx, uuid.New(), now, 0, false); !errors.Is(err, domain.ErrReservationNotFound) {
			t.Fatalf("expected ErrReservationNotFound, got %v", err)
		}
	})
}

func TestStore_ListOpenByUser_MostRecentFirst(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	user := uuid.New()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	older := openReservation(models.KindBook, user, base)
	newer := openReservation(models.KindEquipment, user, base.Add(time.Hour))
	other := openReservation(models.KindBook, uuid.New(), base.Add(2*time.Hour))
	for _, r := range []*models.Reservation{older, newer, other} {
		_ = s.Insert(ctx, r)
	}

	list, err := s.ListOpenByUser(ctx, user)
	if err != nil {
		t.Fatalf("ListOpenByUser: %v", err)
	}
	if len(list) != 2 || list[0].ID != newer.ID || list[1].ID != older.ID {
		t.Fatalf("unexpected order: %+v", list)
	}
}

func TestStore_FineTotals(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	user := uuid.New()
	now := time.Now().UTC()

	late := openReservation(models.KindBook, user, now)
	onTime := openReservation(models.KindEquipment, user, now)
	_ = s.Insert(ctx, late)
	_ = s.Insert(ctx, onTime)
	_, _ = s.MarkClosed(ctx, late.ID, now, 1500, false)
	_, _ = s.MarkClosed(ctx, onTime.ID, now, 0, false)

	sum, err := s.FineTotals(ctx, user)
	if err != nil {
		t.Fatalf("FineTotals: %v", err)
	}
	if sum.Total != 1500 || sum.LateReturns != 1 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
}
