package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ghuser/campusreserve/services/reservation/domain"
	"github.com/ghuser/campusreserve/services/reservation/domain/models"
)

type openKey struct {
	userID uuid.UUID
	itemID uuid.UUID
}

// Store keeps reservations in memory. The open index plays the role of the
// unique (user_id, item_id) WHERE status = 'open' constraint.
type Store struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*models.Reservation
	open map[openKey]uuid.UUID
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		byID: make(map[uuid.UUID]*models.Reservation),
		open: make(map[openKey]uuid.UUID),
	}
}

func (s *Store) Insert(_ context.Context, r *models.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := openKey{r.UserID, r.ItemID}
	if _, exists := s.open[key]; exists {
		return domain.ErrDuplicateOpenReservation
	}
	s.byID[r.ID] = r.Clone()
	s.open[key] = r.ID
	return nil
}

func (s *Store) FindOpen(_ context.Context, userID, itemID uuid.UUID) (*models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.open[openKey{userID, itemID}]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}
	return s.byID[id].Clone(), nil
}

func (s *Store) FindByID(_ context.Context, id uuid.UUID) (*models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}
	return r.Clone(), nil
}

func (s *Store) ListOpenByUser(_ context.Context, userID uuid.UUID) ([]*models.Reservation, error) {
	s.mu.Lock()
	out := make([]*models.Reservation, 0)
	for key, id := range s.open {
		if key.userID == userID {
			out = append(out, s.byID[id].Clone())
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.After(out[j].OpenedAt) })
	return out, nil
}

func (s *Store) MarkClosed(_ context.Context, id uuid.UUID, closedAt time.Time, fine int64, cancelled bool) (*models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}
	if !r.IsOpen() {
		return nil, domain.ErrAlreadyClosed
	}
	if cancelled && r.Stage != models.StagePending {
		return nil, domain.ErrNotCancellable
	}

	r.Status = models.StatusClosed
	if cancelled {
		r.Status = models.StatusCancelled
	}
	r.ClosedAt = &closedAt
	r.Fine = &fine
	delete(s.open, openKey{r.UserID, r.ItemID})
	return r.Clone(), nil
}

func (s *Store) MarkActive(_ context.Context, id uuid.UUID) (*models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}
	if !r.IsOpen() {
		return nil, domain.ErrAlreadyClosed
	}
	r.Stage = models.StageActive
	return r.Clone(), nil
}

func (s *Store) FineTotals(_ context.Context, userID uuid.UUID) (models.FineSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sum models.FineSummary
	for _, r := range s.byID {
		if r.UserID != userID || r.Fine == nil || *r.Fine == 0 {
			continue
		}
		sum.Total += *r.Fine
		sum.LateReturns++
	}
	return sum, nil
}

// HeldCount is OpenCount behind the context-taking signature the Redis
// ledger seeds from.
func (s *Store) HeldCount(_ context.Context, itemID uuid.UUID) (int, error) {
	return s.OpenCount(itemID), nil
}

// OpenCount returns the number of open reservations holding capacity on itemID.
func (s *Store) OpenCount(itemID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key, id := range s.open {
		if key.itemID == itemID && s.byID[id].HoldsCapacity {
			n++
		}
	}
	return n
}
