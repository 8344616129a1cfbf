package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ghuser/campusreserve/pkg/auth"
	"github.com/ghuser/campusreserve/pkg/httpx"
	"github.com/ghuser/campusreserve/services/reservation/domain/models"
)

// ErrorResponse is returned on all error responses.
type ErrorResponse struct {
	Error string `json:"error" example:"item out of stock"`
} // @name ErrorResponse

// ReservationResponse is the public view of a reservation.
type ReservationResponse struct {
	ID           uuid.UUID  `json:"id"            example:"123e4567-e89b-12d3-a456-426614174000"`
	UserID       uuid.UUID  `json:"user_id"       example:"550e8400-e29b-41d4-a716-446655440000"`
	ItemID       uuid.UUID  `json:"item_id"       example:"0b6f3c9e-0000-4000-8000-000000000001"`
	Status       string     `json:"status"        example:"open"`
	Stage        string     `json:"stage"         example:"active"`
	DurationDays int        `json:"duration_days" example:"7"`
	Price        int64      `json:"price"         example:"0"`
	OpenedAt     time.Time  `json:"opened_at"     example:"2024-01-15T10:30:00Z"`
	DueAt        time.Time  `json:"due_at"        example:"2024-01-22T10:30:00Z"`
	ClosedAt     *time.Time `json:"closed_at"`
	Fine         *int64     `json:"fine"`
} // @name ReservationResponse

// ItemResponse is a catalog item with live availability.
type ItemResponse struct {
	ID                uuid.UUID `json:"id"                 example:"0b6f3c9e-0000-4000-8000-000000000001"`
	Name              string    `json:"name"               example:"Introduction to Algorithms"`
	Kind              string    `json:"kind"               example:"book"`
	TotalCapacity     int       `json:"total_capacity"     example:"3"`
	AvailableCapacity int       `json:"available_capacity" example:"2"`
	Unlimited         bool      `json:"unlimited"          example:"false"`
	PricePerUnit      int64     `json:"price_per_unit"     example:"0"`
} // @name ItemResponse

// FineSummaryResponse totals the fines charged to the caller.
type FineSummaryResponse struct {
	Total       int64 `json:"total"        example:"1500"`
	LateReturns int   `json:"late_returns" example:"1"`
} // @name FineSummaryResponse

func toReservationResponse(r *models.Reservation) ReservationResponse {
	return ReservationResponse{
		ID:           r.ID,
		UserID:       r.UserID,
		ItemID:       r.ItemID,
		Status:       string(r.Status),
		Stage:        string(r.Stage),
		DurationDays: r.DurationDays,
		Price:        r.Price,
		OpenedAt:     r.OpenedAt,
		DueAt:        r.DueAt,
		ClosedAt:     r.ClosedAt,
		Fine:         r.Fine,
	}
}

func toItemResponse(it *models.Item) ItemResponse {
	return ItemResponse{
		ID:                it.ID,
		Name:              it.Name,
		Kind:              string(it.Kind),
		TotalCapacity:     it.TotalCapacity,
		AvailableCapacity: it.AvailableCapacity,
		Unlimited:         it.Unlimited,
		PricePerUnit:      it.PricePerUnit,
	}
}

// currentUser writes 401 and returns false when the request is unauthenticated.
func currentUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, err := auth.UserIDFromCtx(r.Context())
	if err != nil {
		httpx.JSON(w, http.StatusUnauthorized, ErrorResponse{Error: "authentication required"})
		return uuid.Nil, false
	}
	return userID, true
}

// pathID parses a UUID route parameter, writing 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		httpx.JSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}
