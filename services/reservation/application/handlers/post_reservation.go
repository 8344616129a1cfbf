package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/ghuser/campusreserve/pkg/errhttp"
	"github.com/ghuser/campusreserve/pkg/httpx"
	pkgvalidator "github.com/ghuser/campusreserve/pkg/validator"
	appsvcs "github.com/ghuser/campusreserve/services/reservation/application/services"
)

// OpenReservationRequest is the request body for POST /reservations.
type OpenReservationRequest struct {
	ItemID       string `json:"item_id"       validate:"required,uuid" example:"0b6f3c9e-0000-4000-8000-000000000001"`
	DurationDays int    `json:"duration_days" validate:"required,gte=1,lte=30" example:"7"`
} // @name OpenReservationRequest

// PostReservationHandler handles POST /reservations requests.
type PostReservationHandler struct {
	svc *appsvcs.Services
}

// NewPostReservationHandler returns a PostReservationHandler backed by the given services.
func NewPostReservationHandler(svc *appsvcs.Services) *PostReservationHandler {
	return &PostReservationHandler{svc: svc}
}

// Execute reserves one unit of an item for the caller.
//
//	@Summary		Open reservation
//	@Description	Takes one unit of the item's capacity for the given number of days
//	@Tags			reservations
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		OpenReservationRequest	true	"Reservation request"
//	@Success		201		{object}	ReservationResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		401		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Failure		413		{object}	ErrorResponse
//	@Failure		422		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/reservations [post]
func (h *PostReservationHandler) Execute(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	req, ok := pkgvalidator.ValidateRequest[OpenReservationRequest](w, r)
	if !ok {
		return
	}

	res, err := h.svc.Engine.Open(r.Context(), userID, uuid.MustParse(req.ItemID), req.DurationDays)
	if err != nil {
		errhttp.WriteError(w, err)
		return
	}

	httpx.JSON(w, http.StatusCreated, toReservationResponse(res))
}
