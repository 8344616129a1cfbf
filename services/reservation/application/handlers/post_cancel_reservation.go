package handlers

import (
	"net/http"

	"github.com/ghuser/campusreserve/pkg/errhttp"
	"github.com/ghuser/campusreserve/pkg/httpx"
	appsvcs "github.com/ghuser/campusreserve/services/reservation/application/services"
)

// PostCancelReservationHandler handles POST /reservations/{id}/cancel requests.
type PostCancelReservationHandler struct {
	svc *appsvcs.Services
}

// NewPostCancelReservationHandler returns a PostCancelReservationHandler backed by the given services.
func NewPostCancelReservationHandler(svc *appsvcs.Services) *PostCancelReservationHandler {
	return &PostCancelReservationHandler{svc: svc}
}

// Execute withdraws a reservation that has not been handed over yet.
//
//	@Summary		Cancel reservation
//	@Description	Only pending reservations can be cancelled; no fine is charged
//	@Tags			reservations
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Reservation ID"
//	@Success		200	{object}	ReservationResponse
//	@Failure		400	{object}	ErrorResponse
//	@Failure		403	{object}	ErrorResponse
//	@Failure		404	{object}	ErrorResponse
//	@Failure		409	{object}	ErrorResponse
//	@Router			/reservations/{id}/cancel [post]
func (h *PostCancelReservationHandler) Execute(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	res, err := h.svc.Engine.Cancel(r.Context(), userID, id)
	if err != nil {
		errhttp.WriteError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReservationResponse(res))
}
