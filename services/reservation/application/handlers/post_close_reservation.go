package handlers

import (
	"net/http"

	"github.com/ghuser/campusreserve/pkg/errhttp"
	"github.com/ghuser/campusreserve/pkg/httpx"
	appsvcs "github.com/ghuser/campusreserve/services/reservation/application/services"
)

// PostCloseReservationHandler handles POST /reservations/{id}/close requests.
type PostCloseReservationHandler struct {
	svc *appsvcs.Services
}

// NewPostCloseReservationHandler returns a PostCloseReservationHandler backed by the given services.
func NewPostCloseReservationHandler(svc *appsvcs.Services) *PostCloseReservationHandler {
	return &PostCloseReservationHandler{svc: svc}
}

// Execute returns the reserved unit and charges any late fine.
//
//	@Summary	Close reservation
//	@Tags		reservations
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path		string	true	"Reservation ID"
//	@Success	200	{object}	ReservationResponse
//	@Failure	400	{object}	ErrorResponse
//	@Failure	403	{object}	ErrorResponse
//	@Failure	404	{object}	ErrorResponse
//	@Failure	409	{object}	ErrorResponse
//	@Router		/reservations/{id}/close [post]
func (h *PostCloseReservationHandler) Execute(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	res, err := h.svc.Engine.Close(r.Context(), userID, id)
	if err != nil {
		errhttp.WriteError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReservationResponse(res))
}
