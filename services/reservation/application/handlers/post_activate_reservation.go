package handlers

import (
	"net/http"

	"github.com/ghuser/campusreserve/pkg/errhttp"
	"github.com/ghuser/campusreserve/pkg/httpx"
	appsvcs "github.com/ghuser/campusreserve/services/reservation/application/services"
)

// PostActivateReservationHandler handles POST /reservations/{id}/activate requests.
type PostActivateReservationHandler struct {
	svc *appsvcs.Services
}

// NewPostActivateReservationHandler returns a PostActivateReservationHandler backed by the given services.
func NewPostActivateReservationHandler(svc *appsvcs.Services) *PostActivateReservationHandler {
	return &PostActivateReservationHandler{svc: svc}
}

// Execute records that staff handed the reserved unit over.
//
//	@Summary	Activate reservation
//	@Tags		staff
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path		string	true	"Reservation ID"
//	@Success	200	{object}	ReservationResponse
//	@Failure	400	{object}	ErrorResponse
//	@Failure	403	{object}	ErrorResponse
//	@Failure	404	{object}	ErrorResponse
//	@Failure	409	{object}	ErrorResponse
//	@Router		/reservations/{id}/activate [post]
func (h *PostActivateReservationHandler) Execute(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	res, err := h.svc.Engine.Activate(r.Context(), id)
	if err != nil {
		errhttp.WriteError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReservationResponse(res))
}
