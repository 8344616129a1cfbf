package handlers

import (
	"net/http"

	"github.com/ghuser/campusreserve/pkg/errhttp"
	"github.com/ghuser/campusreserve/pkg/httpx"
	appsvcs "github.com/ghuser/campusreserve/services/reservation/application/services"
)

// GetReservationHandler handles GET /reservations/{id} requests.
type GetReservationHandler struct {
	svc *appsvcs.Services
}

// NewGetReservationHandler returns a GetReservationHandler backed by the given services.
func NewGetReservationHandler(svc *appsvcs.Services) *GetReservationHandler {
	return &GetReservationHandler{svc: svc}
}

// Execute returns one of the caller's reservations.
//
//	@Summary	Get reservation
//	@Tags		reservations
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path		string	true	"Reservation ID"
//	@Success	200	{object}	ReservationResponse
//	@Failure	400	{object}	ErrorResponse
//	@Failure	403	{object}	ErrorResponse
//	@Failure	404	{object}	ErrorResponse
//	@Router		/reservations/{id} [get]
func (h *GetReservationHandler) Execute(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	res, err := h.svc.Query.Get(r.Context(), userID, id)
	if err != nil {
		errhttp.WriteError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReservationResponse(res))
}
