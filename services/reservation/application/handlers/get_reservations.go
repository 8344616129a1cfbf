package handlers

import (
	"net/http"

	"github.com/ghuser/campusreserve/pkg/errhttp"
	"github.com/ghuser/campusreserve/pkg/httpx"
	appsvcs "github.com/ghuser/campusreserve/services/reservation/application/services"
)

// GetReservationsHandler handles GET /reservations requests.
type GetReservationsHandler struct {
	svc *appsvcs.Services
}

// NewGetReservationsHandler returns a GetReservationsHandler backed by the given services.
func NewGetReservationsHandler(svc *appsvcs.Services) *GetReservationsHandler {
	return &GetReservationsHandler{svc: svc}
}

// Execute lists the caller's open reservations, most recent first.
//
//	@Summary	List open reservations
//	@Tags		reservations
//	@Produce	json
//	@Security	BearerAuth
//	@Success	200	{array}		ReservationResponse
//	@Failure	401	{object}	ErrorResponse
//	@Router		/reservations [get]
func (h *GetReservationsHandler) Execute(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	list, err := h.svc.Query.ListOpenByUser(r.Context(), userID)
	if err != nil {
		errhttp.WriteError(w, err)
		return
	}

	out := make([]ReservationResponse, 0, len(list))
	for _, res := range list {
		out = append(out, toReservationResponse(res))
	}
	httpx.JSON(w, http.StatusOK, out)
}
