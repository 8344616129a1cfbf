package handlers

import (
	"net/http"

	"github.com/ghuser/campusreserve/pkg/errhttp"
	"github.com/ghuser/campusreserve/pkg/httpx"
	appsvcs "github.com/ghuser/campusreserve/services/reservation/application/services"
)

// DeleteItemReservationHandler handles DELETE /items/{itemID}/reservation requests.
type DeleteItemReservationHandler struct {
	svc *appsvcs.Services
}

// NewDeleteItemReservationHandler returns a DeleteItemReservationHandler backed by the given services.
func NewDeleteItemReservationHandler(svc *appsvcs.Services) *DeleteItemReservationHandler {
	return &DeleteItemReservationHandler{svc: svc}
}

// Execute closes the caller's open reservation on the item.
//
//	@Summary	Return item
//	@Tags		reservations
//	@Produce	json
//	@Security	BearerAuth
//	@Param		itemID	path		string	true	"Item ID"
//	@Success	200		{object}	ReservationResponse
//	@Failure	400		{object}	ErrorResponse
//	@Failure	404		{object}	ErrorResponse
//	@Failure	409		{object}	ErrorResponse
//	@Router		/items/{itemID}/reservation [delete]
func (h *DeleteItemReservationHandler) Execute(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	itemID, ok := pathID(w, r, "itemID")
	if !ok {
		return
	}

	res, err := h.svc.Engine.CloseByItem(r.Context(), userID, itemID)
	if err != nil {
		errhttp.WriteError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReservationResponse(res))
}
