package handlers

import (
	"net/http"

	"github.com/ghuser/campusreserve/pkg/errhttp"
	"github.com/ghuser/campusreserve/pkg/httpx"
	appsvcs "github.com/ghuser/campusreserve/services/reservation/application/services"
)

// GetFinesHandler handles GET /reservations/fines requests.
type GetFinesHandler struct {
	svc *appsvcs.Services
}

// NewGetFinesHandler returns a GetFinesHandler backed by the given services.
func NewGetFinesHandler(svc *appsvcs.Services) *GetFinesHandler {
	return &GetFinesHandler{svc: svc}
}

// Execute totals the fines charged on the caller's finished reservations.
//
//	@Summary	Fine summary
//	@Tags		reservations
//	@Produce	json
//	@Security	BearerAuth
//	@Success	200	{object}	FineSummaryResponse
//	@Failure	401	{object}	ErrorResponse
//	@Router		/reservations/fines [get]
func (h *GetFinesHandler) Execute(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	sum, err := h.svc.Query.FineSummary(r.Context(), userID)
	if err != nil {
		errhttp.WriteError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, FineSummaryResponse{Total: sum.Total, LateReturns: sum.LateReturns})
}
