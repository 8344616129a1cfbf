package handlers

import (
	"net/http"

	"github.com/ghuser/campusreserve/pkg/errhttp"
	"github.com/ghuser/campusreserve/pkg/httpx"
	appsvcs "github.com/ghuser/campusreserve/services/reservation/application/services"
	"github.com/ghuser/campusreserve/services/reservation/domain/models"
)

// GetItemsHandler handles GET /items requests.
type GetItemsHandler struct {
	svc *appsvcs.Services
}

// NewGetItemsHandler returns a GetItemsHandler backed by the given services.
func NewGetItemsHandler(svc *appsvcs.Services) *GetItemsHandler {
	return &GetItemsHandler{svc: svc}
}

// Execute lists catalog items, optionally filtered by kind.
//
//	@Summary	List items
//	@Tags		items
//	@Produce	json
//	@Security	BearerAuth
//	@Param		kind	query		string	false	"book, equipment, laundry or menu"
//	@Success	200		{array}		ItemResponse
//	@Failure	400		{object}	ErrorResponse
//	@Router		/items [get]
func (h *GetItemsHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var kind models.Kind
	if raw := r.URL.Query().Get("kind"); raw != "" {
		k, err := models.ParseKind(raw)
		if err != nil {
			httpx.JSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		kind = k
	}

	items, err := h.svc.Query.ListItems(r.Context(), kind)
	if err != nil {
		errhttp.WriteError(w, err)
		return
	}

	out := make([]ItemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, toItemResponse(it))
	}
	httpx.JSON(w, http.StatusOK, out)
}
