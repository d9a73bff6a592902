package handler

import (
	"net/http"

	"github.com/syncstock/syncstock-backend/internal/inventory/domain"
	"github.com/syncstock/syncstock-backend/internal/inventory/ledger"
	"github.com/syncstock/syncstock-backend/internal/inventory/service"
	"github.com/syncstock/syncstock-backend/pkg/httputil"
	"github.com/syncstock/syncstock-backend/pkg/logger"
)

// BalanceHandler serves the read side of the ledger
type BalanceHandler struct {
	service *service.BalanceService
	logger  *logger.Logger
}

// NewBalanceHandler creates a new balance handler
func NewBalanceHandler(svc *service.BalanceService, log *logger.Logger) *BalanceHandler {
	return &BalanceHandler{
		service: svc,
		logger:  log,
	}
}

// List lists balances filtered by item_name (substring), location_id and category_id
func (h *BalanceHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	q := r.URL.Query()
	f := domain.BalanceFilter{
		ItemName:   q.Get("item_name"),
		LocationID: q.Get("location_id"),
		CategoryID: q.Get("category_id"),
		Limit:      limit,
		Offset:     offset,
	}

	rows, total, err := h.service.List(r.Context(), f)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	if rows == nil {
		rows = []ledger.Balance{}
	}
	httputil.JSONWithMeta(w, http.StatusOK, rows, &httputil.Meta{Limit: limit, Offset: offset, Total: total})
}

// Lookup returns the single bucket addressed by the full balance key
func (h *BalanceHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	b, err := h.service.Get(r.Context(), ledger.BalanceKey{
		ItemName:    q.Get("item_name"),
		CatalogCode: q.Get("catalog_code"),
		SKU:         q.Get("sku"),
		LocationID:  q.Get("location_id"),
		CategoryID:  q.Get("category_id"),
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, b)
}

func (h *BalanceHandler) FilterChoices(w http.ResponseWriter, r *http.Request) {
	choices, err := h.service.FilterChoices(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, choices)
}
