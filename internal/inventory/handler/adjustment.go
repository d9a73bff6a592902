package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/syncstock/syncstock-backend/internal/inventory/domain"
	"github.com/syncstock/syncstock-backend/internal/inventory/service"
	"github.com/syncstock/syncstock-backend/pkg/httputil"
	"github.com/syncstock/syncstock-backend/pkg/logger"
)

type adjustmentRequest struct {
	ReceiptID      string    `json:"receipt_id" validate:"required,uuid"`
	AdjustmentType string    `json:"adjustment_type" validate:"omitempty,oneof=remove missing damage expired sold"`
	Quantity       int64     `json:"quantity" validate:"gt=0"`
	AdjustmentDate time.Time `json:"adjustment_date" validate:"required"`
	Reason         *string   `json:"reason" validate:"omitempty,max=1000"`
	LocationID     string    `json:"location_id" validate:"required,uuid"`
	CategoryID     string    `json:"category_id" validate:"required,uuid"`
}

func (req adjustmentRequest) adjustment(id string) *domain.Adjustment {
	return &domain.Adjustment{
		ID:             id,
		ReceiptID:      req.ReceiptID,
		AdjustmentType: domain.AdjustmentType(req.AdjustmentType),
		Quantity:       req.Quantity,
		AdjustmentDate: req.AdjustmentDate,
		Reason:         req.Reason,
		LocationID:     req.LocationID,
		CategoryID:     req.CategoryID,
	}
}

// AdjustmentHandler handles adjustment endpoints
type AdjustmentHandler struct {
	service *service.AdjustmentService
	logger  *logger.Logger
}

// NewAdjustmentHandler creates a new adjustment handler
func NewAdjustmentHandler(svc *service.AdjustmentService, log *logger.Logger) *AdjustmentHandler {
	return &AdjustmentHandler{
		service: svc,
		logger:  log,
	}
}

func (h *AdjustmentHandler) List(w http.ResponseWriter, r *http.Request) {
	f, err := recordFilter(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	rows, total, err := h.service.List(r.Context(), f)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSONWithMeta(w, http.StatusOK, rows, &httputil.Meta{Limit: f.Limit, Offset: f.Offset, Total: total})
}

func (h *AdjustmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, a)
}

func (h *AdjustmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if err := decode(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	a := req.adjustment("")
	commit, err := h.service.Create(r.Context(), a)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, commitResult{Record: a, Commit: commit})
}

func (h *AdjustmentHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if err := decode(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	a := req.adjustment(chi.URLParam(r, "id"))
	commit, err := h.service.Update(r.Context(), a)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, commitResult{Record: a, Commit: commit})
}

func (h *AdjustmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	commit, err := h.service.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, commitResult{Commit: commit})
}
