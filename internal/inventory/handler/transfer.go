package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/syncstock/syncstock-backend/internal/inventory/domain"
	"github.com/syncstock/syncstock-backend/internal/inventory/service"
	"github.com/syncstock/syncstock-backend/pkg/httputil"
	"github.com/syncstock/syncstock-backend/pkg/logger"
)

type transferRequest struct {
	ReceiptID      string          `json:"receipt_id" validate:"required,uuid"`
	Quantity       int64           `json:"quantity" validate:"gt=0"`
	FromLocationID string          `json:"from_location_id" validate:"required,uuid"`
	ToLocationID   string          `json:"to_location_id" validate:"required,uuid,nefield=FromLocationID"`
	CategoryID     string          `json:"category_id" validate:"required,uuid"`
	Price          decimal.Decimal `json:"price"`
	TransferDate   time.Time       `json:"transfer_date" validate:"required"`
}

func (req transferRequest) transfer(id string) *domain.Transfer {
	return &domain.Transfer{
		ID:             id,
		ReceiptID:      req.ReceiptID,
		Quantity:       req.Quantity,
		FromLocationID: req.FromLocationID,
		ToLocationID:   req.ToLocationID,
		CategoryID:     req.CategoryID,
		Price:          req.Price,
		TransferDate:   req.TransferDate,
	}
}

// TransferHandler handles transfer endpoints
type TransferHandler struct {
	service *service.TransferService
	logger  *logger.Logger
}

// NewTransferHandler creates a new transfer handler
func NewTransferHandler(svc *service.TransferService, log *logger.Logger) *TransferHandler {
	return &TransferHandler{
		service: svc,
		logger:  log,
	}
}

func (h *TransferHandler) List(w http.ResponseWriter, r *http.Request) {
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

func (h *TransferHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, t)
}

func (h *TransferHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := decode(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	t := req.transfer("")
	commit, err := h.service.Create(r.Context(), t)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, commitResult{Record: t, Commit: commit})
}

func (h *TransferHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := decode(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	t := req.transfer(chi.URLParam(r, "id"))
	commit, err := h.service.Update(r.Context(), t)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, commitResult{Record: t, Commit: commit})
}

func (h *TransferHandler) Delete(w http.ResponseWriter, r *http.Request) {
	commit, err := h.service.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, commitResult{Commit: commit})
}
