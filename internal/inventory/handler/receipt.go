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

type receiptRequest struct {
	ItemName       string          `json:"item_name" validate:"required,max=255"`
	CatalogCode    string          `json:"catalog_code" validate:"max=100"`
	SKU            string          `json:"sku" validate:"max=100"`
	SupplierName   string          `json:"supplier_name" validate:"max=255"`
	Description    *string         `json:"description"`
	Quantity       int64           `json:"quantity" validate:"gt=0"`
	Price          decimal.Decimal `json:"price"`
	ReceiptDate    time.Time       `json:"receipt_date" validate:"required"`
	ExpirationDate *time.Time      `json:"expiration_date"`
	LocationID     string          `json:"location_id" validate:"required,uuid"`
	CategoryID     string          `json:"category_id" validate:"required,uuid"`
}

func (req receiptRequest) receipt(id string) *domain.Receipt {
	return &domain.Receipt{
		ID:             id,
		ItemName:       req.ItemName,
		CatalogCode:    req.CatalogCode,
		SKU:            req.SKU,
		SupplierName:   req.SupplierName,
		Description:    req.Description,
		Quantity:       req.Quantity,
		Price:          req.Price,
		ReceiptDate:    req.ReceiptDate,
		ExpirationDate: req.ExpirationDate,
		LocationID:     req.LocationID,
		CategoryID:     req.CategoryID,
	}
}

type rekeyRequest struct {
	ItemName    string `json:"item_name" validate:"max=255"`
	CatalogCode string `json:"catalog_code" validate:"max=100"`
	SKU         string `json:"sku" validate:"max=100"`
	LocationID  string `json:"location_id" validate:"omitempty,uuid"`
	CategoryID  string `json:"category_id" validate:"omitempty,uuid"`
}

// ReceiptHandler handles receipt endpoints
type ReceiptHandler struct {
	service *service.ReceiptService
	logger  *logger.Logger
}

// NewReceiptHandler creates a new receipt handler
func NewReceiptHandler(svc *service.ReceiptService, log *logger.Logger) *ReceiptHandler {
	return &ReceiptHandler{
		service: svc,
		logger:  log,
	}
}

func (h *ReceiptHandler) List(w http.ResponseWriter, r *http.Request) {
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

func (h *ReceiptHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, rec)
}

func (h *ReceiptHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req receiptRequest
	if err := decode(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	rec := req.receipt("")
	commit, err := h.service.Create(r.Context(), rec)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, commitResult{Record: rec, Commit: commit})
}

// Update edits a receipt. A changed item name, SKU, catalog code, location or
// category moves its stock to the new bucket.
func (h *ReceiptHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req receiptRequest
	if err := decode(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	rec := req.receipt(chi.URLParam(r, "id"))
	commit, err := h.service.Update(r.Context(), rec)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, commitResult{Record: rec, Commit: commit})
}

// Rekey moves a receipt together with its adjustments and transfers
func (h *ReceiptHandler) Rekey(w http.ResponseWriter, r *http.Request) {
	var req rekeyRequest
	if err := decode(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	rec, commit, err := h.service.Rekey(r.Context(), chi.URLParam(r, "id"), service.RekeyInput{
		ItemName:    req.ItemName,
		CatalogCode: req.CatalogCode,
		SKU:         req.SKU,
		LocationID:  req.LocationID,
		CategoryID:  req.CategoryID,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	h.logger.Info().
		Str("receipt_id", rec.ID).
		Int("buckets", len(commit.Changes)).
		Msg("receipt rekeyed")
	httputil.JSON(w, http.StatusOK, commitResult{Record: rec, Commit: commit})
}

// Delete removes a receipt and every adjustment and transfer drawn from it
func (h *ReceiptHandler) Delete(w http.ResponseWriter, r *http.Request) {
	commit, err := h.service.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, commitResult{Commit: commit})
}
