// Package handler exposes the inventory ledger over HTTP.
package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/syncstock/syncstock-backend/internal/inventory/domain"
	"github.com/syncstock/syncstock-backend/internal/inventory/ledger"
	"github.com/syncstock/syncstock-backend/pkg/errors"
	"github.com/syncstock/syncstock-backend/pkg/httputil"
	"github.com/syncstock/syncstock-backend/pkg/tenant"
)

// Handlers groups every inventory handler mounted under /api/v1/inventory
type Handlers struct {
	Locations   *LocationHandler
	Categories  *CategoryHandler
	Receipts    *ReceiptHandler
	Adjustments *AdjustmentHandler
	Transfers   *TransferHandler
	Balances    *BalanceHandler
	Reconcile   *ReconcileHandler

	// WriteRateLimit caps mutating requests per tenant per minute. Zero disables it.
	WriteRateLimit int
}

// Routes registers the inventory endpoints on r
func (h *Handlers) Routes(r chi.Router) {
	writes := func(next http.Handler) http.Handler { return next }
	if h.WriteRateLimit > 0 {
		writes = WriteLimiter(h.WriteRateLimit, time.Minute)
	}

	r.Route("/locations", func(r chi.Router) {
		r.Get("/", h.Locations.List)
		r.Get("/{id}", h.Locations.Get)
		r.With(writes).Post("/", h.Locations.Create)
		r.With(writes).Put("/{id}", h.Locations.Update)
		r.With(writes).Delete("/{id}", h.Locations.Delete)
	})

	r.Route("/categories", func(r chi.Router) {
		r.Get("/", h.Categories.List)
		r.Get("/{id}", h.Categories.Get)
		r.With(writes).Post("/", h.Categories.Create)
		r.With(writes).Put("/{id}", h.Categories.Update)
		r.With(writes).Delete("/{id}", h.Categories.Delete)
	})

	r.Route("/receipts", func(r chi.Router) {
		r.Get("/", h.Receipts.List)
		r.Get("/{id}", h.Receipts.Get)
		r.With(writes).Post("/", h.Receipts.Create)
		r.With(writes).Put("/{id}", h.Receipts.Update)
		r.With(writes).Delete("/{id}", h.Receipts.Delete)
		r.With(writes).Post("/{id}/rekey", h.Receipts.Rekey)
	})

	r.Route("/adjustments", func(r chi.Router) {
		r.Get("/", h.Adjustments.List)
		r.Get("/{id}", h.Adjustments.Get)
		r.With(writes).Post("/", h.Adjustments.Create)
		r.With(writes).Put("/{id}", h.Adjustments.Update)
		r.With(writes).Delete("/{id}", h.Adjustments.Delete)
	})

	r.Route("/transfers", func(r chi.Router) {
		r.Get("/", h.Transfers.List)
		r.Get("/{id}", h.Transfers.Get)
		r.With(writes).Post("/", h.Transfers.Create)
		r.With(writes).Put("/{id}", h.Transfers.Update)
		r.With(writes).Delete("/{id}", h.Transfers.Delete)
	})

	r.Get("/balances", h.Balances.List)
	r.Get("/balances/lookup", h.Balances.Lookup)
	r.Get("/filter-choices", h.Balances.FilterChoices)

	if h.Reconcile != nil {
		r.With(writes).Post("/reconcile", h.Reconcile.Enqueue)
	}
}

// WriteLimiter limits requests per tenant within window. Requests without
// tenant context fall back to the client IP.
func WriteLimiter(limit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(limit, window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if id, err := tenant.TenantID(r.Context()); err == nil {
				return "tenant:" + id, nil
			}
			return httprate.KeyByIP(r)
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httputil.Error(w, errors.New("RATE_LIMITED", "too many write requests", http.StatusTooManyRequests))
		}),
	)
}

// commitResult is returned by every ledger write
type commitResult struct {
	Record interface{}    `json:"record,omitempty"`
	Commit *ledger.Commit `json:"commit"`
}

func pagination(r *http.Request) (int, int, error) {
	limit, err := httputil.QueryInt(r, "limit", domain.DefaultPageSize)
	if err != nil {
		return 0, 0, err
	}
	offset, err := httputil.QueryInt(r, "offset", 0)
	if err != nil {
		return 0, 0, err
	}
	limit, offset = domain.Page(limit, offset)
	return limit, offset, nil
}

func recordFilter(r *http.Request) (domain.RecordFilter, error) {
	limit, offset, err := pagination(r)
	if err != nil {
		return domain.RecordFilter{}, err
	}
	q := r.URL.Query()
	return domain.RecordFilter{
		ReceiptID:  q.Get("receipt_id"),
		LocationID: q.Get("location_id"),
		CategoryID: q.Get("category_id"),
		Limit:      limit,
		Offset:     offset,
	}, nil
}

// decode reads and validates a request body
func decode(r *http.Request, v interface{}) error {
	if err := httputil.DecodeJSON(r, v); err != nil {
		return err
	}
	return httputil.Validate(v)
}
