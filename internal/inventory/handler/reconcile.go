package handler

import (
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/syncstock/syncstock-backend/internal/inventory/jobs"
	"github.com/syncstock/syncstock-backend/pkg/errors"
	"github.com/syncstock/syncstock-backend/pkg/httputil"
	"github.com/syncstock/syncstock-backend/pkg/logger"
	"github.com/syncstock/syncstock-backend/pkg/tenant"
)

type reconcileRequest struct {
	Repair bool `json:"repair"`
}

type reconcileQueued struct {
	TaskID string `json:"task_id"`
	Repair bool   `json:"repair"`
	// Duplicate is set when an identical request was still pending
	Duplicate bool `json:"duplicate"`
}

// ReconcileHandler starts reconciliation runs. With a queue configured runs
// are handed to the worker; otherwise they execute inline.
type ReconcileHandler struct {
	enqueuer   jobs.Enqueuer
	reconciler jobs.Reconciler
	logger     *logger.Logger
}

// NewReconcileHandler creates a new reconcile handler. enqueuer may be nil.
func NewReconcileHandler(enqueuer jobs.Enqueuer, reconciler jobs.Reconciler, log *logger.Logger) *ReconcileHandler {
	return &ReconcileHandler{
		enqueuer:   enqueuer,
		reconciler: reconciler,
		logger:     log,
	}
}

// Enqueue handles POST /reconcile. The body is optional.
func (h *ReconcileHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if r.ContentLength > 0 {
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.Error(w, err)
			return
		}
	}

	if h.enqueuer == nil {
		report, err := h.reconciler.Reconcile(r.Context(), req.Repair)
		if err != nil {
			httputil.Error(w, err)
			return
		}
		httputil.JSON(w, http.StatusOK, report)
		return
	}

	p := jobs.ReconcilePayload{
		TenantID:    tenant.MustTenantID(r.Context()),
		Repair:      req.Repair,
		RequestedBy: tenant.UserID(r.Context()),
		RequestedAt: time.Now().UTC(),
	}
	_, err := h.enqueuer.EnqueueReconcile(r.Context(), p)
	duplicate := errors.Is(err, asynq.ErrTaskIDConflict)
	if err != nil && !duplicate {
		h.logger.Error().Err(err).Str("tenant_id", p.TenantID).Msg("failed to enqueue reconciliation")
		httputil.Error(w, errors.Unavailable("QUEUE_UNAVAILABLE", "reconciliation queue unavailable"))
		return
	}

	httputil.JSON(w, http.StatusAccepted, reconcileQueued{TaskID: p.TaskID(), Repair: p.Repair, Duplicate: duplicate})
}
