// Package jobs runs ledger reconciliation in the background on asynq.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/syncstock/syncstock-backend/internal/inventory/ledger"
	"github.com/syncstock/syncstock-backend/pkg/logger"
	"github.com/syncstock/syncstock-backend/pkg/tenant"
)

const (
	// QueueDefault is the queue reconciliation tasks run on
	QueueDefault = "default"
	// TaskReconcile recomputes one tenant's balances from its source records
	TaskReconcile = "ledger:reconcile"
	// TaskReconcileSweep fans out TaskReconcile to every configured tenant
	TaskReconcileSweep = "ledger:reconcile_sweep"
)

// ReconcilePayload describes one reconciliation run
type ReconcilePayload struct {
	TenantID    string    `json:"tenant_id"`
	Repair      bool      `json:"repair"`
	RequestedBy string    `json:"requested_by,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// TaskID is the queue-wide id of a reconcile request. At most one task per
// tenant and mode is pending at a time.
func (p ReconcilePayload) TaskID() string {
	if p.Repair {
		return "reconcile:" + p.TenantID + ":repair"
	}
	return "reconcile:" + p.TenantID
}

// NewReconcileTask constructs an asynq task for one tenant
func NewReconcileTask(p ReconcilePayload) (*asynq.Task, error) {
	if err := tenant.ValidateID(p.TenantID); err != nil {
		return nil, err
	}
	body, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReconcile, body,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(5),
		asynq.TaskID(p.TaskID())), nil
}

// SweepPayload lists the tenants a scheduled sweep reconciles
type SweepPayload struct {
	TenantIDs []string `json:"tenant_ids"`
	Repair    bool     `json:"repair"`
}

// NewSweepTask constructs the periodic sweep task
func NewSweepTask(tenantIDs []string, repair bool) (*asynq.Task, error) {
	body, err := json.Marshal(SweepPayload{TenantIDs: tenantIDs, Repair: repair})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReconcileSweep, body, asynq.Queue(QueueDefault)), nil
}

// Reconciler runs one reconciliation for the tenant in ctx
type Reconciler interface {
	Reconcile(ctx context.Context, repair bool) (*ledger.Reconciliation, error)
}

// Enqueuer submits reconcile tasks
type Enqueuer interface {
	EnqueueReconcile(ctx context.Context, p ReconcilePayload) (*asynq.TaskInfo, error)
}

// ReconcileJob handles TaskReconcile and TaskReconcileSweep
type ReconcileJob struct {
	reconciler Reconciler
	enqueuer   Enqueuer
	logger     *logger.Logger
}

// NewReconcileJob wires the job. enqueuer is only needed for sweeps.
func NewReconcileJob(r Reconciler, enqueuer Enqueuer, log *logger.Logger) *ReconcileJob {
	return &ReconcileJob{reconciler: r, enqueuer: enqueuer, logger: log.WithComponent("reconcile-job")}
}

// Handle processes TaskReconcile
func (j *ReconcileJob) Handle(ctx context.Context, t *asynq.Task) error {
	var p ReconcilePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode reconcile payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := tenant.ValidateID(p.TenantID); err != nil {
		return fmt.Errorf("reconcile: %v: %w", err, asynq.SkipRetry)
	}

	ctx = tenant.WithTenantID(ctx, p.TenantID)
	if p.RequestedBy != "" {
		ctx = tenant.WithUserID(ctx, p.RequestedBy)
	}

	report, err := j.reconciler.Reconcile(ctx, p.Repair)
	if err != nil {
		return fmt.Errorf("reconcile tenant %s: %w", p.TenantID, err)
	}

	j.logger.Info().
		Str("tenant_id", p.TenantID).
		Bool("repair", p.Repair).
		Int("drifts", len(report.Drifts)).
		Msg("reconciliation finished")
	return nil
}

// HandleSweep processes TaskReconcileSweep by enqueueing one task per tenant
func (j *ReconcileJob) HandleSweep(ctx context.Context, t *asynq.Task) error {
	var p SweepPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode sweep payload: %v: %w", err, asynq.SkipRetry)
	}
	if j.enqueuer == nil {
		return fmt.Errorf("reconcile sweep: no enqueuer: %w", asynq.SkipRetry)
	}

	now := time.Now().UTC()
	for _, id := range p.TenantIDs {
		_, err := j.enqueuer.EnqueueReconcile(ctx, ReconcilePayload{TenantID: id, Repair: p.Repair, RequestedAt: now})
		if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
			j.logger.Warn().Err(err).Str("tenant_id", id).Msg("failed to enqueue reconciliation")
		}
	}
	return nil
}
