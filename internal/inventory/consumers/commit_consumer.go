// Package consumers reacts to ledger events published on the inventory exchange.
package consumers

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"
	"github.com/syncstock/syncstock-backend/internal/inventory/jobs"
	"github.com/syncstock/syncstock-backend/internal/inventory/ledger"
	"github.com/syncstock/syncstock-backend/pkg/logger"
	"github.com/syncstock/syncstock-backend/pkg/messaging"
)

const queueName = "ledger-worker.balance-commits"

// DriftWatcher schedules a reconciliation for every tenant whose receipt edit
// moved stock to another bucket. Dependents of such a receipt stay in the old
// bucket, so the ledger is known to drift until someone looks.
type DriftWatcher struct {
	consumer *messaging.Consumer
	enqueuer jobs.Enqueuer
	logger   *logger.Logger
}

// NewDriftWatcher declares the watcher's queue and binds it to commit events
func NewDriftWatcher(rmq *messaging.RabbitMQ, enqueuer jobs.Enqueuer, log *logger.Logger) (*DriftWatcher, error) {
	consumer, err := messaging.NewConsumer(rmq, queueName, log)
	if err != nil {
		return nil, err
	}
	if err := consumer.Subscribe(messaging.ExchangeInventoryEvents, messaging.EventBalanceCommitted); err != nil {
		return nil, err
	}

	w := newDriftWatcher(enqueuer, log)
	w.consumer = consumer
	consumer.RegisterHandler(messaging.EventBalanceCommitted, w.HandleCommit)
	return w, nil
}

func newDriftWatcher(enqueuer jobs.Enqueuer, log *logger.Logger) *DriftWatcher {
	return &DriftWatcher{enqueuer: enqueuer, logger: log.WithComponent("drift-watcher")}
}

// Start starts consuming messages
func (w *DriftWatcher) Start(ctx context.Context) error {
	return w.consumer.Start(ctx)
}

// HandleCommit enqueues a report-only reconciliation after an implicit re-key
func (w *DriftWatcher) HandleCommit(ctx context.Context, event *messaging.Event) error {
	var data messaging.BalanceCommittedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	if !data.Rekeyed || data.Source != string(ledger.EventReceipt) || data.Action != string(ledger.ActionUpdate) {
		return nil
	}

	_, err := w.enqueuer.EnqueueReconcile(ctx, jobs.ReconcilePayload{
		TenantID:    data.TenantID,
		RequestedAt: data.CommittedAt,
	})
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return err
	}

	w.logger.Info().
		Str("tenant_id", data.TenantID).
		Str("receipt_id", data.RecordID).
		Msg("implicit re-key, reconciliation scheduled")
	return nil
}
