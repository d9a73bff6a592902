package consumers

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syncstock/syncstock-backend/internal/inventory/jobs"
	"github.com/syncstock/syncstock-backend/pkg/logger"
	"github.com/syncstock/syncstock-backend/pkg/messaging"
)

const tenantA = "5f0c2a7e-1d3b-4c8e-9a6f-0b1c2d3e4f50"

type fakeEnqueuer struct {
	payloads []jobs.ReconcilePayload
	err      error
}

func (f *fakeEnqueuer) EnqueueReconcile(_ context.Context, p jobs.ReconcilePayload) (*asynq.TaskInfo, error) {
	f.payloads = append(f.payloads, p)
	return &asynq.TaskInfo{ID: p.TaskID()}, f.err
}

func commitEvent(t *testing.T, data messaging.BalanceCommittedEvent) *messaging.Event {
	t.Helper()
	event, err := messaging.NewEvent(messaging.EventBalanceCommitted, "ledger-service", "", data)
	require.NoError(t, err)
	return event
}

func TestHandleCommit(t *testing.T) {
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		data     messaging.BalanceCommittedEvent
		enqueued bool
	}{
		{
			name:     "implicit rekey schedules reconciliation",
			data:     messaging.BalanceCommittedEvent{TenantID: tenantA, Source: "receipt", Action: "update", Rekeyed: true, CommittedAt: at},
			enqueued: true,
		},
		{
			name: "plain receipt update is ignored",
			data: messaging.BalanceCommittedEvent{TenantID: tenantA, Source: "receipt", Action: "update"},
		},
		{
			name: "explicit rekey is ignored",
			data: messaging.BalanceCommittedEvent{TenantID: tenantA, Source: "receipt", Action: "rekey", Rekeyed: true},
		},
		{
			name: "adjustment is ignored",
			data: messaging.BalanceCommittedEvent{TenantID: tenantA, Source: "adjustment", Action: "create"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enq := &fakeEnqueuer{}
			w := newDriftWatcher(enq, logger.Nop())

			require.NoError(t, w.HandleCommit(context.Background(), commitEvent(t, tt.data)))

			if !tt.enqueued {
				assert.Empty(t, enq.payloads)
				return
			}
			require.Len(t, enq.payloads, 1)
			assert.Equal(t, tenantA, enq.payloads[0].TenantID)
			assert.False(t, enq.payloads[0].Repair)
			assert.Equal(t, at, enq.payloads[0].RequestedAt)
		})
	}
}

func TestHandleCommit_AlreadyQueued(t *testing.T) {
	enq := &fakeEnqueuer{err: asynq.ErrTaskIDConflict}
	w := newDriftWatcher(enq, logger.Nop())

	err := w.HandleCommit(context.Background(), commitEvent(t, messaging.BalanceCommittedEvent{
		TenantID: tenantA, Source: "receipt", Action: "update", Rekeyed: true,
	}))
	assert.NoError(t, err)
}

func TestHandleCommit_EnqueueFailureIsRetried(t *testing.T) {
	enq := &fakeEnqueuer{err: stderrors.New("redis down")}
	w := newDriftWatcher(enq, logger.Nop())

	err := w.HandleCommit(context.Background(), commitEvent(t, messaging.BalanceCommittedEvent{
		TenantID: tenantA, Source: "receipt", Action: "update", Rekeyed: true,
	}))
	assert.Error(t, err)
}
