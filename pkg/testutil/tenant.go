package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/syncstock/syncstock-backend/pkg/tenant"
)

// tenantTables lists tenant-owned tables, dependents first
var tenantTables = []string{
	"ledger_entries",
	"balances",
	"transfers",
	"adjustments",
	"receipts",
	"categories",
	"locations",
}

// TenantManager hands out tenant ids and removes their rows afterwards.
// Tenants share tables and are separated by tenant_id and RLS.
type TenantManager struct {
	db      *sqlx.DB
	tenants []string
	mu      sync.Mutex
}

// NewTenantManager creates a new tenant manager for tests. db must bypass
// row level security so it can clean up any tenant.
func NewTenantManager(db *sqlx.DB) *TenantManager {
	return &TenantManager{db: db}
}

// NewTenant returns a fresh tenant id and remembers it for Cleanup
func (tm *TenantManager) NewTenant() string {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	id := uuid.NewString()
	tm.tenants = append(tm.tenants, id)
	return id
}

// DropTenant deletes every row owned by id
func (tm *TenantManager) DropTenant(ctx context.Context, id string) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if err := tm.deleteRows(ctx, []string{id}); err != nil {
		return err
	}
	for i, tracked := range tm.tenants {
		if tracked == id {
			tm.tenants = append(tm.tenants[:i], tm.tenants[i+1:]...)
			break
		}
	}
	return nil
}

// Cleanup deletes the rows of every tenant created by this manager
func (tm *TenantManager) Cleanup(ctx context.Context) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if len(tm.tenants) == 0 {
		return nil
	}
	err := tm.deleteRows(ctx, tm.tenants)
	tm.tenants = nil
	return err
}

func (tm *TenantManager) deleteRows(ctx context.Context, ids []string) error {
	for _, table := range tenantTables {
		query := fmt.Sprintf("DELETE FROM %s WHERE tenant_id = ANY($1::uuid[])", table)
		if _, err := tm.db.ExecContext(ctx, query, pq.Array(ids)); err != nil {
			return fmt.Errorf("failed to delete %s rows: %w", table, err)
		}
	}
	return nil
}

// TenantContext returns a context carrying tenantID and a test user
func TenantContext(tenantID string) context.Context {
	return tenant.WithUserID(tenant.WithTenantID(context.Background(), tenantID), "test-user")
}

// TestTenantContext creates a context with a random tenant for unit tests
// that don't need a database
func TestTenantContext() context.Context {
	return TenantContext(uuid.NewString())
}
