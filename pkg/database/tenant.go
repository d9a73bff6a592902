package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

type txKey struct{}

// Querier is the subset of sqlx shared by *sqlx.DB and *sqlx.Tx
type Querier interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// WithTenantRLS executes fn inside a transaction scoped to one tenant.
//
// Usage in repositories:
//
//	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
//	    return r.db.Conn(ctx).GetContext(ctx, &loc, "SELECT * FROM locations WHERE id = $1", id)
//	})
//
// The transaction runs with "SET LOCAL search_path" (from WithSearchPath) and
// "SET LOCAL app.current_tenant", which the RLS policies compare against
// tenant_id. Both settings vanish on commit or rollback. A nested call reuses
// the outer transaction, so a service can compose several repository calls
// into one unit.
func (db *DB) WithTenantRLS(ctx context.Context, tenantID string, fn func(context.Context) error) error {
	if db.getTx(ctx) != nil {
		return fn(ctx)
	}

	return db.Transaction(ctx, func(tx *sqlx.Tx) error {
		searchPath := db.searchPath
		if searchPath == "" {
			searchPath = "public"
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL search_path TO %s", searchPath)); err != nil {
			return fmt.Errorf("failed to set search_path to %s: %w", searchPath, err)
		}

		// SET LOCAL takes no bind parameters; tenantID is validated as a UUID by the tenant middleware
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL app.current_tenant = '%s'", tenantID)); err != nil {
			return fmt.Errorf("failed to set app.current_tenant to %s: %w", tenantID, err)
		}

		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// Conn returns the transaction bound to ctx by WithTenantRLS, or the pool.
func (db *DB) Conn(ctx context.Context) Querier {
	if tx := db.getTx(ctx); tx != nil {
		return tx
	}
	return db.DB
}

// InTx reports whether ctx carries a transaction opened by WithTenantRLS
func (db *DB) InTx(ctx context.Context) bool {
	return db.getTx(ctx) != nil
}

// SetLockTimeout bounds row-lock waits for the rest of the current transaction.
func (db *DB) SetLockTimeout(ctx context.Context, timeout time.Duration) error {
	tx := db.getTx(ctx)
	if tx == nil {
		return fmt.Errorf("set lock_timeout: no transaction in context")
	}
	ms := timeout.Milliseconds()
	if ms <= 0 {
		ms = 1
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", ms)); err != nil {
		return fmt.Errorf("failed to set lock_timeout: %w", err)
	}
	return nil
}

func (db *DB) getTx(ctx context.Context) *sqlx.Tx {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return nil
}
