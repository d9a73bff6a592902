// Package repository is the PostgreSQL implementation of the inventory store.
//
// Every transaction runs through database.WithTenantRLS, so the row level
// security policies from the schema see app.current_tenant. Queries filter
// on tenant_id as well; the policies are the backstop, not the filter.
package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/syncstock/syncstock-backend/internal/inventory/ledger"
	"github.com/syncstock/syncstock-backend/internal/inventory/service"
	"github.com/syncstock/syncstock-backend/pkg/database"
	"github.com/syncstock/syncstock-backend/pkg/errors"
	"github.com/syncstock/syncstock-backend/pkg/logger"
	"github.com/syncstock/syncstock-backend/pkg/tenant"
)

// Store opens tenant-scoped PostgreSQL transactions
type Store struct {
	db          *database.DB
	logger      *logger.Logger
	lockTimeout time.Duration
}

// Option configures a Store
type Option func(*Store)

// WithLockTimeout bounds row-lock waits inside each transaction
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.lockTimeout = d
	}
}

// NewStore creates a new PostgreSQL store
func NewStore(db *database.DB, log *logger.Logger, opts ...Option) *Store {
	s := &Store{db: db, logger: log, lockTimeout: 2 * time.Second}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithTx runs fn in one transaction for tenantID. Lock timeouts, deadlocks,
// serialization failures and dropped connections come back wrapped in
// ledger.ErrBalanceStoreUnavailable.
func (s *Store) WithTx(ctx context.Context, tenantID string, fn func(ctx context.Context, tx service.Tx) error) error {
	if err := tenant.ValidateID(tenantID); err != nil {
		return errors.BadRequest(err.Error())
	}

	err := s.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		if err := s.db.SetLockTimeout(ctx, s.lockTimeout); err != nil {
			return err
		}
		return fn(ctx, &tx{db: s.db, tenantID: tenantID})
	})
	return translate("transaction", err)
}

// Health reports database connectivity
func (s *Store) Health(ctx context.Context) map[string]string {
	return s.db.Health(ctx)
}

// tx implements service.Tx on top of the transaction carried by ctx
type tx struct {
	db       *database.DB
	tenantID string
}

func (t *tx) conn(ctx context.Context) database.Querier {
	return t.db.Conn(ctx)
}

// translate turns driver errors into the errors the services understand
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) || ledger.IsRetryable(err) {
		return err
	}
	if database.IsTransient(err) {
		return ledger.Unavailable(op, err)
	}
	if mapped := database.MapPQError(err); mapped != nil {
		return mapped
	}
	return err
}

// notFound maps sql.ErrNoRows to a NotFound AppError
func notFound(resource string, err error) error {
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.NotFound(resource)
	}
	return translate("get "+resource, err)
}

// validID filters ids Postgres would reject as malformed uuids
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func affected(res sql.Result, resource string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.NotFound(resource)
	}
	return nil
}
