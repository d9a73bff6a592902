package service

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/syncstock/syncstock-backend/internal/inventory/ledger"
	"github.com/syncstock/syncstock-backend/pkg/errors"
	"github.com/syncstock/syncstock-backend/pkg/logger"
	"github.com/syncstock/syncstock-backend/pkg/metrics"
	"github.com/syncstock/syncstock-backend/pkg/tenant"
)

// Engine runs source-record writes and their ledger effects in one
// transaction, retries transient store failures, and fans out commits.
type Engine struct {
	store       Store
	coordinator *ledger.Coordinator
	publisher   CommitPublisher
	choices     ChoicesInvalidator
	metrics     *metrics.Ledger
	maxElapsed  time.Duration
	logger      *logger.Logger
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithPublisher announces every commit after the transaction
func WithPublisher(p CommitPublisher) EngineOption {
	return func(e *Engine) {
		e.publisher = p
	}
}

// WithChoicesInvalidator drops cached filter choices after writes
func WithChoicesInvalidator(c ChoicesInvalidator) EngineOption {
	return func(e *Engine) {
		e.choices = c
	}
}

// WithMetrics counts retries
func WithMetrics(m *metrics.Ledger) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithRetryMaxElapsed bounds the time spent retrying one event. Zero disables retries.
func WithRetryMaxElapsed(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.maxElapsed = d
	}
}

// NewEngine creates an Engine
func NewEngine(store Store, coordinator *ledger.Coordinator, log *logger.Logger, opts ...EngineOption) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	e := &Engine{
		store:       store,
		coordinator: coordinator,
		maxElapsed:  5 * time.Second,
		logger:      log.WithComponent("inventory-service"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Coordinator exposes the ledger coordinator the engine drives
func (e *Engine) Coordinator() *ledger.Coordinator {
	return e.coordinator
}

// write runs fn for the tenant in ctx and retries it as a whole while the
// store reports itself unavailable. On success the returned commits are
// published and the tenant's cached filter choices are dropped.
func (e *Engine) write(ctx context.Context, label string, fn func(ctx context.Context, tx Tx, tenantID string) ([]*ledger.Commit, error)) ([]*ledger.Commit, error) {
	tenantID, err := tenantFrom(ctx)
	if err != nil {
		return nil, err
	}

	var commits []*ledger.Commit
	attempt := 0
	op := func() error {
		attempt++
		if attempt > 1 {
			e.metrics.Retried(label)
		}
		err := e.store.WithTx(ctx, tenantID, func(ctx context.Context, tx Tx) error {
			var err error
			commits, err = fn(ctx, tx, tenantID)
			return err
		})
		if err != nil && !ledger.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	if err := backoff.Retry(op, e.retryPolicy(ctx)); err != nil {
		if stage, ok := ledger.RejectedAt(err); ok {
			e.logger.Debug().
				Err(err).
				Str("tenant_id", tenantID).
				Str("event", label).
				Str("stage", string(stage)).
				Msg("ledger rejected write")
		}
		if attempt > 1 {
			e.logger.Warn().
				Err(err).
				Str("tenant_id", tenantID).
				Str("event", label).
				Int("attempts", attempt).
				Msg("ledger write failed after retries")
		}
		return nil, mapError(err)
	}

	e.afterCommit(ctx, tenantID, commits)
	return commits, nil
}

// read runs fn in a read transaction, with the same retry policy as writes
func (e *Engine) read(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tenantID, err := tenantFrom(ctx)
	if err != nil {
		return err
	}
	op := func() error {
		err := e.store.WithTx(ctx, tenantID, fn)
		if err != nil && !ledger.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	if err := backoff.Retry(op, e.retryPolicy(ctx)); err != nil {
		return mapError(err)
	}
	return nil
}

func (e *Engine) retryPolicy(ctx context.Context) backoff.BackOff {
	if e.maxElapsed <= 0 {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 25 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = e.maxElapsed
	return backoff.WithContext(b, ctx)
}

func (e *Engine) afterCommit(ctx context.Context, tenantID string, commits []*ledger.Commit) {
	if e.publisher != nil {
		for _, c := range commits {
			if c != nil {
				e.publisher.PublishCommit(ctx, c)
			}
		}
	}
	if e.choices != nil {
		if err := e.choices.Invalidate(ctx, tenantID); err != nil {
			e.logger.Warn().Err(err).Str("tenant_id", tenantID).Msg("failed to invalidate filter choices")
		}
	}
}

func tenantFrom(ctx context.Context) (string, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return "", errors.BadRequest("missing tenant context")
	}
	if err := tenant.ValidateID(tenantID); err != nil {
		return "", errors.BadRequest("tenant id must be a UUID")
	}
	return tenantID, nil
}

// mapError turns ledger errors into AppErrors for the HTTP layer. The
// original error stays reachable through Unwrap.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		return err
	}

	var stock *ledger.InsufficientStockError
	switch {
	case errors.As(err, &stock):
		return errors.Wrap(err, "INSUFFICIENT_STOCK", "insufficient stock for this operation", http.StatusUnprocessableEntity).
			WithDetails(map[string]string{
				"item_name":    stock.Key.ItemName,
				"catalog_code": stock.Key.CatalogCode,
				"sku":          stock.Key.SKU,
				"location_id":  stock.Key.LocationID,
				"category_id":  stock.Key.CategoryID,
				"available":    strconv.FormatInt(stock.Available, 10),
				"requested":    strconv.FormatInt(stock.Requested, 10),
			})
	case errors.Is(err, ledger.ErrMissingReferencedReceipt):
		return errors.Wrap(err, "MISSING_REFERENCED_RECEIPT", "referenced receipt does not exist", http.StatusConflict)
	case errors.Is(err, ledger.ErrImplicitRekey):
		return errors.Wrap(err, "IMPLICIT_REKEY_DISABLED", "this edit changes the item's balance key; use the rekey operation", http.StatusConflict)
	case errors.Is(err, ledger.ErrBalanceStoreUnavailable):
		return errors.Wrap(err, "BALANCE_STORE_UNAVAILABLE", "balance store is busy, retry the request", http.StatusServiceUnavailable)
	}
	return errors.Wrap(err, "INTERNAL_ERROR", "an unexpected error occurred", http.StatusInternalServerError)
}
