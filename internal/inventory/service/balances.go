package service

import (
	"context"

	"github.com/syncstock/syncstock-backend/internal/inventory/domain"
	"github.com/syncstock/syncstock-backend/internal/inventory/ledger"
	"github.com/syncstock/syncstock-backend/pkg/errors"
)

// ChoicesCache memoizes filter choices per tenant
type ChoicesCache interface {
	ChoicesInvalidator
	Get(ctx context.Context, tenantID string, load func(ctx context.Context) (*domain.FilterChoices, error)) (*domain.FilterChoices, error)
}

// BalanceService is the read side of the ledger
type BalanceService struct {
	engine *Engine
	cache  ChoicesCache
}

// NewBalanceService creates a new balance service. cache may be nil.
func NewBalanceService(engine *Engine, cache ChoicesCache) *BalanceService {
	return &BalanceService{engine: engine, cache: cache}
}

// Get returns the bucket for key, or NotFound when no event has touched it.
// The tenant always comes from ctx.
func (s *BalanceService) Get(ctx context.Context, key ledger.BalanceKey) (*ledger.Balance, error) {
	if key.ItemName == "" || key.LocationID == "" || key.CategoryID == "" {
		return nil, errors.BadRequest("item_name, location_id and category_id are required")
	}
	var b *ledger.Balance
	err := s.engine.read(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		b, err = tx.GetBalance(ctx, key)
		return err
	})
	return b, err
}

// List lists the tenant's buckets in key order
func (s *BalanceService) List(ctx context.Context, f domain.BalanceFilter) ([]ledger.Balance, int, error) {
	var (
		rows  []ledger.Balance
		total int
	)
	err := s.engine.read(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		rows, total, err = tx.ListBalances(ctx, f)
		return err
	})
	return rows, total, err
}

// FilterChoices returns the distinct item names, locations and categories
// for the balance list filters
func (s *BalanceService) FilterChoices(ctx context.Context) (*domain.FilterChoices, error) {
	load := func(ctx context.Context) (*domain.FilterChoices, error) {
		var choices *domain.FilterChoices
		err := s.engine.read(ctx, func(ctx context.Context, tx Tx) error {
			var err error
			choices, err = tx.FilterChoices(ctx)
			return err
		})
		return choices, err
	}
	if s.cache == nil {
		return load(ctx)
	}
	tenantID, err := tenantFrom(ctx)
	if err != nil {
		return nil, err
	}
	return s.cache.Get(ctx, tenantID, load)
}

// ReconcileService compares stored balances with a replay of the source records
type ReconcileService struct {
	engine *Engine
}

// NewReconcileService creates a new reconcile service
func NewReconcileService(engine *Engine) *ReconcileService {
	return &ReconcileService{engine: engine}
}

// Reconcile reports drifted buckets for the tenant in ctx and, when repair
// is set, rewrites them to their replayed totals.
func (s *ReconcileService) Reconcile(ctx context.Context, repair bool) (*ledger.Reconciliation, error) {
	var result *ledger.Reconciliation
	_, err := s.engine.write(ctx, string(ledger.EventReconcile), func(ctx context.Context, tx Tx, tenantID string) ([]*ledger.Commit, error) {
		expected, err := tx.ExpectedTotals(ctx)
		if err != nil {
			return nil, err
		}
		stored, err := tx.AllBalances(ctx)
		if err != nil {
			return nil, err
		}
		result, err = s.engine.coordinator.Reconcile(ctx, tx, tenantID, expected, stored, repair)
		if err != nil {
			return nil, err
		}
		return []*ledger.Commit{result.Commit}, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
