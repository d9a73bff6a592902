package service

import (
	"context"

	"github.com/syncstock/syncstock-backend/internal/inventory/domain"
	"github.com/syncstock/syncstock-backend/internal/inventory/ledger"
)

// Store opens tenant-scoped transactions. The Postgres store and the
// in-memory store both implement it.
type Store interface {
	// WithTx runs fn in one transaction for tenantID. fn's error rolls
	// everything back; a nil return commits.
	WithTx(ctx context.Context, tenantID string, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is everything a service can do inside one tenant transaction. Get*
// methods return a NotFound AppError for unknown ids; *ForUpdate variants
// also lock the row until the transaction ends.
type Tx interface {
	ledger.Tx

	CreateLocation(ctx context.Context, l *domain.Location) error
	GetLocation(ctx context.Context, id string) (*domain.Location, error)
	ListLocations(ctx context.Context) ([]domain.Location, error)
	UpdateLocation(ctx context.Context, l *domain.Location) error
	DeleteLocation(ctx context.Context, id string) error

	CreateCategory(ctx context.Context, c *domain.Category) error
	GetCategory(ctx context.Context, id string) (*domain.Category, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
	UpdateCategory(ctx context.Context, c *domain.Category) error
	DeleteCategory(ctx context.Context, id string) error

	CreateReceipt(ctx context.Context, r *domain.Receipt) error
	GetReceipt(ctx context.Context, id string) (*domain.Receipt, error)
	GetReceiptForUpdate(ctx context.Context, id string) (*domain.Receipt, error)
	ListReceipts(ctx context.Context, f domain.RecordFilter) ([]domain.Receipt, int, error)
	UpdateReceipt(ctx context.Context, r *domain.Receipt) error
	DeleteReceipt(ctx context.Context, id string) error

	CreateAdjustment(ctx context.Context, a *domain.Adjustment) error
	GetAdjustment(ctx context.Context, id string) (*domain.Adjustment, error)
	GetAdjustmentForUpdate(ctx context.Context, id string) (*domain.Adjustment, error)
	ListAdjustments(ctx context.Context, f domain.RecordFilter) ([]domain.Adjustment, int, error)
	UpdateAdjustment(ctx context.Context, a *domain.Adjustment) error
	DeleteAdjustment(ctx context.Context, id string) error

	CreateTransfer(ctx context.Context, t *domain.Transfer) error
	GetTransfer(ctx context.Context, id string) (*domain.Transfer, error)
	GetTransferForUpdate(ctx context.Context, id string) (*domain.Transfer, error)
	ListTransfers(ctx context.Context, f domain.RecordFilter) ([]domain.Transfer, int, error)
	UpdateTransfer(ctx context.Context, t *domain.Transfer) error
	DeleteTransfer(ctx context.Context, id string) error

	// GetBalance returns a NotFound AppError when no bucket exists for key
	GetBalance(ctx context.Context, key ledger.BalanceKey) (*ledger.Balance, error)
	ListBalances(ctx context.Context, f domain.BalanceFilter) ([]ledger.Balance, int, error)
	FilterChoices(ctx context.Context) (*domain.FilterChoices, error)

	// ExpectedTotals recomputes the signed total per bucket from the source records
	ExpectedTotals(ctx context.Context) (map[ledger.BalanceKey]int64, error)
	AllBalances(ctx context.Context) ([]ledger.Balance, error)
}

// CommitPublisher announces committed ledger events after the transaction
type CommitPublisher interface {
	PublishCommit(ctx context.Context, commit *ledger.Commit)
}

// ChoicesInvalidator drops cached filter choices for a tenant
type ChoicesInvalidator interface {
	Invalidate(ctx context.Context, tenantID string) error
}
