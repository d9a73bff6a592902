package ledger

import "context"

// Tx is the balance store as seen from inside one tenant transaction.
// Implementations must take balance locks in the order the keys are given.
type Tx interface {
	// Receipt returns the receipt or nil when it does not exist for tenantID.
	Receipt(ctx context.Context, tenantID, id string) (*Receipt, error)

	// ReceiptDependents returns the adjustments and transfers referencing a receipt.
	ReceiptDependents(ctx context.Context, tenantID, receiptID string) (Dependents, error)

	// LockBalances locks the buckets for keys, creating zero rows for missing
	// ones, and holds the locks until the transaction ends. Keys arrive sorted.
	LockBalances(ctx context.Context, keys []BalanceKey) (map[BalanceKey]Balance, error)

	// SaveBalances persists balances previously returned by LockBalances.
	SaveBalances(ctx context.Context, balances []Balance) error

	// AppendEntries writes audit entries.
	AppendEntries(ctx context.Context, entries []Entry) error
}
