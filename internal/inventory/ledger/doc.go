// Package ledger keeps per-location stock balances consistent with the
// receipts, adjustments and transfers recorded against them.
//
// A balance bucket is identified by a BalanceKey, which is built from the
// descriptive attributes of the referenced receipt rather than from any
// record identity. Every create, update or delete of a source record goes
// through the Coordinator, which runs inside the caller's transaction:
//
//	resolve keys -> compute deltas -> lock buckets (sorted) -> validate -> apply
//
// The Coordinator never commits or rolls back; the caller owns the
// transaction, so a rejected event leaves neither the source record nor any
// balance changed.
package ledger
