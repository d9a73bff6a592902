package ledger

// CheckSufficient fails with *InsufficientStockError when requested exceeds
// available. A missing bucket is passed as available == 0.
//
// On update the caller passes the balance with the old depletion already
// reversed; netting the update's deltas per key does exactly that.
func CheckSufficient(key BalanceKey, available, requested int64) error {
	if requested <= available {
		return nil
	}
	return &InsufficientStockError{
		Key:       key,
		Available: available,
		Requested: requested,
	}
}
