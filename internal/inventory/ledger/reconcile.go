package ledger

import (
	"context"

	"github.com/google/uuid"
)

// Drift is a bucket whose stored totals disagree with its source records
type Drift struct {
	Key            BalanceKey `json:"key"`
	Expected       int64      `json:"expected"`
	Stored         int64      `json:"stored"`
	StoredQuantity int64      `json:"stored_quantity"`
}

// Reconciliation is the result of comparing stored balances with a replay
type Reconciliation struct {
	TenantID string  `json:"tenant_id"`
	Checked  int     `json:"checked"`
	Drifts   []Drift `json:"drifts"`
	Repaired bool    `json:"repaired"`
	// Commit is set when drifted buckets were rewritten
	Commit *Commit `json:"commit,omitempty"`
}

// FindDrift compares expected signed totals with the stored balances. A
// bucket drifts when its net quantity differs from the expected total or its
// quantity differs from the clamped expected total. Buckets missing on either
// side count as zero.
func FindDrift(expected map[BalanceKey]int64, stored []Balance) []Drift {
	seen := make(map[BalanceKey]Balance, len(stored))
	for _, b := range stored {
		seen[b.BalanceKey] = b
	}

	keys := make([]BalanceKey, 0, len(expected)+len(stored))
	for k := range expected {
		keys = append(keys, k)
	}
	for k := range seen {
		keys = append(keys, k)
	}

	var drifts []Drift
	for _, k := range SortKeys(keys) {
		b := seen[k]
		if expected[k] != b.NetQuantity || floor(expected[k]) != b.Quantity {
			drifts = append(drifts, Drift{Key: k, Expected: expected[k], Stored: b.NetQuantity, StoredQuantity: b.Quantity})
		}
	}
	return drifts
}

// Reconcile reports drift between stored balances and expected totals and,
// when repair is set, rewrites each drifted bucket to its expected total. A
// repair appends an entry carrying the correction so entry sums keep matching
// net quantities.
func (c *Coordinator) Reconcile(ctx context.Context, tx Tx, tenantID string, expected map[BalanceKey]int64, stored []Balance, repair bool) (*Reconciliation, error) {
	if err := c.checkTenant(tenantID); err != nil {
		return nil, err
	}
	for k := range expected {
		if err := c.checkTenant(tenantID, k.TenantID); err != nil {
			return nil, err
		}
	}

	result := &Reconciliation{
		TenantID: tenantID,
		Checked:  len(stored),
		Drifts:   FindDrift(expected, stored),
	}
	if len(result.Drifts) > 0 {
		c.logger.Warn().
			Str("tenant_id", tenantID).
			Int("drifted", len(result.Drifts)).
			Bool("repair", repair).
			Msg("balance drift detected")
	}
	if !repair || len(result.Drifts) == 0 {
		c.metrics.Drifted(len(result.Drifts), false)
		return result, nil
	}

	keys := make([]BalanceKey, 0, len(result.Drifts))
	for _, d := range result.Drifts {
		keys = append(keys, d.Key)
	}

	locked, err := tx.LockBalances(ctx, keys)
	if err != nil {
		return nil, c.storeError(EventReconcile, ActionRepair, tenantID, "lock balances", err)
	}

	runID := uuid.NewString()
	now := c.now().UTC()
	var (
		updated []Balance
		entries []Entry
		changes []BalanceChange
	)
	for _, k := range keys {
		b := locked[k]
		b.BalanceKey = k
		correction := expected[k] - b.NetQuantity
		if correction == 0 && b.Quantity == floor(expected[k]) {
			continue
		}
		before := b.Quantity
		b.NetQuantity = expected[k]
		b.Quantity = floor(expected[k])
		b.Version++
		b.UpdatedAt = now
		updated = append(updated, b)
		changes = append(changes, BalanceChange{Key: k, Delta: correction, Before: before, After: b.Quantity, NetAfter: b.NetQuantity})
		entries = append(entries, Entry{
			ID:            uuid.NewString(),
			BalanceKey:    k,
			EventType:     EventReconcile,
			EventID:       runID,
			Action:        ActionRepair,
			Delta:         correction,
			QuantityAfter: b.Quantity,
			CreatedAt:     now,
		})
	}

	if len(updated) > 0 {
		if err := tx.SaveBalances(ctx, updated); err != nil {
			return nil, c.storeError(EventReconcile, ActionRepair, tenantID, "save balances", err)
		}
		if err := tx.AppendEntries(ctx, entries); err != nil {
			return nil, c.storeError(EventReconcile, ActionRepair, tenantID, "append ledger entries", err)
		}
	}

	c.metrics.Drifted(len(updated), true)
	result.Repaired = true
	result.Commit = &Commit{
		EventType:   EventReconcile,
		Action:      ActionRepair,
		EventID:     runID,
		TenantID:    tenantID,
		State:       StateCommitted,
		Changes:     changes,
		CommittedAt: now,
	}
	return result, nil
}
