package ledger

// Delta is a signed quantity change for one bucket
type Delta struct {
	Key      BalanceKey
	Quantity int64
}

// ReceiptState is a receipt reduced to what the ledger needs
type ReceiptState struct {
	Key      BalanceKey
	Quantity int64
}

// AdjustmentState is an adjustment with its resolved bucket
type AdjustmentState struct {
	Key      BalanceKey
	Quantity int64
}

// TransferState is a transfer with both resolved buckets
type TransferState struct {
	From     BalanceKey
	To       BalanceKey
	Quantity int64
}

// ReceiptDeltas returns the changes for a receipt lifecycle step. For create
// only cur is read, for delete only old, for update and rekey both.
func ReceiptDeltas(action Action, old, cur *ReceiptState) []Delta {
	switch action {
	case ActionCreate:
		return []Delta{{Key: cur.Key, Quantity: cur.Quantity}}
	case ActionUpdate, ActionRekey:
		return []Delta{
			{Key: old.Key, Quantity: -old.Quantity},
			{Key: cur.Key, Quantity: cur.Quantity},
		}
	case ActionDelete:
		return []Delta{{Key: old.Key, Quantity: -old.Quantity}}
	}
	return nil
}

// AdjustmentDeltas returns the changes for an adjustment lifecycle step.
// An update reverses the old depletion before applying the new one.
func AdjustmentDeltas(action Action, old, cur *AdjustmentState) []Delta {
	switch action {
	case ActionCreate:
		return []Delta{{Key: cur.Key, Quantity: -cur.Quantity}}
	case ActionUpdate, ActionRekey:
		return []Delta{
			{Key: old.Key, Quantity: old.Quantity},
			{Key: cur.Key, Quantity: -cur.Quantity},
		}
	case ActionDelete:
		return []Delta{{Key: old.Key, Quantity: old.Quantity}}
	}
	return nil
}

// TransferDeltas returns the changes for a transfer lifecycle step. An update
// always emits the full reverse-old-pair then apply-new-pair sequence.
func TransferDeltas(action Action, old, cur *TransferState) []Delta {
	switch action {
	case ActionCreate:
		return []Delta{
			{Key: cur.From, Quantity: -cur.Quantity},
			{Key: cur.To, Quantity: cur.Quantity},
		}
	case ActionUpdate, ActionRekey:
		return []Delta{
			{Key: old.From, Quantity: old.Quantity},
			{Key: old.To, Quantity: -old.Quantity},
			{Key: cur.From, Quantity: -cur.Quantity},
			{Key: cur.To, Quantity: cur.Quantity},
		}
	case ActionDelete:
		return []Delta{
			{Key: old.From, Quantity: old.Quantity},
			{Key: old.To, Quantity: -old.Quantity},
		}
	}
	return nil
}

// Net sums deltas per key, drops keys that cancel out, and returns the rest
// in lock order. One event therefore touches each bucket exactly once.
func Net(deltas []Delta) []Delta {
	sums := make(map[BalanceKey]int64, len(deltas))
	keys := make([]BalanceKey, 0, len(deltas))
	for _, d := range deltas {
		if _, ok := sums[d.Key]; !ok {
			keys = append(keys, d.Key)
		}
		sums[d.Key] += d.Quantity
	}

	out := make([]Delta, 0, len(keys))
	for _, k := range SortKeys(keys) {
		if q := sums[k]; q != 0 {
			out = append(out, Delta{Key: k, Quantity: q})
		}
	}
	return out
}

// Keys returns the distinct keys of deltas in lock order, including keys
// whose deltas cancel out.
func Keys(deltas []Delta) []BalanceKey {
	keys := make([]BalanceKey, 0, len(deltas))
	for _, d := range deltas {
		keys = append(keys, d.Key)
	}
	return SortKeys(keys)
}
