package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(loc string) BalanceKey {
	return BalanceKey{TenantID: "t1", ItemName: "Saline", CatalogCode: "CAT-1", SKU: "S1", LocationID: loc, CategoryID: "c1"}
}

func TestReceiptDeltas(t *testing.T) {
	a, b := key("a"), key("b")

	assert.Equal(t, []Delta{{Key: a, Quantity: 10}},
		ReceiptDeltas(ActionCreate, nil, &ReceiptState{Key: a, Quantity: 10}))
	assert.Equal(t, []Delta{{Key: a, Quantity: -10}},
		ReceiptDeltas(ActionDelete, &ReceiptState{Key: a, Quantity: 10}, nil))
	assert.Equal(t, []Delta{{Key: a, Quantity: -10}, {Key: b, Quantity: 7}},
		ReceiptDeltas(ActionUpdate, &ReceiptState{Key: a, Quantity: 10}, &ReceiptState{Key: b, Quantity: 7}))
}

func TestAdjustmentDeltas(t *testing.T) {
	a := key("a")

	assert.Equal(t, []Delta{{Key: a, Quantity: -3}},
		AdjustmentDeltas(ActionCreate, nil, &AdjustmentState{Key: a, Quantity: 3}))
	assert.Equal(t, []Delta{{Key: a, Quantity: 3}},
		AdjustmentDeltas(ActionDelete, &AdjustmentState{Key: a, Quantity: 3}, nil))
	assert.Equal(t, []Delta{{Key: a, Quantity: 3}, {Key: a, Quantity: -5}},
		AdjustmentDeltas(ActionUpdate, &AdjustmentState{Key: a, Quantity: 3}, &AdjustmentState{Key: a, Quantity: 5}))
}

func TestTransferDeltas_UpdateReversesFullPair(t *testing.T) {
	a, b, c := key("a"), key("b"), key("c")

	got := TransferDeltas(ActionUpdate,
		&TransferState{From: a, To: b, Quantity: 4},
		&TransferState{From: a, To: c, Quantity: 4})

	require.Len(t, got, 4)
	assert.Equal(t, []Delta{{Key: b, Quantity: -4}, {Key: c, Quantity: 4}}, Net(got))
}

func TestNet(t *testing.T) {
	a, b := key("a"), key("b")

	tests := []struct {
		name   string
		deltas []Delta
		want   []Delta
	}{
		{"empty", nil, []Delta{}},
		{"merges per key", []Delta{{a, 3}, {a, -5}}, []Delta{{a, -2}}},
		{"drops cancelled keys", []Delta{{a, 3}, {a, -3}, {b, 1}}, []Delta{{b, 1}}},
		{"sorts into lock order", []Delta{{b, 1}, {a, 1}}, []Delta{{a, 1}, {b, 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Net(tt.deltas))
		})
	}
}

func TestKeys_KeepsCancelledKeys(t *testing.T) {
	a, b := key("a"), key("b")
	assert.Equal(t, []BalanceKey{a, b}, Keys([]Delta{{b, 1}, {a, 2}, {a, -2}}))
}

func TestCheckSufficient(t *testing.T) {
	k := key("a")

	assert.NoError(t, CheckSufficient(k, 5, 5))
	assert.NoError(t, CheckSufficient(k, 5, 0))

	err := CheckSufficient(k, 0, 1)
	require.ErrorIs(t, err, ErrInsufficientStock)
	var stock *InsufficientStockError
	require.ErrorAs(t, err, &stock)
	assert.Equal(t, int64(1), stock.Shortfall())
	assert.Equal(t, k, stock.Key)
}
