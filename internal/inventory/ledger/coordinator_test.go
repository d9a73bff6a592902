package ledger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syncstock/syncstock-backend/pkg/logger"
)

// fakeTx is a single-tenant, single-transaction store. Writes apply directly.
type fakeTx struct {
	receipts    map[string]Receipt
	adjustments map[string]Adjustment
	transfers   map[string]Transfer
	balances    map[BalanceKey]Balance
	entries     []Entry
	locked      [][]BalanceKey

	lockErr error
	saveErr error
}

func newFakeTx() *fakeTx {
	return &fakeTx{
		receipts:    map[string]Receipt{},
		adjustments: map[string]Adjustment{},
		transfers:   map[string]Transfer{},
		balances:    map[BalanceKey]Balance{},
	}
}

func (f *fakeTx) Receipt(_ context.Context, tenantID, id string) (*Receipt, error) {
	r, ok := f.receipts[id]
	if !ok || r.TenantID != tenantID {
		return nil, nil
	}
	return &r, nil
}

func (f *fakeTx) ReceiptDependents(_ context.Context, _, receiptID string) (Dependents, error) {
	var d Dependents
	for _, a := range f.adjustments {
		if a.ReceiptID == receiptID {
			d.Adjustments = append(d.Adjustments, a)
		}
	}
	for _, t := range f.transfers {
		if t.ReceiptID == receiptID {
			d.Transfers = append(d.Transfers, t)
		}
	}
	return d, nil
}

func (f *fakeTx) LockBalances(_ context.Context, keys []BalanceKey) (map[BalanceKey]Balance, error) {
	if f.lockErr != nil {
		return nil, f.lockErr
	}
	f.locked = append(f.locked, keys)
	out := map[BalanceKey]Balance{}
	for _, k := range keys {
		out[k] = f.balances[k]
	}
	return out, nil
}

func (f *fakeTx) SaveBalances(_ context.Context, balances []Balance) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	for _, b := range balances {
		f.balances[b.BalanceKey] = b
	}
	return nil
}

func (f *fakeTx) AppendEntries(_ context.Context, entries []Entry) error {
	f.entries = append(f.entries, entries...)
	return nil
}

func (f *fakeTx) qty(k BalanceKey) int64 {
	return f.balances[k].Quantity
}

const tenant = "t1"

func receipt(id, loc string, qty int64) Receipt {
	return Receipt{ID: id, TenantID: tenant, ItemName: "Saline", CatalogCode: "CAT-1", SKU: "S1", LocationID: loc, CategoryID: "c1", Quantity: qty}
}

func adjustment(id, receiptID, loc string, qty int64) Adjustment {
	return Adjustment{ID: id, TenantID: tenant, ReceiptID: receiptID, LocationID: loc, CategoryID: "c1", Quantity: qty}
}

func transfer(id, receiptID, from, to string, qty int64) Transfer {
	return Transfer{ID: id, TenantID: tenant, ReceiptID: receiptID, FromLocationID: from, ToLocationID: to, CategoryID: "c1", Quantity: qty}
}

func newTestCoordinator(opts ...Option) *Coordinator {
	return NewCoordinator(logger.Nop(), opts...)
}

// stockReceipt creates r through the coordinator and stores it in f
func stockReceipt(t *testing.T, c *Coordinator, f *fakeTx, r Receipt) {
	t.Helper()
	_, err := c.ReceiptCreated(context.Background(), f, tenant, r)
	require.NoError(t, err)
	f.receipts[r.ID] = r
}

func TestReceiptCreated_AddsToBucket(t *testing.T) {
	c, f := newTestCoordinator(), newFakeTx()

	commit, err := c.ReceiptCreated(context.Background(), f, tenant, receipt("r1", "a", 10))
	require.NoError(t, err)

	assert.Equal(t, StateCommitted, commit.State)
	assert.Equal(t, int64(10), f.qty(key("a")))
	require.Len(t, f.entries, 1)
	assert.Equal(t, int64(10), f.entries[0].QuantityAfter)
	assert.Equal(t, ActionCreate, f.entries[0].Action)
}

func TestReceiptUpdated_QuantityDecreaseClampsAtZero(t *testing.T) {
	c, f := newTestCoordinator(), newFakeTx()
	stockReceipt(t, c, f, receipt("r1", "a", 10))

	_, err := c.AdjustmentCreated(context.Background(), f, tenant, adjustment("adj1", "r1", "a", 8))
	require.NoError(t, err)

	_, err = c.ReceiptUpdated(context.Background(), f, tenant, receipt("r1", "a", 10), receipt("r1", "a", 5))
	require.NoError(t, err)

	assert.Equal(t, int64(0), f.qty(key("a")))
	assert.Equal(t, int64(-3), f.balances[key("a")].NetQuantity)
}

func TestReceiptUpdated_ImplicitRekeyMovesStock(t *testing.T) {
	c, f := newTestCoordinator(), newFakeTx()
	stockReceipt(t, c, f, receipt("r1", "a", 10))

	commit, err := c.ReceiptUpdated(context.Background(), f, tenant, receipt("r1", "a", 10), receipt("r1", "b", 10))
	require.NoError(t, err)

	assert.True(t, commit.Rekeyed)
	assert.Equal(t, int64(0), f.qty(key("a")))
	assert.Equal(t, int64(10), f.qty(key("b")))
	for _, e := range f.entries[1:] {
		assert.True(t, e.Rekey)
	}
}

func TestReceiptUpdated_ImplicitRekeyDisabled(t *testing.T) {
	c, f := newTestCoordinator(WithImplicitRekey(false)), newFakeTx()
	stockReceipt(t, c, f, receipt("r1", "a", 10))

	_, err := c.ReceiptUpdated(context.Background(), f, tenant, receipt("r1", "a", 10), receipt("r1", "b", 10))
	require.ErrorIs(t, err, ErrImplicitRekey)
	assert.Equal(t, int64(10), f.qty(key("a")))

	_, err = c.ReceiptUpdated(context.Background(), f, tenant, receipt("r1", "a", 10), receipt("r1", "a", 12))
	require.NoError(t, err)
	assert.Equal(t, int64(12), f.qty(key("a")))
}

func TestReceiptUpdated_UnchangedIsNoop(t *testing.T) {
	c, f := newTestCoordinator(), newFakeTx()
	stockReceipt(t, c, f, receipt("r1", "a", 10))
	f.locked = nil

	commit, err := c.ReceiptUpdated(context.Background(), f, tenant, receipt("r1", "a", 10), receipt("r1", "a", 10))
	require.NoError(t, err)
	assert.Empty(t, commit.Changes)
	assert.Empty(t, f.locked)
}

func TestAdjustmentCreated_InsufficientStock(t *testing.T) {
	c, f := newTestCoordinator(), newFakeTx()
	stockReceipt(t, c, f, receipt("r1", "a", 5))

	_, err := c.AdjustmentCreated(context.Background(), f, tenant, adjustment("adj1", "r1", "a", 6))
	var stock *InsufficientStockError
	require.ErrorAs(t, err, &stock)
	assert.Equal(t, int64(5), stock.Available)
	assert.Equal(t, int64(6), stock.Requested)
	assert.Equal(t, int64(5), f.qty(key("a")))
}

func TestAdjustmentCreated_UnknownBucketHasNoStock(t *testing.T) {
	c, f := newTestCoordinator(), newFakeTx()
	stockReceipt(t, c, f, receipt("r1", "a", 5))

	_, err := c.AdjustmentCreated(context.Background(), f, tenant, adjustment("adj1", "r1", "elsewhere", 1))
	assert.ErrorIs(t, err, ErrInsufficientStock)
}

func TestAdjustmentCreated_MissingReceipt(t *testing.T) {
	var buf bytes.Buffer
	c := NewCoordinator(logger.NewWithWriter(&buf, "test", "test"))
	f := newFakeTx()

	_, err := c.AdjustmentCreated(context.Background(), f, tenant, adjustment("adj1", "ghost", "a", 1))
	assert.ErrorIs(t, err, ErrMissingReferencedReceipt)
	assert.Contains(t, buf.String(), `"level":"error"`)
	assert.Empty(t, f.balances)
}

func TestAdjustmentUpdated_ChecksAgainstReversedBalance(t *testing.T) {
	c, f := newTestCoordinator(), newFakeTx()
	stockReceipt(t, c, f, receipt("r1", "a", 10))
	old := adjustment("adj1", "r1", "a", 6)
	_, err := c.AdjustmentCreated(context.Background(), f, tenant, old)
	require.NoError(t, err)

	// 4 on hand plus the 6 being reversed covers a new depletion of 10
	require.NoError(t, c.ValidateAdjustmentUpdate(context.Background(), f, tenant, old, adjustment("adj1", "r1", "a", 10)))
	_, err = c.AdjustmentUpdated(context.Background(), f, tenant, old, adjustment("adj1", "r1", "a", 10))
	require.NoError(t, err)
	assert.Equal(t, int64(0), f.qty(key("a")))

	err = c.ValidateAdjustmentUpdate(context.Background(), f, tenant, adjustment("adj1", "r1", "a", 10), adjustment("adj1", "r1", "a", 11))
	assert.ErrorIs(t, err, ErrInsufficientStock)
}

func TestAdjustmentUpdated_DecreaseNeverRejected(t *testing.T) {
	c, f := newTestCoordinator(), newFakeTx()
	stockReceipt(t, c, f, receipt("r1", "a", 10))
	old := adjustment("adj1", "r1", "a", 10)
	_, err := c.AdjustmentCreated(context.Background(), f, tenant, old)
	require.NoError(t, err)

	_, err = c.AdjustmentUpdated(context.Background(), f, tenant, old, adjustment("adj1", "r1", "a", 4))
	require.NoError(t, err)
	assert.Equal(t, int64(6), f.qty(key("a")))
}

func TestAdjustmentDeleted_Restocks(t *testing.T) {
	c, f := newTestCoordinator(), newFakeTx()
	stockReceipt(t, c, f, receipt("r1", "a", 10))
	a := adjustment("adj1", "r1", "a", 4)
	_, err := c.AdjustmentCreated(context.Background(), f, tenant, a)
	require.NoError(t, err)

	_, err = c.AdjustmentDeleted(context.Background(), f, tenant, a)
	require.NoError(t, err)
	assert.Equal(t, int64(10), f.qty(key("a")))
}

func TestTransferCreated_MovesStock(t *testing.T) {
	c, f := newTestCoordinator(), newFakeTx()
	stockReceipt(t, c, f, receipt("r1", "a", 10))

	commit, err := c.TransferCreated(context.Background(), f, tenant, transfer("t1", "r1", "a", "b", 4))
	require.NoError(t, err)

	assert.Len(t, commit.Changes, 2)
	assert.Equal(t, int64(6), f.qty(key("a")))
	assert.Equal(t, int64(4), f.qty(key("b")))
	assert.Equal(t, []BalanceKey{key("a"), key("b")}, f.locked[len(f.locked)-1])
}

func TestTransferCreated_InsufficientSourceLeavesBothBuckets(t *testing.T) {
	c, f := newTestCoordinator(), newFakeTx()
	stockReceipt(t, c, f, receipt("r1", "a", 3))

	_, err := c.TransferCreated(context.Background(), f, tenant, transfer("t1", "r1", "a", "b", 4))
	require.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, int64(3), f.qty(key("a")))
	assert.Equal(t, int64(0), f.qty(key("b")))
}

func TestTransferUpdated_LocksAllBucketsInOrder(t *testing.T) {
	c, f := newTestCoordinator(), newFakeTx()
	stockReceipt(t, c, f, receipt("r1", "a", 10))
	stockReceipt(t, c, f, receipt("r2", "c", 10))
	old := transfer("t1", "r1", "a", "b", 4)
	_, err := c.TransferCreated(context.Background(), f, tenant, old)
	require.NoError(t, err)

	_, err = c.TransferUpdated(context.Background(), f, tenant, old, transfer("t1", "r1", "c", "d", 5))
	require.NoError(t, err)

	assert.Equal(t, []BalanceKey{key("a"), key("b"), key("c"), key("d")}, f.locked[len(f.locked)-1])
	assert.Equal(t, int64(10), f.qty(key("a")))
	assert.Equal(t, int64(0), f.qty(key("b")))
	assert.Equal(t, int64(5), f.qty(key("c")))
	assert.Equal(t, int64(5), f.qty(key("d")))
}

func TestTransferDeleted_Reverses(t *testing.T) {
	c, f := newTestCoordinator(), newFakeTx()
	stockReceipt(t, c, f, receipt("r1", "a", 10))
	tr := transfer("t1", "r1", "a", "b", 4)
	_, err := c.TransferCreated(context.Background(), f, tenant, tr)
	require.NoError(t, err)

	_, err = c.TransferDeleted(context.Background(), f, tenant, tr)
	require.NoError(t, err)
	assert.Equal(t, int64(10), f.qty(key("a")))
	assert.Equal(t, int64(0), f.qty(key("b")))
}

func TestReceiptRekeyed_MovesDependents(t *testing.T) {
	c, f := newTestCoordinator(), newFakeTx()
	old := receipt("r1", "a", 10)
	stockReceipt(t, c, f, old)

	adj := adjustment("adj1", "r1", "a", 2)
	_, err := c.AdjustmentCreated(context.Background(), f, tenant, adj)
	require.NoError(t, err)
	f.adjustments[adj.ID] = adj

	renamed := old
	renamed.SKU = "S2"
	_, err = c.ReceiptRekeyed(context.Background(), f, tenant, old, renamed)
	require.NoError(t, err)

	newKey := key("a")
	newKey.SKU = "S2"
	assert.Equal(t, int64(0), f.qty(key("a")))
	assert.Equal(t, int64(0), f.balances[key("a")].NetQuantity)
	assert.Equal(t, int64(8), f.qty(newKey))
}

func TestReceiptDeleted_CascadesDependents(t *testing.T) {
	c, f := newTestCoordinator(), newFakeTx()
	r := receipt("r1", "a", 10)
	stockReceipt(t, c, f, r)

	adj := adjustment("adj1", "r1", "a", 2)
	_, err := c.AdjustmentCreated(context.Background(), f, tenant, adj)
	require.NoError(t, err)
	f.adjustments[adj.ID] = adj

	tr := transfer("t1", "r1", "a", "b", 3)
	_, err = c.TransferCreated(context.Background(), f, tenant, tr)
	require.NoError(t, err)
	f.transfers[tr.ID] = tr

	commit, err := c.ReceiptDeleted(context.Background(), f, tenant, r)
	require.NoError(t, err)

	assert.Len(t, commit.Cascaded.Adjustments, 1)
	assert.Len(t, commit.Cascaded.Transfers, 1)
	assert.Equal(t, int64(0), f.balances[key("a")].NetQuantity)
	assert.Equal(t, int64(0), f.balances[key("b")].NetQuantity)
}

func TestApply_StoreUnavailableIsRetryable(t *testing.T) {
	c, f := newTestCoordinator(), newFakeTx()
	f.lockErr = Unavailable("lock balances", errors.New("lock timeout"))

	_, err := c.ReceiptCreated(context.Background(), f, tenant, receipt("r1", "a", 10))
	assert.True(t, IsRetryable(err))
}

func TestApply_SaveFailureRejects(t *testing.T) {
	c, f := newTestCoordinator(), newFakeTx()
	f.saveErr = errors.New("disk full")

	_, err := c.ReceiptCreated(context.Background(), f, tenant, receipt("r1", "a", 10))
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
	assert.Empty(t, f.entries)
}

func TestCheckTenant(t *testing.T) {
	c, f := newTestCoordinator(), newFakeTx()

	_, err := c.ReceiptCreated(context.Background(), f, "", receipt("r1", "a", 1))
	assert.Error(t, err)

	_, err = c.ReceiptCreated(context.Background(), f, "t2", receipt("r1", "a", 1))
	assert.Error(t, err)
	assert.Empty(t, f.balances)
}

func TestReplay_SumMatchesNetQuantity(t *testing.T) {
	c, f := newTestCoordinator(), newFakeTx()
	stockReceipt(t, c, f, receipt("r1", "a", 10))
	ctx := context.Background()

	a1 := adjustment("adj1", "r1", "a", 3)
	_, err := c.AdjustmentCreated(ctx, f, tenant, a1)
	require.NoError(t, err)
	tr := transfer("t1", "r1", "a", "b", 5)
	_, err = c.TransferCreated(ctx, f, tenant, tr)
	require.NoError(t, err)
	_, err = c.AdjustmentUpdated(ctx, f, tenant, a1, adjustment("adj1", "r1", "a", 1))
	require.NoError(t, err)

	sums := map[BalanceKey]int64{}
	for _, e := range f.entries {
		sums[e.BalanceKey] += e.Delta
	}
	for k, b := range f.balances {
		assert.Equal(t, sums[k], b.NetQuantity, k.String())
		assert.GreaterOrEqual(t, b.Quantity, int64(0))
	}
	assert.Equal(t, int64(4), f.qty(key("a")))
	assert.Equal(t, int64(5), f.qty(key("b")))
}

func TestReconcile_ReportsAndRepairsDrift(t *testing.T) {
	c, f := newTestCoordinator(), newFakeTx()
	stockReceipt(t, c, f, receipt("r1", "a", 10))

	stale := f.balances[key("a")]
	stale.NetQuantity = 7
	stale.Quantity = 7
	f.balances[key("a")] = stale
	orphan := Balance{BalanceKey: key("z"), Quantity: 2, NetQuantity: 2}
	f.balances[key("z")] = orphan

	expected := map[BalanceKey]int64{key("a"): 10}
	stored := []Balance{stale, orphan}

	report, err := c.Reconcile(context.Background(), f, tenant, expected, stored, false)
	require.NoError(t, err)
	require.Len(t, report.Drifts, 2)
	assert.Equal(t, Drift{Key: key("a"), Expected: 10, Stored: 7, StoredQuantity: 7}, report.Drifts[0])
	assert.False(t, report.Repaired)
	assert.Equal(t, int64(7), f.qty(key("a")))

	report, err = c.Reconcile(context.Background(), f, tenant, expected, stored, true)
	require.NoError(t, err)
	assert.True(t, report.Repaired)
	assert.Equal(t, int64(10), f.qty(key("a")))
	assert.Equal(t, int64(0), f.qty(key("z")))
	assert.Equal(t, int64(0), f.balances[key("z")].NetQuantity)

	last := f.entries[len(f.entries)-2:]
	assert.Equal(t, EventReconcile, last[0].EventType)
	assert.Equal(t, int64(3), last[0].Delta)
	assert.Equal(t, int64(-2), last[1].Delta)
}

func TestFindDrift_NoDrift(t *testing.T) {
	stored := []Balance{
		{BalanceKey: key("a"), Quantity: 4, NetQuantity: 4},
		{BalanceKey: key("b"), Quantity: 0, NetQuantity: -2},
	}
	assert.Empty(t, FindDrift(map[BalanceKey]int64{key("a"): 4, key("b"): -2}, stored))
}

func TestFindDrift_ClampedQuantityAboveTotal(t *testing.T) {
	stored := []Balance{{BalanceKey: key("a"), Quantity: 10, NetQuantity: 5}}

	drifts := FindDrift(map[BalanceKey]int64{key("a"): 5}, stored)
	require.Len(t, drifts, 1)
	assert.Equal(t, Drift{Key: key("a"), Expected: 5, Stored: 5, StoredQuantity: 10}, drifts[0])
}

func TestReconcile_RepairsQuantityOnlyDrift(t *testing.T) {
	c, f := newTestCoordinator(), newFakeTx()
	stale := Balance{BalanceKey: key("a"), Quantity: 10, NetQuantity: 5}
	f.balances[key("a")] = stale

	report, err := c.Reconcile(context.Background(), f, tenant, map[BalanceKey]int64{key("a"): 5}, []Balance{stale}, true)
	require.NoError(t, err)
	assert.True(t, report.Repaired)
	assert.Equal(t, int64(5), f.qty(key("a")))
	assert.Equal(t, int64(5), f.balances[key("a")].NetQuantity)
	require.Len(t, report.Commit.Changes, 1)
	assert.Equal(t, int64(0), report.Commit.Changes[0].Delta)
}

func TestQuantityFollowsSignedTotalAfterClamp(t *testing.T) {
	c, f := newTestCoordinator(), newFakeTx()
	ctx := context.Background()
	r := receipt("r1", "a", 10)
	stockReceipt(t, c, f, r)

	adj := adjustment("adj1", "r1", "a", 10)
	_, err := c.AdjustmentCreated(ctx, f, tenant, adj)
	require.NoError(t, err)

	edited := receipt("r1", "a", 5)
	_, err = c.ReceiptUpdated(ctx, f, tenant, r, edited)
	require.NoError(t, err)
	f.receipts[r.ID] = edited
	assert.Equal(t, int64(0), f.qty(key("a")))
	assert.Equal(t, int64(-5), f.balances[key("a")].NetQuantity)

	_, err = c.AdjustmentDeleted(ctx, f, tenant, adj)
	require.NoError(t, err)

	// the records now sum to 5, not 10
	assert.Equal(t, int64(5), f.qty(key("a")))
	assert.Empty(t, FindDrift(map[BalanceKey]int64{key("a"): 5}, []Balance{f.balances[key("a")]}))

	_, err = c.AdjustmentCreated(ctx, f, tenant, adjustment("adj2", "r1", "a", 6))
	var stock *InsufficientStockError
	require.ErrorAs(t, err, &stock)
	assert.Equal(t, int64(5), stock.Available)
}

func TestTransferUpdated_ShrinkAfterDestinationConsumed(t *testing.T) {
	c, f := newTestCoordinator(), newFakeTx()
	ctx := context.Background()
	stockReceipt(t, c, f, receipt("r1", "a", 10))

	old := transfer("t1", "r1", "a", "b", 10)
	_, err := c.TransferCreated(ctx, f, tenant, old)
	require.NoError(t, err)
	_, err = c.AdjustmentCreated(ctx, f, tenant, adjustment("adj1", "r1", "b", 10))
	require.NoError(t, err)

	cur := transfer("t1", "r1", "a", "b", 5)
	require.NoError(t, c.ValidateTransferUpdate(ctx, f, tenant, old, cur))
	_, err = c.TransferUpdated(ctx, f, tenant, old, cur)
	require.NoError(t, err)

	assert.Equal(t, int64(5), f.qty(key("a")))
	assert.Equal(t, int64(0), f.qty(key("b")))
	assert.Equal(t, int64(-5), f.balances[key("b")].NetQuantity)
}

func TestTransferUpdated_ChangeDestinationOnly(t *testing.T) {
	c, f := newTestCoordinator(), newFakeTx()
	ctx := context.Background()
	stockReceipt(t, c, f, receipt("r1", "a", 10))

	old := transfer("t1", "r1", "a", "b", 4)
	_, err := c.TransferCreated(ctx, f, tenant, old)
	require.NoError(t, err)
	_, err = c.AdjustmentCreated(ctx, f, tenant, adjustment("adj1", "r1", "b", 4))
	require.NoError(t, err)

	_, err = c.TransferUpdated(ctx, f, tenant, old, transfer("t1", "r1", "a", "c", 4))
	require.NoError(t, err)

	assert.Equal(t, int64(6), f.qty(key("a")))
	assert.Equal(t, int64(0), f.qty(key("b")))
	assert.Equal(t, int64(4), f.qty(key("c")))
}

func TestTransferUpdated_GrowthStillChecksSource(t *testing.T) {
	c, f := newTestCoordinator(), newFakeTx()
	ctx := context.Background()
	stockReceipt(t, c, f, receipt("r1", "a", 10))

	old := transfer("t1", "r1", "a", "b", 8)
	_, err := c.TransferCreated(ctx, f, tenant, old)
	require.NoError(t, err)

	_, err = c.TransferUpdated(ctx, f, tenant, old, transfer("t1", "r1", "a", "b", 11))
	var stock *InsufficientStockError
	require.ErrorAs(t, err, &stock)
	assert.Equal(t, key("a"), stock.Key)
	assert.Equal(t, int64(2), stock.Available)
	assert.Equal(t, int64(3), stock.Requested)
	assert.Equal(t, int64(8), f.qty(key("b")))
}

func TestRejection_ReportsStage(t *testing.T) {
	c, f := newTestCoordinator(), newFakeTx()
	stockReceipt(t, c, f, receipt("r1", "a", 5))

	_, err := c.AdjustmentCreated(context.Background(), f, tenant, adjustment("adj1", "r1", "a", 6))
	stage, ok := RejectedAt(err)
	require.True(t, ok)
	assert.Equal(t, StateProposed, stage)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	f.saveErr = errors.New("disk full")
	_, err = c.ReceiptCreated(context.Background(), f, tenant, receipt("r2", "a", 1))
	stage, ok = RejectedAt(err)
	require.True(t, ok)
	assert.Equal(t, StateValidated, stage)

	_, ok = RejectedAt(errors.New("plain"))
	assert.False(t, ok)
}

func TestLifecycle_ReportsTransitions(t *testing.T) {
	var seen []State
	lc := newLifecycle()
	lc.onTransition = func(_, to State) { seen = append(seen, to) }

	require.NoError(t, lc.to(StateValidated))
	err := lc.reject(proposal{event: EventAdjustment, action: ActionCreate, eventID: "adj1"}, ErrInsufficientStock)

	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, StateValidated, rejected.Stage)
	assert.Equal(t, []State{StateValidated, StateRejected}, seen)
	assert.Equal(t, StateRejected, lc.state)
}
