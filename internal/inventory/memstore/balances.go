package memstore

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/syncstock/syncstock-backend/internal/inventory/domain"
	"github.com/syncstock/syncstock-backend/internal/inventory/ledger"
	"github.com/syncstock/syncstock-backend/pkg/errors"
)

func (t *tx) Receipt(ctx context.Context, tenantID, id string) (*ledger.Receipt, error) {
	if tenantID != t.tenantID {
		return nil, nil
	}
	var (
		r  domain.Receipt
		ok bool
	)
	t.read(func() { r, ok = t.receipts.lookup(t.data.receipts, id) })
	if !ok {
		return nil, nil
	}
	lr := r.Ledger()
	return &lr, nil
}

func (t *tx) ReceiptDependents(ctx context.Context, tenantID, receiptID string) (ledger.Dependents, error) {
	var deps ledger.Dependents
	if tenantID != t.tenantID {
		return deps, nil
	}
	t.read(func() {
		for _, a := range t.adjustments.all(t.data.adjustments) {
			if a.ReceiptID == receiptID {
				deps.Adjustments = append(deps.Adjustments, a.Ledger())
			}
		}
		for _, tr := range t.transfers.all(t.data.transfers) {
			if tr.ReceiptID == receiptID {
				deps.Transfers = append(deps.Transfers, tr.Ledger())
			}
		}
	})
	sort.Slice(deps.Adjustments, func(i, j int) bool { return deps.Adjustments[i].ID < deps.Adjustments[j].ID })
	sort.Slice(deps.Transfers, func(i, j int) bool { return deps.Transfers[i].ID < deps.Transfers[j].ID })
	return deps, nil
}

func (t *tx) LockBalances(ctx context.Context, keys []ledger.BalanceKey) (map[ledger.BalanceKey]ledger.Balance, error) {
	out := make(map[ledger.BalanceKey]ledger.Balance, len(keys))
	for _, k := range keys {
		if k.TenantID != t.tenantID {
			return nil, errors.BadRequest("balance key belongs to another tenant")
		}
		if err := t.lock(ctx, "balance:"+k.String()); err != nil {
			return nil, err
		}
		b, ok := t.balance(k)
		if !ok {
			b = ledger.Balance{ID: uuid.NewString(), BalanceKey: k, UpdatedAt: t.store.now().UTC()}
			t.balances[k] = b
		}
		out[k] = b
	}
	return out, nil
}

func (t *tx) SaveBalances(ctx context.Context, balances []ledger.Balance) error {
	for _, b := range balances {
		if _, ok := t.held["balance:"+b.BalanceKey.String()]; !ok {
			return errors.Internal("balance saved without holding its lock")
		}
		if b.Quantity < 0 {
			return errors.BadRequest("quantity must not be negative")
		}
		if b.Quantity != max(b.NetQuantity, 0) {
			return errors.BadRequest("quantity must equal the clamped net quantity")
		}
		t.balances[b.BalanceKey] = b
	}
	return nil
}

func (t *tx) AppendEntries(ctx context.Context, entries []ledger.Entry) error {
	t.entries = append(t.entries, entries...)
	return nil
}

func (t *tx) balance(k ledger.BalanceKey) (ledger.Balance, bool) {
	if b, ok := t.balances[k]; ok {
		return b, true
	}
	var (
		b  ledger.Balance
		ok bool
	)
	t.read(func() { b, ok = t.data.balances[k] })
	return b, ok
}

// allBalancesLocked merges staged and committed rows. The caller holds store.mu.
func (t *tx) allBalancesLocked() []ledger.Balance {
	out := make([]ledger.Balance, 0, len(t.data.balances)+len(t.balances))
	for k, b := range t.data.balances {
		if _, staged := t.balances[k]; !staged {
			out = append(out, b)
		}
	}
	for _, b := range t.balances {
		out = append(out, b)
	}
	return out
}

func (t *tx) GetBalance(ctx context.Context, key ledger.BalanceKey) (*ledger.Balance, error) {
	key.TenantID = t.tenantID
	b, ok := t.balance(key)
	if !ok {
		return nil, errors.NotFound("balance")
	}
	return &b, nil
}

func (t *tx) ListBalances(ctx context.Context, f domain.BalanceFilter) ([]ledger.Balance, int, error) {
	var all []ledger.Balance
	t.read(func() { all = t.allBalancesLocked() })

	needle := strings.ToLower(f.ItemName)
	rows := make([]ledger.Balance, 0, len(all))
	for _, b := range all {
		if needle != "" && !strings.Contains(strings.ToLower(b.ItemName), needle) {
			continue
		}
		if f.LocationID != "" && b.LocationID != f.LocationID {
			continue
		}
		if f.CategoryID != "" && b.CategoryID != f.CategoryID {
			continue
		}
		rows = append(rows, b)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].BalanceKey.Less(rows[j].BalanceKey) })
	return page(rows, f.Limit, f.Offset), len(rows), nil
}

func (t *tx) FilterChoices(ctx context.Context) (*domain.FilterChoices, error) {
	choices := &domain.FilterChoices{
		ItemNames:  []string{},
		Locations:  []domain.Choice{},
		Categories: []domain.Choice{},
	}
	t.read(func() {
		seen := map[string]struct{}{}
		for _, b := range t.allBalancesLocked() {
			if _, ok := seen[b.ItemName]; !ok {
				seen[b.ItemName] = struct{}{}
				choices.ItemNames = append(choices.ItemNames, b.ItemName)
			}
		}
		for _, l := range t.locations.all(t.data.locations) {
			choices.Locations = append(choices.Locations, domain.Choice{ID: l.ID, Name: l.Name})
		}
		for _, c := range t.categories.all(t.data.categories) {
			choices.Categories = append(choices.Categories, domain.Choice{ID: c.ID, Name: c.Name})
		}
	})
	sort.Strings(choices.ItemNames)
	sort.Slice(choices.Locations, func(i, j int) bool { return choices.Locations[i].Name < choices.Locations[j].Name })
	sort.Slice(choices.Categories, func(i, j int) bool { return choices.Categories[i].Name < choices.Categories[j].Name })
	return choices, nil
}

// ExpectedTotals replays every source record against its current receipt
func (t *tx) ExpectedTotals(ctx context.Context) (map[ledger.BalanceKey]int64, error) {
	totals := map[ledger.BalanceKey]int64{}
	var (
		receipts    []domain.Receipt
		adjustments []domain.Adjustment
		transfers   []domain.Transfer
	)
	t.read(func() {
		receipts = t.receipts.all(t.data.receipts)
		adjustments = t.adjustments.all(t.data.adjustments)
		transfers = t.transfers.all(t.data.transfers)
	})

	byID := make(map[string]ledger.Receipt, len(receipts))
	for _, r := range receipts {
		lr := r.Ledger()
		byID[r.ID] = lr
		totals[ledger.ResolveReceipt(lr)] += r.Quantity
	}
	for _, a := range adjustments {
		src, ok := byID[a.ReceiptID]
		if !ok {
			continue
		}
		key, err := ledger.ResolveAdjustment(a.Ledger(), &src)
		if err != nil {
			return nil, err
		}
		totals[key] -= a.Quantity
	}
	for _, tr := range transfers {
		src, ok := byID[tr.ReceiptID]
		if !ok {
			continue
		}
		from, to, err := ledger.ResolveTransfer(tr.Ledger(), &src)
		if err != nil {
			return nil, err
		}
		totals[from] -= tr.Quantity
		totals[to] += tr.Quantity
	}
	return totals, nil
}

func (t *tx) AllBalances(ctx context.Context) ([]ledger.Balance, error) {
	var rows []ledger.Balance
	t.read(func() { rows = t.allBalancesLocked() })
	sort.Slice(rows, func(i, j int) bool { return rows[i].BalanceKey.Less(rows[j].BalanceKey) })
	return rows, nil
}
