package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/syncstock/syncstock-backend/internal/inventory/domain"
	"github.com/syncstock/syncstock-backend/internal/inventory/ledger"
	"github.com/syncstock/syncstock-backend/pkg/errors"
)

const balanceColumns = `id, tenant_id, item_name, catalog_code, sku, location_id, category_id,
	quantity, net_quantity, version, updated_at`

// keyOrder sorts rows the way ledger.BalanceKey.Less does
const keyOrder = ` ORDER BY item_name COLLATE "C", catalog_code COLLATE "C", sku COLLATE "C", location_id, category_id`

const keyMatch = `tenant_id = $1 AND item_name = $2 AND catalog_code = $3 AND sku = $4 AND location_id = $5 AND category_id = $6`

func keyArgs(k ledger.BalanceKey) []interface{} {
	return []interface{}{k.TenantID, k.ItemName, k.CatalogCode, k.SKU, k.LocationID, k.CategoryID}
}

func (t *tx) Receipt(ctx context.Context, tenantID, id string) (*ledger.Receipt, error) {
	if tenantID != t.tenantID || !validID(id) {
		return nil, nil
	}
	var r domain.Receipt
	query := `SELECT ` + receiptColumns + ` FROM receipts WHERE id = $1 AND tenant_id = $2`
	err := t.conn(ctx).GetContext(ctx, &r, query, id, tenantID)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, translate("load receipt", err)
	}
	lr := r.Ledger()
	return &lr, nil
}

func (t *tx) ReceiptDependents(ctx context.Context, tenantID, receiptID string) (ledger.Dependents, error) {
	var deps ledger.Dependents
	if tenantID != t.tenantID || !validID(receiptID) {
		return deps, nil
	}

	var adjustments []domain.Adjustment
	query := `SELECT ` + adjustmentColumns + ` FROM adjustments WHERE tenant_id = $1 AND receipt_id = $2 ORDER BY id`
	if err := t.conn(ctx).SelectContext(ctx, &adjustments, query, tenantID, receiptID); err != nil {
		return deps, translate("load adjustments", err)
	}
	var transfers []domain.Transfer
	query = `SELECT ` + transferColumns + ` FROM transfers WHERE tenant_id = $1 AND receipt_id = $2 ORDER BY id`
	if err := t.conn(ctx).SelectContext(ctx, &transfers, query, tenantID, receiptID); err != nil {
		return deps, translate("load transfers", err)
	}

	for _, a := range adjustments {
		deps.Adjustments = append(deps.Adjustments, a.Ledger())
	}
	for _, tr := range transfers {
		deps.Transfers = append(deps.Transfers, tr.Ledger())
	}
	return deps, nil
}

// LockBalances creates missing rows and locks every row with SELECT FOR
// UPDATE, one key at a time in the order given.
func (t *tx) LockBalances(ctx context.Context, keys []ledger.BalanceKey) (map[ledger.BalanceKey]ledger.Balance, error) {
	out := make(map[ledger.BalanceKey]ledger.Balance, len(keys))
	for _, k := range keys {
		if k.TenantID != t.tenantID {
			return nil, errors.BadRequest("balance key belongs to another tenant")
		}

		insert := `
			INSERT INTO balances (id, tenant_id, item_name, catalog_code, sku, location_id, category_id)
			VALUES ($7, $1, $2, $3, $4, $5, $6)
			ON CONFLICT (tenant_id, item_name, catalog_code, sku, location_id, category_id) DO NOTHING
		`
		if _, err := t.conn(ctx).ExecContext(ctx, insert, append(keyArgs(k), uuid.NewString())...); err != nil {
			return nil, translate("create balance", err)
		}

		var b ledger.Balance
		query := `SELECT ` + balanceColumns + ` FROM balances WHERE ` + keyMatch + ` FOR UPDATE`
		if err := t.conn(ctx).GetContext(ctx, &b, query, keyArgs(k)...); err != nil {
			return nil, translate("lock balance", err)
		}
		out[k] = b
	}
	return out, nil
}

func (t *tx) SaveBalances(ctx context.Context, balances []ledger.Balance) error {
	query := `
		UPDATE balances
		SET quantity = $3, net_quantity = $4, version = $5, updated_at = $6
		WHERE id = $1 AND tenant_id = $2
	`
	for _, b := range balances {
		res, err := t.conn(ctx).ExecContext(ctx, query,
			b.ID, t.tenantID, b.Quantity, b.NetQuantity, b.Version, b.UpdatedAt)
		if err != nil {
			return translate("save balance", err)
		}
		if err := affected(res, "balance"); err != nil {
			return err
		}
	}
	return nil
}

func (t *tx) AppendEntries(ctx context.Context, entries []ledger.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	query := `
		INSERT INTO ledger_entries (
			id, tenant_id, item_name, catalog_code, sku, location_id, category_id,
			event_type, event_id, action, delta, quantity_after, rekey, created_at
		) VALUES (
			:id, :tenant_id, :item_name, :catalog_code, :sku, :location_id, :category_id,
			:event_type, :event_id, :action, :delta, :quantity_after, :rekey, :created_at
		)
	`
	_, err := sqlx.NamedExecContext(ctx, t.conn(ctx), query, entries)
	return translate("append ledger entries", err)
}

func (t *tx) GetBalance(ctx context.Context, key ledger.BalanceKey) (*ledger.Balance, error) {
	key.TenantID = t.tenantID
	if !validID(key.LocationID) || !validID(key.CategoryID) {
		return nil, errors.NotFound("balance")
	}
	var b ledger.Balance
	query := `SELECT ` + balanceColumns + ` FROM balances WHERE ` + keyMatch
	if err := t.conn(ctx).GetContext(ctx, &b, query, keyArgs(key)...); err != nil {
		return nil, notFound("balance", err)
	}
	return &b, nil
}

func (t *tx) ListBalances(ctx context.Context, f domain.BalanceFilter) ([]ledger.Balance, int, error) {
	w := newWhere(t.tenantID)
	if f.ItemName != "" {
		w.add(`item_name ILIKE ? ESCAPE '\'`, "%"+escapeLike(f.ItemName)+"%")
	}
	if f.LocationID != "" {
		w.add("location_id = ?", f.LocationID)
	}
	if f.CategoryID != "" {
		w.add("category_id = ?", f.CategoryID)
	}

	rows := []ledger.Balance{}
	total, err := t.list(ctx, &rows, balanceColumns, "balances", w, keyOrder, f.Limit, f.Offset, "list balances")
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (t *tx) FilterChoices(ctx context.Context) (*domain.FilterChoices, error) {
	choices := &domain.FilterChoices{
		ItemNames:  []string{},
		Locations:  []domain.Choice{},
		Categories: []domain.Choice{},
	}
	q := t.conn(ctx)
	if err := q.SelectContext(ctx, &choices.ItemNames,
		`SELECT DISTINCT item_name FROM balances WHERE tenant_id = $1 ORDER BY item_name COLLATE "C"`, t.tenantID); err != nil {
		return nil, translate("list item names", err)
	}
	if err := q.SelectContext(ctx, &choices.Locations,
		`SELECT id, name FROM locations WHERE tenant_id = $1 ORDER BY name COLLATE "C"`, t.tenantID); err != nil {
		return nil, translate("list location choices", err)
	}
	if err := q.SelectContext(ctx, &choices.Categories,
		`SELECT id, name FROM categories WHERE tenant_id = $1 ORDER BY name COLLATE "C"`, t.tenantID); err != nil {
		return nil, translate("list category choices", err)
	}
	return choices, nil
}

// expectedTotalsQuery replays receipts, adjustments and transfers. Dependents
// take item name, catalog code and SKU from their current receipt.
const expectedTotalsQuery = `
	SELECT item_name, catalog_code, sku, location_id, category_id, SUM(delta) AS total
	FROM (
		SELECT r.item_name, r.catalog_code, r.sku, r.location_id, r.category_id, r.quantity AS delta
		FROM receipts r WHERE r.tenant_id = $1
		UNION ALL
		SELECT r.item_name, r.catalog_code, r.sku, a.location_id, a.category_id, -a.quantity
		FROM adjustments a JOIN receipts r ON r.id = a.receipt_id AND r.tenant_id = a.tenant_id
		WHERE a.tenant_id = $1
		UNION ALL
		SELECT r.item_name, r.catalog_code, r.sku, t.from_location_id, t.category_id, -t.quantity
		FROM transfers t JOIN receipts r ON r.id = t.receipt_id AND r.tenant_id = t.tenant_id
		WHERE t.tenant_id = $1
		UNION ALL
		SELECT r.item_name, r.catalog_code, r.sku, t.to_location_id, t.category_id, t.quantity
		FROM transfers t JOIN receipts r ON r.id = t.receipt_id AND r.tenant_id = t.tenant_id
		WHERE t.tenant_id = $1
	) replay
	GROUP BY item_name, catalog_code, sku, location_id, category_id
`

func (t *tx) ExpectedTotals(ctx context.Context) (map[ledger.BalanceKey]int64, error) {
	var rows []struct {
		ledger.BalanceKey
		Total int64 `db:"total"`
	}
	if err := t.conn(ctx).SelectContext(ctx, &rows, expectedTotalsQuery, t.tenantID); err != nil {
		return nil, translate("replay source records", err)
	}
	totals := make(map[ledger.BalanceKey]int64, len(rows))
	for _, r := range rows {
		k := r.BalanceKey
		k.TenantID = t.tenantID
		totals[k] = r.Total
	}
	return totals, nil
}

func (t *tx) AllBalances(ctx context.Context) ([]ledger.Balance, error) {
	rows := []ledger.Balance{}
	query := `SELECT ` + balanceColumns + ` FROM balances WHERE tenant_id = $1` + keyOrder
	if err := t.conn(ctx).SelectContext(ctx, &rows, query, t.tenantID); err != nil {
		return nil, translate("list balances", err)
	}
	return rows, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
