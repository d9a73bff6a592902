package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/syncstock/syncstock-backend/internal/inventory/domain"
	"github.com/syncstock/syncstock-backend/pkg/errors"
)

// where accumulates AND-ed conditions. Every ? in one condition binds the
// same argument.
type where struct {
	conds []string
	args  []interface{}
}

func newWhere(tenantID string) *where {
	return &where{conds: []string{"tenant_id = $1"}, args: []interface{}{tenantID}}
}

func (w *where) add(cond string, arg interface{}) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, strings.ReplaceAll(cond, "?", fmt.Sprintf("$%d", len(w.args))))
}

func (w *where) String() string {
	return " WHERE " + strings.Join(w.conds, " AND ")
}

const newestFirst = ` ORDER BY created_at DESC, id`

// list runs a count and a page query over the same filter
func (t *tx) list(ctx context.Context, dest interface{}, columns, table string, w *where, order string, limit, offset int, op string) (int, error) {
	var total int
	if err := t.conn(ctx).GetContext(ctx, &total, `SELECT COUNT(*) FROM `+table+w.String(), w.args...); err != nil {
		return 0, translate(op, err)
	}

	limit, offset = domain.Page(limit, offset)
	args := append(append([]interface{}{}, w.args...), limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM %s%s%s LIMIT $%d OFFSET $%d`,
		columns, table, w.String(), order, len(w.args)+1, len(w.args)+2)
	if err := t.conn(ctx).SelectContext(ctx, dest, query, args...); err != nil {
		return 0, translate(op, err)
	}
	return total, nil
}

// Receipts

const receiptColumns = `id, tenant_id, item_name, catalog_code, sku, supplier_name, description, quantity, price,
	receipt_date, expiration_date, location_id, category_id, created_by, created_at, updated_at`

func (t *tx) CreateReceipt(ctx context.Context, r *domain.Receipt) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.TenantID = t.tenantID

	query := `
		INSERT INTO receipts (
			id, tenant_id, item_name, catalog_code, sku, supplier_name, description, quantity, price,
			receipt_date, expiration_date, location_id, category_id, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at
	`
	err := t.conn(ctx).QueryRowxContext(ctx, query,
		r.ID, r.TenantID, r.ItemName, r.CatalogCode, r.SKU, r.SupplierName, r.Description, r.Quantity, r.Price,
		r.ReceiptDate, r.ExpirationDate, r.LocationID, r.CategoryID, r.CreatedBy,
	).Scan(&r.CreatedAt, &r.UpdatedAt)
	return translate("create receipt", err)
}

func (t *tx) GetReceipt(ctx context.Context, id string) (*domain.Receipt, error) {
	return t.getReceipt(ctx, id, "")
}

func (t *tx) GetReceiptForUpdate(ctx context.Context, id string) (*domain.Receipt, error) {
	return t.getReceipt(ctx, id, " FOR UPDATE")
}

func (t *tx) getReceipt(ctx context.Context, id, lock string) (*domain.Receipt, error) {
	if !validID(id) {
		return nil, errors.NotFound("receipt")
	}
	var r domain.Receipt
	query := `SELECT ` + receiptColumns + ` FROM receipts WHERE id = $1 AND tenant_id = $2` + lock
	if err := t.conn(ctx).GetContext(ctx, &r, query, id, t.tenantID); err != nil {
		return nil, notFound("receipt", err)
	}
	return &r, nil
}

func (t *tx) ListReceipts(ctx context.Context, f domain.RecordFilter) ([]domain.Receipt, int, error) {
	w := newWhere(t.tenantID)
	if f.ReceiptID != "" {
		w.add("id = ?", f.ReceiptID)
	}
	if f.LocationID != "" {
		w.add("location_id = ?", f.LocationID)
	}
	if f.CategoryID != "" {
		w.add("category_id = ?", f.CategoryID)
	}
	rows := []domain.Receipt{}
	total, err := t.list(ctx, &rows, receiptColumns, "receipts", w, newestFirst, f.Limit, f.Offset, "list receipts")
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (t *tx) UpdateReceipt(ctx context.Context, r *domain.Receipt) error {
	if !validID(r.ID) {
		return errors.NotFound("receipt")
	}
	r.TenantID = t.tenantID
	query := `
		UPDATE receipts SET
			item_name = $3, catalog_code = $4, sku = $5, supplier_name = $6, description = $7,
			quantity = $8, price = $9, receipt_date = $10, expiration_date = $11,
			location_id = $12, category_id = $13, updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2
		RETURNING created_by, created_at, updated_at
	`
	err := t.conn(ctx).QueryRowxContext(ctx, query,
		r.ID, r.TenantID, r.ItemName, r.CatalogCode, r.SKU, r.SupplierName, r.Description,
		r.Quantity, r.Price, r.ReceiptDate, r.ExpirationDate, r.LocationID, r.CategoryID,
	).Scan(&r.CreatedBy, &r.CreatedAt, &r.UpdatedAt)
	return notFound("receipt", err)
}

func (t *tx) DeleteReceipt(ctx context.Context, id string) error {
	if !validID(id) {
		return errors.NotFound("receipt")
	}
	res, err := t.conn(ctx).ExecContext(ctx, `DELETE FROM receipts WHERE id = $1 AND tenant_id = $2`, id, t.tenantID)
	if err != nil {
		return translate("delete receipt", err)
	}
	return affected(res, "receipt")
}

// Adjustments

const adjustmentColumns = `id, tenant_id, receipt_id, adjustment_type, quantity, adjustment_date, reason,
	location_id, category_id, sku, catalog_code, created_by, created_at, updated_at`

func (t *tx) CreateAdjustment(ctx context.Context, a *domain.Adjustment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.TenantID = t.tenantID

	query := `
		INSERT INTO adjustments (
			id, tenant_id, receipt_id, adjustment_type, quantity, adjustment_date, reason,
			location_id, category_id, sku, catalog_code, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`
	err := t.conn(ctx).QueryRowxContext(ctx, query,
		a.ID, a.TenantID, a.ReceiptID, a.AdjustmentType, a.Quantity, a.AdjustmentDate, a.Reason,
		a.LocationID, a.CategoryID, a.SKU, a.CatalogCode, a.CreatedBy,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	return translate("create adjustment", err)
}

func (t *tx) GetAdjustment(ctx context.Context, id string) (*domain.Adjustment, error) {
	return t.getAdjustment(ctx, id, "")
}

func (t *tx) GetAdjustmentForUpdate(ctx context.Context, id string) (*domain.Adjustment, error) {
	return t.getAdjustment(ctx, id, " FOR UPDATE")
}

func (t *tx) getAdjustment(ctx context.Context, id, lock string) (*domain.Adjustment, error) {
	if !validID(id) {
		return nil, errors.NotFound("adjustment")
	}
	var a domain.Adjustment
	query := `SELECT ` + adjustmentColumns + ` FROM adjustments WHERE id = $1 AND tenant_id = $2` + lock
	if err := t.conn(ctx).GetContext(ctx, &a, query, id, t.tenantID); err != nil {
		return nil, notFound("adjustment", err)
	}
	return &a, nil
}

func (t *tx) ListAdjustments(ctx context.Context, f domain.RecordFilter) ([]domain.Adjustment, int, error) {
	w := newWhere(t.tenantID)
	if f.ReceiptID != "" {
		w.add("receipt_id = ?", f.ReceiptID)
	}
	if f.LocationID != "" {
		w.add("location_id = ?", f.LocationID)
	}
	if f.CategoryID != "" {
		w.add("category_id = ?", f.CategoryID)
	}
	rows := []domain.Adjustment{}
	total, err := t.list(ctx, &rows, adjustmentColumns, "adjustments", w, newestFirst, f.Limit, f.Offset, "list adjustments")
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (t *tx) UpdateAdjustment(ctx context.Context, a *domain.Adjustment) error {
	if !validID(a.ID) {
		return errors.NotFound("adjustment")
	}
	a.TenantID = t.tenantID
	query := `
		UPDATE adjustments SET
			receipt_id = $3, adjustment_type = $4, quantity = $5, adjustment_date = $6, reason = $7,
			location_id = $8, category_id = $9, sku = $10, catalog_code = $11, updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2
		RETURNING created_by, created_at, updated_at
	`
	err := t.conn(ctx).QueryRowxContext(ctx, query,
		a.ID, a.TenantID, a.ReceiptID, a.AdjustmentType, a.Quantity, a.AdjustmentDate, a.Reason,
		a.LocationID, a.CategoryID, a.SKU, a.CatalogCode,
	).Scan(&a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	return notFound("adjustment", err)
}

func (t *tx) DeleteAdjustment(ctx context.Context, id string) error {
	if !validID(id) {
		return errors.NotFound("adjustment")
	}
	res, err := t.conn(ctx).ExecContext(ctx, `DELETE FROM adjustments WHERE id = $1 AND tenant_id = $2`, id, t.tenantID)
	if err != nil {
		return translate("delete adjustment", err)
	}
	return affected(res, "adjustment")
}

// Transfers

const transferColumns = `id, tenant_id, receipt_id, quantity, from_location_id, to_location_id, category_id,
	price, transfer_date, sku, catalog_code, created_by, created_at, updated_at`

func (t *tx) CreateTransfer(ctx context.Context, tr *domain.Transfer) error {
	if tr.ID == "" {
		tr.ID = uuid.NewString()
	}
	tr.TenantID = t.tenantID

	query := `
		INSERT INTO transfers (
			id, tenant_id, receipt_id, quantity, from_location_id, to_location_id, category_id,
			price, transfer_date, sku, catalog_code, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`
	err := t.conn(ctx).QueryRowxContext(ctx, query,
		tr.ID, tr.TenantID, tr.ReceiptID, tr.Quantity, tr.FromLocationID, tr.ToLocationID, tr.CategoryID,
		tr.Price, tr.TransferDate, tr.SKU, tr.CatalogCode, tr.CreatedBy,
	).Scan(&tr.CreatedAt, &tr.UpdatedAt)
	return translate("create transfer", err)
}

func (t *tx) GetTransfer(ctx context.Context, id string) (*domain.Transfer, error) {
	return t.getTransfer(ctx, id, "")
}

func (t *tx) GetTransferForUpdate(ctx context.Context, id string) (*domain.Transfer, error) {
	return t.getTransfer(ctx, id, " FOR UPDATE")
}

func (t *tx) getTransfer(ctx context.Context, id, lock string) (*domain.Transfer, error) {
	if !validID(id) {
		return nil, errors.NotFound("transfer")
	}
	var tr domain.Transfer
	query := `SELECT ` + transferColumns + ` FROM transfers WHERE id = $1 AND tenant_id = $2` + lock
	if err := t.conn(ctx).GetContext(ctx, &tr, query, id, t.tenantID); err != nil {
		return nil, notFound("transfer", err)
	}
	return &tr, nil
}

func (t *tx) ListTransfers(ctx context.Context, f domain.RecordFilter) ([]domain.Transfer, int, error) {
	w := newWhere(t.tenantID)
	if f.ReceiptID != "" {
		w.add("receipt_id = ?", f.ReceiptID)
	}
	if f.LocationID != "" {
		w.add("(from_location_id = ? OR to_location_id = ?)", f.LocationID)
	}
	if f.CategoryID != "" {
		w.add("category_id = ?", f.CategoryID)
	}
	rows := []domain.Transfer{}
	total, err := t.list(ctx, &rows, transferColumns, "transfers", w, newestFirst, f.Limit, f.Offset, "list transfers")
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (t *tx) UpdateTransfer(ctx context.Context, tr *domain.Transfer) error {
	if !validID(tr.ID) {
		return errors.NotFound("transfer")
	}
	tr.TenantID = t.tenantID
	query := `
		UPDATE transfers SET
			receipt_id = $3, quantity = $4, from_location_id = $5, to_location_id = $6, category_id = $7,
			price = $8, transfer_date = $9, sku = $10, catalog_code = $11, updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2
		RETURNING created_by, created_at, updated_at
	`
	err := t.conn(ctx).QueryRowxContext(ctx, query,
		tr.ID, tr.TenantID, tr.ReceiptID, tr.Quantity, tr.FromLocationID, tr.ToLocationID, tr.CategoryID,
		tr.Price, tr.TransferDate, tr.SKU, tr.CatalogCode,
	).Scan(&tr.CreatedBy, &tr.CreatedAt, &tr.UpdatedAt)
	return notFound("transfer", err)
}

func (t *tx) DeleteTransfer(ctx context.Context, id string) error {
	if !validID(id) {
		return errors.NotFound("transfer")
	}
	res, err := t.conn(ctx).ExecContext(ctx, `DELETE FROM transfers WHERE id = $1 AND tenant_id = $2`, id, t.tenantID)
	if err != nil {
		return translate("delete transfer", err)
	}
	return affected(res, "transfer")
}
