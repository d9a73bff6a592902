package memstore

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/syncstock/syncstock-backend/internal/inventory/domain"
	"github.com/syncstock/syncstock-backend/internal/inventory/ledger"
	"github.com/syncstock/syncstock-backend/pkg/errors"
)

type tx struct {
	store    *Store
	tenantID string
	data     *dataset

	held      map[string]struct{}
	heldOrder []string

	locations   overlay[domain.Location]
	categories  overlay[domain.Category]
	receipts    overlay[domain.Receipt]
	adjustments overlay[domain.Adjustment]
	transfers   overlay[domain.Transfer]
	balances    map[ledger.BalanceKey]ledger.Balance
	entries     []ledger.Entry
}

func newTx(s *Store, tenantID string, data *dataset) *tx {
	return &tx{
		store:       s,
		tenantID:    tenantID,
		data:        data,
		held:        make(map[string]struct{}),
		locations:   newOverlay[domain.Location](),
		categories:  newOverlay[domain.Category](),
		receipts:    newOverlay[domain.Receipt](),
		adjustments: newOverlay[domain.Adjustment](),
		transfers:   newOverlay[domain.Transfer](),
		balances:    make(map[ledger.BalanceKey]ledger.Balance),
	}
}

func (t *tx) lock(ctx context.Context, name string) error {
	if _, ok := t.held[name]; ok {
		return nil
	}
	if err := t.store.locks.acquire(ctx, name, t.store.lockTimeout); err != nil {
		return err
	}
	t.held[name] = struct{}{}
	t.heldOrder = append(t.heldOrder, name)
	return nil
}

func (t *tx) releaseAll() {
	for i := len(t.heldOrder) - 1; i >= 0; i-- {
		t.store.locks.release(t.heldOrder[i])
	}
	t.heldOrder = nil
	t.held = map[string]struct{}{}
}

func (t *tx) read(fn func()) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	fn()
}

func (t *tx) commit() error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	if err := t.checkUnique(); err != nil {
		return err
	}

	t.locations.flush(t.data.locations)
	t.categories.flush(t.data.categories)
	t.receipts.flush(t.data.receipts)
	t.adjustments.flush(t.data.adjustments)
	t.transfers.flush(t.data.transfers)
	for k, b := range t.balances {
		t.data.balances[k] = b
	}
	t.data.entries = append(t.data.entries, t.entries...)
	return nil
}

// checkUnique runs under the write lock so concurrent inserts cannot both win
func (t *tx) checkUnique() error {
	for id, l := range t.locations.puts {
		for otherID, other := range t.data.locations {
			if otherID != id && strings.EqualFold(other.Name, l.Name) {
				if _, gone := t.locations.dels[otherID]; !gone {
					return errors.Conflict("a location with this name already exists")
				}
			}
		}
	}
	for id, c := range t.categories.puts {
		for otherID, other := range t.data.categories {
			if otherID != id && strings.EqualFold(other.Name, c.Name) {
				if _, gone := t.categories.dels[otherID]; !gone {
					return errors.Conflict("a category with this name already exists")
				}
			}
		}
	}
	return nil
}

// Locations

func (t *tx) CreateLocation(ctx context.Context, l *domain.Location) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	l.TenantID = t.tenantID
	l.CreatedAt = t.store.now().UTC()
	l.UpdatedAt = l.CreatedAt
	if err := t.uniqueLocationName(l.ID, l.Name); err != nil {
		return err
	}
	t.locations.put(l.ID, *l)
	return nil
}

func (t *tx) GetLocation(ctx context.Context, id string) (*domain.Location, error) {
	var (
		l  domain.Location
		ok bool
	)
	t.read(func() { l, ok = t.locations.lookup(t.data.locations, id) })
	if !ok {
		return nil, errors.NotFound("location")
	}
	return &l, nil
}

func (t *tx) ListLocations(ctx context.Context) ([]domain.Location, error) {
	var rows []domain.Location
	t.read(func() { rows = t.locations.all(t.data.locations) })
	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	return rows, nil
}

func (t *tx) UpdateLocation(ctx context.Context, l *domain.Location) error {
	existing, err := t.GetLocation(ctx, l.ID)
	if err != nil {
		return err
	}
	if err := t.uniqueLocationName(l.ID, l.Name); err != nil {
		return err
	}
	l.TenantID = t.tenantID
	l.CreatedAt = existing.CreatedAt
	l.UpdatedAt = t.store.now().UTC()
	t.locations.put(l.ID, *l)
	return nil
}

func (t *tx) DeleteLocation(ctx context.Context, id string) error {
	if _, err := t.GetLocation(ctx, id); err != nil {
		return err
	}
	var used bool
	t.read(func() {
		for _, r := range t.receipts.all(t.data.receipts) {
			used = used || r.LocationID == id
		}
		for _, a := range t.adjustments.all(t.data.adjustments) {
			used = used || a.LocationID == id
		}
		for _, tr := range t.transfers.all(t.data.transfers) {
			used = used || tr.FromLocationID == id || tr.ToLocationID == id
		}
		for _, b := range t.allBalancesLocked() {
			used = used || b.LocationID == id
		}
	})
	if used {
		return errors.Conflict("record is still referenced by inventory records")
	}
	t.locations.del(id)
	return nil
}

func (t *tx) uniqueLocationName(id, name string) error {
	var dup bool
	t.read(func() {
		for _, other := range t.locations.all(t.data.locations) {
			if other.ID != id && strings.EqualFold(other.Name, name) {
				dup = true
			}
		}
	})
	if dup {
		return errors.Conflict("a location with this name already exists")
	}
	return nil
}

// Categories

func (t *tx) CreateCategory(ctx context.Context, c *domain.Category) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.TenantID = t.tenantID
	c.CreatedAt = t.store.now().UTC()
	c.UpdatedAt = c.CreatedAt
	if err := t.uniqueCategoryName(c.ID, c.Name); err != nil {
		return err
	}
	t.categories.put(c.ID, *c)
	return nil
}

func (t *tx) GetCategory(ctx context.Context, id string) (*domain.Category, error) {
	var (
		c  domain.Category
		ok bool
	)
	t.read(func() { c, ok = t.categories.lookup(t.data.categories, id) })
	if !ok {
		return nil, errors.NotFound("category")
	}
	return &c, nil
}

func (t *tx) ListCategories(ctx context.Context) ([]domain.Category, error) {
	var rows []domain.Category
	t.read(func() { rows = t.categories.all(t.data.categories) })
	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	return rows, nil
}

func (t *tx) UpdateCategory(ctx context.Context, c *domain.Category) error {
	existing, err := t.GetCategory(ctx, c.ID)
	if err != nil {
		return err
	}
	if err := t.uniqueCategoryName(c.ID, c.Name); err != nil {
		return err
	}
	c.TenantID = t.tenantID
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = t.store.now().UTC()
	t.categories.put(c.ID, *c)
	return nil
}

func (t *tx) DeleteCategory(ctx context.Context, id string) error {
	if _, err := t.GetCategory(ctx, id); err != nil {
		return err
	}
	var used bool
	t.read(func() {
		for _, r := range t.receipts.all(t.data.receipts) {
			used = used || r.CategoryID == id
		}
		for _, a := range t.adjustments.all(t.data.adjustments) {
			used = used || a.CategoryID == id
		}
		for _, tr := range t.transfers.all(t.data.transfers) {
			used = used || tr.CategoryID == id
		}
		for _, b := range t.allBalancesLocked() {
			used = used || b.CategoryID == id
		}
	})
	if used {
		return errors.Conflict("record is still referenced by inventory records")
	}
	t.categories.del(id)
	return nil
}

func (t *tx) uniqueCategoryName(id, name string) error {
	var dup bool
	t.read(func() {
		for _, other := range t.categories.all(t.data.categories) {
			if other.ID != id && strings.EqualFold(other.Name, name) {
				dup = true
			}
		}
	})
	if dup {
		return errors.Conflict("a category with this name already exists")
	}
	return nil
}

// references mirrors the foreign keys of the Postgres schema
func (t *tx) references(locationIDs []string, categoryID, receiptID string) error {
	var missing bool
	t.read(func() {
		for _, id := range locationIDs {
			if _, ok := t.locations.lookup(t.data.locations, id); !ok {
				missing = true
			}
		}
		if _, ok := t.categories.lookup(t.data.categories, categoryID); !ok {
			missing = true
		}
		if receiptID != "" {
			if _, ok := t.receipts.lookup(t.data.receipts, receiptID); !ok {
				missing = true
			}
		}
	})
	if missing {
		return errors.BadRequest("referenced record does not exist")
	}
	return nil
}

// Receipts

func (t *tx) CreateReceipt(ctx context.Context, r *domain.Receipt) error {
	if err := t.references([]string{r.LocationID}, r.CategoryID, ""); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.TenantID = t.tenantID
	r.CreatedAt = t.store.now().UTC()
	r.UpdatedAt = r.CreatedAt
	t.receipts.put(r.ID, *r)
	return nil
}

func (t *tx) GetReceipt(ctx context.Context, id string) (*domain.Receipt, error) {
	var (
		r  domain.Receipt
		ok bool
	)
	t.read(func() { r, ok = t.receipts.lookup(t.data.receipts, id) })
	if !ok {
		return nil, errors.NotFound("receipt")
	}
	return &r, nil
}

func (t *tx) GetReceiptForUpdate(ctx context.Context, id string) (*domain.Receipt, error) {
	if err := t.lock(ctx, "receipt:"+id); err != nil {
		return nil, err
	}
	return t.GetReceipt(ctx, id)
}

func (t *tx) ListReceipts(ctx context.Context, f domain.RecordFilter) ([]domain.Receipt, int, error) {
	var rows []domain.Receipt
	t.read(func() {
		for _, r := range t.receipts.all(t.data.receipts) {
			if (f.LocationID == "" || r.LocationID == f.LocationID) &&
				(f.CategoryID == "" || r.CategoryID == f.CategoryID) &&
				(f.ReceiptID == "" || r.ID == f.ReceiptID) {
				rows = append(rows, r)
			}
		}
	})
	sortByCreated(rows, func(r domain.Receipt) time.Time { return r.CreatedAt }, func(r domain.Receipt) string { return r.ID })
	return page(rows, f.Limit, f.Offset), len(rows), nil
}

func (t *tx) UpdateReceipt(ctx context.Context, r *domain.Receipt) error {
	existing, err := t.GetReceipt(ctx, r.ID)
	if err != nil {
		return err
	}
	if err := t.references([]string{r.LocationID}, r.CategoryID, ""); err != nil {
		return err
	}
	r.TenantID = t.tenantID
	r.CreatedBy = existing.CreatedBy
	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = t.store.now().UTC()
	t.receipts.put(r.ID, *r)
	return nil
}

func (t *tx) DeleteReceipt(ctx context.Context, id string) error {
	if _, err := t.GetReceipt(ctx, id); err != nil {
		return err
	}
	deps, err := t.ReceiptDependents(ctx, t.tenantID, id)
	if err != nil {
		return err
	}
	if !deps.Empty() {
		return errors.Conflict("record is still referenced by inventory records")
	}
	t.receipts.del(id)
	return nil
}

// Adjustments

func (t *tx) CreateAdjustment(ctx context.Context, a *domain.Adjustment) error {
	if err := t.references([]string{a.LocationID}, a.CategoryID, a.ReceiptID); err != nil {
		return err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.TenantID = t.tenantID
	a.CreatedAt = t.store.now().UTC()
	a.UpdatedAt = a.CreatedAt
	t.adjustments.put(a.ID, *a)
	return nil
}

func (t *tx) GetAdjustment(ctx context.Context, id string) (*domain.Adjustment, error) {
	var (
		a  domain.Adjustment
		ok bool
	)
	t.read(func() { a, ok = t.adjustments.lookup(t.data.adjustments, id) })
	if !ok {
		return nil, errors.NotFound("adjustment")
	}
	return &a, nil
}

func (t *tx) GetAdjustmentForUpdate(ctx context.Context, id string) (*domain.Adjustment, error) {
	if err := t.lock(ctx, "adjustment:"+id); err != nil {
		return nil, err
	}
	return t.GetAdjustment(ctx, id)
}

func (t *tx) ListAdjustments(ctx context.Context, f domain.RecordFilter) ([]domain.Adjustment, int, error) {
	var rows []domain.Adjustment
	t.read(func() {
		for _, a := range t.adjustments.all(t.data.adjustments) {
			if (f.LocationID == "" || a.LocationID == f.LocationID) &&
				(f.CategoryID == "" || a.CategoryID == f.CategoryID) &&
				(f.ReceiptID == "" || a.ReceiptID == f.ReceiptID) {
				rows = append(rows, a)
			}
		}
	})
	sortByCreated(rows, func(a domain.Adjustment) time.Time { return a.CreatedAt }, func(a domain.Adjustment) string { return a.ID })
	return page(rows, f.Limit, f.Offset), len(rows), nil
}

func (t *tx) UpdateAdjustment(ctx context.Context, a *domain.Adjustment) error {
	existing, err := t.GetAdjustment(ctx, a.ID)
	if err != nil {
		return err
	}
	if err := t.references([]string{a.LocationID}, a.CategoryID, a.ReceiptID); err != nil {
		return err
	}
	a.TenantID = t.tenantID
	a.CreatedBy = existing.CreatedBy
	a.CreatedAt = existing.CreatedAt
	a.UpdatedAt = t.store.now().UTC()
	t.adjustments.put(a.ID, *a)
	return nil
}

func (t *tx) DeleteAdjustment(ctx context.Context, id string) error {
	if _, err := t.GetAdjustment(ctx, id); err != nil {
		return err
	}
	t.adjustments.del(id)
	return nil
}

// Transfers

func (t *tx) CreateTransfer(ctx context.Context, tr *domain.Transfer) error {
	if err := t.references([]string{tr.FromLocationID, tr.ToLocationID}, tr.CategoryID, tr.ReceiptID); err != nil {
		return err
	}
	if tr.ID == "" {
		tr.ID = uuid.NewString()
	}
	tr.TenantID = t.tenantID
	tr.CreatedAt = t.store.now().UTC()
	tr.UpdatedAt = tr.CreatedAt
	t.transfers.put(tr.ID, *tr)
	return nil
}

func (t *tx) GetTransfer(ctx context.Context, id string) (*domain.Transfer, error) {
	var (
		tr domain.Transfer
		ok bool
	)
	t.read(func() { tr, ok = t.transfers.lookup(t.data.transfers, id) })
	if !ok {
		return nil, errors.NotFound("transfer")
	}
	return &tr, nil
}

func (t *tx) GetTransferForUpdate(ctx context.Context, id string) (*domain.Transfer, error) {
	if err := t.lock(ctx, "transfer:"+id); err != nil {
		return nil, err
	}
	return t.GetTransfer(ctx, id)
}

func (t *tx) ListTransfers(ctx context.Context, f domain.RecordFilter) ([]domain.Transfer, int, error) {
	var rows []domain.Transfer
	t.read(func() {
		for _, tr := range t.transfers.all(t.data.transfers) {
			if (f.LocationID == "" || tr.FromLocationID == f.LocationID || tr.ToLocationID == f.LocationID) &&
				(f.CategoryID == "" || tr.CategoryID == f.CategoryID) &&
				(f.ReceiptID == "" || tr.ReceiptID == f.ReceiptID) {
				rows = append(rows, tr)
			}
		}
	})
	sortByCreated(rows, func(tr domain.Transfer) time.Time { return tr.CreatedAt }, func(tr domain.Transfer) string { return tr.ID })
	return page(rows, f.Limit, f.Offset), len(rows), nil
}

func (t *tx) UpdateTransfer(ctx context.Context, tr *domain.Transfer) error {
	existing, err := t.GetTransfer(ctx, tr.ID)
	if err != nil {
		return err
	}
	if err := t.references([]string{tr.FromLocationID, tr.ToLocationID}, tr.CategoryID, tr.ReceiptID); err != nil {
		return err
	}
	tr.TenantID = t.tenantID
	tr.CreatedBy = existing.CreatedBy
	tr.CreatedAt = existing.CreatedAt
	tr.UpdatedAt = t.store.now().UTC()
	t.transfers.put(tr.ID, *tr)
	return nil
}

func (t *tx) DeleteTransfer(ctx context.Context, id string) error {
	if _, err := t.GetTransfer(ctx, id); err != nil {
		return err
	}
	t.transfers.del(id)
	return nil
}
