package ledger

import (
	"fmt"
	"sort"
	"strings"
)

// BalanceKey identifies one balance bucket. It is descriptive, not an
// identity: two receipts with equal attributes share a bucket, and editing
// those attributes moves stock to another one.
type BalanceKey struct {
	TenantID    string `db:"tenant_id" json:"tenant_id"`
	ItemName    string `db:"item_name" json:"item_name"`
	CatalogCode string `db:"catalog_code" json:"catalog_code"`
	SKU         string `db:"sku" json:"sku"`
	LocationID  string `db:"location_id" json:"location_id"`
	CategoryID  string `db:"category_id" json:"category_id"`
}

func (k BalanceKey) fields() [6]string {
	return [6]string{k.TenantID, k.ItemName, k.CatalogCode, k.SKU, k.LocationID, k.CategoryID}
}

// String renders the key for logs and lock names
func (k BalanceKey) String() string {
	f := k.fields()
	return strings.Join(f[:], "/")
}

// Less orders keys field by field. Locks are always taken in this order.
func (k BalanceKey) Less(o BalanceKey) bool {
	a, b := k.fields(), o.fields()
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// SortKeys sorts keys in lock order and drops duplicates
func SortKeys(keys []BalanceKey) []BalanceKey {
	out := make([]BalanceKey, 0, len(keys))
	seen := make(map[BalanceKey]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// ResolveReceipt derives the bucket a receipt contributes to
func ResolveReceipt(r Receipt) BalanceKey {
	return BalanceKey{
		TenantID:    r.TenantID,
		ItemName:    r.ItemName,
		CatalogCode: r.CatalogCode,
		SKU:         r.SKU,
		LocationID:  r.LocationID,
		CategoryID:  r.CategoryID,
	}
}

// ResolveAdjustment derives the bucket an adjustment depletes. Item name,
// catalog code and SKU are taken from src, never from copies on the event.
func ResolveAdjustment(a Adjustment, src *Receipt) (BalanceKey, error) {
	if err := checkSource(a.TenantID, a.ReceiptID, src); err != nil {
		return BalanceKey{}, err
	}
	return BalanceKey{
		TenantID:    a.TenantID,
		ItemName:    src.ItemName,
		CatalogCode: src.CatalogCode,
		SKU:         src.SKU,
		LocationID:  a.LocationID,
		CategoryID:  a.CategoryID,
	}, nil
}

// ResolveTransfer derives the source and destination buckets of a transfer
func ResolveTransfer(t Transfer, src *Receipt) (from, to BalanceKey, err error) {
	if err := checkSource(t.TenantID, t.ReceiptID, src); err != nil {
		return BalanceKey{}, BalanceKey{}, err
	}
	from = BalanceKey{
		TenantID:    t.TenantID,
		ItemName:    src.ItemName,
		CatalogCode: src.CatalogCode,
		SKU:         src.SKU,
		LocationID:  t.FromLocationID,
		CategoryID:  t.CategoryID,
	}
	to = from
	to.LocationID = t.ToLocationID
	return from, to, nil
}

// a receipt owned by another tenant is treated as absent
func checkSource(tenantID, receiptID string, src *Receipt) error {
	if src == nil || src.ID != receiptID || src.TenantID != tenantID {
		return fmt.Errorf("%w: %s", ErrMissingReferencedReceipt, receiptID)
	}
	return nil
}
