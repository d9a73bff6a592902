package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/syncstock/syncstock-backend/internal/inventory/ledger"
)

// Location is a place stock is held at
type Location struct {
	ID             string    `db:"id" json:"id"`
	TenantID       string    `db:"tenant_id" json:"tenant_id"`
	Name           string    `db:"name" json:"name"`
	Address        string    `db:"address" json:"address"`
	Description    string    `db:"description" json:"description"`
	PersonInCharge *string   `db:"person_in_charge" json:"person_in_charge,omitempty"`
	MapsURL        *string   `db:"maps_url" json:"maps_url,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Category groups items
type Category struct {
	ID          string    `db:"id" json:"id"`
	TenantID    string    `db:"tenant_id" json:"tenant_id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Receipt records stock entering a location
type Receipt struct {
	ID             string          `db:"id" json:"id"`
	TenantID       string          `db:"tenant_id" json:"tenant_id"`
	ItemName       string          `db:"item_name" json:"item_name"`
	CatalogCode    string          `db:"catalog_code" json:"catalog_code"`
	SKU            string          `db:"sku" json:"sku"`
	SupplierName   string          `db:"supplier_name" json:"supplier_name"`
	Description    *string         `db:"description" json:"description,omitempty"`
	Quantity       int64           `db:"quantity" json:"quantity"`
	Price          decimal.Decimal `db:"price" json:"price"`
	ReceiptDate    time.Time       `db:"receipt_date" json:"receipt_date"`
	ExpirationDate *time.Time      `db:"expiration_date" json:"expiration_date,omitempty"`
	LocationID     string          `db:"location_id" json:"location_id"`
	CategoryID     string          `db:"category_id" json:"category_id"`
	CreatedBy      string          `db:"created_by" json:"created_by"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// Ledger returns the fields of r the balance engine works with
func (r Receipt) Ledger() ledger.Receipt {
	return ledger.Receipt{
		ID:          r.ID,
		TenantID:    r.TenantID,
		ItemName:    r.ItemName,
		CatalogCode: r.CatalogCode,
		SKU:         r.SKU,
		LocationID:  r.LocationID,
		CategoryID:  r.CategoryID,
		Quantity:    r.Quantity,
	}
}

// AdjustmentType is the reason stock left a location
type AdjustmentType string

const (
	AdjustmentRemove  AdjustmentType = "remove"
	AdjustmentMissing AdjustmentType = "missing"
	AdjustmentDamage  AdjustmentType = "damage"
	AdjustmentExpired AdjustmentType = "expired"
	AdjustmentSold    AdjustmentType = "sold"
)

// AdjustmentTypes lists every accepted adjustment type
var AdjustmentTypes = []AdjustmentType{
	AdjustmentRemove, AdjustmentMissing, AdjustmentDamage, AdjustmentExpired, AdjustmentSold,
}

// Valid reports whether t is a known adjustment type
func (t AdjustmentType) Valid() bool {
	for _, known := range AdjustmentTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Adjustment records stock leaving a location for a reason other than a transfer.
// SKU and CatalogCode are copies of the receipt's values taken at save time.
type Adjustment struct {
	ID             string         `db:"id" json:"id"`
	TenantID       string         `db:"tenant_id" json:"tenant_id"`
	ReceiptID      string         `db:"receipt_id" json:"receipt_id"`
	AdjustmentType AdjustmentType `db:"adjustment_type" json:"adjustment_type"`
	Quantity       int64          `db:"quantity" json:"quantity"`
	AdjustmentDate time.Time      `db:"adjustment_date" json:"adjustment_date"`
	Reason         *string        `db:"reason" json:"reason,omitempty"`
	LocationID     string         `db:"location_id" json:"location_id"`
	CategoryID     string         `db:"category_id" json:"category_id"`
	SKU            string         `db:"sku" json:"sku"`
	CatalogCode    string         `db:"catalog_code" json:"catalog_code"`
	CreatedBy      string         `db:"created_by" json:"created_by"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// Ledger returns the fields of a the balance engine works with
func (a Adjustment) Ledger() ledger.Adjustment {
	return ledger.Adjustment{
		ID:         a.ID,
		TenantID:   a.TenantID,
		ReceiptID:  a.ReceiptID,
		LocationID: a.LocationID,
		CategoryID: a.CategoryID,
		Quantity:   a.Quantity,
	}
}

// Transfer records stock moving between two locations
type Transfer struct {
	ID             string          `db:"id" json:"id"`
	TenantID       string          `db:"tenant_id" json:"tenant_id"`
	ReceiptID      string          `db:"receipt_id" json:"receipt_id"`
	Quantity       int64           `db:"quantity" json:"quantity"`
	FromLocationID string          `db:"from_location_id" json:"from_location_id"`
	ToLocationID   string          `db:"to_location_id" json:"to_location_id"`
	CategoryID     string          `db:"category_id" json:"category_id"`
	Price          decimal.Decimal `db:"price" json:"price"`
	TransferDate   time.Time       `db:"transfer_date" json:"transfer_date"`
	SKU            string          `db:"sku" json:"sku"`
	CatalogCode    string          `db:"catalog_code" json:"catalog_code"`
	CreatedBy      string          `db:"created_by" json:"created_by"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// Ledger returns the fields of t the balance engine works with
func (t Transfer) Ledger() ledger.Transfer {
	return ledger.Transfer{
		ID:             t.ID,
		TenantID:       t.TenantID,
		ReceiptID:      t.ReceiptID,
		FromLocationID: t.FromLocationID,
		ToLocationID:   t.ToLocationID,
		CategoryID:     t.CategoryID,
		Quantity:       t.Quantity,
	}
}

// RecordFilter narrows receipt, adjustment and transfer listings
type RecordFilter struct {
	ReceiptID  string
	LocationID string
	CategoryID string
	Limit      int
	Offset     int
}

// BalanceFilter narrows balance listings. ItemName matches case-insensitively
// anywhere in the item name.
type BalanceFilter struct {
	ItemName   string
	LocationID string
	CategoryID string
	Limit      int
	Offset     int
}

// Choice is one option in a filter dropdown
type Choice struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// FilterChoices feeds the balance list filters
type FilterChoices struct {
	ItemNames  []string `json:"item_names"`
	Locations  []Choice `json:"locations"`
	Categories []Choice `json:"categories"`
}
