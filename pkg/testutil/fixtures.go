package testutil

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/syncstock/syncstock-backend/internal/inventory/domain"
)

// FixtureFactory creates test fixtures with sensible defaults
type FixtureFactory struct {
	mu       sync.Mutex
	sequence int
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{}
}

// nextSeq returns the next sequence number for unique values
func (f *FixtureFactory) nextSeq() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sequence++
	return f.sequence
}

// Location creates a location fixture with a unique name
func (f *FixtureFactory) Location(opts ...func(*domain.Location)) *domain.Location {
	seq := f.nextSeq()
	l := &domain.Location{
		Name:        fmt.Sprintf("Store %d", seq),
		Address:     fmt.Sprintf("%d Test Street", seq),
		Description: "test location",
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Category creates a category fixture with a unique name
func (f *FixtureFactory) Category(opts ...func(*domain.Category)) *domain.Category {
	seq := f.nextSeq()
	c := &domain.Category{
		Name:        fmt.Sprintf("Category %d", seq),
		Description: "test category",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Receipt creates a receipt fixture for the given bucket coordinates
func (f *FixtureFactory) Receipt(locationID, categoryID string, quantity int64, opts ...func(*domain.Receipt)) *domain.Receipt {
	seq := f.nextSeq()
	r := &domain.Receipt{
		ItemName:     "Nitrile Gloves",
		CatalogCode:  "NG-100",
		SKU:          "NG-100-M",
		SupplierName: fmt.Sprintf("Supplier %d", seq),
		Quantity:     quantity,
		Price:        decimal.RequireFromString("4.25"),
		ReceiptDate:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		LocationID:   locationID,
		CategoryID:   categoryID,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithSKU overrides a receipt's SKU
func WithSKU(sku string) func(*domain.Receipt) {
	return func(r *domain.Receipt) {
		r.SKU = sku
	}
}

// WithItemName overrides a receipt's item name
func WithItemName(name string) func(*domain.Receipt) {
	return func(r *domain.Receipt) {
		r.ItemName = name
	}
}

// Adjustment creates an adjustment fixture depleting r at its own location
func (f *FixtureFactory) Adjustment(r *domain.Receipt, quantity int64) *domain.Adjustment {
	return &domain.Adjustment{
		ReceiptID:      r.ID,
		AdjustmentType: domain.AdjustmentRemove,
		Quantity:       quantity,
		AdjustmentDate: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		LocationID:     r.LocationID,
		CategoryID:     r.CategoryID,
	}
}

// Transfer creates a transfer fixture moving stock of r from its location to toLocationID
func (f *FixtureFactory) Transfer(r *domain.Receipt, toLocationID string, quantity int64) *domain.Transfer {
	return &domain.Transfer{
		ReceiptID:      r.ID,
		Quantity:       quantity,
		FromLocationID: r.LocationID,
		ToLocationID:   toLocationID,
		CategoryID:     r.CategoryID,
		Price:          r.Price,
		TransferDate:   time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC),
	}
}
