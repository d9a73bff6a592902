package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/syncstock/syncstock-backend/internal/inventory/domain"
	"github.com/syncstock/syncstock-backend/internal/inventory/ledger"
	"github.com/syncstock/syncstock-backend/pkg/errors"
	"github.com/syncstock/syncstock-backend/pkg/tenant"
)

// ReceiptService handles stock-in records and keeps balances in step with them
type ReceiptService struct {
	engine *Engine
}

// NewReceiptService creates a new receipt service
func NewReceiptService(engine *Engine) *ReceiptService {
	return &ReceiptService{engine: engine}
}

// RekeyInput holds the balance key fields a receipt is moved to. Empty
// fields keep their current value.
type RekeyInput struct {
	ItemName    string
	CatalogCode string
	SKU         string
	LocationID  string
	CategoryID  string
}

// Create stores a receipt and adds its quantity to its bucket
func (s *ReceiptService) Create(ctx context.Context, r *domain.Receipt) (*ledger.Commit, error) {
	if err := validateReceipt(r); err != nil {
		return nil, err
	}
	r.CreatedBy = tenant.UserID(ctx)

	commits, err := s.engine.write(ctx, string(ledger.EventReceipt), func(ctx context.Context, tx Tx, tenantID string) ([]*ledger.Commit, error) {
		r.TenantID = tenantID
		if err := tx.CreateReceipt(ctx, r); err != nil {
			return nil, err
		}
		commit, err := s.engine.coordinator.ReceiptCreated(ctx, tx, tenantID, r.Ledger())
		return []*ledger.Commit{commit}, err
	})
	if err != nil {
		return nil, err
	}
	return commits[0], nil
}

// Get gets a receipt by ID
func (s *ReceiptService) Get(ctx context.Context, id string) (*domain.Receipt, error) {
	var r *domain.Receipt
	err := s.engine.read(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		r, err = tx.GetReceipt(ctx, id)
		return err
	})
	return r, err
}

// List lists receipts, newest first
func (s *ReceiptService) List(ctx context.Context, f domain.RecordFilter) ([]domain.Receipt, int, error) {
	var (
		rows  []domain.Receipt
		total int
	)
	err := s.engine.read(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		rows, total, err = tx.ListReceipts(ctx, f)
		return err
	})
	return rows, total, err
}

// Update edits a receipt. The old contribution is reversed and the new one
// applied; a changed key is an implicit re-key.
func (s *ReceiptService) Update(ctx context.Context, r *domain.Receipt) (*ledger.Commit, error) {
	if err := validateReceipt(r); err != nil {
		return nil, err
	}

	commits, err := s.engine.write(ctx, string(ledger.EventReceipt), func(ctx context.Context, tx Tx, tenantID string) ([]*ledger.Commit, error) {
		old, err := tx.GetReceiptForUpdate(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		r.TenantID = tenantID
		r.CreatedBy = old.CreatedBy
		if err := tx.UpdateReceipt(ctx, r); err != nil {
			return nil, err
		}
		commit, err := s.engine.coordinator.ReceiptUpdated(ctx, tx, tenantID, old.Ledger(), r.Ledger())
		return []*ledger.Commit{commit}, err
	})
	if err != nil {
		return nil, err
	}
	return commits[0], nil
}

// Rekey moves a receipt and everything depleted from it to a new balance
// key. Dependents' denormalized SKU and catalog code follow the receipt.
func (s *ReceiptService) Rekey(ctx context.Context, id string, in RekeyInput) (*domain.Receipt, *ledger.Commit, error) {
	var updated *domain.Receipt
	commits, err := s.engine.write(ctx, string(ledger.EventReceipt), func(ctx context.Context, tx Tx, tenantID string) ([]*ledger.Commit, error) {
		old, err := tx.GetReceiptForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}

		cur := *old
		applyRekey(&cur, in)
		if ledger.ResolveReceipt(cur.Ledger()) == ledger.ResolveReceipt(old.Ledger()) {
			return nil, errors.BadRequest("rekey must change at least one balance key field")
		}

		deps, err := tx.ReceiptDependents(ctx, tenantID, id)
		if err != nil {
			return nil, err
		}
		for _, a := range deps.Adjustments {
			adj, err := tx.GetAdjustmentForUpdate(ctx, a.ID)
			if err != nil {
				return nil, err
			}
			adj.SKU, adj.CatalogCode = cur.SKU, cur.CatalogCode
			if err := tx.UpdateAdjustment(ctx, adj); err != nil {
				return nil, err
			}
		}
		for _, t := range deps.Transfers {
			tr, err := tx.GetTransferForUpdate(ctx, t.ID)
			if err != nil {
				return nil, err
			}
			tr.SKU, tr.CatalogCode = cur.SKU, cur.CatalogCode
			if err := tx.UpdateTransfer(ctx, tr); err != nil {
				return nil, err
			}
		}

		if err := tx.UpdateReceipt(ctx, &cur); err != nil {
			return nil, err
		}
		commit, err := s.engine.coordinator.ReceiptRekeyed(ctx, tx, tenantID, old.Ledger(), cur.Ledger())
		if err != nil {
			return nil, err
		}
		updated = &cur
		return []*ledger.Commit{commit}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return updated, commits[0], nil
}

// Delete removes a receipt together with the adjustments and transfers that
// reference it, reversing all of their effects in one commit.
func (s *ReceiptService) Delete(ctx context.Context, id string) (*ledger.Commit, error) {
	commits, err := s.engine.write(ctx, string(ledger.EventReceipt), func(ctx context.Context, tx Tx, tenantID string) ([]*ledger.Commit, error) {
		old, err := tx.GetReceiptForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		commit, err := s.engine.coordinator.ReceiptDeleted(ctx, tx, tenantID, old.Ledger())
		if err != nil {
			return nil, err
		}
		for _, a := range commit.Cascaded.Adjustments {
			if err := tx.DeleteAdjustment(ctx, a.ID); err != nil {
				return nil, err
			}
		}
		for _, t := range commit.Cascaded.Transfers {
			if err := tx.DeleteTransfer(ctx, t.ID); err != nil {
				return nil, err
			}
		}
		if err := tx.DeleteReceipt(ctx, id); err != nil {
			return nil, err
		}
		return []*ledger.Commit{commit}, nil
	})
	if err != nil {
		return nil, err
	}
	return commits[0], nil
}

func applyRekey(r *domain.Receipt, in RekeyInput) {
	if v := strings.TrimSpace(in.ItemName); v != "" {
		r.ItemName = v
	}
	if v := strings.TrimSpace(in.CatalogCode); v != "" {
		r.CatalogCode = v
	}
	if v := strings.TrimSpace(in.SKU); v != "" {
		r.SKU = v
	}
	if in.LocationID != "" {
		r.LocationID = in.LocationID
	}
	if in.CategoryID != "" {
		r.CategoryID = in.CategoryID
	}
}

func validateReceipt(r *domain.Receipt) error {
	r.ItemName = strings.TrimSpace(r.ItemName)
	r.CatalogCode = strings.TrimSpace(r.CatalogCode)
	r.SKU = strings.TrimSpace(r.SKU)

	details := map[string]string{}
	if r.ItemName == "" {
		details["item_name"] = "this field is required"
	}
	if r.Quantity <= 0 {
		details["quantity"] = "must be a positive integer"
	}
	if r.Price.IsNegative() {
		details["price"] = "must not be negative"
	}
	if r.LocationID == "" {
		details["location_id"] = "this field is required"
	}
	if r.CategoryID == "" {
		details["category_id"] = "this field is required"
	}
	if len(details) > 0 {
		return errors.Validation(details)
	}
	return nil
}

// lockSources locks the referenced receipts in id order. A receipt that does
// not exist is reported as a missing reference rather than a 404.
func lockSources(ctx context.Context, tx Tx, ids ...string) (map[string]*domain.Receipt, error) {
	uniq := make([]string, 0, len(ids))
	seen := map[string]struct{}{}
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			uniq = append(uniq, id)
		}
	}
	sort.Strings(uniq)

	out := make(map[string]*domain.Receipt, len(uniq))
	for _, id := range uniq {
		r, err := tx.GetReceiptForUpdate(ctx, id)
		if errors.Is(err, errors.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ledger.ErrMissingReferencedReceipt, id)
		}
		if err != nil {
			return nil, err
		}
		out[id] = r
	}
	return out, nil
}
