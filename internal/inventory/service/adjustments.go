package service

import (
	"context"
	"strings"

	"github.com/syncstock/syncstock-backend/internal/inventory/domain"
	"github.com/syncstock/syncstock-backend/internal/inventory/ledger"
	"github.com/syncstock/syncstock-backend/pkg/errors"
	"github.com/syncstock/syncstock-backend/pkg/tenant"
)

// AdjustmentService handles stock-out records
type AdjustmentService struct {
	engine *Engine
}

// NewAdjustmentService creates a new adjustment service
func NewAdjustmentService(engine *Engine) *AdjustmentService {
	return &AdjustmentService{engine: engine}
}

// Create stores an adjustment and depletes its bucket. It fails with
// insufficient stock when the bucket cannot cover the quantity.
func (s *AdjustmentService) Create(ctx context.Context, a *domain.Adjustment) (*ledger.Commit, error) {
	if err := validateAdjustment(a); err != nil {
		return nil, err
	}
	a.CreatedBy = tenant.UserID(ctx)

	commits, err := s.engine.write(ctx, string(ledger.EventAdjustment), func(ctx context.Context, tx Tx, tenantID string) ([]*ledger.Commit, error) {
		src, err := lockSources(ctx, tx, a.ReceiptID)
		if err != nil {
			return nil, err
		}
		a.TenantID = tenantID
		a.SKU, a.CatalogCode = src[a.ReceiptID].SKU, src[a.ReceiptID].CatalogCode
		if err := tx.CreateAdjustment(ctx, a); err != nil {
			return nil, err
		}
		commit, err := s.engine.coordinator.AdjustmentCreated(ctx, tx, tenantID, a.Ledger())
		return []*ledger.Commit{commit}, err
	})
	if err != nil {
		return nil, err
	}
	return commits[0], nil
}

// Get gets an adjustment by ID
func (s *AdjustmentService) Get(ctx context.Context, id string) (*domain.Adjustment, error) {
	var a *domain.Adjustment
	err := s.engine.read(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		a, err = tx.GetAdjustment(ctx, id)
		return err
	})
	return a, err
}

// List lists adjustments, newest first
func (s *AdjustmentService) List(ctx context.Context, f domain.RecordFilter) ([]domain.Adjustment, int, error) {
	var (
		rows  []domain.Adjustment
		total int
	)
	err := s.engine.read(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		rows, total, err = tx.ListAdjustments(ctx, f)
		return err
	})
	return rows, total, err
}

// Update edits an adjustment. The new quantity is checked against the
// balance with the old depletion reversed, so re-saving an unchanged
// adjustment never fails.
func (s *AdjustmentService) Update(ctx context.Context, a *domain.Adjustment) (*ledger.Commit, error) {
	if err := validateAdjustment(a); err != nil {
		return nil, err
	}

	commits, err := s.engine.write(ctx, string(ledger.EventAdjustment), func(ctx context.Context, tx Tx, tenantID string) ([]*ledger.Commit, error) {
		current, err := tx.GetAdjustment(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		src, err := lockSources(ctx, tx, current.ReceiptID, a.ReceiptID)
		if err != nil {
			return nil, err
		}
		old, err := tx.GetAdjustmentForUpdate(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		if old.ReceiptID != current.ReceiptID {
			return nil, ledger.Unavailable("lock adjustment", errConcurrentEdit)
		}

		a.TenantID = tenantID
		a.CreatedBy = old.CreatedBy
		a.SKU, a.CatalogCode = src[a.ReceiptID].SKU, src[a.ReceiptID].CatalogCode

		if err := s.engine.coordinator.ValidateAdjustmentUpdate(ctx, tx, tenantID, old.Ledger(), a.Ledger()); err != nil {
			return nil, err
		}
		if err := tx.UpdateAdjustment(ctx, a); err != nil {
			return nil, err
		}
		commit, err := s.engine.coordinator.AdjustmentUpdated(ctx, tx, tenantID, old.Ledger(), a.Ledger())
		return []*ledger.Commit{commit}, err
	})
	if err != nil {
		return nil, err
	}
	return commits[0], nil
}

// Delete removes an adjustment and restocks its bucket
func (s *AdjustmentService) Delete(ctx context.Context, id string) (*ledger.Commit, error) {
	commits, err := s.engine.write(ctx, string(ledger.EventAdjustment), func(ctx context.Context, tx Tx, tenantID string) ([]*ledger.Commit, error) {
		current, err := tx.GetAdjustment(ctx, id)
		if err != nil {
			return nil, err
		}
		if _, err := lockSources(ctx, tx, current.ReceiptID); err != nil {
			return nil, err
		}
		old, err := tx.GetAdjustmentForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		if old.ReceiptID != current.ReceiptID {
			return nil, ledger.Unavailable("lock adjustment", errConcurrentEdit)
		}
		commit, err := s.engine.coordinator.AdjustmentDeleted(ctx, tx, tenantID, old.Ledger())
		if err != nil {
			return nil, err
		}
		if err := tx.DeleteAdjustment(ctx, id); err != nil {
			return nil, err
		}
		return []*ledger.Commit{commit}, nil
	})
	if err != nil {
		return nil, err
	}
	return commits[0], nil
}

func validateAdjustment(a *domain.Adjustment) error {
	details := map[string]string{}
	if a.ReceiptID == "" {
		details["receipt_id"] = "this field is required"
	}
	if a.Quantity <= 0 {
		details["quantity"] = "must be a positive integer"
	}
	if a.AdjustmentType == "" {
		a.AdjustmentType = domain.AdjustmentRemove
	}
	if !a.AdjustmentType.Valid() {
		names := make([]string, len(domain.AdjustmentTypes))
		for i, t := range domain.AdjustmentTypes {
			names[i] = string(t)
		}
		details["adjustment_type"] = "must be one of: " + strings.Join(names, " ")
	}
	if a.LocationID == "" {
		details["location_id"] = "this field is required"
	}
	if a.CategoryID == "" {
		details["category_id"] = "this field is required"
	}
	if len(details) > 0 {
		return errors.Validation(details)
	}
	return nil
}
