package service

import (
	"context"
	stderrors "errors"

	"github.com/syncstock/syncstock-backend/internal/inventory/domain"
	"github.com/syncstock/syncstock-backend/internal/inventory/ledger"
	"github.com/syncstock/syncstock-backend/pkg/errors"
	"github.com/syncstock/syncstock-backend/pkg/tenant"
)

// errConcurrentEdit means a record changed between the unlocked read and the
// row lock. The whole event is retried.
var errConcurrentEdit = stderrors.New("record changed while waiting for its lock")

// TransferService handles stock movements between locations
type TransferService struct {
	engine *Engine
}

// NewTransferService creates a new transfer service
func NewTransferService(engine *Engine) *TransferService {
	return &TransferService{engine: engine}
}

// Create stores a transfer and moves stock from the source bucket to the
// destination bucket. Either both buckets change or neither does.
func (s *TransferService) Create(ctx context.Context, t *domain.Transfer) (*ledger.Commit, error) {
	if err := validateTransfer(t); err != nil {
		return nil, err
	}
	t.CreatedBy = tenant.UserID(ctx)

	commits, err := s.engine.write(ctx, string(ledger.EventTransfer), func(ctx context.Context, tx Tx, tenantID string) ([]*ledger.Commit, error) {
		src, err := lockSources(ctx, tx, t.ReceiptID)
		if err != nil {
			return nil, err
		}
		t.TenantID = tenantID
		t.SKU, t.CatalogCode = src[t.ReceiptID].SKU, src[t.ReceiptID].CatalogCode
		if err := tx.CreateTransfer(ctx, t); err != nil {
			return nil, err
		}
		commit, err := s.engine.coordinator.TransferCreated(ctx, tx, tenantID, t.Ledger())
		return []*ledger.Commit{commit}, err
	})
	if err != nil {
		return nil, err
	}
	return commits[0], nil
}

// Get gets a transfer by ID
func (s *TransferService) Get(ctx context.Context, id string) (*domain.Transfer, error) {
	var t *domain.Transfer
	err := s.engine.read(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		t, err = tx.GetTransfer(ctx, id)
		return err
	})
	return t, err
}

// List lists transfers, newest first. A location filter matches either end.
func (s *TransferService) List(ctx context.Context, f domain.RecordFilter) ([]domain.Transfer, int, error) {
	var (
		rows  []domain.Transfer
		total int
	)
	err := s.engine.read(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		rows, total, err = tx.ListTransfers(ctx, f)
		return err
	})
	return rows, total, err
}

// Update edits a transfer by reversing the old pair and applying the new one
func (s *TransferService) Update(ctx context.Context, t *domain.Transfer) (*ledger.Commit, error) {
	if err := validateTransfer(t); err != nil {
		return nil, err
	}

	commits, err := s.engine.write(ctx, string(ledger.EventTransfer), func(ctx context.Context, tx Tx, tenantID string) ([]*ledger.Commit, error) {
		current, err := tx.GetTransfer(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		src, err := lockSources(ctx, tx, current.ReceiptID, t.ReceiptID)
		if err != nil {
			return nil, err
		}
		old, err := tx.GetTransferForUpdate(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		if old.ReceiptID != current.ReceiptID {
			return nil, ledger.Unavailable("lock transfer", errConcurrentEdit)
		}

		t.TenantID = tenantID
		t.CreatedBy = old.CreatedBy
		t.SKU, t.CatalogCode = src[t.ReceiptID].SKU, src[t.ReceiptID].CatalogCode

		if err := s.engine.coordinator.ValidateTransferUpdate(ctx, tx, tenantID, old.Ledger(), t.Ledger()); err != nil {
			return nil, err
		}
		if err := tx.UpdateTransfer(ctx, t); err != nil {
			return nil, err
		}
		commit, err := s.engine.coordinator.TransferUpdated(ctx, tx, tenantID, old.Ledger(), t.Ledger())
		return []*ledger.Commit{commit}, err
	})
	if err != nil {
		return nil, err
	}
	return commits[0], nil
}

// Delete removes a transfer and moves its stock back
func (s *TransferService) Delete(ctx context.Context, id string) (*ledger.Commit, error) {
	commits, err := s.engine.write(ctx, string(ledger.EventTransfer), func(ctx context.Context, tx Tx, tenantID string) ([]*ledger.Commit, error) {
		current, err := tx.GetTransfer(ctx, id)
		if err != nil {
			return nil, err
		}
		if _, err := lockSources(ctx, tx, current.ReceiptID); err != nil {
			return nil, err
		}
		old, err := tx.GetTransferForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		if old.ReceiptID != current.ReceiptID {
			return nil, ledger.Unavailable("lock transfer", errConcurrentEdit)
		}
		commit, err := s.engine.coordinator.TransferDeleted(ctx, tx, tenantID, old.Ledger())
		if err != nil {
			return nil, err
		}
		if err := tx.DeleteTransfer(ctx, id); err != nil {
			return nil, err
		}
		return []*ledger.Commit{commit}, nil
	})
	if err != nil {
		return nil, err
	}
	return commits[0], nil
}

func validateTransfer(t *domain.Transfer) error {
	details := map[string]string{}
	if t.ReceiptID == "" {
		details["receipt_id"] = "this field is required"
	}
	if t.Quantity <= 0 {
		details["quantity"] = "must be a positive integer"
	}
	if t.FromLocationID == "" {
		details["from_location_id"] = "this field is required"
	}
	if t.ToLocationID == "" {
		details["to_location_id"] = "this field is required"
	}
	if t.FromLocationID != "" && t.FromLocationID == t.ToLocationID {
		details["to_location_id"] = "must differ from the source location"
	}
	if t.CategoryID == "" {
		details["category_id"] = "this field is required"
	}
	if t.Price.IsNegative() {
		details["price"] = "must not be negative"
	}
	if len(details) > 0 {
		return errors.Validation(details)
	}
	return nil
}
