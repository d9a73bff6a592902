package service

import (
	"context"
	"strings"

	"github.com/syncstock/syncstock-backend/internal/inventory/domain"
	"github.com/syncstock/syncstock-backend/internal/inventory/ledger"
	"github.com/syncstock/syncstock-backend/pkg/errors"
)

// LocationService manages the places stock is held at
type LocationService struct {
	engine *Engine
}

// NewLocationService creates a new location service
func NewLocationService(engine *Engine) *LocationService {
	return &LocationService{engine: engine}
}

// Create creates a location
func (s *LocationService) Create(ctx context.Context, l *domain.Location) error {
	l.Name = strings.TrimSpace(l.Name)
	if l.Name == "" {
		return errors.Validation(map[string]string{"name": "this field is required"})
	}
	_, err := s.engine.write(ctx, "location", func(ctx context.Context, tx Tx, _ string) ([]*ledger.Commit, error) {
		return nil, tx.CreateLocation(ctx, l)
	})
	return err
}

// Get gets a location by ID
func (s *LocationService) Get(ctx context.Context, id string) (*domain.Location, error) {
	var l *domain.Location
	err := s.engine.read(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		l, err = tx.GetLocation(ctx, id)
		return err
	})
	return l, err
}

// List lists the tenant's locations by name
func (s *LocationService) List(ctx context.Context) ([]domain.Location, error) {
	var rows []domain.Location
	err := s.engine.read(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		rows, err = tx.ListLocations(ctx)
		return err
	})
	return rows, err
}

// Update updates a location
func (s *LocationService) Update(ctx context.Context, l *domain.Location) error {
	l.Name = strings.TrimSpace(l.Name)
	if l.Name == "" {
		return errors.Validation(map[string]string{"name": "this field is required"})
	}
	_, err := s.engine.write(ctx, "location", func(ctx context.Context, tx Tx, _ string) ([]*ledger.Commit, error) {
		return nil, tx.UpdateLocation(ctx, l)
	})
	return err
}

// Delete deletes a location that nothing references
func (s *LocationService) Delete(ctx context.Context, id string) error {
	_, err := s.engine.write(ctx, "location", func(ctx context.Context, tx Tx, _ string) ([]*ledger.Commit, error) {
		return nil, tx.DeleteLocation(ctx, id)
	})
	return err
}

// CategoryService manages item categories
type CategoryService struct {
	engine *Engine
}

// NewCategoryService creates a new category service
func NewCategoryService(engine *Engine) *CategoryService {
	return &CategoryService{engine: engine}
}

// Create creates a category
func (s *CategoryService) Create(ctx context.Context, c *domain.Category) error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return errors.Validation(map[string]string{"name": "this field is required"})
	}
	_, err := s.engine.write(ctx, "category", func(ctx context.Context, tx Tx, _ string) ([]*ledger.Commit, error) {
		return nil, tx.CreateCategory(ctx, c)
	})
	return err
}

// Get gets a category by ID
func (s *CategoryService) Get(ctx context.Context, id string) (*domain.Category, error) {
	var c *domain.Category
	err := s.engine.read(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		c, err = tx.GetCategory(ctx, id)
		return err
	})
	return c, err
}

// List lists the tenant's categories by name
func (s *CategoryService) List(ctx context.Context) ([]domain.Category, error) {
	var rows []domain.Category
	err := s.engine.read(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		rows, err = tx.ListCategories(ctx)
		return err
	})
	return rows, err
}

// Update updates a category
func (s *CategoryService) Update(ctx context.Context, c *domain.Category) error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return errors.Validation(map[string]string{"name": "this field is required"})
	}
	_, err := s.engine.write(ctx, "category", func(ctx context.Context, tx Tx, _ string) ([]*ledger.Commit, error) {
		return nil, tx.UpdateCategory(ctx, c)
	})
	return err
}

// Delete deletes a category that nothing references
func (s *CategoryService) Delete(ctx context.Context, id string) error {
	_, err := s.engine.write(ctx, "category", func(ctx context.Context, tx Tx, _ string) ([]*ledger.Commit, error) {
		return nil, tx.DeleteCategory(ctx, id)
	})
	return err
}
