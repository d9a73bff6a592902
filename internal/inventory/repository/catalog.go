package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/syncstock/syncstock-backend/internal/inventory/domain"
	"github.com/syncstock/syncstock-backend/pkg/errors"
)

const locationColumns = `id, tenant_id, name, address, description, person_in_charge, maps_url, created_at, updated_at`

func (t *tx) CreateLocation(ctx context.Context, l *domain.Location) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	l.TenantID = t.tenantID

	query := `
		INSERT INTO locations (id, tenant_id, name, address, description, person_in_charge, maps_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	err := t.conn(ctx).QueryRowxContext(ctx, query,
		l.ID, l.TenantID, l.Name, l.Address, l.Description, l.PersonInCharge, l.MapsURL,
	).Scan(&l.CreatedAt, &l.UpdatedAt)
	return translate("create location", err)
}

func (t *tx) GetLocation(ctx context.Context, id string) (*domain.Location, error) {
	if !validID(id) {
		return nil, errors.NotFound("location")
	}
	var l domain.Location
	query := `SELECT ` + locationColumns + ` FROM locations WHERE id = $1 AND tenant_id = $2`
	if err := t.conn(ctx).GetContext(ctx, &l, query, id, t.tenantID); err != nil {
		return nil, notFound("location", err)
	}
	return &l, nil
}

func (t *tx) ListLocations(ctx context.Context) ([]domain.Location, error) {
	rows := []domain.Location{}
	query := `SELECT ` + locationColumns + ` FROM locations WHERE tenant_id = $1 ORDER BY name`
	if err := t.conn(ctx).SelectContext(ctx, &rows, query, t.tenantID); err != nil {
		return nil, translate("list locations", err)
	}
	return rows, nil
}

func (t *tx) UpdateLocation(ctx context.Context, l *domain.Location) error {
	if !validID(l.ID) {
		return errors.NotFound("location")
	}
	l.TenantID = t.tenantID
	query := `
		UPDATE locations
		SET name = $3, address = $4, description = $5, person_in_charge = $6, maps_url = $7, updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2
		RETURNING created_at, updated_at
	`
	err := t.conn(ctx).QueryRowxContext(ctx, query,
		l.ID, l.TenantID, l.Name, l.Address, l.Description, l.PersonInCharge, l.MapsURL,
	).Scan(&l.CreatedAt, &l.UpdatedAt)
	return notFound("location", err)
}

func (t *tx) DeleteLocation(ctx context.Context, id string) error {
	if !validID(id) {
		return errors.NotFound("location")
	}
	res, err := t.conn(ctx).ExecContext(ctx, `DELETE FROM locations WHERE id = $1 AND tenant_id = $2`, id, t.tenantID)
	if err != nil {
		return translate("delete location", err)
	}
	return affected(res, "location")
}

// Categories

const categoryColumns = `id, tenant_id, name, description, created_at, updated_at`

func (t *tx) CreateCategory(ctx context.Context, c *domain.Category) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.TenantID = t.tenantID

	query := `
		INSERT INTO categories (id, tenant_id, name, description)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`
	err := t.conn(ctx).QueryRowxContext(ctx, query, c.ID, c.TenantID, c.Name, c.Description).
		Scan(&c.CreatedAt, &c.UpdatedAt)
	return translate("create category", err)
}

func (t *tx) GetCategory(ctx context.Context, id string) (*domain.Category, error) {
	if !validID(id) {
		return nil, errors.NotFound("category")
	}
	var c domain.Category
	query := `SELECT ` + categoryColumns + ` FROM categories WHERE id = $1 AND tenant_id = $2`
	if err := t.conn(ctx).GetContext(ctx, &c, query, id, t.tenantID); err != nil {
		return nil, notFound("category", err)
	}
	return &c, nil
}

func (t *tx) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows := []domain.Category{}
	query := `SELECT ` + categoryColumns + ` FROM categories WHERE tenant_id = $1 ORDER BY name`
	if err := t.conn(ctx).SelectContext(ctx, &rows, query, t.tenantID); err != nil {
		return nil, translate("list categories", err)
	}
	return rows, nil
}

func (t *tx) UpdateCategory(ctx context.Context, c *domain.Category) error {
	if !validID(c.ID) {
		return errors.NotFound("category")
	}
	c.TenantID = t.tenantID
	query := `
		UPDATE categories
		SET name = $3, description = $4, updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2
		RETURNING created_at, updated_at
	`
	err := t.conn(ctx).QueryRowxContext(ctx, query, c.ID, c.TenantID, c.Name, c.Description).
		Scan(&c.CreatedAt, &c.UpdatedAt)
	return notFound("category", err)
}

func (t *tx) DeleteCategory(ctx context.Context, id string) error {
	if !validID(id) {
		return errors.NotFound("category")
	}
	res, err := t.conn(ctx).ExecContext(ctx, `DELETE FROM categories WHERE id = $1 AND tenant_id = $2`, id, t.tenantID)
	if err != nil {
		return translate("delete category", err)
	}
	return affected(res, "category")
}
