package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Migrations returns the inventory schema DDL in apply order. Every statement
// is idempotent.
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS locations (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			name TEXT NOT NULL,
			address TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			person_in_charge TEXT,
			maps_url TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT locations_tenant_id_key UNIQUE (tenant_id, id)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS locations_tenant_name_key ON locations (tenant_id, lower(name))`,

		`CREATE TABLE IF NOT EXISTS categories (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT categories_tenant_id_key UNIQUE (tenant_id, id)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS categories_tenant_name_key ON categories (tenant_id, lower(name))`,

		`CREATE TABLE IF NOT EXISTS receipts (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			item_name TEXT NOT NULL,
			catalog_code TEXT NOT NULL DEFAULT '',
			sku TEXT NOT NULL DEFAULT '',
			supplier_name TEXT NOT NULL DEFAULT '',
			description TEXT,
			quantity BIGINT NOT NULL CONSTRAINT receipts_quantity_positive CHECK (quantity > 0),
			price NUMERIC(14, 4) NOT NULL DEFAULT 0,
			receipt_date DATE NOT NULL DEFAULT CURRENT_DATE,
			expiration_date DATE,
			location_id UUID NOT NULL,
			category_id UUID NOT NULL,
			created_by TEXT NOT NULL DEFAULT 'system',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT receipts_tenant_id_key UNIQUE (tenant_id, id),
			FOREIGN KEY (tenant_id, location_id) REFERENCES locations (tenant_id, id),
			FOREIGN KEY (tenant_id, category_id) REFERENCES categories (tenant_id, id)
		)`,

		`CREATE TABLE IF NOT EXISTS adjustments (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			receipt_id UUID NOT NULL,
			adjustment_type TEXT NOT NULL DEFAULT 'remove'
				CONSTRAINT adjustments_adjustment_type_valid
				CHECK (adjustment_type IN ('remove', 'missing', 'damage', 'expired', 'sold')),
			quantity BIGINT NOT NULL CONSTRAINT adjustments_quantity_positive CHECK (quantity > 0),
			adjustment_date DATE NOT NULL DEFAULT CURRENT_DATE,
			reason TEXT,
			location_id UUID NOT NULL,
			category_id UUID NOT NULL,
			sku TEXT NOT NULL DEFAULT '',
			catalog_code TEXT NOT NULL DEFAULT '',
			created_by TEXT NOT NULL DEFAULT 'system',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			FOREIGN KEY (tenant_id, receipt_id) REFERENCES receipts (tenant_id, id),
			FOREIGN KEY (tenant_id, location_id) REFERENCES locations (tenant_id, id),
			FOREIGN KEY (tenant_id, category_id) REFERENCES categories (tenant_id, id)
		)`,
		`CREATE INDEX IF NOT EXISTS adjustments_receipt_idx ON adjustments (tenant_id, receipt_id)`,

		`CREATE TABLE IF NOT EXISTS transfers (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			receipt_id UUID NOT NULL,
			quantity BIGINT NOT NULL CONSTRAINT transfers_quantity_positive CHECK (quantity > 0),
			from_location_id UUID NOT NULL,
			to_location_id UUID NOT NULL,
			category_id UUID NOT NULL,
			price NUMERIC(14, 4) NOT NULL DEFAULT 0,
			transfer_date DATE NOT NULL DEFAULT CURRENT_DATE,
			sku TEXT NOT NULL DEFAULT '',
			catalog_code TEXT NOT NULL DEFAULT '',
			created_by TEXT NOT NULL DEFAULT 'system',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT transfers_distinct_locations CHECK (from_location_id <> to_location_id),
			FOREIGN KEY (tenant_id, receipt_id) REFERENCES receipts (tenant_id, id),
			FOREIGN KEY (tenant_id, from_location_id) REFERENCES locations (tenant_id, id),
			FOREIGN KEY (tenant_id, to_location_id) REFERENCES locations (tenant_id, id),
			FOREIGN KEY (tenant_id, category_id) REFERENCES categories (tenant_id, id)
		)`,
		`CREATE INDEX IF NOT EXISTS transfers_receipt_idx ON transfers (tenant_id, receipt_id)`,

		`CREATE TABLE IF NOT EXISTS balances (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			item_name TEXT NOT NULL,
			catalog_code TEXT NOT NULL,
			sku TEXT NOT NULL,
			location_id UUID NOT NULL,
			category_id UUID NOT NULL,
			quantity BIGINT NOT NULL DEFAULT 0 CONSTRAINT balances_quantity_non_negative CHECK (quantity >= 0),
			net_quantity BIGINT NOT NULL DEFAULT 0,
			version BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT balances_key UNIQUE (tenant_id, item_name, catalog_code, sku, location_id, category_id),
			CONSTRAINT balances_quantity_clamped CHECK (quantity = GREATEST(net_quantity, 0)),
			FOREIGN KEY (tenant_id, location_id) REFERENCES locations (tenant_id, id),
			FOREIGN KEY (tenant_id, category_id) REFERENCES categories (tenant_id, id)
		)`,

		`CREATE TABLE IF NOT EXISTS ledger_entries (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			item_name TEXT NOT NULL,
			catalog_code TEXT NOT NULL,
			sku TEXT NOT NULL,
			location_id UUID NOT NULL,
			category_id UUID NOT NULL,
			event_type TEXT NOT NULL,
			event_id TEXT NOT NULL,
			action TEXT NOT NULL,
			delta BIGINT NOT NULL,
			quantity_after BIGINT NOT NULL,
			rekey BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS ledger_entries_event_idx ON ledger_entries (tenant_id, event_type, event_id)`,

		rls("locations"),
		rls("categories"),
		rls("receipts"),
		rls("adjustments"),
		rls("transfers"),
		rls("balances"),
		rls("ledger_entries"),
	}
}

// rls enables the tenant isolation policy on table. The policy compares
// against app.current_tenant, set by database.WithTenantRLS.
func rls(table string) string {
	return fmt.Sprintf(`
		ALTER TABLE %[1]s ENABLE ROW LEVEL SECURITY;
		DROP POLICY IF EXISTS %[1]s_tenant_isolation ON %[1]s;
		CREATE POLICY %[1]s_tenant_isolation ON %[1]s
			USING (tenant_id = current_setting('app.current_tenant', true)::uuid)
			WITH CHECK (tenant_id = current_setting('app.current_tenant', true)::uuid)
	`, table)
}

// Migrate applies Migrations in one transaction
func Migrate(ctx context.Context, db *sqlx.DB) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	for i, stmt := range Migrations() {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	return nil
}
