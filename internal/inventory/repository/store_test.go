package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syncstock/syncstock-backend/internal/inventory/domain"
	"github.com/syncstock/syncstock-backend/internal/inventory/ledger"
	"github.com/syncstock/syncstock-backend/internal/inventory/service"
	"github.com/syncstock/syncstock-backend/pkg/database"
	"github.com/syncstock/syncstock-backend/pkg/errors"
	"github.com/syncstock/syncstock-backend/pkg/logger"
)

const (
	tenantA  = "11111111-1111-4111-8111-111111111111"
	location = "22222222-2222-4222-8222-222222222222"
	category = "33333333-3333-4333-8333-333333333333"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	db := database.Wrap(sqlx.NewDb(raw, "postgres"), logger.Nop())
	return NewStore(db, logger.Nop(), WithLockTimeout(750*time.Millisecond)), mock
}

func expectSession(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL search_path").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("SET LOCAL app.current_tenant = '" + tenantA + "'")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("SET LOCAL lock_timeout = '750ms'")).WillReturnResult(sqlmock.NewResult(0, 0))
}

func balanceKey(sku string) ledger.BalanceKey {
	return ledger.BalanceKey{
		TenantID:   tenantA,
		ItemName:   "Gloves",
		SKU:        sku,
		LocationID: location,
		CategoryID: category,
	}
}

var balanceCols = []string{"id", "tenant_id", "item_name", "catalog_code", "sku", "location_id", "category_id",
	"quantity", "net_quantity", "version", "updated_at"}

func TestWithTx_RejectsMalformedTenant(t *testing.T) {
	store, mock := newMockStore(t)

	err := store.WithTx(context.Background(), "tenant-a", func(context.Context, service.Tx) error { return nil })

	assert.ErrorIs(t, err, errors.ErrBadRequest)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLockBalances_CreatesThenLocksInOrder(t *testing.T) {
	store, mock := newMockStore(t)
	keys := []ledger.BalanceKey{balanceKey("A"), balanceKey("B")}
	now := time.Now().UTC()

	expectSession(mock)
	for i, k := range keys {
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO balances")).
			WithArgs(k.TenantID, k.ItemName, k.CatalogCode, k.SKU, k.LocationID, k.CategoryID, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(regexp.QuoteMeta("FROM balances WHERE")+".*FOR UPDATE").
			WithArgs(k.TenantID, k.ItemName, k.CatalogCode, k.SKU, k.LocationID, k.CategoryID).
			WillReturnRows(sqlmock.NewRows(balanceCols).
				AddRow("b-"+k.SKU, tenantA, k.ItemName, "", k.SKU, location, category, int64(i*5), int64(i*5), int64(1), now))
	}
	mock.ExpectCommit()

	var locked map[ledger.BalanceKey]ledger.Balance
	err := store.WithTx(context.Background(), tenantA, func(ctx context.Context, tx service.Tx) error {
		var err error
		locked, err = tx.LockBalances(ctx, keys)
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, int64(5), locked[keys[1]].Quantity)
	assert.Equal(t, "b-A", locked[keys[0]].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLockBalances_ForeignTenantKey(t *testing.T) {
	store, mock := newMockStore(t)
	k := balanceKey("A")
	k.TenantID = "44444444-4444-4444-8444-444444444444"

	expectSession(mock)
	mock.ExpectRollback()

	err := store.WithTx(context.Background(), tenantA, func(ctx context.Context, tx service.Tx) error {
		_, err := tx.LockBalances(ctx, []ledger.BalanceKey{k})
		return err
	})

	assert.ErrorIs(t, err, errors.ErrBadRequest)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLockBalances_LockTimeoutIsRetryable(t *testing.T) {
	store, mock := newMockStore(t)

	expectSession(mock)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO balances")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FOR UPDATE").WillReturnError(&pq.Error{Code: "55P03", Message: "canceling statement due to lock timeout"})
	mock.ExpectRollback()

	err := store.WithTx(context.Background(), tenantA, func(ctx context.Context, tx service.Tx) error {
		_, err := tx.LockBalances(ctx, []ledger.BalanceKey{balanceKey("A")})
		return err
	})

	assert.True(t, ledger.IsRetryable(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveBalances_MissingRowIsNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	expectSession(mock)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE balances")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.WithTx(context.Background(), tenantA, func(ctx context.Context, tx service.Tx) error {
		return tx.SaveBalances(ctx, []ledger.Balance{{ID: "b-1", BalanceKey: balanceKey("A"), Quantity: 3}})
	})

	assert.ErrorIs(t, err, errors.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendEntries_BatchInsert(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	entries := []ledger.Entry{
		{ID: "e-1", BalanceKey: balanceKey("A"), EventType: ledger.EventTransfer, EventID: "t-1", Action: ledger.ActionCreate, Delta: -2, QuantityAfter: 3, CreatedAt: now},
		{ID: "e-2", BalanceKey: balanceKey("B"), EventType: ledger.EventTransfer, EventID: "t-1", Action: ledger.ActionCreate, Delta: 2, QuantityAfter: 2, CreatedAt: now},
	}

	expectSession(mock)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ledger_entries")).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := store.WithTx(context.Background(), tenantA, func(ctx context.Context, tx service.Tx) error {
		return tx.AppendEntries(ctx, entries)
	})

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetReceipt_NotFound(t *testing.T) {
	store, mock := newMockStore(t)
	id := "55555555-5555-4555-8555-555555555555"

	expectSession(mock)
	mock.ExpectQuery(regexp.QuoteMeta("FROM receipts WHERE id = $1 AND tenant_id = $2 FOR UPDATE")).
		WithArgs(id, tenantA).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := store.WithTx(context.Background(), tenantA, func(ctx context.Context, tx service.Tx) error {
		_, err := tx.GetReceiptForUpdate(ctx, id)
		return err
	})

	assert.ErrorIs(t, err, errors.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetReceipt_MalformedIDSkipsQuery(t *testing.T) {
	store, mock := newMockStore(t)

	expectSession(mock)
	mock.ExpectRollback()

	err := store.WithTx(context.Background(), tenantA, func(ctx context.Context, tx service.Tx) error {
		_, err := tx.GetReceipt(ctx, "not-a-uuid")
		return err
	})

	assert.ErrorIs(t, err, errors.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateLocation_DuplicateNameConflicts(t *testing.T) {
	store, mock := newMockStore(t)

	expectSession(mock)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO locations")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "locations_tenant_name_key"})
	mock.ExpectRollback()

	err := store.WithTx(context.Background(), tenantA, func(ctx context.Context, tx service.Tx) error {
		return tx.CreateLocation(ctx, &domain.Location{Name: "Main"})
	})

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "a location with this name already exists", appErr.Message)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListTransfers_LocationMatchesEitherEnd(t *testing.T) {
	store, mock := newMockStore(t)

	expectSession(mock)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM transfers WHERE tenant_id = $1 AND (from_location_id = $2 OR to_location_id = $2)")).
		WithArgs(tenantA, location).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC, id LIMIT $3 OFFSET $4")).
		WithArgs(tenantA, location, domain.DefaultPageSize, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	err := store.WithTx(context.Background(), tenantA, func(ctx context.Context, tx service.Tx) error {
		rows, total, err := tx.ListTransfers(ctx, domain.RecordFilter{LocationID: location})
		assert.Empty(t, rows)
		assert.Zero(t, total)
		return err
	})

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExpectedTotals(t *testing.T) {
	store, mock := newMockStore(t)

	expectSession(mock)
	mock.ExpectQuery("UNION ALL").
		WithArgs(tenantA).
		WillReturnRows(sqlmock.NewRows([]string{"item_name", "catalog_code", "sku", "location_id", "category_id", "total"}).
			AddRow("Gloves", "", "A", location, category, int64(7)).
			AddRow("Gloves", "", "B", location, category, int64(-1)))
	mock.ExpectCommit()

	var totals map[ledger.BalanceKey]int64
	err := store.WithTx(context.Background(), tenantA, func(ctx context.Context, tx service.Tx) error {
		var err error
		totals, err = tx.ExpectedTotals(ctx)
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, map[ledger.BalanceKey]int64{balanceKey("A"): 7, balanceKey("B"): -1}, totals)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `50\% off\_a\\b`, escapeLike(`50% off_a\b`))
}
