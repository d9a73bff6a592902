package repository_test

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syncstock/syncstock-backend/internal/inventory/domain"
	"github.com/syncstock/syncstock-backend/internal/inventory/ledger"
	"github.com/syncstock/syncstock-backend/internal/inventory/repository"
	"github.com/syncstock/syncstock-backend/internal/inventory/service"
	"github.com/syncstock/syncstock-backend/pkg/errors"
	"github.com/syncstock/syncstock-backend/pkg/logger"
	"github.com/syncstock/syncstock-backend/pkg/testutil"
)

var suite *testutil.IntegrationSuite

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	var err error
	suite, err = testutil.NewIntegrationSuite(ctx, repository.Migrations())
	if err != nil {
		log.Fatalf("failed to start integration suite: %v", err)
	}

	code := m.Run()
	if err := suite.Cleanup(ctx); err != nil {
		log.Printf("cleanup: %v", err)
	}
	testutil.TerminateContainer(ctx)
	os.Exit(code)
}

type pgFixture struct {
	ctx       context.Context
	tenantID  string
	commits   *testutil.CommitRecorder
	locations *service.LocationService
	receipts  *service.ReceiptService
	adjusts   *service.AdjustmentService
	transfers *service.TransferService
	balances  *service.BalanceService
	reconcile *service.ReconcileService
	store     *repository.Store

	main, annex *domain.Location
	category    *domain.Category
}

func newPGFixture(t *testing.T) *pgFixture {
	t.Helper()
	testutil.SkipIfShort(t)

	tenantID := suite.SetupTenant(t)
	f := &pgFixture{
		ctx:      testutil.TenantContext(tenantID),
		tenantID: tenantID,
		commits:  testutil.NewCommitRecorder(),
		store:    repository.NewStore(suite.DB, logger.Nop(), repository.WithLockTimeout(2*time.Second)),
	}
	engine := service.NewEngine(f.store, ledger.NewCoordinator(logger.Nop()), logger.Nop(),
		service.WithPublisher(f.commits),
		service.WithRetryMaxElapsed(5*time.Second))

	f.locations = service.NewLocationService(engine)
	f.receipts = service.NewReceiptService(engine)
	f.adjusts = service.NewAdjustmentService(engine)
	f.transfers = service.NewTransferService(engine)
	f.balances = service.NewBalanceService(engine, nil)
	f.reconcile = service.NewReconcileService(engine)
	categories := service.NewCategoryService(engine)

	f.main = suite.Fixtures.Location()
	f.annex = suite.Fixtures.Location()
	f.category = suite.Fixtures.Category()
	require.NoError(t, f.locations.Create(f.ctx, f.main))
	require.NoError(t, f.locations.Create(f.ctx, f.annex))
	require.NoError(t, categories.Create(f.ctx, f.category))
	return f
}

func (f *pgFixture) receive(t *testing.T, qty int64) *domain.Receipt {
	t.Helper()
	r := suite.Fixtures.Receipt(f.main.ID, f.category.ID, qty)
	_, err := f.receipts.Create(f.ctx, r)
	require.NoError(t, err)
	return r
}

func (f *pgFixture) quantityAt(t *testing.T, r *domain.Receipt, locationID string) int64 {
	t.Helper()
	key := ledger.ResolveReceipt(r.Ledger())
	key.LocationID = locationID
	b, err := f.balances.Get(f.ctx, key)
	if errors.Is(err, errors.ErrNotFound) {
		return 0
	}
	require.NoError(t, err)
	return b.Quantity
}

func (f *pgFixture) assertNoDrift(t *testing.T) {
	t.Helper()
	report, err := f.reconcile.Reconcile(f.ctx, false)
	require.NoError(t, err)
	assert.Empty(t, report.Drifts)
}

func statusOf(err error) int {
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return 0
}

func TestPostgres_ReceiptAdjustmentTransferLifecycle(t *testing.T) {
	f := newPGFixture(t)

	r := f.receive(t, 10)
	assert.Equal(t, int64(10), f.quantityAt(t, r, f.main.ID))

	adj := suite.Fixtures.Adjustment(r, 3)
	_, err := f.adjusts.Create(f.ctx, adj)
	require.NoError(t, err)
	assert.Equal(t, r.SKU, adj.SKU)
	assert.Equal(t, int64(7), f.quantityAt(t, r, f.main.ID))

	tr := suite.Fixtures.Transfer(r, f.annex.ID, 4)
	_, err = f.transfers.Create(f.ctx, tr)
	require.NoError(t, err)
	assert.Equal(t, int64(3), f.quantityAt(t, r, f.main.ID))
	assert.Equal(t, int64(4), f.quantityAt(t, r, f.annex.ID))

	_, err = f.transfers.Delete(f.ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), f.quantityAt(t, r, f.main.ID))
	assert.Equal(t, int64(0), f.quantityAt(t, r, f.annex.ID))

	f.commits.AssertPublished(t, ledger.EventTransfer, ledger.ActionDelete)
	f.assertNoDrift(t)
}

func TestPostgres_InsufficientStockRollsBack(t *testing.T) {
	f := newPGFixture(t)
	r := f.receive(t, 5)

	_, err := f.adjusts.Create(f.ctx, suite.Fixtures.Adjustment(r, 6))
	require.Error(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, statusOf(err))

	adjs, total, err := f.adjusts.List(f.ctx, domain.RecordFilter{ReceiptID: r.ID})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, adjs)
	assert.Equal(t, int64(5), f.quantityAt(t, r, f.main.ID))
}

func TestPostgres_ConcurrentDepletionsNeverOversell(t *testing.T) {
	f := newPGFixture(t)
	r := f.receive(t, 10)

	var wg sync.WaitGroup
	var ok atomic.Int32
	for i := 0; i < 15; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.adjusts.Create(f.ctx, suite.Fixtures.Adjustment(r, 1)); err == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), ok.Load())
	assert.Equal(t, int64(0), f.quantityAt(t, r, f.main.ID))
	f.assertNoDrift(t)
}

func TestPostgres_CascadeDeleteReceipt(t *testing.T) {
	f := newPGFixture(t)
	r := f.receive(t, 8)
	_, err := f.adjusts.Create(f.ctx, suite.Fixtures.Adjustment(r, 2))
	require.NoError(t, err)
	_, err = f.transfers.Create(f.ctx, suite.Fixtures.Transfer(r, f.annex.ID, 3))
	require.NoError(t, err)

	_, err = f.receipts.Delete(f.ctx, r.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(0), f.quantityAt(t, r, f.main.ID))
	assert.Equal(t, int64(0), f.quantityAt(t, r, f.annex.ID))
	_, total, err := f.transfers.List(f.ctx, domain.RecordFilter{ReceiptID: r.ID})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestPostgres_TenantIsolation(t *testing.T) {
	a := newPGFixture(t)
	b := newPGFixture(t)
	r := a.receive(t, 4)

	_, err := b.receipts.Get(b.ctx, r.ID)
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	_, err = b.adjusts.Create(b.ctx, suite.Fixtures.Adjustment(r, 1))
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, statusOf(err))

	balances, total, err := b.balances.List(b.ctx, domain.BalanceFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, balances)
}

func TestPostgres_RowLevelSecurityHidesForeignRows(t *testing.T) {
	a := newPGFixture(t)
	b := newPGFixture(t)
	a.receive(t, 2)

	// raw query without a tenant_id predicate; only the policy filters rows
	var visible int
	err := suite.DB.WithTenantRLS(context.Background(), b.tenantID, func(ctx context.Context) error {
		return suite.DB.Conn(ctx).GetContext(ctx, &visible, "SELECT COUNT(*) FROM receipts")
	})
	require.NoError(t, err)
	assert.Zero(t, visible)
}

func TestPostgres_DuplicateLocationName(t *testing.T) {
	f := newPGFixture(t)
	dup := suite.Fixtures.Location()
	dup.Name = f.main.Name

	err := f.locations.Create(f.ctx, dup)
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, statusOf(err))
}

func TestPostgres_FilterChoices(t *testing.T) {
	f := newPGFixture(t)
	f.receive(t, 1)
	other := suite.Fixtures.Receipt(f.annex.ID, f.category.ID, 1, testutil.WithItemName("Alcohol Swabs"), testutil.WithSKU("AS-1"))
	_, err := f.receipts.Create(f.ctx, other)
	require.NoError(t, err)

	choices, err := f.balances.FilterChoices(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alcohol Swabs", "Nitrile Gloves"}, choices.ItemNames)
	assert.Len(t, choices.Locations, 2)
	assert.Len(t, choices.Categories, 1)
}
