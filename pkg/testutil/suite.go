package testutil

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/syncstock/syncstock-backend/pkg/database"
	"github.com/syncstock/syncstock-backend/pkg/logger"
)

var (
	// Global test container (shared across all integration tests)
	globalContainer *PostgresContainer
	globalDB        *sqlx.DB
	containerOnce   sync.Once
	containerErr    error
)

// IntegrationSuite provides a base for integration tests with real PostgreSQL
type IntegrationSuite struct {
	Container *PostgresContainer
	// RawDB is a superuser connection; it bypasses row level security
	RawDB *sqlx.DB
	// DB connects as AppRole, so row level security is enforced
	DB       *database.DB
	Tenants  *TenantManager
	Fixtures *FixtureFactory
	Logger   *logger.Logger
}

// NewIntegrationSuite starts (or reuses) the shared container and applies
// migrations. Call this in TestMain.
//
// Usage:
//
//	var suite *testutil.IntegrationSuite
//
//	func TestMain(m *testing.M) {
//	    flag.Parse()
//	    if testing.Short() {
//	        os.Exit(m.Run())
//	    }
//	    ctx := context.Background()
//	    var err error
//	    suite, err = testutil.NewIntegrationSuite(ctx, repository.Migrations())
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer testutil.TerminateContainer(ctx)
//	    os.Exit(m.Run())
//	}
func NewIntegrationSuite(ctx context.Context, migrations []string) (*IntegrationSuite, error) {
	container, db, err := getOrCreateContainer(ctx)
	if err != nil {
		return nil, err
	}

	if err := container.ApplyMigrations(ctx, db, migrations); err != nil {
		return nil, err
	}

	appDSN, err := container.AppDSN()
	if err != nil {
		return nil, err
	}
	log := logger.New("test", "test")
	appDB, err := database.NewWithDSN(appDSN, log)
	if err != nil {
		return nil, err
	}

	return &IntegrationSuite{
		Container: container,
		RawDB:     db,
		DB:        appDB,
		Tenants:   NewTenantManager(db),
		Fixtures:  NewFixtureFactory(),
		Logger:    log,
	}, nil
}

// getOrCreateContainer returns the shared test container
func getOrCreateContainer(ctx context.Context) (*PostgresContainer, *sqlx.DB, error) {
	containerOnce.Do(func() {
		globalContainer, containerErr = NewPostgresContainer(ctx, DefaultPostgresConfig())
		if containerErr != nil {
			return
		}
		globalDB, containerErr = globalContainer.Connect(ctx)
	})

	return globalContainer, globalDB, containerErr
}

// SetupTenant registers a fresh tenant for one test and deletes its rows
// when the test ends.
func (s *IntegrationSuite) SetupTenant(t *testing.T) string {
	t.Helper()

	id := s.Tenants.NewTenant()
	t.Cleanup(func() {
		if err := s.Tenants.DropTenant(context.Background(), id); err != nil {
			t.Logf("warning: failed to drop tenant %s: %v", id, err)
		}
	})
	return id
}

// Cleanup removes the rows of every tenant the suite created
func (s *IntegrationSuite) Cleanup(ctx context.Context) error {
	if err := s.Tenants.Cleanup(ctx); err != nil {
		return err
	}
	// the container is shared; TerminateContainer stops it
	return s.DB.Close()
}

// TerminateContainer terminates the shared container.
// Only call this in TestMain after all tests have completed.
func TerminateContainer(ctx context.Context) {
	if globalContainer != nil {
		globalContainer.Terminate(ctx)
	}
}

// UnitTestSuite provides a base for unit tests with mocked dependencies
type UnitTestSuite struct {
	MockDB   *MockDB
	Fixtures *FixtureFactory
	t        *testing.T
}

// NewUnitTestSuite creates a new unit test suite
func NewUnitTestSuite(t *testing.T) *UnitTestSuite {
	return &UnitTestSuite{
		MockDB:   NewMockDB(t),
		Fixtures: NewFixtureFactory(),
		t:        t,
	}
}

// Cleanup verifies expectations and cleans up
func (s *UnitTestSuite) Cleanup() {
	s.MockDB.ExpectationsWereMet(s.t)
	s.MockDB.Close()
}

// GetEnvOrDefault returns environment variable or default value
func GetEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// IsCI returns true if running in CI environment
func IsCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL"}
	for _, v := range ciVars {
		if os.Getenv(v) != "" {
			return true
		}
	}
	return false
}
