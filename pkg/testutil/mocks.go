package testutil

import (
	"context"
	"database/sql/driver"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/syncstock/syncstock-backend/internal/inventory/ledger"
)

// MockDB wraps sqlmock for easier testing
type MockDB struct {
	DB   *sqlx.DB
	Mock sqlmock.Sqlmock
}

// NewMockDB creates a new mock database for unit testing.
//
// Usage:
//
//	mockDB := testutil.NewMockDB(t)
//	defer mockDB.Close()
//
//	mockDB.ExpectTenantTx(tenantID, time.Second)
//	mockDB.ExpectQuery("SELECT").WillReturnRows(...)
//	mockDB.ExpectCommit()
func NewMockDB(t *testing.T) *MockDB {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	return &MockDB{
		DB:   sqlx.NewDb(db, "postgres"),
		Mock: mock,
	}
}

// Close closes the mock database connection
func (m *MockDB) Close() error {
	return m.DB.Close()
}

// ExpectQuery sets up an expected query, matched literally
func (m *MockDB) ExpectQuery(query string) *sqlmock.ExpectedQuery {
	return m.Mock.ExpectQuery(regexp.QuoteMeta(query))
}

// ExpectExec sets up an expected exec, matched literally
func (m *MockDB) ExpectExec(query string) *sqlmock.ExpectedExec {
	return m.Mock.ExpectExec(regexp.QuoteMeta(query))
}

// ExpectCommit sets up an expected commit
func (m *MockDB) ExpectCommit() *sqlmock.ExpectedCommit {
	return m.Mock.ExpectCommit()
}

// ExpectRollback sets up an expected rollback
func (m *MockDB) ExpectRollback() *sqlmock.ExpectedRollback {
	return m.Mock.ExpectRollback()
}

// ExpectationsWereMet verifies all expectations were met
func (m *MockDB) ExpectationsWereMet(t *testing.T) {
	t.Helper()
	if err := m.Mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled mock expectations: %v", err)
	}
}

// ExpectTenantTx expects the session setup the Postgres store runs at the
// start of every transaction: begin, search_path, app.current_tenant and
// lock_timeout.
func (m *MockDB) ExpectTenantTx(tenantID string, lockTimeout time.Duration) {
	m.Mock.ExpectBegin()
	m.Mock.ExpectExec("SET LOCAL search_path").
		WillReturnResult(sqlmock.NewResult(0, 0))
	m.Mock.ExpectExec(regexp.QuoteMeta(fmt.Sprintf("SET LOCAL app.current_tenant = '%s'", tenantID))).
		WillReturnResult(sqlmock.NewResult(0, 0))
	m.Mock.ExpectExec(regexp.QuoteMeta(fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", lockTimeout.Milliseconds()))).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

// AnyTime is a matcher for any time.Time value
type AnyTime struct{}

// Match satisfies the sqlmock.Argument interface
func (a AnyTime) Match(v driver.Value) bool {
	_, ok := v.(time.Time)
	return ok
}

// AnyUUID is a matcher for any UUID string
type AnyUUID struct{}

// Match satisfies the sqlmock.Argument interface
func (a AnyUUID) Match(v driver.Value) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// CommitRecorder records ledger commits handed to a publisher
type CommitRecorder struct {
	mu      sync.Mutex
	commits []*ledger.Commit
}

// NewCommitRecorder creates an empty recorder
func NewCommitRecorder() *CommitRecorder {
	return &CommitRecorder{}
}

// PublishCommit records c
func (r *CommitRecorder) PublishCommit(_ context.Context, c *ledger.Commit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commits = append(r.commits, c)
}

// Commits returns a copy of everything recorded so far
func (r *CommitRecorder) Commits() []*ledger.Commit {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*ledger.Commit, len(r.commits))
	copy(out, r.commits)
	return out
}

// AssertPublished checks that a commit for event and action was recorded
func (r *CommitRecorder) AssertPublished(t *testing.T, event ledger.EventType, action ledger.Action) {
	t.Helper()
	for _, c := range r.Commits() {
		if c.EventType == event && c.Action == action {
			return
		}
	}
	t.Errorf("expected a %s/%s commit to be published, but it wasn't", event, action)
}

// Reset clears all recorded commits
func (r *CommitRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commits = nil
}

// InvalidationRecorder records filter-choice invalidations per tenant
type InvalidationRecorder struct {
	mu    sync.Mutex
	calls map[string]int
}

// NewInvalidationRecorder creates an empty recorder
func NewInvalidationRecorder() *InvalidationRecorder {
	return &InvalidationRecorder{calls: map[string]int{}}
}

// Invalidate records one invalidation for tenantID
func (r *InvalidationRecorder) Invalidate(_ context.Context, tenantID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[tenantID]++
	return nil
}

// Calls returns how often tenantID was invalidated
func (r *InvalidationRecorder) Calls(tenantID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[tenantID]
}
