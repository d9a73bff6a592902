// Package memstore is an in-process implementation of the inventory store.
// It backs unit tests and the "memory" storage driver for local runs.
//
// Transactions run at read-committed isolation: reads see committed data plus
// the transaction's own staged writes, and staged writes become visible to
// others only on commit. Balance rows and source records are locked per key
// with a bounded wait, matching the row locks of the Postgres store.
package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/syncstock/syncstock-backend/internal/inventory/domain"
	"github.com/syncstock/syncstock-backend/internal/inventory/ledger"
	"github.com/syncstock/syncstock-backend/internal/inventory/service"
)

var errLockTimeout = errors.New("lock wait timed out")

// Store holds all tenants' data in memory
type Store struct {
	mu          sync.RWMutex
	tenants     map[string]*dataset
	locks       *lockTable
	lockTimeout time.Duration
	now         func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithLockTimeout bounds how long a transaction waits for a row lock
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.lockTimeout = d
	}
}

// WithClock overrides the timestamp source
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates an empty store
func New(opts ...Option) *Store {
	s := &Store{
		tenants:     make(map[string]*dataset),
		locks:       &lockTable{locks: make(map[string]chan struct{})},
		lockTimeout: 2 * time.Second,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type dataset struct {
	locations   map[string]domain.Location
	categories  map[string]domain.Category
	receipts    map[string]domain.Receipt
	adjustments map[string]domain.Adjustment
	transfers   map[string]domain.Transfer
	balances    map[ledger.BalanceKey]ledger.Balance
	entries     []ledger.Entry
}

func newDataset() *dataset {
	return &dataset{
		locations:   make(map[string]domain.Location),
		categories:  make(map[string]domain.Category),
		receipts:    make(map[string]domain.Receipt),
		adjustments: make(map[string]domain.Adjustment),
		transfers:   make(map[string]domain.Transfer),
		balances:    make(map[ledger.BalanceKey]ledger.Balance),
	}
}

// WithTx runs fn in a transaction scoped to tenantID.
func (s *Store) WithTx(ctx context.Context, tenantID string, fn func(ctx context.Context, tx service.Tx) error) error {
	if tenantID == "" {
		return errors.New("memstore: tenant id required")
	}

	s.mu.Lock()
	data, ok := s.tenants[tenantID]
	if !ok {
		data = newDataset()
		s.tenants[tenantID] = data
	}
	s.mu.Unlock()

	t := newTx(s, tenantID, data)
	defer t.releaseAll()

	if err := fn(ctx, t); err != nil {
		return err
	}
	return t.commit()
}

// Entries returns the committed audit entries for a tenant
func (s *Store) Entries(tenantID string) []ledger.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.tenants[tenantID]
	if !ok {
		return nil
	}
	out := make([]ledger.Entry, len(data.entries))
	copy(out, data.entries)
	return out
}

// lockTable hands out named exclusive locks with a bounded wait
type lockTable struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func (t *lockTable) acquire(ctx context.Context, name string, timeout time.Duration) error {
	t.mu.Lock()
	ch, ok := t.locks[name]
	if !ok {
		ch = make(chan struct{}, 1)
		t.locks[name] = ch
	}
	t.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		return nil
	case <-timer.C:
		return ledger.Unavailable("lock "+name, errLockTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *lockTable) release(name string) {
	t.mu.Lock()
	ch := t.locks[name]
	t.mu.Unlock()
	<-ch
}

// overlay stages writes to one table until commit
type overlay[T any] struct {
	puts map[string]T
	dels map[string]struct{}
}

func newOverlay[T any]() overlay[T] {
	return overlay[T]{puts: make(map[string]T), dels: make(map[string]struct{})}
}

func (o *overlay[T]) put(id string, v T) {
	delete(o.dels, id)
	o.puts[id] = v
}

func (o *overlay[T]) del(id string) {
	delete(o.puts, id)
	o.dels[id] = struct{}{}
}

func (o *overlay[T]) lookup(base map[string]T, id string) (T, bool) {
	if v, ok := o.puts[id]; ok {
		return v, true
	}
	if _, gone := o.dels[id]; gone {
		var zero T
		return zero, false
	}
	v, ok := base[id]
	return v, ok
}

func (o *overlay[T]) all(base map[string]T) []T {
	out := make([]T, 0, len(base)+len(o.puts))
	for id, v := range base {
		if _, gone := o.dels[id]; gone {
			continue
		}
		if _, staged := o.puts[id]; staged {
			continue
		}
		out = append(out, v)
	}
	for _, v := range o.puts {
		out = append(out, v)
	}
	return out
}

func (o *overlay[T]) flush(base map[string]T) {
	for id := range o.dels {
		delete(base, id)
	}
	for id, v := range o.puts {
		base[id] = v
	}
}

func page[T any](rows []T, limit, offset int) []T {
	limit, offset = domain.Page(limit, offset)
	if offset >= len(rows) {
		return []T{}
	}
	end := offset + limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end]
}

func sortByCreated[T any](rows []T, created func(T) time.Time, id func(T) string) {
	sort.Slice(rows, func(i, j int) bool {
		ci, cj := created(rows[i]), created(rows[j])
		if !ci.Equal(cj) {
			return ci.After(cj)
		}
		return id(rows[i]) < id(rows[j])
	})
}
