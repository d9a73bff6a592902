package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/syncstock/syncstock-backend/pkg/logger"
	"github.com/syncstock/syncstock-backend/pkg/metrics"
)

// Coordinator is the only component allowed to mutate balances. Every method
// runs inside the caller's transaction and must be called with the Tx bound
// to that transaction; on error the caller rolls back.
type Coordinator struct {
	logger             *logger.Logger
	metrics            *metrics.Ledger
	allowImplicitRekey bool
	now                func() time.Time
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithMetrics attaches Prometheus collectors
func WithMetrics(m *metrics.Ledger) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithImplicitRekey controls whether ReceiptUpdated may move stock between
// buckets when descriptive fields change.
func WithImplicitRekey(allow bool) Option {
	return func(c *Coordinator) {
		c.allowImplicitRekey = allow
	}
}

// WithClock overrides the commit timestamp source
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// NewCoordinator creates a Coordinator. Implicit re-keying is allowed unless
// disabled with WithImplicitRekey(false).
func NewCoordinator(log *logger.Logger, opts ...Option) *Coordinator {
	if log == nil {
		log = logger.Nop()
	}
	c := &Coordinator{
		logger:             log.WithComponent("ledger"),
		allowImplicitRekey: true,
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// proposal is an event that has been resolved into deltas but not yet applied
type proposal struct {
	event    EventType
	action   Action
	eventID  string
	tenantID string
	deltas   []Delta
	// gated keys are the buckets the event draws stock from. Only these are
	// checked for sufficiency; reversals elsewhere clamp.
	gated    []BalanceKey
	rekey    bool
	cascaded Dependents
}

// Receipts

// ReceiptCreated adds a new receipt's quantity to its bucket.
func (c *Coordinator) ReceiptCreated(ctx context.Context, tx Tx, tenantID string, r Receipt) (*Commit, error) {
	if err := c.checkTenant(tenantID, r.TenantID); err != nil {
		return nil, err
	}
	cur := &ReceiptState{Key: ResolveReceipt(r), Quantity: r.Quantity}
	return c.apply(ctx, tx, proposal{
		event:    EventReceipt,
		action:   ActionCreate,
		eventID:  r.ID,
		tenantID: tenantID,
		deltas:   ReceiptDeltas(ActionCreate, nil, cur),
	})
}

// ReceiptUpdated moves a receipt's contribution from its old state to its new
// one. Receipt decreases are never checked for sufficiency; the bucket floor
// absorbs them. When the key changes this is an implicit re-key: it is
// audited, and refused when implicit re-keying is disabled.
func (c *Coordinator) ReceiptUpdated(ctx context.Context, tx Tx, tenantID string, old, cur Receipt) (*Commit, error) {
	if err := c.checkTenant(tenantID, old.TenantID, cur.TenantID); err != nil {
		return nil, err
	}
	oldState := &ReceiptState{Key: ResolveReceipt(old), Quantity: old.Quantity}
	curState := &ReceiptState{Key: ResolveReceipt(cur), Quantity: cur.Quantity}

	rekey := oldState.Key != curState.Key
	if rekey && !c.allowImplicitRekey {
		c.reject(EventReceipt, ActionUpdate, cur.ID, ErrImplicitRekey)
		return nil, &RejectedError{
			Event:   EventReceipt,
			Action:  ActionUpdate,
			EventID: cur.ID,
			Stage:   StateProposed,
			Err:     ErrImplicitRekey,
		}
	}
	if rekey {
		c.logger.Warn().
			Str("tenant_id", tenantID).
			Str("receipt_id", cur.ID).
			Str("from_key", oldState.Key.String()).
			Str("to_key", curState.Key.String()).
			Msg("receipt edit moves stock to another balance bucket")
	}

	return c.apply(ctx, tx, proposal{
		event:    EventReceipt,
		action:   ActionUpdate,
		eventID:  cur.ID,
		tenantID: tenantID,
		deltas:   ReceiptDeltas(ActionUpdate, oldState, curState),
		rekey:    rekey,
	})
}

// ReceiptRekeyed is the explicit re-key operation. Besides moving the
// receipt's own quantity it moves every dependent adjustment and transfer
// along, so their later reversals land in the bucket they were applied to.
func (c *Coordinator) ReceiptRekeyed(ctx context.Context, tx Tx, tenantID string, old, cur Receipt) (*Commit, error) {
	if err := c.checkTenant(tenantID, old.TenantID, cur.TenantID); err != nil {
		return nil, err
	}
	deps, err := tx.ReceiptDependents(ctx, tenantID, old.ID)
	if err != nil {
		return nil, c.storeError(EventReceipt, ActionRekey, old.ID, "load receipt dependents", err)
	}

	deltas := ReceiptDeltas(ActionRekey,
		&ReceiptState{Key: ResolveReceipt(old), Quantity: old.Quantity},
		&ReceiptState{Key: ResolveReceipt(cur), Quantity: cur.Quantity})

	for _, a := range deps.Adjustments {
		oldKey, err := ResolveAdjustment(a, &old)
		if err != nil {
			return nil, c.fatal(EventReceipt, ActionRekey, old.ID, err)
		}
		curKey, err := ResolveAdjustment(a, &cur)
		if err != nil {
			return nil, c.fatal(EventReceipt, ActionRekey, old.ID, err)
		}
		deltas = append(deltas, AdjustmentDeltas(ActionRekey,
			&AdjustmentState{Key: oldKey, Quantity: a.Quantity},
			&AdjustmentState{Key: curKey, Quantity: a.Quantity})...)
	}
	for _, t := range deps.Transfers {
		oldFrom, oldTo, err := ResolveTransfer(t, &old)
		if err != nil {
			return nil, c.fatal(EventReceipt, ActionRekey, old.ID, err)
		}
		curFrom, curTo, err := ResolveTransfer(t, &cur)
		if err != nil {
			return nil, c.fatal(EventReceipt, ActionRekey, old.ID, err)
		}
		deltas = append(deltas, TransferDeltas(ActionRekey,
			&TransferState{From: oldFrom, To: oldTo, Quantity: t.Quantity},
			&TransferState{From: curFrom, To: curTo, Quantity: t.Quantity})...)
	}

	c.logger.Warn().
		Str("tenant_id", tenantID).
		Str("receipt_id", cur.ID).
		Str("from_key", ResolveReceipt(old).String()).
		Str("to_key", ResolveReceipt(cur).String()).
		Int("adjustments", len(deps.Adjustments)).
		Int("transfers", len(deps.Transfers)).
		Msg("receipt re-keyed")

	return c.apply(ctx, tx, proposal{
		event:    EventReceipt,
		action:   ActionRekey,
		eventID:  cur.ID,
		tenantID: tenantID,
		deltas:   deltas,
		rekey:    true,
	})
}

// ReceiptDeleted removes a receipt's contribution. Its dependents are removed
// with it: each one's depletion is reversed first, and they are returned in
// Commit.Cascaded for the caller to delete.
func (c *Coordinator) ReceiptDeleted(ctx context.Context, tx Tx, tenantID string, r Receipt) (*Commit, error) {
	if err := c.checkTenant(tenantID, r.TenantID); err != nil {
		return nil, err
	}
	deps, err := tx.ReceiptDependents(ctx, tenantID, r.ID)
	if err != nil {
		return nil, c.storeError(EventReceipt, ActionDelete, r.ID, "load receipt dependents", err)
	}

	var deltas []Delta
	for _, a := range deps.Adjustments {
		key, err := ResolveAdjustment(a, &r)
		if err != nil {
			return nil, c.fatal(EventReceipt, ActionDelete, r.ID, err)
		}
		deltas = append(deltas, AdjustmentDeltas(ActionDelete, &AdjustmentState{Key: key, Quantity: a.Quantity}, nil)...)
	}
	for _, t := range deps.Transfers {
		from, to, err := ResolveTransfer(t, &r)
		if err != nil {
			return nil, c.fatal(EventReceipt, ActionDelete, r.ID, err)
		}
		deltas = append(deltas, TransferDeltas(ActionDelete, &TransferState{From: from, To: to, Quantity: t.Quantity}, nil)...)
	}
	deltas = append(deltas, ReceiptDeltas(ActionDelete, &ReceiptState{Key: ResolveReceipt(r), Quantity: r.Quantity}, nil)...)

	return c.apply(ctx, tx, proposal{
		event:    EventReceipt,
		action:   ActionDelete,
		eventID:  r.ID,
		tenantID: tenantID,
		deltas:   deltas,
		cascaded: deps,
	})
}

// Adjustments

// AdjustmentCreated depletes the adjustment's bucket after checking stock.
func (c *Coordinator) AdjustmentCreated(ctx context.Context, tx Tx, tenantID string, a Adjustment) (*Commit, error) {
	if err := c.checkTenant(tenantID, a.TenantID); err != nil {
		return nil, err
	}
	cur, err := c.resolveAdjustment(ctx, tx, tenantID, a)
	if err != nil {
		return nil, c.fatal(EventAdjustment, ActionCreate, a.ID, err)
	}
	return c.apply(ctx, tx, proposal{
		event:    EventAdjustment,
		action:   ActionCreate,
		eventID:  a.ID,
		tenantID: tenantID,
		deltas:   AdjustmentDeltas(ActionCreate, nil, cur),
		gated:    []BalanceKey{cur.Key},
	})
}

// ValidateAdjustmentUpdate checks an adjustment edit without applying it.
// It locks the affected buckets, so a following AdjustmentUpdated in the same
// transaction sees the same balances.
func (c *Coordinator) ValidateAdjustmentUpdate(ctx context.Context, tx Tx, tenantID string, old, cur Adjustment) error {
	p, err := c.adjustmentUpdate(ctx, tx, tenantID, old, cur)
	if err != nil {
		return err
	}
	_, _, err = c.lockAndValidate(ctx, tx, p, Net(p.deltas))
	return err
}

// AdjustmentUpdated reverses the old depletion and applies the new one. The
// sufficiency check runs against the balance with the old depletion reversed.
func (c *Coordinator) AdjustmentUpdated(ctx context.Context, tx Tx, tenantID string, old, cur Adjustment) (*Commit, error) {
	p, err := c.adjustmentUpdate(ctx, tx, tenantID, old, cur)
	if err != nil {
		return nil, err
	}
	return c.apply(ctx, tx, p)
}

func (c *Coordinator) adjustmentUpdate(ctx context.Context, tx Tx, tenantID string, old, cur Adjustment) (proposal, error) {
	if err := c.checkTenant(tenantID, old.TenantID, cur.TenantID); err != nil {
		return proposal{}, err
	}
	oldState, err := c.resolveAdjustment(ctx, tx, tenantID, old)
	if err != nil {
		return proposal{}, c.fatal(EventAdjustment, ActionUpdate, cur.ID, err)
	}
	curState, err := c.resolveAdjustment(ctx, tx, tenantID, cur)
	if err != nil {
		return proposal{}, c.fatal(EventAdjustment, ActionUpdate, cur.ID, err)
	}
	return proposal{
		event:    EventAdjustment,
		action:   ActionUpdate,
		eventID:  cur.ID,
		tenantID: tenantID,
		deltas:   AdjustmentDeltas(ActionUpdate, oldState, curState),
		gated:    []BalanceKey{curState.Key},
	}, nil
}

// AdjustmentDeleted restocks the adjustment's bucket unconditionally.
func (c *Coordinator) AdjustmentDeleted(ctx context.Context, tx Tx, tenantID string, a Adjustment) (*Commit, error) {
	if err := c.checkTenant(tenantID, a.TenantID); err != nil {
		return nil, err
	}
	old, err := c.resolveAdjustment(ctx, tx, tenantID, a)
	if err != nil {
		return nil, c.fatal(EventAdjustment, ActionDelete, a.ID, err)
	}
	return c.apply(ctx, tx, proposal{
		event:    EventAdjustment,
		action:   ActionDelete,
		eventID:  a.ID,
		tenantID: tenantID,
		deltas:   AdjustmentDeltas(ActionDelete, old, nil),
	})
}

// Transfers

// TransferCreated moves stock from one location bucket to another after
// checking the source bucket.
func (c *Coordinator) TransferCreated(ctx context.Context, tx Tx, tenantID string, t Transfer) (*Commit, error) {
	if err := c.checkTenant(tenantID, t.TenantID); err != nil {
		return nil, err
	}
	cur, err := c.resolveTransfer(ctx, tx, tenantID, t)
	if err != nil {
		return nil, c.fatal(EventTransfer, ActionCreate, t.ID, err)
	}
	return c.apply(ctx, tx, proposal{
		event:    EventTransfer,
		action:   ActionCreate,
		eventID:  t.ID,
		tenantID: tenantID,
		deltas:   TransferDeltas(ActionCreate, nil, cur),
		gated:    []BalanceKey{cur.From},
	})
}

// ValidateTransferUpdate checks a transfer edit without applying it.
func (c *Coordinator) ValidateTransferUpdate(ctx context.Context, tx Tx, tenantID string, old, cur Transfer) error {
	p, err := c.transferUpdate(ctx, tx, tenantID, old, cur)
	if err != nil {
		return err
	}
	_, _, err = c.lockAndValidate(ctx, tx, p, Net(p.deltas))
	return err
}

// TransferUpdated reverses the old pair and applies the new pair, locking up
// to four buckets in key order before touching any of them.
func (c *Coordinator) TransferUpdated(ctx context.Context, tx Tx, tenantID string, old, cur Transfer) (*Commit, error) {
	p, err := c.transferUpdate(ctx, tx, tenantID, old, cur)
	if err != nil {
		return nil, err
	}
	return c.apply(ctx, tx, p)
}

func (c *Coordinator) transferUpdate(ctx context.Context, tx Tx, tenantID string, old, cur Transfer) (proposal, error) {
	if err := c.checkTenant(tenantID, old.TenantID, cur.TenantID); err != nil {
		return proposal{}, err
	}
	oldState, err := c.resolveTransfer(ctx, tx, tenantID, old)
	if err != nil {
		return proposal{}, c.fatal(EventTransfer, ActionUpdate, cur.ID, err)
	}
	curState, err := c.resolveTransfer(ctx, tx, tenantID, cur)
	if err != nil {
		return proposal{}, c.fatal(EventTransfer, ActionUpdate, cur.ID, err)
	}
	return proposal{
		event:    EventTransfer,
		action:   ActionUpdate,
		eventID:  cur.ID,
		tenantID: tenantID,
		deltas:   TransferDeltas(ActionUpdate, oldState, curState),
		gated:    []BalanceKey{curState.From},
	}, nil
}

// TransferDeleted moves the transferred stock back unconditionally.
func (c *Coordinator) TransferDeleted(ctx context.Context, tx Tx, tenantID string, t Transfer) (*Commit, error) {
	if err := c.checkTenant(tenantID, t.TenantID); err != nil {
		return nil, err
	}
	old, err := c.resolveTransfer(ctx, tx, tenantID, t)
	if err != nil {
		return nil, c.fatal(EventTransfer, ActionDelete, t.ID, err)
	}
	return c.apply(ctx, tx, proposal{
		event:    EventTransfer,
		action:   ActionDelete,
		eventID:  t.ID,
		tenantID: tenantID,
		deltas:   TransferDeltas(ActionDelete, old, nil),
	})
}

// Resolution

func (c *Coordinator) resolveAdjustment(ctx context.Context, tx Tx, tenantID string, a Adjustment) (*AdjustmentState, error) {
	src, err := tx.Receipt(ctx, tenantID, a.ReceiptID)
	if err != nil {
		return nil, err
	}
	key, err := ResolveAdjustment(a, src)
	if err != nil {
		return nil, err
	}
	return &AdjustmentState{Key: key, Quantity: a.Quantity}, nil
}

func (c *Coordinator) resolveTransfer(ctx context.Context, tx Tx, tenantID string, t Transfer) (*TransferState, error) {
	src, err := tx.Receipt(ctx, tenantID, t.ReceiptID)
	if err != nil {
		return nil, err
	}
	from, to, err := ResolveTransfer(t, src)
	if err != nil {
		return nil, err
	}
	return &TransferState{From: from, To: to, Quantity: t.Quantity}, nil
}

// Lifecycle

func (c *Coordinator) apply(ctx context.Context, tx Tx, p proposal) (*Commit, error) {
	net := Net(p.deltas)

	lc, balances, err := c.lockAndValidate(ctx, tx, p, net)
	if err != nil {
		return nil, err
	}

	now := c.now().UTC()
	changes := make([]BalanceChange, 0, len(net))
	updated := make([]Balance, 0, len(net))
	entries := make([]Entry, 0, len(net))
	for _, d := range net {
		b := balances[d.Key]
		b.BalanceKey = d.Key
		before := b.Quantity
		b.NetQuantity += d.Quantity
		b.Quantity = floor(b.NetQuantity)
		b.Version++
		b.UpdatedAt = now
		updated = append(updated, b)

		changes = append(changes, BalanceChange{
			Key:      d.Key,
			Delta:    d.Quantity,
			Before:   before,
			After:    b.Quantity,
			NetAfter: b.NetQuantity,
		})
		entries = append(entries, Entry{
			ID:            uuid.NewString(),
			BalanceKey:    d.Key,
			EventType:     p.event,
			EventID:       p.eventID,
			Action:        p.action,
			Delta:         d.Quantity,
			QuantityAfter: b.Quantity,
			Rekey:         p.rekey,
			CreatedAt:     now,
		})
	}

	if len(updated) > 0 {
		if err := tx.SaveBalances(ctx, updated); err != nil {
			return nil, lc.reject(p, c.storeError(p.event, p.action, p.eventID, "save balances", err))
		}
		if err := tx.AppendEntries(ctx, entries); err != nil {
			return nil, lc.reject(p, c.storeError(p.event, p.action, p.eventID, "append ledger entries", err))
		}
	}

	if err := lc.to(StateCommitted); err != nil {
		return nil, err
	}
	c.metrics.Committed(string(p.event), string(p.action))
	c.logger.Debug().
		Str("tenant_id", p.tenantID).
		Str("event", string(p.event)).
		Str("action", string(p.action)).
		Str("event_id", p.eventID).
		Int("buckets", len(changes)).
		Msg("ledger commit")

	return &Commit{
		EventType:   p.event,
		Action:      p.action,
		EventID:     p.eventID,
		TenantID:    p.tenantID,
		State:       lc.state,
		Rekeyed:     p.rekey,
		Changes:     changes,
		Cascaded:    p.cascaded,
		CommittedAt: now,
	}, nil
}

// lockAndValidate moves a proposal from Proposed to Validated, or to Rejected
// when a gated bucket would be overdrawn. Stock on hand is the clamped signed
// total, so a bucket whose net went negative offers nothing.
func (c *Coordinator) lockAndValidate(ctx context.Context, tx Tx, p proposal, net []Delta) (*lifecycle, map[BalanceKey]Balance, error) {
	lc := c.newLifecycle(p)

	balances := map[BalanceKey]Balance{}
	if keys := Keys(net); len(keys) > 0 {
		start := time.Now()
		locked, err := tx.LockBalances(ctx, keys)
		c.metrics.ObserveLockWait(time.Since(start))
		if err != nil {
			return nil, nil, lc.reject(p, c.storeError(p.event, p.action, p.eventID, "lock balances", err))
		}
		balances = locked
	}

	for _, d := range net {
		if d.Quantity >= 0 || !p.draws(d.Key) {
			continue
		}
		if err := CheckSufficient(d.Key, floor(balances[d.Key].NetQuantity), -d.Quantity); err != nil {
			c.reject(p.event, p.action, p.eventID, err)
			return nil, nil, lc.reject(p, err)
		}
	}

	if err := lc.to(StateValidated); err != nil {
		return nil, nil, err
	}
	return lc, balances, nil
}

func (c *Coordinator) newLifecycle(p proposal) *lifecycle {
	lc := newLifecycle()
	lc.onTransition = func(from, to State) {
		c.logger.Debug().
			Str("event", string(p.event)).
			Str("action", string(p.action)).
			Str("event_id", p.eventID).
			Str("from", string(from)).
			Str("to", string(to)).
			Msg("ledger transition")
	}
	return lc
}

func (p proposal) draws(k BalanceKey) bool {
	for _, g := range p.gated {
		if g == k {
			return true
		}
	}
	return false
}

func (c *Coordinator) reject(event EventType, action Action, eventID string, err error) {
	c.metrics.Rejected(string(event), reason(err))
	c.logger.Info().
		Err(err).
		Str("event", string(event)).
		Str("action", string(action)).
		Str("event_id", eventID).
		Msg("ledger rejected event")
}

// fatal handles resolution failures. A missing receipt is an integrity fault
// and is logged at error level; anything else is a store failure.
func (c *Coordinator) fatal(event EventType, action Action, eventID string, err error) error {
	if errors.Is(err, ErrMissingReferencedReceipt) {
		c.metrics.Rejected(string(event), reason(err))
		c.logger.Error().
			Err(err).
			Str("event", string(event)).
			Str("action", string(action)).
			Str("event_id", eventID).
			Msg("ledger integrity fault")
		return err
	}
	return c.storeError(event, action, eventID, "load referenced receipt", err)
}

func (c *Coordinator) storeError(event EventType, action Action, eventID, op string, err error) error {
	if !errors.Is(err, ErrBalanceStoreUnavailable) {
		err = fmt.Errorf("%s: %w", op, err)
	}
	c.metrics.Rejected(string(event), reason(err))
	c.logger.Warn().
		Err(err).
		Str("event", string(event)).
		Str("action", string(action)).
		Str("event_id", eventID).
		Msg("ledger store failure")
	return err
}

func (c *Coordinator) checkTenant(tenantID string, owners ...string) error {
	if tenantID == "" {
		return errors.New("ledger: tenant id required")
	}
	for _, owner := range owners {
		if owner != tenantID {
			return fmt.Errorf("ledger: record of tenant %q used under tenant %q", owner, tenantID)
		}
	}
	return nil
}

func reason(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrMissingReferencedReceipt):
		return "missing_receipt"
	case errors.Is(err, ErrBalanceStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, ErrImplicitRekey):
		return "implicit_rekey"
	default:
		return "error"
	}
}

func floor(q int64) int64 {
	if q < 0 {
		return 0
	}
	return q
}
