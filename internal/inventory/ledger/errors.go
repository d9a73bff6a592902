package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientStock is returned when a depleting event would overdraw a bucket.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrMissingReferencedReceipt is returned when an adjustment or transfer
	// points at a receipt that does not exist for its tenant.
	ErrMissingReferencedReceipt = errors.New("referenced receipt not found")

	// ErrBalanceStoreUnavailable is returned on lock timeouts, deadlocks and
	// lost connections. The whole event may be retried.
	ErrBalanceStoreUnavailable = errors.New("balance store unavailable")

	// ErrImplicitRekey is returned when an ordinary receipt edit would move
	// stock to another bucket and implicit re-keying is disabled.
	ErrImplicitRekey = errors.New("receipt edit changes its balance key")
)

// InsufficientStockError carries the bucket and the shortfall
type InsufficientStockError struct {
	Key       BalanceKey
	Available int64
	Requested int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %d, requested %d",
		e.Key, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// Shortfall is how much more stock the request needs
func (e *InsufficientStockError) Shortfall() int64 {
	return e.Requested - e.Available
}

// Unavailable wraps a transient store failure
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrBalanceStoreUnavailable, err)
}

// IsRetryable reports whether the whole event can be retried
func IsRetryable(err error) bool {
	return errors.Is(err, ErrBalanceStoreUnavailable)
}

// RejectedError is returned for an event the Coordinator refused. Stage is the
// last state the event held before rejection: Proposed for events refused
// during validation, Validated for writes that failed.
type RejectedError struct {
	Event   EventType
	Action  Action
	EventID string
	Stage   State
	Err     error
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s %s %s rejected while %s: %v", e.Event, e.Action, e.EventID, e.Stage, e.Err)
}

func (e *RejectedError) Unwrap() error {
	return e.Err
}

// RejectedAt reports the stage at which err's event was rejected, if any.
func RejectedAt(err error) (State, bool) {
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		return rejected.Stage, true
	}
	return "", false
}
