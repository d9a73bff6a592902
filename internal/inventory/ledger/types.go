package ledger

import "time"

// EventType names the source stream an event belongs to
type EventType string

const (
	EventReceipt    EventType = "receipt"
	EventAdjustment EventType = "adjustment"
	EventTransfer   EventType = "transfer"
	EventReconcile  EventType = "reconcile"
)

// Action is the lifecycle operation performed on a source record
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionRekey  Action = "rekey"
	ActionRepair Action = "repair"
)

// Receipt is the ledger's view of a stock-in record.
type Receipt struct {
	ID          string
	TenantID    string
	ItemName    string
	CatalogCode string
	SKU         string
	LocationID  string
	CategoryID  string
	Quantity    int64
}

// Adjustment is the ledger's view of a stock-out record. Item name, catalog
// code and SKU come from the referenced receipt.
type Adjustment struct {
	ID         string
	TenantID   string
	ReceiptID  string
	LocationID string
	CategoryID string
	Quantity   int64
}

// Transfer is the ledger's view of a movement between two locations.
type Transfer struct {
	ID             string
	TenantID       string
	ReceiptID      string
	FromLocationID string
	ToLocationID   string
	CategoryID     string
	Quantity       int64
}

// Dependents are the adjustments and transfers referencing one receipt
type Dependents struct {
	Adjustments []Adjustment
	Transfers   []Transfer
}

// Empty reports whether there are no dependents
func (d Dependents) Empty() bool {
	return len(d.Adjustments) == 0 && len(d.Transfers) == 0
}

// Balance is the stored aggregate for one BalanceKey.
// Quantity is the clamped on-hand value; NetQuantity is the exact signed sum
// of every delta ever applied and is what replay and reconciliation compare.
type Balance struct {
	ID string `db:"id" json:"id"`
	BalanceKey
	Quantity    int64     `db:"quantity" json:"quantity"`
	NetQuantity int64     `db:"net_quantity" json:"net_quantity"`
	Version     int64     `db:"version" json:"version"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Entry is one append-only audit row written per bucket touched by a commit.
type Entry struct {
	ID string `db:"id" json:"id"`
	BalanceKey
	EventType     EventType `db:"event_type" json:"event_type"`
	EventID       string    `db:"event_id" json:"event_id"`
	Action        Action    `db:"action" json:"action"`
	Delta         int64     `db:"delta" json:"delta"`
	QuantityAfter int64     `db:"quantity_after" json:"quantity_after"`
	Rekey         bool      `db:"rekey" json:"rekey"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// BalanceChange describes the effect of a commit on one bucket
type BalanceChange struct {
	Key      BalanceKey `json:"key"`
	Delta    int64      `json:"delta"`
	Before   int64      `json:"before"`
	After    int64      `json:"after"`
	NetAfter int64      `json:"net_after"`
}

// Commit is the outcome of one event passing through the Coordinator.
type Commit struct {
	EventType EventType       `json:"event_type"`
	Action    Action          `json:"action"`
	EventID   string          `json:"event_id"`
	TenantID  string          `json:"tenant_id"`
	State     State           `json:"state"`
	Rekeyed   bool            `json:"rekeyed"`
	Changes   []BalanceChange `json:"changes"`
	// Cascaded lists dependents removed together with a deleted receipt
	Cascaded    Dependents `json:"-"`
	CommittedAt time.Time  `json:"committed_at"`
}
