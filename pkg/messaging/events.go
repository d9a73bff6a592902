package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// EventBalanceCommitted is published once per committed ledger event
	EventBalanceCommitted = "ledger.balance.committed"
	// EventBalanceRepaired is published when reconciliation rewrites buckets
	EventBalanceRepaired = "ledger.balance.repaired"
)

// Exchange names
const (
	ExchangeInventoryEvents = "inventory.events"
	ExchangeDeadLetter      = "dlx.events"
)

// Event is the envelope every message on the bus carries
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	TenantID      string          `json:"tenant_id,omitempty"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// BalanceChange is one bucket touched by a commit
type BalanceChange struct {
	ItemName    string `json:"item_name"`
	CatalogCode string `json:"catalog_code"`
	SKU         string `json:"sku"`
	LocationID  string `json:"location_id"`
	CategoryID  string `json:"category_id"`
	Delta       int64  `json:"delta"`
	Before      int64  `json:"before"`
	After       int64  `json:"after"`
}

// BalanceCommittedEvent is the payload of EventBalanceCommitted and EventBalanceRepaired
type BalanceCommittedEvent struct {
	TenantID    string          `json:"tenant_id"`
	Source      string          `json:"source"` // receipt, adjustment, transfer or reconcile
	Action      string          `json:"action"`
	RecordID    string          `json:"record_id"`
	Rekeyed     bool            `json:"rekeyed"`
	Changes     []BalanceChange `json:"changes"`
	CommittedAt time.Time       `json:"committed_at"`
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return uuid.NewString()
}
