package events

import (
	"context"

	"github.com/syncstock/syncstock-backend/internal/inventory/ledger"
	"github.com/syncstock/syncstock-backend/pkg/logger"
	"github.com/syncstock/syncstock-backend/pkg/messaging"
)

// eventPublisher is the part of *messaging.Publisher used here
type eventPublisher interface {
	Publish(ctx context.Context, eventType, tenantID string, data interface{}) error
}

// CommitPublisher announces committed ledger events on the inventory exchange.
// A nil *CommitPublisher is valid and publishes nothing.
type CommitPublisher struct {
	publisher eventPublisher
	logger    *logger.Logger
}

// NewCommitPublisher declares the inventory exchange and returns a publisher for it
func NewCommitPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*CommitPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeInventoryEvents, "ledger-service", log)
	if err != nil {
		return nil, err
	}
	return newCommitPublisher(publisher, log), nil
}

func newCommitPublisher(p eventPublisher, log *logger.Logger) *CommitPublisher {
	return &CommitPublisher{publisher: p, logger: log}
}

// PublishCommit publishes c. Failures are logged; the commit already happened.
func (p *CommitPublisher) PublishCommit(ctx context.Context, c *ledger.Commit) {
	if p == nil || c == nil {
		return
	}

	eventType := messaging.EventBalanceCommitted
	if c.EventType == ledger.EventReconcile {
		eventType = messaging.EventBalanceRepaired
	}

	if err := p.publisher.Publish(ctx, eventType, c.TenantID, Payload(c)); err != nil {
		p.logger.Error().Err(err).
			Str("tenant_id", c.TenantID).
			Str("event_id", c.EventID).
			Str("source", string(c.EventType)).
			Msg("failed to publish balance commit")
	}
}

// Payload converts c into its wire form
func Payload(c *ledger.Commit) messaging.BalanceCommittedEvent {
	changes := make([]messaging.BalanceChange, 0, len(c.Changes))
	for _, ch := range c.Changes {
		changes = append(changes, messaging.BalanceChange{
			ItemName:    ch.Key.ItemName,
			CatalogCode: ch.Key.CatalogCode,
			SKU:         ch.Key.SKU,
			LocationID:  ch.Key.LocationID,
			CategoryID:  ch.Key.CategoryID,
			Delta:       ch.Delta,
			Before:      ch.Before,
			After:       ch.After,
		})
	}
	return messaging.BalanceCommittedEvent{
		TenantID:    c.TenantID,
		Source:      string(c.EventType),
		Action:      string(c.Action),
		RecordID:    c.EventID,
		Rekeyed:     c.Rekeyed,
		Changes:     changes,
		CommittedAt: c.CommittedAt,
	}
}
