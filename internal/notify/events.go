package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rvdberg/tweedekans-monitor/internal/database"
	"github.com/rvdberg/tweedekans-monitor/internal/models"
)

// EventTypeDiscountAvailable marks a false-to-true availability transition.
const EventTypeDiscountAvailable = "DISCOUNT_AVAILABLE"

// availabilityPayload is the outbox payload for a transition event.
type availabilityPayload struct {
	EntryID           string `json:"entry_id"`
	UserID            string `json:"user_id"`
	ProductURL        string `json:"product_url"`
	ProductName       string `json:"product_name"`
	OriginalPrice     *int64 `json:"original_price,omitempty"`
	DiscountPrice     *int64 `json:"discount_price,omitempty"`
	DetectedAt        string `json:"detected_at"`
	SavingsPercentage *int64 `json:"savings_percentage,omitempty"`
}

// OutboxInserter is the slice of the outbox repository the publisher needs.
type OutboxInserter interface {
	Insert(ctx context.Context, event *database.OutboxEvent) error
}

// EventPublisher records availability transitions in the transactional
// outbox; the relay forwards them to the Redis stream.
type EventPublisher struct {
	outbox OutboxInserter
	stream string
}

func NewEventPublisher(outbox OutboxInserter, stream string) *EventPublisher {
	return &EventPublisher{outbox: outbox, stream: stream}
}

// PublishAvailability enqueues a transition event for an entry.
func (p *EventPublisher) PublishAvailability(ctx context.Context, entry *models.MonitoredEntry, data *models.ProductData, detectedAt time.Time) error {
	payload := availabilityPayload{
		EntryID:       entry.ID.String(),
		UserID:        entry.UserID,
		ProductURL:    entry.ProductURL,
		ProductName:   data.Name,
		OriginalPrice: data.OriginalPrice,
		DiscountPrice: data.DiscountPrice,
		DetectedAt:    detectedAt.UTC().Format(time.RFC3339),
	}
	if pct, ok := savingsPercent(data); ok {
		payload.SavingsPercentage = &pct
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal availability payload: %w", err)
	}

	event := &database.OutboxEvent{
		AggregateType: "monitored_entry",
		AggregateID:   entry.ID.String(),
		EventType:     EventTypeDiscountAvailable,
		Payload:       raw,
		TargetStream:  p.stream,
	}

	if err := p.outbox.Insert(ctx, event); err != nil {
		return fmt.Errorf("failed to enqueue availability event: %w", err)
	}

	return nil
}
