package outbox

import (
	"time"

	"github.com/google/uuid"
	"github.com/sokodigital/storefront-payments/internal/domain/billing"
)

// Entry is a payment event staged for publishing. Entries are written in the
// same transaction as the status transition they describe, then drained by the
// worker into a Redis stream.
type Entry struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       map[string]any
	Status        Status
	RetryCount    int
	MaxRetries    int
	CreatedAt     time.Time
	PublishedAt   *time.Time
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusPublished Status = "published"
	StatusFailed    Status = "failed"
)

func NewEntry(aggregateType string, aggregateID uuid.UUID, eventType string, payload map[string]any) *Entry {
	return &Entry{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
		Status:        StatusPending,
		MaxRetries:    5,
		CreatedAt:     time.Now(),
	}
}

// NewPaymentEvent builds the entry recorded alongside an applied outcome.
func NewPaymentEvent(kind billing.RecordKind, id uuid.UUID, gateway string, outcome billing.Outcome) *Entry {
	eventType := "payment." + string(outcome)
	if outcome == billing.OutcomeSuccess {
		eventType = "payment.completed"
	}
	return NewEntry(string(kind), id, eventType, map[string]any{
		"record_kind": string(kind),
		"record_id":   id.String(),
		"gateway":     gateway,
		"outcome":     string(outcome),
	})
}
