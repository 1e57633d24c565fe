package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// PaymentEventStream carries settled payment outcomes for downstream
// consumers (fulfilment, notifications, analytics).
const PaymentEventStream = "payments:events"

type StreamProducer struct {
	client *redis.Client
}

func NewStreamProducer(client *redis.Client) *StreamProducer {
	return &StreamProducer{client: client}
}

// PublishPaymentEvent appends a payment lifecycle event to the stream.
// payload is the already-serialized event body from the outbox.
func (p *StreamProducer) PublishPaymentEvent(ctx context.Context, eventID, eventType string, payload []byte) error {
	args := &redis.XAddArgs{
		Stream: PaymentEventStream,
		Values: map[string]any{
			"event_id":   eventID,
			"event_type": eventType,
			"payload":    string(payload),
			"timestamp":  time.Now().Unix(),
		},
	}

	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish payment event: %w", err)
	}

	return nil
}
