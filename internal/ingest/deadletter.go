package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/your-org/blobrelay/pkg/kafka"
)

// DeadLetterSink receives events that exhausted their retry budget or
// failed fatally.
type DeadLetterSink interface {
	Publish(ctx context.Context, ev BlobEvent, reason string, attempts int) error
}

type deadLetterEnvelope struct {
	Event    BlobEvent `json:"event"`
	Reason   string    `json:"reason"`
	Attempts int       `json:"attempts"`
	FailedAt time.Time `json:"failed_at"`
}

// KafkaDeadLetter publishes dead-lettered events to a Kafka topic, keyed by
// event id so redeliveries of one event land on one partition.
type KafkaDeadLetter struct {
	producer *kafka.Producer
}

// NewKafkaDeadLetter constructs a KafkaDeadLetter over the given producer.
func NewKafkaDeadLetter(producer *kafka.Producer) *KafkaDeadLetter {
	return &KafkaDeadLetter{producer: producer}
}

func (k *KafkaDeadLetter) Publish(ctx context.Context, ev BlobEvent, reason string, attempts int) error {
	payload, err := json.Marshal(deadLetterEnvelope{
		Event:    ev,
		Reason:   reason,
		Attempts: attempts,
		FailedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal dead-letter envelope: %w", err)
	}

	headers := map[string]string{
		"event_type": "blob.dead_letter",
		"event_id":   ev.EventID,
	}
	if err := k.producer.Publish(ctx, []byte(ev.EventID), payload, headers); err != nil {
		return fmt.Errorf("publish dead-letter event: %w", err)
	}
	return nil
}
