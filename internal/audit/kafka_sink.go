package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"zksteam-api/internal/models"
)

type messageProducer interface {
	ProduceMessage(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// KafkaSink streams events keyed by session so one session's events stay
// ordered on a partition.
type KafkaSink struct {
	producer messageProducer
	topic    string
}

func NewKafkaSink(producer messageProducer, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Publish(ctx context.Context, ev models.ProofEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode proof event: %w", err)
	}
	key := ev.SessionID
	if key == "" {
		key = ev.EventID
	}
	return s.producer.ProduceMessage(ctx, s.topic, []byte(key), value, map[string]string{
		"event_type": string(ev.EventType),
	})
}
