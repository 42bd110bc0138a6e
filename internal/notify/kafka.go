package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaBus publishes notification events to a Kafka topic. The message key
// carries the pattern so consumers can route without decoding the payload.
type KafkaBus struct {
	writer *kafka.Writer
}

func NewKafkaBus(brokers []string, topic string) *KafkaBus {
	return &KafkaBus{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			WriteTimeout: 5 * time.Second,
		},
	}
}

func (b *KafkaBus) Emit(ctx context.Context, pattern string, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", pattern, err)
	}
	if err := b.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(pattern),
		Value: value,
	}); err != nil {
		return fmt.Errorf("publish %s event: %w", pattern, err)
	}
	return nil
}

func (b *KafkaBus) Close() error {
	return b.writer.Close()
}
