package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/segmentio/kafka-go"
	"github.com/sunrudder/sunrudder/pkg/log"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka writes each event as a JSON message keyed by the decision mode.
type Kafka struct {
	writer messageWriter
	topic  string
}

// NewKafka returns a Kafka publisher writing to topic.
func NewKafka(brokers []string, topic string) (*Kafka, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, fmt.Errorf("kafka topic must not be empty")
	}
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	return &Kafka{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			RequiredAcks:           kafka.RequireOne,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		},
		topic: topic,
	}, nil
}

func (k *Kafka) Publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(event.Decision.Mode),
		Value: value,
		Time:  event.Timestamp,
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write to %s: %w", k.topic, err)
	}
	log.Ctx(ctx).DebugContext(ctx, "published decision event", slog.String("topic", k.topic), slog.Int("bytes", len(value)))
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
