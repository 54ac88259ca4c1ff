package publish

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/sunrudder/sunrudder/pkg/types"
)

// Event describes one control cycle.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	State     types.SystemState `json:"state"`
	Decision  types.Decision    `json:"decision"`
	DryRun    bool              `json:"dryRun"`
}

// Publisher hands control cycle events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Configured sets up the Publisher based on flags.
func Configured() Publisher {
	kind := lflag.String("publisher", "none", "Where decision events are published (available: none, kafka)")
	brokers := lflag.String("kafka-brokers", "localhost:9092", "Comma-delimited list of kafka brokers")
	topic := lflag.String("kafka-topic", "sunrudder.decisions", "Kafka topic for decision events")

	var p struct{ Publisher }

	lflag.Do(func() {
		switch *kind {
		case "none":
			p.Publisher = Noop{}
		case "kafka":
			var list []string
			for _, b := range strings.Split(*brokers, ",") {
				if b = strings.TrimSpace(b); b != "" {
					list = append(list, b)
				}
			}
			k, err := NewKafka(list, *topic)
			if err != nil {
				panic(fmt.Sprintf("kafka publisher: %v", err))
			}
			p.Publisher = k
		default:
			panic(fmt.Sprintf("unknown publisher: %s", *kind))
		}
	})

	return &p
}

// Noop drops every event.
type Noop struct{}

func (Noop) Publish(ctx context.Context, event Event) error {
	return nil
}

func (Noop) Close() error {
	return nil
}
