package actuator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/levenlabs/go-lflag"
	"github.com/sunrudder/sunrudder/pkg/homeassistant"
	"github.com/sunrudder/sunrudder/pkg/log"
	"github.com/sunrudder/sunrudder/pkg/types"
)

// ErrUnsupported is returned for device/action pairs an actuator cannot
// perform. The executor treats it as a no-op.
var ErrUnsupported = errors.New("unsupported action")

// Actuator sends commands to devices.
type Actuator interface {
	Execute(ctx context.Context, action types.DeviceAction) error
	Close() error
}

func unsupported(action types.DeviceAction) error {
	return fmt.Errorf("%w: %s for %s", ErrUnsupported, action.Action, action.Device)
}

// Configured sets up the Actuator based on flags.
func Configured(ha *homeassistant.Client) Actuator {
	kind := lflag.String("actuator", "log", "How device commands are sent (available: homeassistant, mqtt, log)")

	var a struct{ Actuator }

	hac := configuredHomeAssistant(ha)
	mq := configuredMQTT()

	lflag.Do(func() {
		switch *kind {
		case "homeassistant":
			a.Actuator = hac
		case "mqtt":
			if err := mq.Connect(); err != nil {
				panic(fmt.Sprintf("mqtt connect failed: %v", err))
			}
			a.Actuator = mq
		case "log":
			a.Actuator = Log{}
		default:
			panic(fmt.Sprintf("unknown actuator: %s", *kind))
		}
	})

	return &a
}

// Log only logs the commands it receives.
type Log struct{}

func (Log) Execute(ctx context.Context, action types.DeviceAction) error {
	attrs := []any{
		slog.String("device", string(action.Device)),
		slog.String("action", string(action.Action)),
	}
	if action.TargetPower != nil {
		attrs = append(attrs, slog.Float64("targetPower", *action.TargetPower))
	}
	log.Ctx(ctx).InfoContext(ctx, "would execute device action", attrs...)
	return nil
}

func (Log) Close() error {
	return nil
}
