package state

import (
	"context"
	"fmt"

	"github.com/levenlabs/go-lflag"
	"github.com/sunrudder/sunrudder/pkg/homeassistant"
	"github.com/sunrudder/sunrudder/pkg/types"
)

// Provider returns a snapshot of the house.
type Provider interface {
	// GetCurrentState never fails. Readings that cannot be obtained are
	// replaced with safe defaults.
	GetCurrentState(ctx context.Context) types.SystemState
}

// Configured sets up the state Provider based on flags.
func Configured(ha *homeassistant.Client) Provider {
	provider := lflag.String("state-provider", "homeassistant", "Where to read the house state from (available: homeassistant, static)")

	var p struct{ Provider }

	hap := configuredHomeAssistant(ha)
	static := configuredStatic()

	lflag.Do(func() {
		switch *provider {
		case "homeassistant":
			p.Provider = hap
		case "static":
			p.Provider = static
		default:
			panic(fmt.Sprintf("unknown state provider: %s", *provider))
		}
	})

	return &p
}
