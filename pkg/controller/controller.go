package controller

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sunrudder/sunrudder/pkg/types"
)

// evFullPercentage is the charge level at which the EV is considered full.
const evFullPercentage = 95.0

// climatePolicy selects how the climate handler treats surplus.
type climatePolicy int

const (
	// climateSurplusGated only runs the climate unit when surplus covers it.
	climateSurplusGated climatePolicy = iota
	// climateComfort runs the climate unit whenever the temperature asks for it.
	climateComfort
)

// Controller allocates PV surplus across the controllable devices.
type Controller struct {
}

// NewController creates a new Controller.
func NewController() *Controller {
	return &Controller{}
}

// allocation accumulates the actions of a single Decide call.
type allocation struct {
	state    types.SystemState
	settings types.Settings
	actions  []types.DeviceAction
}

func (a *allocation) add(device types.DeviceType, action types.ActionType, reason string) {
	a.actions = append(a.actions, types.DeviceAction{
		Device: device,
		Action: action,
		Reason: reason,
	})
}

func (a *allocation) setPower(device types.DeviceType, watts float64, reason string) {
	a.actions = append(a.actions, types.DeviceAction{
		Device:      device,
		Action:      types.ActionSetPower,
		TargetPower: &watts,
		Reason:      reason,
	})
}

// SelectMode picks the allocation strategy. Custom priority wins over
// presence.
func SelectMode(state types.SystemState, settings types.Settings) types.Mode {
	switch {
	case settings.CustomPriorityEnabled:
		return types.ModeCustom
	case state.AnyoneHome:
		return types.ModeComfort
	default:
		return types.ModeMaxUsage
	}
}

// Decide determines which devices to switch given the current state and
// settings. It performs no I/O and always returns a Decision.
func (c *Controller) Decide(
	ctx context.Context,
	state types.SystemState,
	settings types.Settings,
) types.Decision {
	mode := SelectMode(state, settings)
	initial := state.AvailableSurplus()

	slog.DebugContext(ctx, "controller decide started",
		slog.String("mode", mode.String()),
		slog.Float64("pv", state.CurrentPVProduction),
		slog.Float64("consumption", state.TotalConsumption()),
		slog.Float64("surplus", initial),
		slog.Bool("anyoneHome", state.AnyoneHome),
	)

	a := &allocation{
		state:    state,
		settings: settings,
	}

	var explanation string
	switch mode {
	case types.ModeCustom:
		surplus := initial
		handled := make(map[types.DeviceType]bool, len(types.AllDevices))
		for _, device := range settings.CustomPriorityOrder {
			if !device.IsValid() {
				slog.DebugContext(ctx, "skipping unknown device in priority order", slog.String("device", string(device)))
				continue
			}
			// a device gets at most one action per decision
			if handled[device] {
				slog.DebugContext(ctx, "skipping repeated device in priority order", slog.String("device", string(device)))
				continue
			}
			handled[device] = true
			surplus = a.handle(ctx, device, surplus)
		}
		explanation = fmt.Sprintf(
			"Custom priority mode (%s): Remaining surplus: %.0fW",
			orderString(settings.CustomPriorityOrder),
			surplus,
		)
	case types.ModeComfort:
		a.climate(ctx, initial, climateComfort)
		// comfort ignores surplus so the remaining devices start from the
		// measured surplus again
		surplus := state.AvailableSurplus()
		surplus = a.evCharger(ctx, surplus)
		surplus = a.dishwasher(ctx, surplus)
		surplus = a.smartPlug(ctx, surplus)
		explanation = fmt.Sprintf("Comfort mode: Priority on comfort. Available surplus: %.0fW", surplus)
	default:
		surplus := initial
		surplus = a.evCharger(ctx, surplus)
		surplus = a.climate(ctx, surplus, climateSurplusGated)
		surplus = a.dishwasher(ctx, surplus)
		surplus = a.smartPlug(ctx, surplus)
		explanation = fmt.Sprintf(
			"Max usage mode: Utilizing %.0fW from PV. Remaining surplus: %.0fW",
			state.CurrentPVProduction,
			surplus,
		)
	}

	slog.DebugContext(ctx, "controller decide finished",
		slog.String("mode", mode.String()),
		slog.Int("actions", len(a.actions)),
		slog.String("explanation", explanation),
	)

	return types.Decision{
		Actions:          a.actions,
		AvailableSurplus: initial,
		Mode:             mode,
		Explanation:      explanation,
	}
}

// handle dispatches device to its surplus-gated handler.
func (a *allocation) handle(ctx context.Context, device types.DeviceType, surplus float64) float64 {
	switch device {
	case types.DeviceEVCharger:
		return a.evCharger(ctx, surplus)
	case types.DeviceACClimate:
		return a.climate(ctx, surplus, climateSurplusGated)
	case types.DeviceDishwasher:
		return a.dishwasher(ctx, surplus)
	case types.DeviceSmartPlug:
		return a.smartPlug(ctx, surplus)
	}
	return surplus
}

func orderString(order []types.DeviceType) string {
	s := ""
	for i, d := range order {
		if i > 0 {
			s += " > "
		}
		s += string(d)
	}
	return s
}
