package actuator

import (
	"context"

	"github.com/levenlabs/go-lflag"
	"github.com/sunrudder/sunrudder/pkg/homeassistant"
	"github.com/sunrudder/sunrudder/pkg/types"
)

// serviceCaller is the part of the Home Assistant client the actuator uses.
type serviceCaller interface {
	CallService(ctx context.Context, domain, service, entityID string, data map[string]any) error
}

// Targets maps each device to the Home Assistant entity that controls it.
// Devices with an empty entity are unsupported.
type Targets struct {
	SmartPlugSwitch  string `json:"smartPlugSwitch"`
	DishwasherSwitch string `json:"dishwasherSwitch"`
	Climate          string `json:"climate"`
	EVSwitch         string `json:"evSwitch"`
	EVPower          string `json:"evPower"`
}

// DefaultTargets returns entity IDs following common Home Assistant naming.
func DefaultTargets() Targets {
	return Targets{
		SmartPlugSwitch:  "switch.smart_plug_socket_1",
		DishwasherSwitch: "switch.dishwasher",
		Climate:          "climate.living_room",
		EVSwitch:         "switch.ev_charger",
		EVPower:          "number.ev_charger_power",
	}
}

// HomeAssistant controls devices through Home Assistant services.
type HomeAssistant struct {
	client  serviceCaller
	targets Targets
}

func configuredHomeAssistant(client *homeassistant.Client) *HomeAssistant {
	var targets Targets
	lflag.JSON(&targets, "homeassistant-targets", DefaultTargets(), "JSON map of device to the Home Assistant entity controlling it")

	h := &HomeAssistant{client: client}
	lflag.Do(func() {
		h.targets = targets
	})
	return h
}

// NewHomeAssistant returns an actuator calling services through client.
func NewHomeAssistant(client serviceCaller, targets Targets) *HomeAssistant {
	return &HomeAssistant{
		client:  client,
		targets: targets,
	}
}

func (h *HomeAssistant) Execute(ctx context.Context, action types.DeviceAction) error {
	switch action.Device {
	case types.DeviceSmartPlug:
		return h.onOff(ctx, "switch", h.targets.SmartPlugSwitch, action)
	case types.DeviceDishwasher:
		return h.onOff(ctx, "switch", h.targets.DishwasherSwitch, action)
	case types.DeviceACClimate:
		return h.onOff(ctx, "climate", h.targets.Climate, action)
	case types.DeviceEVCharger:
		return h.evCharger(ctx, action)
	}
	return unsupported(action)
}

func (h *HomeAssistant) onOff(ctx context.Context, domain, entityID string, action types.DeviceAction) error {
	if entityID == "" {
		return unsupported(action)
	}
	switch action.Action {
	case types.ActionTurnOn:
		return h.client.CallService(ctx, domain, "turn_on", entityID, nil)
	case types.ActionTurnOff:
		return h.client.CallService(ctx, domain, "turn_off", entityID, nil)
	}
	return unsupported(action)
}

func (h *HomeAssistant) evCharger(ctx context.Context, action types.DeviceAction) error {
	switch action.Action {
	case types.ActionSetPower:
		if action.TargetPower == nil || h.targets.EVPower == "" {
			return unsupported(action)
		}
		if err := h.client.CallService(ctx, "number", "set_value", h.targets.EVPower, map[string]any{
			"value": *action.TargetPower,
		}); err != nil {
			return err
		}
		if h.targets.EVSwitch != "" {
			return h.client.CallService(ctx, "switch", "turn_on", h.targets.EVSwitch, nil)
		}
		return nil
	case types.ActionTurnOff:
		if h.targets.EVSwitch != "" {
			return h.client.CallService(ctx, "switch", "turn_off", h.targets.EVSwitch, nil)
		}
		if h.targets.EVPower != "" {
			return h.client.CallService(ctx, "number", "set_value", h.targets.EVPower, map[string]any{"value": 0.0})
		}
	}
	return unsupported(action)
}

func (h *HomeAssistant) Close() error {
	return nil
}
