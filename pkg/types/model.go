package types

import (
	"strings"
	"time"
)

// DeviceType identifies one of the controllable devices.
type DeviceType string

const (
	DeviceEVCharger  DeviceType = "EV_CHARGER"
	DeviceACClimate  DeviceType = "AC_CLIMATE"
	DeviceDishwasher DeviceType = "DISHWASHER"
	DeviceSmartPlug  DeviceType = "SMART_PLUG"
)

// AllDevices lists every known device in the default priority order.
var AllDevices = []DeviceType{
	DeviceEVCharger,
	DeviceACClimate,
	DeviceDishwasher,
	DeviceSmartPlug,
}

// IsValid returns true if d is one of the known devices.
func (d DeviceType) IsValid() bool {
	switch d {
	case DeviceEVCharger, DeviceACClimate, DeviceDishwasher, DeviceSmartPlug:
		return true
	}
	return false
}

// ParseDeviceType parses a device name case-insensitively.
func ParseDeviceType(s string) (DeviceType, bool) {
	d := DeviceType(strings.ToUpper(strings.TrimSpace(s)))
	return d, d.IsValid()
}

// ActionType is the command issued to a device.
type ActionType string

const (
	ActionTurnOn   ActionType = "TURN_ON"
	ActionTurnOff  ActionType = "TURN_OFF"
	ActionSetPower ActionType = "SET_POWER"
	ActionNoChange ActionType = "NO_CHANGE"
)

// Mode is the allocation strategy used for a decision.
type Mode string

const (
	ModeMaxUsage Mode = "MAX_USAGE"
	ModeComfort  Mode = "COMFORT"
	ModeCustom   Mode = "CUSTOM"
	// ModeManual marks a decision holding a single operator command.
	ModeManual Mode = "MANUAL"
)

func (m Mode) String() string {
	return string(m)
}

// ClimateMode is what the climate unit is currently doing.
type ClimateMode string

const (
	ClimateModeUnknown ClimateMode = ""
	ClimateModeCooling ClimateMode = "cooling"
	ClimateModeHeating ClimateMode = "heating"
)

// SystemState is a point-in-time snapshot of the house. It is built once
// per tick by a state provider and is never mutated afterwards.
type SystemState struct {
	AnyoneHome bool `json:"anyoneHome"`

	// Temperatures in °C
	IndoorTemperature  float64 `json:"indoorTemperature"`
	OutdoorTemperature float64 `json:"outdoorTemperature"`

	// Power in W
	CurrentPVProduction     float64 `json:"currentPvProduction"`
	CurrentHouseConsumption float64 `json:"currentHouseConsumption"`

	ACOn         bool        `json:"acOn"`
	ACPowerUsage float64     `json:"acPowerUsage"`
	ACMode       ClimateMode `json:"acMode,omitempty"`

	EVConnected        bool    `json:"evConnected"`
	EVChargePercentage float64 `json:"evChargePercentage"`
	EVChargingPower    float64 `json:"evChargingPower"`

	DishwasherReady bool `json:"dishwasherReady"`
	DishwasherOn    bool `json:"dishwasherOn"`

	SmartPlugOn    bool    `json:"smartPlugOn"`
	SmartPlugPower float64 `json:"smartPlugPower"`

	Timestamp time.Time `json:"timestamp"`
}

// TotalConsumption is the base house load plus every controllable load.
func (s SystemState) TotalConsumption() float64 {
	return s.CurrentHouseConsumption + s.ACPowerUsage + s.EVChargingPower + s.SmartPlugPower
}

// AvailableSurplus is the PV production not consumed by the house. It is
// negative when the house is importing from the grid.
func (s SystemState) AvailableSurplus() float64 {
	return s.CurrentPVProduction - s.TotalConsumption()
}

// DefaultSystemState is returned when the house cannot be read at all.
func DefaultSystemState() SystemState {
	return SystemState{
		AnyoneHome:              false,
		IndoorTemperature:       22.0,
		OutdoorTemperature:      20.0,
		CurrentPVProduction:     0,
		CurrentHouseConsumption: 300,
		Timestamp:               time.Now(),
	}
}

// DeviceAction is a single command for a device. TargetPower is only set
// for SET_POWER.
type DeviceAction struct {
	Device      DeviceType `json:"device"`
	Action      ActionType `json:"action"`
	TargetPower *float64   `json:"targetPower,omitempty"`
	Reason      string     `json:"reason"`
}

// Decision is the output of one allocation pass.
type Decision struct {
	Actions          []DeviceAction `json:"actions"`
	AvailableSurplus float64        `json:"availableSurplus"`
	Mode             Mode           `json:"mode"`
	Explanation      string         `json:"explanation"`
}

// ActionsFor returns the actions targeting d in the order they were issued.
func (d Decision) ActionsFor(device DeviceType) []DeviceAction {
	var out []DeviceAction
	for _, a := range d.Actions {
		if a.Device == device {
			out = append(out, a)
		}
	}
	return out
}
