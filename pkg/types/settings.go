package types

import (
	"errors"
	"fmt"
	"slices"
	"sort"
)

// CurrentSettingsVersion is the current version of the settings struct.
// Increment this value when adding new fields that require default values.
const CurrentSettingsVersion = 2

var (
	ErrInvalidPriorities = errors.New("invalid priorities")
	ErrInvalidSettings   = errors.New("invalid settings")
)

// Settings holds the device ratings and policy knobs used by the
// allocation engine. They can be changed without redeploying.
type Settings struct {
	// Device ratings (W)
	PVMaxProduction   float64 `json:"pvMaxProduction" mapstructure:"pvMaxProduction"`
	ACCoolingPower    float64 `json:"acCoolingPower" mapstructure:"acCoolingPower"`
	ACHeatingPower    float64 `json:"acHeatingPower" mapstructure:"acHeatingPower"`
	EVMinPower        float64 `json:"evMinPower" mapstructure:"evMinPower"`
	EVMaxPower        float64 `json:"evMaxPower" mapstructure:"evMaxPower"`
	EVBatteryCapacity float64 `json:"evBatteryCapacity" mapstructure:"evBatteryCapacity"`
	DishwasherPower   float64 `json:"dishwasherPower" mapstructure:"dishwasherPower"`
	SmartPlugPower    float64 `json:"smartPlugPower" mapstructure:"smartPlugPower"`

	// Climate (°C)
	TargetTemperature     float64 `json:"targetTemperature" mapstructure:"targetTemperature"`
	TemperatureHysteresis float64 `json:"temperatureHysteresis" mapstructure:"temperatureHysteresis"`

	// Power that is always left unallocated (W)
	SurplusBuffer float64 `json:"surplusBuffer" mapstructure:"surplusBuffer"`

	// Seconds a surplus must be stable before acting on it. Carried for
	// compatibility, the engine does not consult it.
	StabilityDurationSeconds int `json:"stabilityDurationSeconds" mapstructure:"stabilityDurationSeconds"`

	CustomPriorityEnabled bool         `json:"customPriorityEnabled" mapstructure:"customPriorityEnabled"`
	CustomPriorityOrder   []DeviceType `json:"customPriorityOrder" mapstructure:"customPriorityOrder"`
}

// DefaultSettings returns the settings used when nothing has been stored.
func DefaultSettings() Settings {
	return Settings{
		PVMaxProduction:          6000,
		ACCoolingPower:           1000,
		ACHeatingPower:           1000,
		EVMinPower:               1400,
		EVMaxPower:               7400,
		EVBatteryCapacity:        60000,
		DishwasherPower:          1800,
		SmartPlugPower:           500,
		TargetTemperature:        22.0,
		TemperatureHysteresis:    0.5,
		SurplusBuffer:            200,
		StabilityDurationSeconds: 300,
		CustomPriorityEnabled:    false,
		CustomPriorityOrder:      slices.Clone(AllDevices),
	}
}

// Clone returns a copy that shares no memory with s.
func (s Settings) Clone() Settings {
	s.CustomPriorityOrder = slices.Clone(s.CustomPriorityOrder)
	return s
}

// Validate checks that the ratings make sense.
func (s Settings) Validate() error {
	ratings := []struct {
		name  string
		value float64
	}{
		{"pvMaxProduction", s.PVMaxProduction},
		{"acCoolingPower", s.ACCoolingPower},
		{"acHeatingPower", s.ACHeatingPower},
		{"evMinPower", s.EVMinPower},
		{"evMaxPower", s.EVMaxPower},
		{"evBatteryCapacity", s.EVBatteryCapacity},
		{"dishwasherPower", s.DishwasherPower},
		{"smartPlugPower", s.SmartPlugPower},
	}
	for _, r := range ratings {
		if r.value <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidSettings, r.name)
		}
	}
	if s.EVMinPower > s.EVMaxPower {
		return fmt.Errorf("%w: evMinPower (%.0f) exceeds evMaxPower (%.0f)", ErrInvalidSettings, s.EVMinPower, s.EVMaxPower)
	}
	if s.TemperatureHysteresis <= 0 {
		return fmt.Errorf("%w: temperatureHysteresis must be positive", ErrInvalidSettings)
	}
	if s.SurplusBuffer < 0 {
		return fmt.Errorf("%w: surplusBuffer cannot be negative", ErrInvalidSettings)
	}
	if err := ValidateOrder(s.CustomPriorityOrder); err != nil {
		return fmt.Errorf("%w: customPriorityOrder: %w", ErrInvalidSettings, err)
	}
	return nil
}

// ValidateOrder checks that order names every device exactly once.
func ValidateOrder(order []DeviceType) error {
	if len(order) != len(AllDevices) {
		return fmt.Errorf("%w: expected %d devices, got %d", ErrInvalidPriorities, len(AllDevices), len(order))
	}
	seen := make(map[DeviceType]bool, len(order))
	for _, d := range order {
		if !d.IsValid() {
			return fmt.Errorf("%w: unknown device %q", ErrInvalidPriorities, d)
		}
		if seen[d] {
			return fmt.Errorf("%w: duplicate device %s", ErrInvalidPriorities, d)
		}
		seen[d] = true
	}
	return nil
}

// PriorityConfig is the (enabled, order) pair that selects custom mode.
type PriorityConfig struct {
	CustomEnabled bool         `json:"customEnabled"`
	PriorityOrder []DeviceType `json:"priorityOrder"`
}

// Priority returns the custom priority pair of s.
func (s Settings) Priority() PriorityConfig {
	return PriorityConfig{
		CustomEnabled: s.CustomPriorityEnabled,
		PriorityOrder: slices.Clone(s.CustomPriorityOrder),
	}
}

// PrioritiesToOrder converts a device name to rank map into an ordered list.
// The map must name every device exactly once and the ranks must be exactly
// 1 through the number of devices.
func PrioritiesToOrder(priorities map[string]int) ([]DeviceType, error) {
	type ranked struct {
		device DeviceType
		rank   int
	}
	seen := make(map[int]bool, len(priorities))
	order := make([]ranked, 0, len(priorities))
	for name, rank := range priorities {
		if rank < 1 || rank > len(AllDevices) {
			return nil, fmt.Errorf("%w: rank %d for %s out of range", ErrInvalidPriorities, rank, name)
		}
		if seen[rank] {
			return nil, fmt.Errorf("%w: duplicate rank %d", ErrInvalidPriorities, rank)
		}
		seen[rank] = true
		order = append(order, ranked{DeviceType(name), rank})
	}
	sort.Slice(order, func(i, j int) bool {
		return order[i].rank < order[j].rank
	})
	out := make([]DeviceType, len(order))
	for i, r := range order {
		out[i] = r.device
	}
	if err := ValidateOrder(out); err != nil {
		return nil, err
	}
	return out, nil
}

// MigrateSettings migrates the settings to the current version.
// It returns the migrated settings, a boolean indicating if changes were made, and an error if migration failed.
func MigrateSettings(s Settings, currentVersion int) (Settings, bool, error) {
	if currentVersion >= CurrentSettingsVersion {
		return s, false, nil
	}

	defaults := DefaultSettings()
	migrated := false
	for version := currentVersion + 1; version <= CurrentSettingsVersion; version++ {
		switch version {
		case 1:
			// version 1: initial ratings
			fill := func(v *float64, def float64) {
				if *v == 0 {
					*v = def
					migrated = true
				}
			}
			fill(&s.PVMaxProduction, defaults.PVMaxProduction)
			fill(&s.ACCoolingPower, defaults.ACCoolingPower)
			fill(&s.ACHeatingPower, defaults.ACHeatingPower)
			fill(&s.EVMinPower, defaults.EVMinPower)
			fill(&s.EVMaxPower, defaults.EVMaxPower)
			fill(&s.EVBatteryCapacity, defaults.EVBatteryCapacity)
			fill(&s.DishwasherPower, defaults.DishwasherPower)
			fill(&s.SmartPlugPower, defaults.SmartPlugPower)
			fill(&s.TargetTemperature, defaults.TargetTemperature)
			fill(&s.TemperatureHysteresis, defaults.TemperatureHysteresis)
			// a zero buffer is valid so it is left alone
		case 2:
			// version 2: custom priority order
			if len(s.CustomPriorityOrder) == 0 {
				s.CustomPriorityOrder = slices.Clone(defaults.CustomPriorityOrder)
				migrated = true
			}
			if s.StabilityDurationSeconds == 0 {
				s.StabilityDurationSeconds = defaults.StabilityDurationSeconds
				migrated = true
			}
		default:
			return s, false, fmt.Errorf("unknown settings version: %d", version)
		}
	}

	return s, migrated, nil
}
