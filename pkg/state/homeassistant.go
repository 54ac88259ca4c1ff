package state

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/sunrudder/sunrudder/pkg/homeassistant"
	"github.com/sunrudder/sunrudder/pkg/log"
	"github.com/sunrudder/sunrudder/pkg/types"
)

// estimatedBaseConsumption is used for the house load when no consumption
// sensor is configured.
const estimatedBaseConsumption = 300.0

// stateReader is the part of the Home Assistant client the provider uses.
type stateReader interface {
	GetState(ctx context.Context, entityID string) (homeassistant.State, error)
}

// Entities maps each reading to a Home Assistant entity ID. An empty ID
// means the reading is not available and its default is used.
type Entities struct {
	Presence           string `json:"presence"`
	IndoorTemperature  string `json:"indoorTemperature"`
	OutdoorTemperature string `json:"outdoorTemperature"`
	PVPower            string `json:"pvPower"`
	HouseConsumption   string `json:"houseConsumption"`
	Climate            string `json:"climate"`
	ClimatePower       string `json:"climatePower"`
	EVConnected        string `json:"evConnected"`
	EVCharge           string `json:"evCharge"`
	EVPower            string `json:"evPower"`
	DishwasherReady    string `json:"dishwasherReady"`
	DishwasherSwitch   string `json:"dishwasherSwitch"`
	SmartPlugSwitch    string `json:"smartPlugSwitch"`
	SmartPlugPower     string `json:"smartPlugPower"`
}

// DefaultEntities returns entity IDs following common Home Assistant
// naming.
func DefaultEntities() Entities {
	return Entities{
		Presence:           "device_tracker.phone",
		IndoorTemperature:  "sensor.indoor_temperature",
		OutdoorTemperature: "sensor.outdoor_temperature",
		PVPower:            "sensor.solarman_total_ac_output_power_active",
		Climate:            "climate.living_room",
		ClimatePower:       "sensor.climate_power",
		EVConnected:        "binary_sensor.ev_charger_plugged_in",
		EVCharge:           "sensor.ev_battery_level",
		EVPower:            "sensor.ev_charger_power",
		DishwasherReady:    "binary_sensor.dishwasher_ready",
		DishwasherSwitch:   "switch.dishwasher",
		SmartPlugSwitch:    "switch.smart_plug_socket_1",
		SmartPlugPower:     "sensor.smart_plug_power",
	}
}

// HomeAssistant builds the state from Home Assistant entities.
type HomeAssistant struct {
	client   stateReader
	entities Entities
}

func configuredHomeAssistant(client *homeassistant.Client) *HomeAssistant {
	var entities Entities
	lflag.JSON(&entities, "homeassistant-entities", DefaultEntities(), "JSON map of reading to Home Assistant entity ID")

	h := &HomeAssistant{client: client}
	lflag.Do(func() {
		h.entities = entities
	})
	return h
}

// NewHomeAssistant returns a provider reading entities through client.
func NewHomeAssistant(client stateReader, entities Entities) *HomeAssistant {
	return &HomeAssistant{
		client:   client,
		entities: entities,
	}
}

// reader tracks how many reads failed while building one snapshot.
type reader struct {
	ctx      context.Context
	client   stateReader
	attempts int
	failures int
}

func (r *reader) get(entityID string) (homeassistant.State, bool) {
	if entityID == "" {
		return homeassistant.State{}, false
	}
	r.attempts++
	s, err := r.client.GetState(r.ctx, entityID)
	if err != nil {
		r.failures++
		log.Ctx(r.ctx).WarnContext(r.ctx, "failed to read entity", slog.String("entity", entityID), slog.Any("error", err))
		return homeassistant.State{}, false
	}
	return s, true
}

func (r *reader) number(entityID string, def float64) float64 {
	s, ok := r.get(entityID)
	if !ok {
		return def
	}
	return parseFloat(r.ctx, entityID, s.State, def)
}

func (r *reader) on(entityID string) bool {
	s, ok := r.get(entityID)
	if !ok {
		return false
	}
	return parseBool(s.State)
}

func (h *HomeAssistant) GetCurrentState(ctx context.Context) types.SystemState {
	e := h.entities
	r := &reader{ctx: ctx, client: h.client}

	st := types.SystemState{
		AnyoneHome:              r.on(e.Presence),
		IndoorTemperature:       r.number(e.IndoorTemperature, 22.0),
		OutdoorTemperature:      r.number(e.OutdoorTemperature, 20.0),
		CurrentPVProduction:     r.number(e.PVPower, 0),
		CurrentHouseConsumption: r.number(e.HouseConsumption, estimatedBaseConsumption),
		EVConnected:             r.on(e.EVConnected),
		EVChargePercentage:      r.number(e.EVCharge, 0),
		EVChargingPower:         r.number(e.EVPower, 0),
		DishwasherReady:         r.on(e.DishwasherReady),
		DishwasherOn:            r.on(e.DishwasherSwitch),
		SmartPlugOn:             r.on(e.SmartPlugSwitch),
		SmartPlugPower:          r.number(e.SmartPlugPower, 0),
		Timestamp:               time.Now(),
	}
	if c, ok := r.get(e.Climate); ok {
		st.ACOn, st.ACMode = parseClimate(c)
	}
	if st.ACOn {
		st.ACPowerUsage = r.number(e.ClimatePower, 0)
	}

	if r.attempts > 0 && r.failures == r.attempts {
		log.Ctx(ctx).ErrorContext(ctx, "failed to read any entity, using default state", slog.Int("attempts", r.attempts))
		return types.DefaultSystemState()
	}
	log.Ctx(ctx).DebugContext(ctx, "read homeassistant state",
		slog.Int("attempts", r.attempts),
		slog.Int("failures", r.failures),
		slog.Float64("surplus", st.AvailableSurplus()),
	)
	return st
}

// parseFloat parses a sensor value, ignoring units and other decoration
// around the number.
func parseFloat(ctx context.Context, entityID, value string, def float64) float64 {
	if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
		return f
	}
	// values like "1234 W" carry a unit
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			return r
		}
		return -1
	}, value)
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		log.Ctx(ctx).DebugContext(ctx, "could not parse sensor value, using default",
			slog.String("entity", entityID),
			slog.String("value", value),
			slog.Float64("default", def),
		)
		return def
	}
	return f
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "on", "home", "true", "yes", "connected", "plugged_in", "1":
		return true
	}
	return false
}

// parseClimate reads whether the climate entity is running and in which
// mode. hvac_action is preferred over the hvac mode when present.
func parseClimate(s homeassistant.State) (bool, types.ClimateMode) {
	if action, ok := s.Attributes["hvac_action"].(string); ok {
		switch action {
		case "cooling":
			return true, types.ClimateModeCooling
		case "heating":
			return true, types.ClimateModeHeating
		}
	}
	switch strings.ToLower(s.State) {
	case "off", "unavailable", "unknown", "":
		return false, types.ClimateModeUnknown
	case "cool":
		return true, types.ClimateModeCooling
	case "heat":
		return true, types.ClimateModeHeating
	}
	return true, types.ClimateModeUnknown
}
