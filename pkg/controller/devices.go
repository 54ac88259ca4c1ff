package controller

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/sunrudder/sunrudder/pkg/types"
)

// evCharger charges the EV with whatever surplus is left, between the
// charger's minimum and maximum power. The charger's current draw is added
// back first since it is already counted against the surplus.
func (a *allocation) evCharger(ctx context.Context, surplus float64) float64 {
	s := a.state
	charging := s.EVChargingPower > 0

	if !s.EVConnected {
		if charging {
			a.add(types.DeviceEVCharger, types.ActionTurnOff, "EV not connected")
		}
		return surplus
	}

	if s.EVChargePercentage >= evFullPercentage {
		if charging {
			a.add(types.DeviceEVCharger, types.ActionTurnOff, "EV fully charged (95%+)")
		}
		return surplus
	}

	available := surplus + s.EVChargingPower - a.settings.SurplusBuffer
	slog.DebugContext(ctx, "ev charger available power",
		slog.Float64("surplus", surplus),
		slog.Float64("evChargingPower", s.EVChargingPower),
		slog.Float64("available", available),
	)
	if available < a.settings.EVMinPower {
		if charging {
			a.add(types.DeviceEVCharger, types.ActionTurnOff, "Insufficient surplus for minimum charging power")
		}
		return surplus
	}

	target := math.Min(available, a.settings.EVMaxPower)
	a.setPower(
		types.DeviceEVCharger,
		target,
		fmt.Sprintf("Charging with %.0fW (%.0f%% charged)", target, s.EVChargePercentage),
	)
	return surplus - target
}

// climateNeeds reports whether the house needs cooling or heating. A unit
// that is already running in a mode keeps running until the temperature
// crosses the far side of the hysteresis band.
func (a *allocation) climateNeeds() (cooling, heating bool) {
	s := a.state
	target := a.settings.TargetTemperature
	h := a.settings.TemperatureHysteresis

	cooling = s.IndoorTemperature > target+h
	heating = s.IndoorTemperature < target-h
	if s.ACOn {
		switch s.ACMode {
		case types.ClimateModeCooling:
			cooling = s.IndoorTemperature > target-h
			heating = false
		case types.ClimateModeHeating:
			heating = s.IndoorTemperature < target+h
			cooling = false
		}
	}
	return cooling, heating
}

func (a *allocation) climateReason(cooling bool) string {
	mode := "heating"
	if cooling {
		mode = "cooling"
	}
	return fmt.Sprintf("Temperature %.1f°C, target %.1f°C (%s)", a.state.IndoorTemperature, a.settings.TargetTemperature, mode)
}

func (a *allocation) climate(ctx context.Context, surplus float64, policy climatePolicy) float64 {
	s := a.state
	cooling, heating := a.climateNeeds()
	slog.DebugContext(ctx, "climate needs",
		slog.Float64("indoor", s.IndoorTemperature),
		slog.Bool("cooling", cooling),
		slog.Bool("heating", heating),
		slog.Bool("acOn", s.ACOn),
		slog.String("acMode", string(s.ACMode)),
	)

	if !cooling && !heating {
		if s.ACOn {
			a.add(types.DeviceACClimate, types.ActionTurnOff, "Temperature in acceptable range")
			return surplus + s.ACPowerUsage
		}
		return surplus
	}

	if policy == climateComfort {
		if !s.ACOn {
			a.add(types.DeviceACClimate, types.ActionTurnOn, "Comfort priority: "+a.climateReason(cooling))
		}
		return surplus
	}

	required := a.settings.ACHeatingPower
	if cooling {
		required = a.settings.ACCoolingPower
	}

	if surplus+s.ACPowerUsage >= required+a.settings.SurplusBuffer {
		if !s.ACOn {
			a.add(types.DeviceACClimate, types.ActionTurnOn, a.climateReason(cooling))
			return surplus - required
		}
		return surplus
	}

	if s.ACOn {
		a.add(types.DeviceACClimate, types.ActionTurnOff, "Insufficient surplus for climate control")
		return surplus + s.ACPowerUsage
	}
	return surplus
}

func (a *allocation) dishwasher(ctx context.Context, surplus float64) float64 {
	s := a.state
	if !s.DishwasherReady || s.DishwasherOn {
		return surplus
	}
	power := a.settings.DishwasherPower
	if surplus >= power+a.settings.SurplusBuffer {
		a.add(types.DeviceDishwasher, types.ActionTurnOn, fmt.Sprintf("Sufficient surplus (%.0fW) for dishwasher", surplus))
		return surplus - power
	}
	slog.DebugContext(ctx, "not enough surplus for dishwasher", slog.Float64("surplus", surplus), slog.Float64("power", power))
	return surplus
}

func (a *allocation) smartPlug(ctx context.Context, surplus float64) float64 {
	s := a.state
	buffer := a.settings.SurplusBuffer

	if s.SmartPlugOn {
		if surplus+s.SmartPlugPower < buffer {
			a.add(types.DeviceSmartPlug, types.ActionTurnOff, "Insufficient surplus to maintain smart plug")
			return surplus + s.SmartPlugPower
		}
		return surplus
	}

	power := a.settings.SmartPlugPower
	if surplus >= power+buffer {
		a.add(types.DeviceSmartPlug, types.ActionTurnOn, fmt.Sprintf("Sufficient surplus (%.0fW) for smart plug", surplus))
		return surplus - power
	}
	slog.DebugContext(ctx, "not enough surplus for smart plug", slog.Float64("surplus", surplus), slog.Float64("power", power))
	return surplus
}
