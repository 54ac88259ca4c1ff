package controller

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sunrudder/sunrudder/pkg/types"
)

func TestSelectMode(t *testing.T) {
	settings := types.DefaultSettings()

	t.Run("Nobody Home -> Max Usage", func(t *testing.T) {
		assert.Equal(t, types.ModeMaxUsage, SelectMode(types.SystemState{AnyoneHome: false}, settings))
	})

	t.Run("Somebody Home -> Comfort", func(t *testing.T) {
		assert.Equal(t, types.ModeComfort, SelectMode(types.SystemState{AnyoneHome: true}, settings))
	})

	t.Run("Custom Overrides Presence", func(t *testing.T) {
		custom := settings
		custom.CustomPriorityEnabled = true
		assert.Equal(t, types.ModeCustom, SelectMode(types.SystemState{AnyoneHome: true}, custom))
		assert.Equal(t, types.ModeCustom, SelectMode(types.SystemState{AnyoneHome: false}, custom))
	})
}

func TestDecide(t *testing.T) {
	c := NewController()
	ctx := context.Background()
	settings := types.DefaultSettings()

	baseState := types.SystemState{
		IndoorTemperature:       22.0,
		OutdoorTemperature:      20.0,
		CurrentPVProduction:     0,
		CurrentHouseConsumption: 300,
	}

	t.Run("No Surplus -> No Actions", func(t *testing.T) {
		decision := c.Decide(ctx, baseState, settings)
		assert.Equal(t, types.ModeMaxUsage, decision.Mode)
		assert.Empty(t, decision.Actions)
		assert.Equal(t, -300.0, decision.AvailableSurplus)
		assert.Equal(t, "Max usage mode: Utilizing 0W from PV. Remaining surplus: -300W", decision.Explanation)
	})

	t.Run("Comfort Cools Regardless Of Surplus", func(t *testing.T) {
		state := baseState
		state.AnyoneHome = true
		state.CurrentPVProduction = 500
		state.IndoorTemperature = 26.0

		decision := c.Decide(ctx, state, settings)
		assert.Equal(t, types.ModeComfort, decision.Mode)
		actions := decision.ActionsFor(types.DeviceACClimate)
		require.Len(t, actions, 1)
		assert.Equal(t, types.ActionTurnOn, actions[0].Action)
		assert.Contains(t, actions[0].Reason, "cooling")
		assert.Contains(t, actions[0].Reason, "Comfort priority")
	})

	t.Run("Comfort Heats Regardless Of Surplus", func(t *testing.T) {
		state := baseState
		state.AnyoneHome = true
		state.IndoorTemperature = 18.0

		decision := c.Decide(ctx, state, settings)
		actions := decision.ActionsFor(types.DeviceACClimate)
		require.Len(t, actions, 1)
		assert.Equal(t, types.ActionTurnOn, actions[0].Action)
		assert.Contains(t, actions[0].Reason, "heating")
	})

	t.Run("Comfort Turns Off In Range", func(t *testing.T) {
		state := baseState
		state.AnyoneHome = true
		state.ACOn = true
		state.ACPowerUsage = 1000

		decision := c.Decide(ctx, state, settings)
		actions := decision.ActionsFor(types.DeviceACClimate)
		require.Len(t, actions, 1)
		assert.Equal(t, types.ActionTurnOff, actions[0].Action)
		assert.Equal(t, "Temperature in acceptable range", actions[0].Reason)
	})

	t.Run("Comfort Rereads Surplus After Climate", func(t *testing.T) {
		// climate turning on does not debit the surplus, so the EV sees the
		// full measured surplus
		state := baseState
		state.AnyoneHome = true
		state.IndoorTemperature = 26.0
		state.CurrentPVProduction = 3300
		state.EVConnected = true
		state.EVChargePercentage = 50

		decision := c.Decide(ctx, state, settings)
		ev := decision.ActionsFor(types.DeviceEVCharger)
		require.Len(t, ev, 1)
		require.NotNil(t, ev[0].TargetPower)
		assert.Equal(t, 2800.0, *ev[0].TargetPower)
		assert.Equal(t, "Comfort mode: Priority on comfort. Available surplus: 200W", decision.Explanation)
	})

	t.Run("Max Usage Does Not Cool Without Surplus", func(t *testing.T) {
		state := baseState
		state.CurrentPVProduction = 1000
		state.IndoorTemperature = 25.0

		decision := c.Decide(ctx, state, settings)
		assert.Equal(t, types.ModeMaxUsage, decision.Mode)
		for _, a := range decision.ActionsFor(types.DeviceACClimate) {
			assert.NotEqual(t, types.ActionTurnOn, a.Action)
		}
	})

	t.Run("Max Usage Cools With Surplus", func(t *testing.T) {
		state := baseState
		state.CurrentPVProduction = 1500
		state.IndoorTemperature = 25.0

		decision := c.Decide(ctx, state, settings)
		actions := decision.ActionsFor(types.DeviceACClimate)
		require.Len(t, actions, 1)
		assert.Equal(t, types.ActionTurnOn, actions[0].Action)
		assert.Equal(t, "Temperature 25.0°C, target 22.0°C (cooling)", actions[0].Reason)
		assert.Equal(t, "Max usage mode: Utilizing 1500W from PV. Remaining surplus: 200W", decision.Explanation)
	})

	t.Run("Max Usage Turns Off Climate Without Surplus", func(t *testing.T) {
		state := baseState
		state.IndoorTemperature = 25.0
		state.ACOn = true
		state.ACPowerUsage = 1000
		state.ACMode = types.ClimateModeCooling

		decision := c.Decide(ctx, state, settings)
		actions := decision.ActionsFor(types.DeviceACClimate)
		require.Len(t, actions, 1)
		assert.Equal(t, types.ActionTurnOff, actions[0].Action)
		assert.Equal(t, "Insufficient surplus for climate control", actions[0].Reason)
	})

	t.Run("Max Usage Keeps Climate Running", func(t *testing.T) {
		state := baseState
		state.CurrentPVProduction = 1500
		state.IndoorTemperature = 25.0
		state.ACOn = true
		state.ACPowerUsage = 1000
		state.ACMode = types.ClimateModeCooling

		decision := c.Decide(ctx, state, settings)
		assert.Empty(t, decision.ActionsFor(types.DeviceACClimate))
	})

	t.Run("Smart Plug Turns On With Surplus", func(t *testing.T) {
		state := baseState
		state.CurrentPVProduction = 1000

		decision := c.Decide(ctx, state, settings)
		actions := decision.ActionsFor(types.DeviceSmartPlug)
		require.Len(t, actions, 1)
		assert.Equal(t, types.ActionTurnOn, actions[0].Action)
		assert.Equal(t, "Sufficient surplus (700W) for smart plug", actions[0].Reason)
	})

	t.Run("Dishwasher Before Smart Plug", func(t *testing.T) {
		state := baseState
		state.CurrentPVProduction = 2500
		state.DishwasherReady = true

		decision := c.Decide(ctx, state, settings)
		require.Len(t, decision.Actions, 1, "2200W covers the dishwasher but leaves 400W, short of the plug")
		assert.Equal(t, types.DeviceDishwasher, decision.Actions[0].Device)
		assert.Equal(t, types.ActionTurnOn, decision.Actions[0].Action)
	})

	t.Run("Dishwasher Already On", func(t *testing.T) {
		state := baseState
		state.CurrentPVProduction = 5000
		state.DishwasherReady = true
		state.DishwasherOn = true

		decision := c.Decide(ctx, state, settings)
		assert.Empty(t, decision.ActionsFor(types.DeviceDishwasher))
	})

	t.Run("Decide Is Deterministic", func(t *testing.T) {
		state := baseState
		state.CurrentPVProduction = 6000
		state.EVConnected = true
		state.EVChargePercentage = 40
		state.DishwasherReady = true
		state.IndoorTemperature = 19

		first := c.Decide(ctx, state, settings)
		second := c.Decide(ctx, state, settings)
		assert.Equal(t, first, second)
	})

	t.Run("Negative Consumption Propagates", func(t *testing.T) {
		state := baseState
		state.CurrentHouseConsumption = -500

		decision := c.Decide(ctx, state, settings)
		assert.Equal(t, 500.0, decision.AvailableSurplus)
	})

	t.Run("NaN Does Not Panic", func(t *testing.T) {
		state := baseState
		state.CurrentPVProduction = math.NaN()
		state.EVConnected = true
		assert.NotPanics(t, func() {
			c.Decide(ctx, state, settings)
		})
	})
}

func TestEVCharger(t *testing.T) {
	c := NewController()
	ctx := context.Background()
	settings := types.DefaultSettings()

	connected := types.SystemState{
		IndoorTemperature:       22.0,
		CurrentHouseConsumption: 300,
		EVConnected:             true,
		EVChargePercentage:      50,
	}

	t.Run("Not Connected And Idle", func(t *testing.T) {
		state := connected
		state.EVConnected = false
		state.CurrentPVProduction = 5000
		decision := c.Decide(ctx, state, settings)
		assert.Empty(t, decision.ActionsFor(types.DeviceEVCharger))
	})

	t.Run("Not Connected But Drawing", func(t *testing.T) {
		state := connected
		state.EVConnected = false
		state.EVChargingPower = 2000
		decision := c.Decide(ctx, state, settings)
		actions := decision.ActionsFor(types.DeviceEVCharger)
		require.Len(t, actions, 1)
		assert.Equal(t, types.ActionTurnOff, actions[0].Action)
		assert.Equal(t, "EV not connected", actions[0].Reason)
	})

	t.Run("Fully Charged", func(t *testing.T) {
		state := connected
		state.EVChargePercentage = 95.0
		state.EVChargingPower = 3000
		state.CurrentPVProduction = 8000
		decision := c.Decide(ctx, state, settings)
		actions := decision.ActionsFor(types.DeviceEVCharger)
		require.Len(t, actions, 1)
		assert.Equal(t, types.ActionTurnOff, actions[0].Action)
		assert.Equal(t, "EV fully charged (95%+)", actions[0].Reason)
	})

	t.Run("Below Minimum And Idle", func(t *testing.T) {
		state := connected
		state.CurrentPVProduction = 1800
		decision := c.Decide(ctx, state, settings)
		assert.Empty(t, decision.ActionsFor(types.DeviceEVCharger))
	})

	t.Run("Below Minimum While Charging", func(t *testing.T) {
		state := connected
		state.CurrentPVProduction = 1000
		state.EVChargingPower = 1400
		decision := c.Decide(ctx, state, settings)
		actions := decision.ActionsFor(types.DeviceEVCharger)
		require.Len(t, actions, 1)
		assert.Equal(t, types.ActionTurnOff, actions[0].Action)
		assert.Equal(t, "Insufficient surplus for minimum charging power", actions[0].Reason)
	})

	t.Run("Adds Back Current Draw", func(t *testing.T) {
		// surplus = 4000 - (300 + 2000) = 1700, available = 1700 + 2000 - 200
		state := connected
		state.CurrentPVProduction = 4000
		state.EVChargingPower = 2000
		decision := c.Decide(ctx, state, settings)
		actions := decision.ActionsFor(types.DeviceEVCharger)
		require.Len(t, actions, 1)
		assert.Equal(t, types.ActionSetPower, actions[0].Action)
		require.NotNil(t, actions[0].TargetPower)
		assert.Equal(t, 3500.0, *actions[0].TargetPower)
		assert.Equal(t, "Charging with 3500W (50% charged)", actions[0].Reason)
	})

	t.Run("Clamped To Maximum", func(t *testing.T) {
		state := connected
		state.CurrentPVProduction = 20000
		decision := c.Decide(ctx, state, settings)
		actions := decision.ActionsFor(types.DeviceEVCharger)
		require.Len(t, actions, 1)
		require.NotNil(t, actions[0].TargetPower)
		assert.Equal(t, settings.EVMaxPower, *actions[0].TargetPower)
	})

	t.Run("Target Always Within Limits", func(t *testing.T) {
		for pv := 0.0; pv <= 12000; pv += 137 {
			for _, draw := range []float64{0, 1400, 3700, 7400} {
				state := connected
				state.CurrentPVProduction = pv
				state.EVChargingPower = draw
				decision := c.Decide(ctx, state, settings)
				for _, a := range decision.ActionsFor(types.DeviceEVCharger) {
					if a.Action != types.ActionSetPower {
						continue
					}
					require.NotNil(t, a.TargetPower)
					assert.GreaterOrEqual(t, *a.TargetPower, settings.EVMinPower)
					assert.LessOrEqual(t, *a.TargetPower, settings.EVMaxPower)
				}
			}
		}
	})

	t.Run("EV First In Max Usage", func(t *testing.T) {
		state := connected
		state.CurrentPVProduction = 2300
		state.DishwasherReady = true
		decision := c.Decide(ctx, state, settings)
		require.Len(t, decision.Actions, 1)
		assert.Equal(t, types.DeviceEVCharger, decision.Actions[0].Device)
		require.NotNil(t, decision.Actions[0].TargetPower)
		assert.Equal(t, 1800.0, *decision.Actions[0].TargetPower)
	})
}

func TestClimateHysteresis(t *testing.T) {
	c := NewController()
	ctx := context.Background()
	settings := types.DefaultSettings()

	plenty := types.SystemState{
		CurrentPVProduction:     5000,
		CurrentHouseConsumption: 300,
	}

	climate := func(state types.SystemState) []types.DeviceAction {
		return c.Decide(ctx, state, settings).ActionsFor(types.DeviceACClimate)
	}

	t.Run("Off Inside Band Stays Off", func(t *testing.T) {
		state := plenty
		state.IndoorTemperature = 22.4
		assert.Empty(t, climate(state))
	})

	t.Run("Strict Upper Threshold", func(t *testing.T) {
		state := plenty
		state.IndoorTemperature = 22.5
		assert.Empty(t, climate(state))
	})

	t.Run("Cooling Continues Inside Band", func(t *testing.T) {
		state := plenty
		state.IndoorTemperature = 21.8
		state.ACOn = true
		state.ACPowerUsage = 1000
		state.ACMode = types.ClimateModeCooling
		assert.Empty(t, climate(state))
	})

	t.Run("Cooling Stops Below Band", func(t *testing.T) {
		state := plenty
		state.IndoorTemperature = 21.5
		state.ACOn = true
		state.ACPowerUsage = 1000
		state.ACMode = types.ClimateModeCooling
		actions := climate(state)
		require.Len(t, actions, 1)
		assert.Equal(t, types.ActionTurnOff, actions[0].Action)
	})

	t.Run("Heating Continues Inside Band", func(t *testing.T) {
		state := plenty
		state.IndoorTemperature = 22.3
		state.ACOn = true
		state.ACPowerUsage = 1000
		state.ACMode = types.ClimateModeHeating
		assert.Empty(t, climate(state))
	})

	t.Run("Heating Stops Above Band", func(t *testing.T) {
		state := plenty
		state.IndoorTemperature = 22.6
		state.ACOn = true
		state.ACPowerUsage = 1000
		state.ACMode = types.ClimateModeHeating
		actions := climate(state)
		require.Len(t, actions, 1)
		assert.Equal(t, types.ActionTurnOff, actions[0].Action)
	})

	t.Run("Unknown Mode Uses Plain Thresholds", func(t *testing.T) {
		state := plenty
		state.IndoorTemperature = 21.8
		state.ACOn = true
		state.ACPowerUsage = 1000
		actions := climate(state)
		require.Len(t, actions, 1)
		assert.Equal(t, types.ActionTurnOff, actions[0].Action)
		assert.Equal(t, "Temperature in acceptable range", actions[0].Reason)
	})
}

func TestSmartPlug(t *testing.T) {
	c := NewController()
	ctx := context.Background()
	settings := types.DefaultSettings()

	on := types.SystemState{
		IndoorTemperature:       22.0,
		CurrentHouseConsumption: 300,
		SmartPlugOn:             true,
		SmartPlugPower:          500,
	}

	t.Run("Turns Off Below Buffer", func(t *testing.T) {
		// surplus = 400 - 800 = -400, -400 + 500 < 200
		state := on
		state.CurrentPVProduction = 400
		actions := c.Decide(ctx, state, settings).ActionsFor(types.DeviceSmartPlug)
		require.Len(t, actions, 1)
		assert.Equal(t, types.ActionTurnOff, actions[0].Action)
		assert.Equal(t, "Insufficient surplus to maintain smart plug", actions[0].Reason)
	})

	t.Run("Exact Threshold Stays On", func(t *testing.T) {
		// surplus = 500 - 800 = -300, -300 + 500 is not below 200
		state := on
		state.CurrentPVProduction = 500
		assert.Empty(t, c.Decide(ctx, state, settings).ActionsFor(types.DeviceSmartPlug))
	})

	t.Run("Stays On With Surplus", func(t *testing.T) {
		state := on
		state.CurrentPVProduction = 1000
		assert.Empty(t, c.Decide(ctx, state, settings).ActionsFor(types.DeviceSmartPlug))
	})
}

func TestCustomMode(t *testing.T) {
	c := NewController()
	ctx := context.Background()

	state := types.SystemState{
		AnyoneHome:              true,
		IndoorTemperature:       26.0,
		CurrentPVProduction:     3000,
		CurrentHouseConsumption: 300,
		DishwasherReady:         true,
	}

	t.Run("Empty Order", func(t *testing.T) {
		settings := types.DefaultSettings()
		settings.CustomPriorityEnabled = true
		settings.CustomPriorityOrder = nil

		decision := c.Decide(ctx, state, settings)
		assert.Equal(t, types.ModeCustom, decision.Mode)
		assert.Empty(t, decision.Actions)
	})

	t.Run("Order Is Honored", func(t *testing.T) {
		settings := types.DefaultSettings()
		settings.CustomPriorityEnabled = true
		settings.CustomPriorityOrder = []types.DeviceType{
			types.DeviceSmartPlug,
			types.DeviceDishwasher,
			types.DeviceACClimate,
			types.DeviceEVCharger,
		}

		// surplus 2700: plug takes 500, dishwasher takes 1800, 400 left for climate
		decision := c.Decide(ctx, state, settings)
		assert.Equal(t, types.ModeCustom, decision.Mode)
		require.Len(t, decision.Actions, 2)
		assert.Equal(t, types.DeviceSmartPlug, decision.Actions[0].Device)
		assert.Equal(t, types.DeviceDishwasher, decision.Actions[1].Device)
		assert.Equal(t, "Custom priority mode (SMART_PLUG > DISHWASHER > AC_CLIMATE > EV_CHARGER): Remaining surplus: 400W", decision.Explanation)
	})

	t.Run("Climate Is Surplus Gated", func(t *testing.T) {
		settings := types.DefaultSettings()
		settings.CustomPriorityEnabled = true
		settings.CustomPriorityOrder = []types.DeviceType{types.DeviceACClimate}

		poor := state
		poor.CurrentPVProduction = 500
		decision := c.Decide(ctx, poor, settings)
		assert.Empty(t, decision.Actions)
	})

	t.Run("Unknown Entries Are Skipped", func(t *testing.T) {
		settings := types.DefaultSettings()
		settings.CustomPriorityEnabled = true
		settings.CustomPriorityOrder = []types.DeviceType{
			types.DeviceSmartPlug,
			"HEAT_PUMP",
			types.DeviceDishwasher,
		}
		withUnknown := c.Decide(ctx, state, settings)

		settings.CustomPriorityOrder = []types.DeviceType{
			types.DeviceSmartPlug,
			types.DeviceDishwasher,
		}
		without := c.Decide(ctx, state, settings)

		assert.Equal(t, without.Actions, withUnknown.Actions)
	})
	t.Run("Repeated Entries Are Skipped", func(t *testing.T) {
		settings := types.DefaultSettings()
		settings.CustomPriorityEnabled = true
		settings.CustomPriorityOrder = []types.DeviceType{
			types.DeviceEVCharger,
			types.DeviceEVCharger,
		}

		sunny := types.SystemState{
			CurrentPVProduction:     10000,
			CurrentHouseConsumption: 300,
			IndoorTemperature:       22,
			EVConnected:             true,
			EVChargePercentage:      40,
		}
		decision := c.Decide(ctx, sunny, settings)
		require.Len(t, decision.Actions, 1)
		assert.Equal(t, types.DeviceEVCharger, decision.Actions[0].Device)
		assert.Equal(t, types.ActionSetPower, decision.Actions[0].Action)
		require.NotNil(t, decision.Actions[0].TargetPower)
		assert.Equal(t, 7400.0, *decision.Actions[0].TargetPower)
		assert.Equal(t, "Custom priority mode (EV_CHARGER > EV_CHARGER): Remaining surplus: 2300W", decision.Explanation)
	})
}
