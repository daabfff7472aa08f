package events

import (
	. "smartsched/internal/core/domain"
	"smartsched/internal/core/service"
)

func TelemetrySnapshotToUpdateEvents(snapshot *TelemetrySnapshot) []any {
	var events []any

	// Array PV Power
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_ARRAY_PV_POWER,
		},
		Value:    snapshot.PVPowerWatt(),
		Decimals: 2,
	})
	// Array Load Power
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_ARRAY_LOAD_POWER,
		},
		Value:    snapshot.LoadPowerWatt(),
		Decimals: 2,
	})
	var gridPower, batteryPower float64
	for _, inv := range snapshot.Inverters {
		gridPower += inv.GridPowerWatt
		batteryPower += inv.BatteryPowerWatt
	}
	// Array Grid Power
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_ARRAY_GRID_POWER,
		},
		Value:    gridPower,
		Decimals: 2,
	})
	// Array Battery Power (positive = discharging)
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_ARRAY_BATTERY_POWER,
		},
		Value:    batteryPower,
		Decimals: 2,
	})
	// Array Battery SoC
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_ARRAY_BATTERY_SOC,
		},
		Value:    snapshot.BatterySOC(),
		Decimals: 2,
	})
	// Grid Fault
	events = append(events, BinarySensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_GRID_FAULT,
		},
		Value: snapshot.GridFault(),
	})

	return events
}

func PlanToUpdateEvents(plan *SchedulerPlan) []any {
	var events []any

	// Scheduler Mode
	events = append(events, TextSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_SCHEDULER_MODE,
		},
		Value: string(plan.Mode),
	})
	// Full plan as JSON for the timeline view
	events = append(events, JSONSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_SCHEDULER_PLAN,
		},
		Value: plan,
	})
	// Unmet Charge Power
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_UNMET_CHARGE_POWER,
		},
		Value:    plan.Charge.UnmetWatt,
		Decimals: 0,
	})
	// Unmet Discharge Power
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_UNMET_DISCHARGE_POWER,
		},
		Value:    plan.Discharge.UnmetWatt,
		Decimals: 0,
	})

	return events
}

func ForecastToUpdateEvents(summary ForecastSummary) []any {
	var events []any

	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_FORECAST_CONFIDENCE,
		},
		Value:    summary.Confidence,
		Decimals: 2,
	})
	events = append(events, TextSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_FORECAST_SOURCE,
		},
		Value: summary.Source,
	})

	return events
}

func SchedulerEnableSwitchUpdateEvent(enabled bool) any {
	return SwitchSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SWITCH_ID_SCHEDULER_ENABLE,
		},
		Value: enabled,
	}
}

func MinSOCUpdateEvent(decision service.ModeDecision) any {
	return InputNumberSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: INPUT_NUMBER_ID_MIN_SOC,
		},
		Value: decision.EffectiveMinSOC,
	}
}
