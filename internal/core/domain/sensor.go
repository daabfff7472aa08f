package domain

// sensor ids published over MQTT
const (
	SENSOR_ID_ARRAY_PV_POWER        = "array_pv_power"
	SENSOR_ID_ARRAY_LOAD_POWER      = "array_load_power"
	SENSOR_ID_ARRAY_GRID_POWER      = "array_grid_power"
	SENSOR_ID_ARRAY_BATTERY_POWER   = "array_battery_power"
	SENSOR_ID_ARRAY_BATTERY_SOC     = "array_battery_soc"
	SENSOR_ID_GRID_FAULT            = "grid_fault"
	SENSOR_ID_SCHEDULER_MODE        = "scheduler_mode"
	SENSOR_ID_SCHEDULER_PLAN        = "scheduler_plan"
	SENSOR_ID_UNMET_CHARGE_POWER    = "unmet_charge_power"
	SENSOR_ID_UNMET_DISCHARGE_POWER = "unmet_discharge_power"
	SENSOR_ID_FORECAST_CONFIDENCE   = "forecast_confidence"
	SENSOR_ID_FORECAST_SOURCE       = "forecast_source"
)

// writable controls exposed over MQTT
const (
	SWITCH_ID_SCHEDULER_ENABLE = "scheduler_enable"
	INPUT_NUMBER_ID_MIN_SOC    = "scheduler_min_soc"
)
