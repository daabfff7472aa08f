package util

import (
	"smartsched/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Location: config.LocationConfig{
			Latitude:  40.4168,
			Longitude: -3.7038,
			Timezone:  "Europe/Madrid",
		},
		InverterModbusTcp: config.InverterModbusTCPConfig{
			Host:    "-.-.-.-",
			Port:    502,
			ArrayId: "array1",
			Inverters: []config.InverterUnitConfig{
				{Id: "inv1", UnitId: 1, RatedChargePowerWatt: 3000, RatedDischargePowerWatt: 3000},
				{Id: "inv2", UnitId: 2, RatedChargePowerWatt: 5000, RatedDischargePowerWatt: 5000},
			},
		},
		MQTT: config.MQTTConfig{
			Host:      "localhost",
			Port:      1883,
			BaseTopic: "smartsched",
		},
		Policy: config.PolicyConfig{
			Enabled:                true,
			PrimaryMode:            "tou",
			TargetFullBeforeSunset: true,
			OvernightMinSOC:        30,
			BlackoutReserveSOC:     15,
			MaxChargePowerWatt:     2000,
			MaxDischargePowerWatt:  3000,
		},
		Forecast: config.ForecastConfig{
			Provider:              "naive",
			RefreshIntervalMillis: 900000,
			HorizonHours:          24,
			MinConfidence:         0.35,
			PeakArrayPowerWatt:    4000,
			BaselineLoadWatt:      400,
		},
		Scheduler: config.SchedulerConfig{
			CycleIntervalMillis:  300000,
			CommandTimeoutMillis: 2000,
			MaxSnapshotAgeMillis: 60000,
			SurplusThresholdWatt: 250,
		},
		Monitor: config.MonitorConfig{
			PollIntervalMillis: 5000,
		},
		Port: 8080,
	}
}
