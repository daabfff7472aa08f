package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel          zapcore.Level
	Location          LocationConfig          `mapstructure:"location"`
	InverterModbusTcp InverterModbusTCPConfig `mapstructure:"inverter_modbus_tcp"`
	MQTT              MQTTConfig              `mapstructure:"mqtt"`

	Policy    PolicyConfig    `mapstructure:"policy"`
	Forecast  ForecastConfig  `mapstructure:"forecast"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Port      uint            `mapstructure:"port"`
	HttpLog   bool            `mapstructure:"http_log"`
}

type LocationConfig struct {
	Latitude  float64 `mapstructure:"latitude"`
	Longitude float64 `mapstructure:"longitude"`
	Timezone  string  `mapstructure:"timezone"`
}

type InverterModbusTCPConfig struct {
	Host      string
	Port      uint
	ArrayId   string               `mapstructure:"array_id"`
	Inverters []InverterUnitConfig `mapstructure:"inverters"`
}

type InverterUnitConfig struct {
	Id                      string
	UnitId                  uint   `mapstructure:"unit_id"`
	RatedChargePowerWatt    uint32 `mapstructure:"rated_charge_power_watt"`
	RatedDischargePowerWatt uint32 `mapstructure:"rated_discharge_power_watt"`
}

type MonitorConfig struct {
	PollIntervalMillis uint32 `mapstructure:"poll_interval_millis"`
}

// PolicyConfig holds the operator thresholds. Loaded once at startup,
// replaceable only through explicit reconfiguration, never mid-cycle.
type PolicyConfig struct {
	Enabled                bool    `mapstructure:"enabled"`
	PrimaryMode            string  `mapstructure:"primary_mode"`
	TargetFullBeforeSunset bool    `mapstructure:"target_full_before_sunset"`
	OvernightMinSOC        float64 `mapstructure:"overnight_min_soc"`
	BlackoutReserveSOC     float64 `mapstructure:"blackout_reserve_soc"`
	MaxChargePowerWatt     float64 `mapstructure:"max_charge_power_watt"`
	MaxDischargePowerWatt  float64 `mapstructure:"max_discharge_power_watt"`
}

type ForecastConfig struct {
	Provider              string  `mapstructure:"provider"`
	RefreshIntervalMillis uint32  `mapstructure:"refresh_interval_millis"`
	HorizonHours          uint    `mapstructure:"horizon_hours"`
	MinConfidence         float64 `mapstructure:"min_confidence"`
	PeakArrayPowerWatt    uint32  `mapstructure:"peak_array_power_watt"`
	BaselineLoadWatt      uint32  `mapstructure:"baseline_load_watt"`
}

type SchedulerConfig struct {
	CycleIntervalMillis  uint32 `mapstructure:"cycle_interval_millis"`
	CommandTimeoutMillis uint32 `mapstructure:"command_timeout_millis"`
	MaxSnapshotAgeMillis uint32 `mapstructure:"max_snapshot_age_millis"`
	SurplusThresholdWatt uint32 `mapstructure:"surplus_threshold_watt"`
}

type MQTTConfig struct {
	Enabled   bool
	Host      string
	Port      int
	Username  string
	Password  string
	BaseTopic string `mapstructure:"base_topic"`
}

// Validate rejects fatal configuration errors at load time, before any
// scheduling cycle can consume them.
func (p PolicyConfig) Validate() error {
	switch p.PrimaryMode {
	case "self_use", "tou", "backup":
	default:
		return fmt.Errorf("config param policy.primary_mode %q must be one of self_use, tou, backup", p.PrimaryMode)
	}
	if p.MaxChargePowerWatt <= 0 {
		return errors.New("config param policy.max_charge_power_watt must be > 0")
	}
	if p.MaxDischargePowerWatt <= 0 {
		return errors.New("config param policy.max_discharge_power_watt must be > 0")
	}
	if p.OvernightMinSOC < 0 || p.OvernightMinSOC > 100 {
		return errors.New("config param policy.overnight_min_soc must be within [0, 100]")
	}
	if p.BlackoutReserveSOC < 0 || p.BlackoutReserveSOC > 100 {
		return errors.New("config param policy.blackout_reserve_soc must be within [0, 100]")
	}
	return nil
}

// EffectiveMinSOC is the SOC floor every plan must respect.
func (p PolicyConfig) EffectiveMinSOC() float64 {
	if p.BlackoutReserveSOC > p.OvernightMinSOC {
		return p.BlackoutReserveSOC
	}
	return p.OvernightMinSOC
}

func (l LocationConfig) Validate() error {
	if l.Latitude < -90 || l.Latitude > 90 {
		return errors.New("config param location.latitude must be within [-90, 90]")
	}
	if l.Longitude < -180 || l.Longitude > 180 {
		return errors.New("config param location.longitude must be within [-180, 180]")
	}
	if _, err := time.LoadLocation(l.Timezone); err != nil {
		return fmt.Errorf("config param location.timezone is not a valid IANA timezone: %w", err)
	}
	return nil
}

func (s SchedulerConfig) Validate() error {
	if s.CycleIntervalMillis < 60000 {
		return errors.New("config param scheduler.cycle_interval_millis should be >= 60000")
	}
	if s.CommandTimeoutMillis < 500 {
		return errors.New("config param scheduler.command_timeout_millis should be >= 500")
	}
	return nil
}

func (f ForecastConfig) Validate() error {
	if f.MinConfidence < 0 || f.MinConfidence > 1 {
		return errors.New("config param forecast.min_confidence must be within [0, 1]")
	}
	if f.HorizonHours == 0 || f.HorizonHours > 72 {
		return errors.New("config param forecast.horizon_hours must be within [1, 72]")
	}
	return nil
}

func (c InverterModbusTCPConfig) Validate() error {
	if len(c.Inverters) == 0 {
		return errors.New("config param inverter_modbus_tcp.inverters must list at least one inverter")
	}
	seen := map[string]bool{}
	for _, inv := range c.Inverters {
		if inv.Id == "" {
			return errors.New("config param inverter_modbus_tcp.inverters[].id must not be empty")
		}
		if seen[inv.Id] {
			return fmt.Errorf("config param inverter_modbus_tcp.inverters has duplicate id %q", inv.Id)
		}
		seen[inv.Id] = true
	}
	return nil
}

// TimeLocation resolves the configured timezone. Validate must have passed.
func (l LocationConfig) TimeLocation() *time.Location {
	loc, err := time.LoadLocation(l.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
