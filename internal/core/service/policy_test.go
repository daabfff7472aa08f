package service

import (
	"testing"

	"smartsched/internal/config"
	"smartsched/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

func testPolicy() config.PolicyConfig {
	return config.PolicyConfig{
		Enabled:                true,
		PrimaryMode:            "tou",
		TargetFullBeforeSunset: true,
		OvernightMinSOC:        30,
		BlackoutReserveSOC:     15,
		MaxChargePowerWatt:     2000,
		MaxDischargePowerWatt:  3000,
	}
}

func confidentForecast() domain.ForecastSummary {
	return domain.ForecastSummary{
		RemainingSolarKWh: 8.5,
		RemainingLoadKWh:  4.0,
		Confidence:        0.9,
	}
}

func TestDecideModePrimary(t *testing.T) {

	d := DecideMode(testPolicy(), true, 55, confidentForecast(), 0.35)
	assert.Equal(t, domain.ModeTOU, d.Mode)
	assert.True(t, d.FullBeforeSunset)
	assert.EqualValues(t, 30, d.EffectiveMinSOC)
}

func TestDecideModeDisabledPolicy(t *testing.T) {

	p := testPolicy()
	p.Enabled = false
	d := DecideMode(p, true, 55, confidentForecast(), 0.35)
	assert.Equal(t, domain.ModeSelfUse, d.Mode)
	assert.False(t, d.FullBeforeSunset)
}

func TestDecideModeLowConfidenceFallsBackToSelfUse(t *testing.T) {

	f := confidentForecast()
	f.Confidence = 0.2
	d := DecideMode(testPolicy(), true, 55, f, 0.35)
	assert.Equal(t, domain.ModeSelfUse, d.Mode)
}

func TestDecideModeBackupOnBlackoutReserve(t *testing.T) {

	d := DecideMode(testPolicy(), false, 12, confidentForecast(), 0.35)
	assert.Equal(t, domain.ModeBackup, d.Mode)

	// grid down but SOC still healthy: keep the primary mode
	d = DecideMode(testPolicy(), false, 60, confidentForecast(), 0.35)
	assert.Equal(t, domain.ModeTOU, d.Mode)
}

func TestDecideModeNoSolarLeftDropsFullBySunset(t *testing.T) {

	f := confidentForecast()
	f.RemainingSolarKWh = 0
	d := DecideMode(testPolicy(), true, 55, f, 0.35)
	assert.Equal(t, domain.ModeTOU, d.Mode)
	assert.False(t, d.FullBeforeSunset)
}

func TestEffectiveMinSOCIsMaxOfFloors(t *testing.T) {

	p := testPolicy()
	p.BlackoutReserveSOC = 45
	d := DecideMode(p, true, 55, confidentForecast(), 0.35)
	assert.EqualValues(t, 45, d.EffectiveMinSOC)
}
