package service

import (
	"smartsched/internal/config"
	"smartsched/internal/core/domain"
)

// ModeDecision is the policy engine output for one tick.
type ModeDecision struct {
	Mode             domain.OperatingMode
	FullBeforeSunset bool
	EffectiveMinSOC  float64
	Reason           string
}

// DecideMode maps policy configuration, grid availability, SOC and the
// forecast summary to an operating mode. Pure function of its inputs.
func DecideMode(policy config.PolicyConfig, gridAvailable bool, socPct float64,
	forecast domain.ForecastSummary, minConfidence float64) ModeDecision {

	decision := ModeDecision{
		EffectiveMinSOC: policy.EffectiveMinSOC(),
	}

	if !policy.Enabled {
		decision.Mode = domain.ModeSelfUse
		decision.Reason = "scheduler disabled by policy"
		return decision
	}

	if !gridAvailable && socPct <= policy.BlackoutReserveSOC {
		decision.Mode = domain.ModeBackup
		decision.Reason = "grid unavailable and SOC at blackout reserve"
		return decision
	}

	// A low-confidence forecast means TOU scheduling would gamble on
	// numbers we do not trust. Fall back to plain self consumption.
	if forecast.Confidence < minConfidence {
		decision.Mode = domain.ModeSelfUse
		decision.Reason = "forecast confidence below threshold"
		return decision
	}

	mode, ok := domain.ParseOperatingMode(policy.PrimaryMode)
	if !ok {
		mode = domain.ModeSelfUse
	}
	decision.Mode = mode
	decision.Reason = "primary mode"
	decision.FullBeforeSunset = policy.TargetFullBeforeSunset &&
		mode == domain.ModeTOU &&
		forecast.RemainingSolarKWh > 0

	return decision
}
