package service

import (
	"math"
	"sort"
	"time"

	"smartsched/internal/config"
	"smartsched/internal/core/domain"

	"go.uber.org/zap"
)

const fullChargeTargetSOC = 100

// WindowPlanInput collects everything one planning pass may look at.
// The planner is a pure function of this input: identical inputs must
// yield an identical plan.
type WindowPlanInput struct {
	Now                  time.Time
	SOC                  float64
	Decision             ModeDecision
	Policy               config.PolicyConfig
	Forecast             *domain.Forecast
	Sun                  domain.SunTimes
	SurplusThresholdWatt float64
}

// PlanWindows derives up to 3 charge and up to 3 discharge TOU windows from
// the forecast. Solar surplus hours become charge candidates, deficit hours
// become discharge candidates.
//
// Charge windows and discharge windows are two independent ordered lists,
// each indexed 1..n by position within its own list. Indices are never
// assigned from a merged/interleaved list.
func PlanWindows(in WindowPlanInput, logger *zap.Logger) (charge, discharge []domain.TOUWindow) {
	if in.Decision.Mode != domain.ModeTOU {
		logger.Debug("window_planner: mode is not tou, no windows planned",
			zap.String("mode", string(in.Decision.Mode)))
		return nil, nil
	}
	if in.Forecast == nil || len(in.Forecast.Points) == 0 {
		logger.Warn("window_planner: no forecast available, no windows planned")
		return nil, nil
	}

	chargeCandidates, dischargeCandidates := candidateWindows(in)

	charge = finalizeWindows(domain.WindowCharge, chargeCandidates, in, logger)
	discharge = finalizeWindows(domain.WindowDischarge, dischargeCandidates, in, logger)
	return charge, discharge
}

// candidateWindows scans the forecast horizon for contiguous runs of solar
// surplus (charge) and deficit (discharge).
func candidateWindows(in WindowPlanInput) (charge, discharge []domain.TOUWindow) {
	threshold := in.SurplusThresholdWatt

	var run *domain.TOUWindow
	var runPowerSum float64
	var runHours int

	flush := func() {
		if run == nil {
			return
		}
		run.PowerWatt = runPowerSum / float64(runHours)
		if run.Kind == domain.WindowCharge {
			charge = append(charge, *run)
		} else {
			discharge = append(discharge, *run)
		}
		run = nil
		runPowerSum = 0
		runHours = 0
	}

	for _, p := range in.Forecast.Points {
		end := p.Time.Add(time.Hour)
		if end.Before(in.Now) {
			continue
		}
		netWatt := (p.SolarKWh - p.LoadKWh) * 1000

		var kind domain.WindowKind
		switch {
		case netWatt > threshold:
			kind = domain.WindowCharge
		case netWatt < -threshold:
			kind = domain.WindowDischarge
		default:
			flush()
			continue
		}

		// window registers hold minutes within one day: a run crossing
		// local midnight must become two windows
		if run != nil && (run.Kind != kind || !run.End.Equal(p.Time) || !sameLocalDay(run.Start, p.Time)) {
			flush()
		}
		if run == nil {
			run = &domain.TOUWindow{
				Kind:  kind,
				Start: p.Time,
				End:   end,
			}
		} else {
			run.End = end
		}
		runPowerSum += math.Abs(netWatt)
		runHours++
	}
	flush()
	return charge, discharge
}

// finalizeWindows merges overlaps, keeps the 3 highest-priority candidates,
// clamps power and target SOC, and assigns dense 1-based indices within the
// kind's own list.
func finalizeWindows(kind domain.WindowKind, candidates []domain.TOUWindow,
	in WindowPlanInput, logger *zap.Logger) []domain.TOUWindow {

	windows := MergeWindows(candidates)

	if kind == domain.WindowCharge && in.Decision.FullBeforeSunset {
		windows = boundToSunset(windows, in.Sun, logger)
	}

	// prioritize by energy magnitude (power x duration)
	sort.SliceStable(windows, func(i, j int) bool {
		return windowEnergy(windows[i]) > windowEnergy(windows[j])
	})
	if len(windows) > domain.MaxWindowsPerKind {
		for _, dropped := range windows[domain.MaxWindowsPerKind:] {
			logger.Sugar().Warnf("window_planner: dropping %s window %s - %s, device limit of %d slots reached",
				dropped.Kind, dropped.Start.Format(time.RFC3339), dropped.End.Format(time.RFC3339), domain.MaxWindowsPerKind)
		}
		windows = windows[:domain.MaxWindowsPerKind]
	}

	// back to chronological order before indexing
	sort.SliceStable(windows, func(i, j int) bool {
		return windows[i].Start.Before(windows[j].Start)
	})

	maxPower := in.Policy.MaxChargePowerWatt
	targetSOC := float64(fullChargeTargetSOC)
	if kind == domain.WindowDischarge {
		maxPower = in.Policy.MaxDischargePowerWatt
		targetSOC = in.Decision.EffectiveMinSOC
	}

	for i := range windows {
		windows[i].Index = i + 1
		if windows[i].PowerWatt > maxPower {
			windows[i].PowerWatt = maxPower
		}
		windows[i].TargetSOC = ClampTargetSOC(kind, targetSOC, in.SOC, logger)
	}
	return windows
}

// boundToSunset shapes charge windows toward a full battery at sunset:
// windows straddling the sunset instant are truncated to it and windows
// starting between sunset and the end of that local day are dropped.
// Windows on later days are left alone, sun covers only the tick's day.
func boundToSunset(windows []domain.TOUWindow, sun domain.SunTimes, logger *zap.Logger) []domain.TOUWindow {
	if sun.PolarDay || sun.PolarNight || sun.Sunset.IsZero() {
		return windows
	}
	var bounded []domain.TOUWindow
	for _, w := range windows {
		if !sameLocalDay(w.Start, sun.Sunset) {
			bounded = append(bounded, w)
			continue
		}
		if !w.Start.Before(sun.Sunset) {
			logger.Sugar().Debugf("window_planner: dropping charge window %s - %s after sunset %s",
				w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339), sun.Sunset.Format(time.RFC3339))
			continue
		}
		if w.End.After(sun.Sunset) {
			w.End = sun.Sunset
		}
		bounded = append(bounded, w)
	}
	return bounded
}

func sameLocalDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// MergeWindows unions overlapping windows of the same kind: merged range is
// the union of both ranges, merged power is the max of the two. Input
// windows must all share one kind.
func MergeWindows(windows []domain.TOUWindow) []domain.TOUWindow {
	if len(windows) <= 1 {
		return windows
	}
	sorted := make([]domain.TOUWindow, len(windows))
	copy(sorted, windows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	merged := []domain.TOUWindow{sorted[0]}
	for _, w := range sorted[1:] {
		last := &merged[len(merged)-1]
		if w.Overlaps(*last) {
			if w.End.After(last.End) {
				last.End = w.End
			}
			if w.PowerWatt > last.PowerWatt {
				last.PowerWatt = w.PowerWatt
			}
			continue
		}
		merged = append(merged, w)
	}
	return merged
}

// ClampTargetSOC enforces direction consistency: a charge window must not
// target below the current SOC and a discharge window must not target above
// it. Violations are clamped and logged, never silently accepted.
func ClampTargetSOC(kind domain.WindowKind, targetSOC, currentSOC float64, logger *zap.Logger) float64 {
	switch kind {
	case domain.WindowCharge:
		if targetSOC < currentSOC {
			logger.Sugar().Warnf("window_planner: charge target SOC %.1f below current SOC %.1f, clamping", targetSOC, currentSOC)
			return currentSOC
		}
	case domain.WindowDischarge:
		if targetSOC > currentSOC {
			logger.Sugar().Warnf("window_planner: discharge target SOC %.1f above current SOC %.1f, clamping", targetSOC, currentSOC)
			return currentSOC
		}
	}
	if targetSOC < 0 {
		return 0
	}
	if targetSOC > 100 {
		return 100
	}
	return targetSOC
}

func windowEnergy(w domain.TOUWindow) float64 {
	return w.PowerWatt * w.End.Sub(w.Start).Hours()
}
