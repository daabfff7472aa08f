package service

import (
	"testing"
	"time"

	"smartsched/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var plannerLogger = zap.Must(zap.NewDevelopment())

func hourPoint(h int, solarKWh, loadKWh float64) domain.ForecastPoint {
	return domain.ForecastPoint{
		Time:       time.Date(2024, 6, 1, h, 0, 0, 0, time.UTC),
		SolarKWh:   solarKWh,
		LoadKWh:    loadKWh,
		Confidence: 0.9,
	}
}

func touDecision() ModeDecision {
	return ModeDecision{
		Mode:             domain.ModeTOU,
		FullBeforeSunset: true,
		EffectiveMinSOC:  30,
	}
}

func plannerInput(points []domain.ForecastPoint) WindowPlanInput {
	return WindowPlanInput{
		Now:                  time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		SOC:                  50,
		Decision:             touDecision(),
		Policy:               testPolicy(),
		Forecast:             &domain.Forecast{Points: points},
		SurplusThresholdWatt: 250,
	}
}

// morning surplus becomes charge window 1 with power capped at the policy
// maximum, evening deficit becomes discharge window 1
func TestPlanWindowsMorningSurplusEveningDeficit(t *testing.T) {

	require := require.New(t)

	var points []domain.ForecastPoint
	for h := 0; h < 24; h++ {
		switch {
		case h >= 6 && h < 10:
			points = append(points, hourPoint(h, 2.7, 0.4)) // +2300 W
		case h >= 19 && h < 22:
			points = append(points, hourPoint(h, 0.2, 1.5)) // -1300 W
		default:
			points = append(points, hourPoint(h, 0.3, 0.4)) // -100 W, neutral
		}
	}

	charge, discharge := PlanWindows(plannerInput(points), plannerLogger)

	require.Len(charge, 1)
	assert.Equal(t, domain.WindowCharge, charge[0].Kind)
	assert.Equal(t, 1, charge[0].Index)
	assert.Equal(t, 6, charge[0].Start.Hour())
	assert.Equal(t, 10, charge[0].End.Hour())
	assert.LessOrEqual(t, charge[0].PowerWatt, 2000.0, "charge power must not exceed policy maximum")
	assert.EqualValues(t, 2000, charge[0].PowerWatt)
	assert.EqualValues(t, 100, charge[0].TargetSOC)

	require.Len(discharge, 1)
	assert.Equal(t, domain.WindowDischarge, discharge[0].Kind)
	assert.Equal(t, 1, discharge[0].Index)
	assert.Equal(t, 19, discharge[0].Start.Hour())
	assert.Equal(t, 22, discharge[0].End.Hour())
	assert.InDelta(t, 1300, discharge[0].PowerWatt, 0.1)
	assert.EqualValues(t, 30, discharge[0].TargetSOC)
}

// four disjoint surplus runs, only three device slots: the lowest-energy run
// is dropped and indices stay dense and chronological
func TestPlanWindowsKeepsTopThreeByEnergy(t *testing.T) {

	require := require.New(t)

	var points []domain.ForecastPoint
	for h := 0; h < 24; h++ {
		switch {
		case h == 2:
			points = append(points, hourPoint(h, 1.2, 0.2)) // 1000 Wh
		case h == 5 || h == 6:
			points = append(points, hourPoint(h, 1.7, 0.2)) // 3000 Wh
		case h >= 9 && h < 12:
			points = append(points, hourPoint(h, 2.0, 0.2)) // 5400 Wh
		case h == 14:
			points = append(points, hourPoint(h, 0.8, 0.2)) // 600 Wh, dropped
		default:
			points = append(points, hourPoint(h, 0.2, 0.2))
		}
	}

	charge, discharge := PlanWindows(plannerInput(points), plannerLogger)
	require.Empty(discharge)

	require.Len(charge, domain.MaxWindowsPerKind)
	assert.Equal(t, []int{1, 2, 3}, []int{charge[0].Index, charge[1].Index, charge[2].Index})
	assert.Equal(t, 2, charge[0].Start.Hour())
	assert.Equal(t, 5, charge[1].Start.Hour())
	assert.Equal(t, 9, charge[2].Start.Hour())
	for _, w := range charge {
		assert.NotEqual(t, 14, w.Start.Hour(), "lowest-energy window must be dropped")
	}
}

// with full-by-sunset guidance the charge windows are shaped to the sunset
// instant: a straddling window is truncated and a post-sunset window on the
// same day is dropped; without the guidance the forecast shape wins
func TestPlanWindowsFullBeforeSunsetBoundsCharge(t *testing.T) {

	require := require.New(t)

	var points []domain.ForecastPoint
	for h := 0; h < 24; h++ {
		switch {
		case h >= 15 && h < 21:
			points = append(points, hourPoint(h, 2.7, 0.4)) // +2300 W
		case h == 22:
			points = append(points, hourPoint(h, 1.5, 0.4)) // +1100 W after dark
		default:
			points = append(points, hourPoint(h, 0.3, 0.4))
		}
	}
	sun := domain.SunTimes{
		Sunrise: time.Date(2024, 6, 1, 6, 0, 0, 0, time.UTC),
		Sunset:  time.Date(2024, 6, 1, 19, 30, 0, 0, time.UTC),
	}

	in := plannerInput(points)
	in.Sun = sun
	in.Decision.FullBeforeSunset = true
	bounded, _ := PlanWindows(in, plannerLogger)

	require.Len(bounded, 1)
	assert.Equal(t, 15, bounded[0].Start.Hour())
	assert.True(t, bounded[0].End.Equal(sun.Sunset), "straddling charge window ends at sunset")

	in = plannerInput(points)
	in.Sun = sun
	in.Decision.FullBeforeSunset = false
	unbounded, _ := PlanWindows(in, plannerLogger)

	require.Len(unbounded, 2)
	assert.Equal(t, 21, unbounded[0].End.Hour())
	assert.Equal(t, 22, unbounded[1].Start.Hour())
}

// a deficit run across local midnight becomes two windows, one per day, so
// the minutes-of-day registers never encode an end before a start
func TestPlanWindowsSplitsRunsAtMidnight(t *testing.T) {

	require := require.New(t)

	var points []domain.ForecastPoint
	for h := 0; h < 26; h++ {
		if h == 23 || h == 24 {
			points = append(points, hourPoint(h, 0.1, 1.4)) // -1300 W
		} else {
			points = append(points, hourPoint(h, 0.3, 0.4))
		}
	}

	charge, discharge := PlanWindows(plannerInput(points), plannerLogger)
	require.Empty(charge)

	require.Len(discharge, 2)
	assert.Equal(t, 23, discharge[0].Start.Hour())
	assert.Equal(t, 2, discharge[0].End.Day(), "first window ends at midnight")
	assert.Equal(t, 0, discharge[0].End.Hour())
	assert.Equal(t, 1, discharge[0].Index)

	assert.Equal(t, 2, discharge[1].Start.Day())
	assert.Equal(t, 0, discharge[1].Start.Hour())
	assert.Equal(t, 1, discharge[1].End.Hour())
	assert.Equal(t, 2, discharge[1].Index)
}

func TestPlanWindowsNonTOUModeYieldsNoWindows(t *testing.T) {

	in := plannerInput([]domain.ForecastPoint{hourPoint(8, 3.0, 0.2)})
	in.Decision.Mode = domain.ModeSelfUse

	charge, discharge := PlanWindows(in, plannerLogger)
	assert.Empty(t, charge)
	assert.Empty(t, discharge)
}

func TestPlanWindowsDeterministic(t *testing.T) {

	var points []domain.ForecastPoint
	for h := 0; h < 24; h++ {
		if h >= 7 && h < 11 {
			points = append(points, hourPoint(h, 2.2, 0.3))
		} else {
			points = append(points, hourPoint(h, 0.1, 0.8))
		}
	}

	c1, d1 := PlanWindows(plannerInput(points), plannerLogger)
	c2, d2 := PlanWindows(plannerInput(points), plannerLogger)
	assert.Equal(t, c1, c2)
	assert.Equal(t, d1, d2)
}

func TestMergeWindowsUnionsOverlaps(t *testing.T) {

	require := require.New(t)

	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	w := func(startH, endH int, power float64) domain.TOUWindow {
		return domain.TOUWindow{
			Kind:      domain.WindowCharge,
			Start:     day.Add(time.Duration(startH) * time.Hour),
			End:       day.Add(time.Duration(endH) * time.Hour),
			PowerWatt: power,
		}
	}

	merged := MergeWindows([]domain.TOUWindow{
		w(10, 12, 1500),
		w(11, 13, 1800),
		w(14, 15, 500),
	})

	require.Len(merged, 2)
	assert.Equal(t, 10, merged[0].Start.Hour())
	assert.Equal(t, 13, merged[0].End.Hour())
	assert.EqualValues(t, 1800, merged[0].PowerWatt, "merged power is the max of the pair")
	assert.Equal(t, 14, merged[1].Start.Hour())
}

func TestClampTargetSOC(t *testing.T) {

	logger := zap.NewNop()

	// charge target below current SOC is clamped up
	assert.EqualValues(t, 50, ClampTargetSOC(domain.WindowCharge, 40, 50, logger))
	assert.EqualValues(t, 100, ClampTargetSOC(domain.WindowCharge, 100, 50, logger))

	// discharge target above current SOC is clamped down
	assert.EqualValues(t, 20, ClampTargetSOC(domain.WindowDischarge, 30, 20, logger))
	assert.EqualValues(t, 30, ClampTargetSOC(domain.WindowDischarge, 30, 80, logger))
}
