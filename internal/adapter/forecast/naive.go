package forecast

import (
	"context"
	"math"
	"time"

	"smartsched/internal/config"
	"smartsched/internal/core/domain"
	"smartsched/internal/core/service"
)

const naiveSourceName = "naive"

// naive point confidence sits just above the default planner threshold:
// the shape is trusted enough to plan with, but any real provider wins.
const naiveConfidence = 0.4

// NaiveSource is the zero-dependency fallback forecast: a half-sine solar
// curve between sunrise and sunset scaled to the array's peak power, plus a
// flat baseline load. It is used when no weather provider is configured or
// the provider is unreachable.
type NaiveSource struct {
	latitude  float64
	longitude float64
	location  *time.Location
	peakWatt  float64
	baseWatt  float64
}

func NewNaiveSource(cfg config.LocationConfig, forecastCfg config.ForecastConfig) *NaiveSource {
	return &NaiveSource{
		latitude:  cfg.Latitude,
		longitude: cfg.Longitude,
		location:  cfg.TimeLocation(),
		peakWatt:  float64(forecastCfg.PeakArrayPowerWatt),
		baseWatt:  float64(forecastCfg.BaselineLoadWatt),
	}
}

func (s *NaiveSource) Source() string {
	return naiveSourceName
}

func (s *NaiveSource) GetForecast(_ context.Context, now time.Time, horizon time.Duration) (*domain.Forecast, error) {
	f := &domain.Forecast{
		GeneratedAt: now,
		Source:      naiveSourceName,
	}

	start := now.In(s.location).Truncate(time.Hour)
	hours := int(horizon / time.Hour)
	for h := 0; h < hours; h++ {
		pointStart := start.Add(time.Duration(h) * time.Hour)
		sun, err := service.SunTimesFor(s.latitude, s.longitude, pointStart, s.location)
		if err != nil {
			return nil, err
		}
		f.Points = append(f.Points, domain.ForecastPoint{
			Time:       pointStart,
			SolarKWh:   s.solarKWh(pointStart, sun),
			LoadKWh:    s.baseWatt / 1000,
			Confidence: naiveConfidence,
			Source:     naiveSourceName,
		})
	}
	return f, nil
}

// solarKWh integrates the half-sine production curve over one hour starting
// at pointStart, by midpoint sampling at minute resolution.
func (s *NaiveSource) solarKWh(pointStart time.Time, sun domain.SunTimes) float64 {
	if sun.PolarNight {
		return 0
	}
	var daylight func(t time.Time) float64
	if sun.PolarDay {
		// no horizon crossing today, assume a flat 50% production plateau
		daylight = func(time.Time) float64 { return 0.5 }
	} else {
		dayLen := sun.Sunset.Sub(sun.Sunrise)
		daylight = func(t time.Time) float64 {
			if t.Before(sun.Sunrise) || t.After(sun.Sunset) {
				return 0
			}
			frac := t.Sub(sun.Sunrise).Seconds() / dayLen.Seconds()
			return math.Sin(frac * math.Pi)
		}
	}

	var wattSum float64
	for m := 0; m < 60; m++ {
		mid := pointStart.Add(time.Duration(m)*time.Minute + 30*time.Second)
		wattSum += s.peakWatt * daylight(mid)
	}
	meanWatt := wattSum / 60
	return meanWatt / 1000
}
