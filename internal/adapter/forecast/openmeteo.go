package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"smartsched/internal/config"
	"smartsched/internal/core/domain"
)

const (
	openMeteoSourceName = "open-meteo"
	openMeteoBaseURL    = "https://api.open-meteo.com/v1/forecast"

	// standard test condition irradiance, the reference for rated panel power
	stcIrradianceWm2 = 1000.0
)

// OpenMeteoSource pulls hourly shortwave radiation from the Open-Meteo API
// and converts it to array production using the configured peak power.
type OpenMeteoSource struct {
	latitude  float64
	longitude float64
	location  *time.Location
	peakWatt  float64
	baseWatt  float64
	baseURL   string
	client    *http.Client
}

func NewOpenMeteoSource(cfg config.LocationConfig, forecastCfg config.ForecastConfig) *OpenMeteoSource {
	return &OpenMeteoSource{
		latitude:  cfg.Latitude,
		longitude: cfg.Longitude,
		location:  cfg.TimeLocation(),
		peakWatt:  float64(forecastCfg.PeakArrayPowerWatt),
		baseWatt:  float64(forecastCfg.BaselineLoadWatt),
		baseURL:   openMeteoBaseURL,
		client:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *OpenMeteoSource) Source() string {
	return openMeteoSourceName
}

type openMeteoResponse struct {
	Hourly struct {
		Time               []string  `json:"time"`
		ShortwaveRadiation []float64 `json:"shortwave_radiation"`
	} `json:"hourly"`
}

func (s *OpenMeteoSource) GetForecast(ctx context.Context, now time.Time, horizon time.Duration) (*domain.Forecast, error) {
	hours := int(horizon / time.Hour)

	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%.4f", s.latitude))
	q.Set("longitude", fmt.Sprintf("%.4f", s.longitude))
	q.Set("hourly", "shortwave_radiation")
	q.Set("forecast_hours", fmt.Sprintf("%d", hours))
	q.Set("timezone", s.location.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open-meteo: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("open-meteo: unexpected status %d", resp.StatusCode)
	}

	var body openMeteoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("open-meteo: decode failed: %w", err)
	}
	if len(body.Hourly.Time) != len(body.Hourly.ShortwaveRadiation) {
		return nil, fmt.Errorf("open-meteo: mismatched hourly series lengths")
	}

	f := &domain.Forecast{
		GeneratedAt: now,
		Source:      openMeteoSourceName,
	}
	for i, ts := range body.Hourly.Time {
		pointStart, err := time.ParseInLocation("2006-01-02T15:04", ts, s.location)
		if err != nil {
			return nil, fmt.Errorf("open-meteo: bad hourly timestamp %q: %w", ts, err)
		}
		solarWatt := s.peakWatt * body.Hourly.ShortwaveRadiation[i] / stcIrradianceWm2
		f.Points = append(f.Points, domain.ForecastPoint{
			Time:       pointStart,
			SolarKWh:   solarWatt / 1000,
			LoadKWh:    s.baseWatt / 1000,
			Confidence: leadTimeConfidence(now, pointStart),
			Source:     openMeteoSourceName,
		})
	}
	return f, nil
}

// leadTimeConfidence decays trust with forecast lead time. Weather models
// are solid for the first day out, noticeably worse beyond it.
func leadTimeConfidence(now, pointStart time.Time) float64 {
	lead := pointStart.Sub(now)
	switch {
	case lead <= 24*time.Hour:
		return 0.9
	case lead <= 48*time.Hour:
		return 0.7
	default:
		return 0.5
	}
}
