package port

import (
	"context"
	"time"

	"smartsched/internal/core/domain"
)

// ForecastSource produces a solar/load forecast for a rolling horizon.
type ForecastSource interface {
	GetForecast(ctx context.Context, now time.Time, horizon time.Duration) (*domain.Forecast, error)
	Source() string
}
