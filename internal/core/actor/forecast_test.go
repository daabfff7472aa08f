package actor

import (
	gocontext "context"
	"testing"
	"time"

	"smartsched/internal/adapter/forecast"
	"smartsched/internal/core/domain"
	"smartsched/internal/util"
	"smartsched/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestForecastActorServesNaiveForecast(t *testing.T) {

	require := require.New(t)

	cfg := util.LoadTestConfig()

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	naive := forecast.NewNaiveSource(cfg.Location, cfg.Forecast)

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewForecastActor(&cfg, naive, nil, &eventstream.EventStream{}, logger)
	})
	pid := context.Spawn(props)

	time.Sleep(1 * time.Second)

	result, err := context.RequestFuture(pid, domain.GetForecastRequest{}, 5*time.Second).Result()
	require.NoError(err)
	resp := result.(domain.GetForecastResponse)
	require.False(resp.HasResponseError())

	assert.Equal(t, "naive", resp.Forecast.Source)
	assert.Len(t, resp.Forecast.Points, int(cfg.Forecast.HorizonHours))
	assert.InDelta(t, 0.4, resp.Forecast.Confidence(), 0.001)

	context.Stop(pid)

	as.Shutdown()
}

type failingSource struct {
}

func (failingSource) Source() string {
	return "failing"
}

func (failingSource) GetForecast(_ gocontext.Context, _ time.Time, _ time.Duration) (*domain.Forecast, error) {
	return nil, assert.AnError
}

func TestForecastActorFallsBackWhenPrimaryFails(t *testing.T) {

	require := require.New(t)

	cfg := util.LoadTestConfig()

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	naive := forecast.NewNaiveSource(cfg.Location, cfg.Forecast)

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewForecastActor(&cfg, failingSource{}, naive, &eventstream.EventStream{}, logger)
	})
	pid := context.Spawn(props)

	time.Sleep(1 * time.Second)

	result, err := context.RequestFuture(pid, domain.GetForecastRequest{}, 5*time.Second).Result()
	require.NoError(err)
	resp := result.(domain.GetForecastResponse)
	require.False(resp.HasResponseError())

	assert.Equal(t, "naive", resp.Forecast.Source, "fallback source answered")

	context.Stop(pid)

	as.Shutdown()
}
