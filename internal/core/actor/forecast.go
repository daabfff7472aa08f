package actor

import (
	"context"
	"fmt"
	"time"

	"smartsched/internal/config"
	"smartsched/internal/core/domain"
	"smartsched/internal/core/events"
	"smartsched/internal/core/port"
	. "smartsched/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

const forecastFetchTimeout = 20 * time.Second

// ForecastActor refreshes the solar/load forecast on a timer and serves the
// cached result. A failing primary provider degrades to the naive source
// instead of leaving the scheduler without a forecast.
type ForecastActor struct {
	behavior  actor.Behavior
	stash     *Stash
	scheduler *scheduler.TimerScheduler

	config      *config.Config
	primary     port.ForecastSource
	fallback    port.ForecastSource
	eventStream *eventstream.EventStream

	lastForecast *domain.Forecast

	logger *zap.Logger
}

type forecastTick struct {
}

type forecastRefreshed struct {
	forecast *domain.Forecast
	err      error
}

func NewForecastActor(config *config.Config, primary, fallback port.ForecastSource,
	eventStream *eventstream.EventStream, logger *zap.Logger) *ForecastActor {

	act := &ForecastActor{
		config:      config,
		primary:     primary,
		fallback:    fallback,
		behavior:    actor.NewBehavior(),
		stash:       &Stash{},
		logger:      ActorLogger(domain.ACTOR_ID_FORECAST, logger),
		eventStream: eventStream,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *ForecastActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *ForecastActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("forecast@starting started")

		state.scheduler = scheduler.NewTimerScheduler(ctx)
		// fetch right away, the first cycle should not wait a full interval
		ctx.Send(ctx.Self(), forecastTick{})
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
	default:
		state.logger.Debug("forecast@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *ForecastActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("forecast@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_FORECAST,
			Healthy: true,
			State:   "idle",
		})
	case forecastTick:
		state.logger.Debug("forecast@default tick")
		NewBackgroundTask(ctx, state.refreshForecast).Recover(func(err error) forecastRefreshed {
			return forecastRefreshed{err: err}
		}).WithTimeout(forecastFetchTimeout + time.Second).PipeTo(ctx.Self())
		// schedule next refresh
		if state.config.Forecast.RefreshIntervalMillis > 0 {
			state.scheduler.RequestOnce(time.Duration(state.config.Forecast.RefreshIntervalMillis)*time.Millisecond,
				ctx.Self(), forecastTick{})
		}
		state.behavior.BecomeStacked(state.WaitingForecastReceive)
	case domain.GetForecastRequest:
		state.logger.Debug("forecast@default GetForecastRequest")
		ForRequest(msg).Respond(ctx, state.cachedForecastResponse())
	default:
		state.logger.Debug("forecast@default: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *ForecastActor) WaitingForecastReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case forecastRefreshed:
		if msg.err != nil {
			// keep the stale forecast, its age shows in GeneratedAt
			state.logger.Error("forecast@waiting refresh failed", zap.Error(msg.err))
		} else {
			state.logger.Debug("forecast@waiting refreshed",
				zap.String("source", msg.forecast.Source),
				zap.Int("points", len(msg.forecast.Points)))
			state.lastForecast = msg.forecast
			summary := msg.forecast.SummaryAfter(time.Now())
			for _, ev := range events.ForecastToUpdateEvents(summary) {
				state.eventStream.Publish(ev)
			}
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("forecast@waiting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// refreshForecast runs off the actor goroutine. Primary provider first,
// naive fallback second, error only when both fail.
func (state *ForecastActor) refreshForecast() (*forecastRefreshed, error) {
	fetchCtx, cancel := context.WithTimeout(context.Background(), forecastFetchTimeout)
	defer cancel()

	now := time.Now()
	horizon := time.Duration(state.config.Forecast.HorizonHours) * time.Hour

	forecast, err := state.primary.GetForecast(fetchCtx, now, horizon)
	if err != nil && state.fallback != nil {
		state.logger.Warn("forecast: primary provider failed, using fallback",
			zap.String("primary", state.primary.Source()),
			zap.String("fallback", state.fallback.Source()),
			zap.Error(err))
		forecast, err = state.fallback.GetForecast(fetchCtx, now, horizon)
	}
	if err != nil {
		return nil, err
	}
	return &forecastRefreshed{forecast: forecast}, nil
}

func (state *ForecastActor) cachedForecastResponse() domain.GetForecastResponse {
	if state.lastForecast == nil {
		return domain.GetForecastResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: fmt.Errorf("no forecast available yet"),
			},
		}
	}
	return domain.GetForecastResponse{
		Forecast: state.lastForecast,
	}
}
