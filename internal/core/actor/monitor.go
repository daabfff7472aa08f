package actor

import (
	"fmt"
	"time"

	"smartsched/internal/config"
	"smartsched/internal/core/domain"
	"smartsched/internal/core/events"
	. "smartsched/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

// MonitorActor polls the modbus actor for telemetry, publishes sensor
// updates to the event stream and keeps the latest snapshot cached so the
// scheduling cycle never waits on device IO.
type MonitorActor struct {
	behavior  actor.Behavior
	stash     *Stash
	scheduler *scheduler.TimerScheduler

	modbusActor *actor.PID
	config      *config.Config
	eventStream *eventstream.EventStream

	lastSnapshot *domain.TelemetrySnapshot

	logger *zap.Logger
}

type monitorTick struct {
}

func NewMonitorActor(config *config.Config, modbusActor *actor.PID, eventStream *eventstream.EventStream, logger *zap.Logger) *MonitorActor {
	act := &MonitorActor{
		config:      config,
		modbusActor: modbusActor,
		behavior:    actor.NewBehavior(),
		stash:       &Stash{},
		logger:      ActorLogger(domain.ACTOR_ID_MONITOR, logger),
		eventStream: eventStream,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MonitorActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MonitorActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("monitor@starting started")

		if state.config.Monitor.PollIntervalMillis > 0 {
			state.scheduler = scheduler.NewTimerScheduler(ctx)
			state.scheduler.RequestOnce(time.Duration(state.config.Monitor.PollIntervalMillis)*time.Millisecond, ctx.Self(), monitorTick{})
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
	default:
		state.logger.Debug("monitor@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MonitorActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("monitor@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MONITOR,
			Healthy: true,
			State:   "idle",
		})
	case monitorTick:
		state.logger.Debug("monitor@default tick")
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.modbusActor, domain.GetTelemetrySnapshotRequest{}, 3*time.Second), func(err error) any {
			return domain.GetTelemetrySnapshotResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			}
		})
		// schedule next tick
		state.scheduler.RequestOnce(time.Duration(state.config.Monitor.PollIntervalMillis)*time.Millisecond, ctx.Self(), monitorTick{})
		state.behavior.BecomeStacked(state.WaitingSnapshotReceive)
	case domain.GetTelemetrySnapshotRequest:
		// serve the cached snapshot with its age, never block on IO
		state.logger.Debug("monitor@default GetTelemetrySnapshotRequest")
		ForRequest(msg).Respond(ctx, state.cachedSnapshotResponse())
	default:
		state.logger.Debug("monitor@default: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MonitorActor) WaitingSnapshotReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetTelemetrySnapshotResponse:
		if msg.HasResponseError() {
			state.logger.Error("monitor@waiting GetTelemetrySnapshotResponse error", zap.Error(msg.GetResponseError()))
			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
			return
		}
		state.logger.Debug("monitor@waiting GetTelemetrySnapshotResponse")
		state.lastSnapshot = msg.Snapshot
		if msg.Snapshot != nil {
			evs := events.TelemetrySnapshotToUpdateEvents(msg.Snapshot)
			for _, ev := range evs {
				state.eventStream.Publish(ev)
			}
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("monitor@waiting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MonitorActor) cachedSnapshotResponse() domain.GetTelemetrySnapshotResponse {
	if state.lastSnapshot == nil {
		return domain.GetTelemetrySnapshotResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: fmt.Errorf("no telemetry snapshot available yet"),
			},
		}
	}
	snapshot := *state.lastSnapshot
	snapshot.Age = time.Since(snapshot.Taken)
	return domain.GetTelemetrySnapshotResponse{
		Snapshot: &snapshot,
	}
}
