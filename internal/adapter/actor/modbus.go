package actor

import (
	"context"
	"fmt"
	"time"

	"smartsched/internal/core/domain"
	"smartsched/internal/core/port"
	"smartsched/internal/core/service"
	"smartsched/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/reugn/go-quartz/logger"
	"go.uber.org/zap"
)

const (
	MODBUS_ACTOR_ID = "modbus"

	modbusReadTimeout = 2 * time.Second
)

// ModbusActor serializes all gateway IO: one request runs at a time, later
// requests are stashed until the running one resolves.
type ModbusActor struct {
	behavior actor.Behavior
	stash    *actorutil.Stash
	gateway  port.InverterGateway
	logger   *zap.Logger
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

func NewModbusActor(gateway port.InverterGateway, zlogger *zap.Logger) *ModbusActor {
	act := &ModbusActor{
		gateway:  gateway,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger("modbus", zlogger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *ModbusActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *ModbusActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("modbus@starting started")
		if err := state.gateway.Open(); err != nil {
			panic(err)
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.gateway.Close()
	default:
		state.logger.Debug("modbus@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *ModbusActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("modbus@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      MODBUS_ACTOR_ID,
			Healthy: true,
			State:   "idle",
		})
	case domain.GetDevicesInfoRequest:
		state.logger.Debug("modbus@default: GetDevicesInfoRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)

		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.getDevicesInfo),
			mapTaskResult[domain.GetDevicesInfoResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.GetDevicesInfoResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(modbusReadTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingModbus)
	case domain.GetTelemetrySnapshotRequest:
		state.logger.Debug("modbus@default: GetTelemetrySnapshotRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)

		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.getSnapshot),
			mapTaskResult[domain.GetTelemetrySnapshotResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.GetTelemetrySnapshotResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(modbusReadTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingModbus)
	case domain.DispatchCommandBatchRequest:
		state.logger.Debug("modbus@default: DispatchCommandBatchRequest",
			zap.Int("commands", len(msg.Batch.Commands)))
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		batch := msg.Batch

		actorutil.MapBackgroundTask(actorutil.NewBackgroundTaskNoError(ctx, func() *domain.DispatchCommandBatchResponse {
			results := service.DispatchBatch(context.Background(), state.gateway, batch, state.logger)
			return &domain.DispatchCommandBatchResponse{Results: results}
		}),
			mapTaskResult[domain.DispatchCommandBatchResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.DispatchCommandBatchResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(batchTimeout(batch)).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingModbus)
	case *actor.Stopping:
		state.gateway.Close()
	default:
		state.logger.Debug("modbus@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *ModbusActor) WaitingModbus(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("modbus@WaitingModbus backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		ctx.Send(msg.replyTo, msg.message)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case *actor.Stopping:
		state.gateway.Close()
	default:
		state.logger.Debug("modbus@WaitingModbus stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (a *ModbusActor) getDevicesInfo() (*domain.GetDevicesInfoResponse, error) {
	devices, err := a.gateway.GetDevicesInfo()
	if err != nil {
		logger.Error(err)
		return nil, err
	}
	return &domain.GetDevicesInfoResponse{
		Devices: devices,
	}, nil
}

func (a *ModbusActor) getSnapshot() (*domain.GetTelemetrySnapshotResponse, error) {
	snapshot, err := a.gateway.GetSnapshot()
	if err != nil {
		logger.Error(err)
		return nil, err
	}
	return &domain.GetTelemetrySnapshotResponse{
		Snapshot: snapshot,
	}, nil
}

// batchTimeout bounds the whole dispatch: per-command timeouts already cap
// each write, this is the safety net around the batch as a unit.
func batchTimeout(batch domain.CommandBatch) time.Duration {
	var total time.Duration
	for _, cmd := range batch.Commands {
		total += cmd.Timeout
	}
	if total < modbusReadTimeout {
		total = modbusReadTimeout
	}
	return total + 5*time.Second
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}
