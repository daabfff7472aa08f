package actor

import (
	"errors"
	"fmt"
	"log"
	"time"

	adactor "smartsched/internal/adapter/actor"
	"smartsched/internal/config"
	"smartsched/internal/core/domain"
	"smartsched/internal/core/port"
	. "smartsched/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

type MQTTActorProvider func() *adactor.MQTTActor

type ModbusActorProvider func() *adactor.ModbusActor

// MasterOfPuppetsActor owns the supervision tree: the modbus and mqtt
// adapters, the telemetry monitor, the forecast refresher and the planning
// scheduler. It also bridges the event stream to MQTT and routes parsed MQTT
// commands to the scheduler.
type MasterOfPuppetsActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck  healthCheckResult
	eventStream         *eventstream.EventStream
	eventStreamSub      *eventstream.Subscription
	modbusActor         *actor.PID
	mqttActor           *actor.PID
	monitorActor        *actor.PID
	forecastActor       *actor.PID
	schedulerActor      *actor.PID
	modbusActorProvider ModbusActorProvider
	mqttActorProvider   MQTTActorProvider
	forecastPrimary     port.ForecastSource
	forecastFallback    port.ForecastSource
	logger              *zap.Logger
}

type healthCheckResult struct {
	healthyById    map[string]bool
	checksReceived int
	respondTo      *actor.PID
}

var healthCheckedActors = []string{
	domain.ACTOR_ID_MODBUS,
	domain.ACTOR_ID_MQTT,
	domain.ACTOR_ID_MONITOR,
	domain.ACTOR_ID_FORECAST,
	domain.ACTOR_ID_SCHEDULER,
}

func NewMasterOfPuppetsActor(config config.Config, modbusActorProvider ModbusActorProvider,
	mqttActorProvider MQTTActorProvider, forecastPrimary, forecastFallback port.ForecastSource,
	logger *zap.Logger) *MasterOfPuppetsActor {

	act := &MasterOfPuppetsActor{
		config:              config,
		behavior:            actor.NewBehavior(),
		stash:               &Stash{},
		logger:              ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:         &eventstream.EventStream{},
		modbusActorProvider: modbusActorProvider,
		mqttActorProvider:   mqttActorProvider,
		forecastPrimary:     forecastPrimary,
		forecastFallback:    forecastFallback,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		state.currentHealthCheck = healthCheckResult{}
		state.currentHealthCheck.reset()

		// start Modbus child
		modbusActorPID, err := state.startModbusActor(ctx)
		if err != nil {
			panic(err)
		}
		state.modbusActor = modbusActorPID

		// start MQTT child
		mqttActorPID, err := state.startMQTTActor(ctx)
		if err != nil {
			panic(err)
		}
		state.mqttActor = mqttActorPID

		// start Monitor child
		monitorActorPID, err := state.startMonitorActor(ctx)
		if err != nil {
			panic(err)
		}
		state.monitorActor = monitorActorPID

		// start Forecast child
		forecastActorPID, err := state.startForecastActor(ctx)
		if err != nil {
			panic(err)
		}
		state.forecastActor = forecastActorPID

		// start Scheduler child
		schedulerActorPID, err := state.startSchedulerActor(ctx)
		if err != nil {
			panic(err)
		}
		state.schedulerActor = schedulerActorPID

		// bridge event stream to the MQTT actor
		state.eventStreamSub = state.eventStream.Subscribe(func(value any) {
			if ev, ok := value.(domain.SensorUpdateEvent); ok {
				ctx.Send(state.mqttActor, domain.PublishSensorUpdateRequest{Event: ev})
			}
		})

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset()
		state.currentHealthCheck.respondTo = ctx.Sender()
		for _, child := range []*actor.PID{state.modbusActor, state.mqttActor,
			state.monitorActor, state.forecastActor, state.schedulerActor} {
			PipeToSelfWithRecover(ctx, ctx.RequestFuture(child, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
				return domain.ActorHealthResponse{
					Healthy: false,
				}
			})
		}

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case domain.GetPlanRequest:
		// forward keeping the original requester as reply target
		state.logger.Debug("master@default GetPlanRequest")
		msg.ReplyToRef = (*domain.ActorRef)(ForRequest(msg).ReplyTo(ctx))
		ctx.Send(state.schedulerActor, msg)
	case adactor.ParsedCommand:
		// redirect parsedCommand to the scheduler
		state.logger.Debug("master@default parsedCommand", zap.Any("command", msg.Command))
		if msg.Command != nil {
			if cmd := ControlMessageToRequest(*msg.Command); cmd != nil {
				switch pcmd := cmd.(type) {
				case domain.SchedulerControlRequest:
					ctx.Send(state.schedulerActor, pcmd)
				}
			}
		}
	case domain.SchedulerControlRequest:
		// forward keeping the external requester as sender
		state.logger.Debug("master@default SchedulerControlRequest", zap.String("type", fmt.Sprintf("%T", msg)))
		ctx.RequestWithCustomSender(state.schedulerActor, msg, ctx.Sender())
	case *actor.Terminated:
		// if some actor fails on boot, terminate
		if msg.Who.Id == fmt.Sprintf("%s/%s", domain.ACTOR_ID_MASTER, domain.ACTOR_ID_MODBUS) {
			state.logger.Error("master@default modbus error")
			panic(errors.New("modbus terminated"))
		}
	default:
		state.logger.Debug("master@default stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.checksReceived++
		if msg.Healthy {
			state.currentHealthCheck.healthyById[msg.Id] = true
		}
		if state.currentHealthCheck.allReceived() {

			state.currentHealthCheck.respond(ctx)

			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		} else {
			ctx.SetReceiveTimeout(1 * time.Second)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) startModbusActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	modbusProps := actor.PropsFromProducer(func() actor.Actor {
		return state.modbusActorProvider()
	}, actor.WithSupervisor(supervisor))
	modbusActorPID, err := ctx.SpawnNamed(modbusProps, domain.ACTOR_ID_MODBUS)
	if err != nil {
		return nil, err
	}

	return modbusActorPID, nil
}

func (state *MasterOfPuppetsActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider()
	}, actor.WithSupervisor(supervisor))
	mqttActorPID, err := ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
	if err != nil {
		return nil, err
	}

	return mqttActorPID, nil
}

func (state *MasterOfPuppetsActor) startMonitorActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewAllForOneStrategy(1, 10*time.Second, decider)

	monitorProps := actor.PropsFromProducer(func() actor.Actor {
		return NewMonitorActor(&state.config, state.modbusActor, state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	monitorActorPID, err := ctx.SpawnNamed(monitorProps, domain.ACTOR_ID_MONITOR)
	if err != nil {
		return nil, err
	}

	return monitorActorPID, nil
}

func (state *MasterOfPuppetsActor) startForecastActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	forecastProps := actor.PropsFromProducer(func() actor.Actor {
		return NewForecastActor(&state.config, state.forecastPrimary, state.forecastFallback, state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	forecastActorPID, err := ctx.SpawnNamed(forecastProps, domain.ACTOR_ID_FORECAST)
	if err != nil {
		return nil, err
	}

	return forecastActorPID, nil
}

func (state *MasterOfPuppetsActor) startSchedulerActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	schedulerProps := actor.PropsFromProducer(func() actor.Actor {
		return NewSchedulerActor(&state.config, state.modbusActor, state.monitorActor, state.forecastActor,
			state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	schedulerActorPID, err := ctx.SpawnNamed(schedulerProps, domain.ACTOR_ID_SCHEDULER)
	if err != nil {
		return nil, err
	}

	return schedulerActorPID, nil
}

func (state *healthCheckResult) reset() {
	state.healthyById = make(map[string]bool, len(healthCheckedActors))
	state.checksReceived = 0
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived == len(healthCheckedActors)
}

func (state *healthCheckResult) allHealthy() bool {
	for _, id := range healthCheckedActors {
		if !state.healthyById[id] {
			return false
		}
	}
	return true
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
