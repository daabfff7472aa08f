package actor

import (
	"fmt"
	"time"

	"smartsched/internal/config"
	"smartsched/internal/core/domain"
	"smartsched/internal/core/events"
	"smartsched/internal/core/service"
	. "smartsched/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

const (
	// first cycle waits for the monitor and forecast actors to warm up
	schedulerStartDelay = 10 * time.Second

	schedulerRequestTimeout = 3 * time.Second
)

// SchedulerActor runs the planning cycle: snapshot + forecast in, command
// batch out. A cycle either completes all stages or aborts without side
// effects; ticks arriving mid-cycle are stashed, so cycles never overlap.
type SchedulerActor struct {
	ActorWithStates
	scheduler  *scheduler.TimerScheduler
	stash      *Stash
	cancelTick scheduler.CancelFunc

	modbusActor   *actor.PID
	monitorActor  *actor.PID
	forecastActor *actor.PID
	config        *config.Config
	eventStream   *eventstream.EventStream

	enabled  bool
	policy   config.PolicyConfig
	location *time.Location

	lastPlan *domain.SchedulerPlan

	logger *zap.Logger
}

type schedulerCycleTick struct {
}

// cycleRun is the working set of one cycle. It is created on the tick,
// passed by value between the cycle states and dropped when the cycle ends,
// so no cycle ever observes another cycle's data.
type cycleRun struct {
	tick     time.Time
	snapshot *domain.TelemetrySnapshot
	forecast *domain.Forecast
	plan     *domain.SchedulerPlan
	batch    domain.CommandBatch
}

func NewSchedulerActor(config *config.Config, modbusActor, monitorActor, forecastActor *actor.PID,
	eventStream *eventstream.EventStream, logger *zap.Logger) *SchedulerActor {

	act := &SchedulerActor{
		config:        config,
		modbusActor:   modbusActor,
		monitorActor:  monitorActor,
		forecastActor: forecastActor,
		stash:         &Stash{},
		logger:        ActorLogger(domain.ACTOR_ID_SCHEDULER, logger),
		eventStream:   eventStream,
		enabled:       config.Policy.Enabled,
		policy:        config.Policy,
		location:      config.Location.TimeLocation(),
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.Become(SchedStartingState{
		actor: act,
	})
	return act
}

func (state *SchedulerActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

// Starting state

type SchedStartingState struct {
	ActorState
	actor *SchedulerActor
}

func (state SchedStartingState) Name() string {
	return "starting"
}

func (state SchedStartingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.actor.logger.Debug("scheduler@starting started")

		state.actor.scheduler = scheduler.NewTimerScheduler(ctx)
		state.actor.scheduleTick(ctx, schedulerStartDelay)
		state.actor.Become(SchedIdleState{
			actor: state.actor,
		}.OnEnter())
		state.actor.stash.UnstashAll(ctx)
	case *actor.Restarting:
	default:
		state.actor.logger.Debug("scheduler@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// Idle state

type SchedIdleState struct {
	ActorState
	actor *SchedulerActor
}

func (state SchedIdleState) Name() string {
	return "idle"
}

func (state SchedIdleState) OnEnter() SchedIdleState {
	// retained control entities reflect the current runtime settings
	state.actor.eventStream.Publish(events.SchedulerEnableSwitchUpdateEvent(state.actor.enabled))
	state.actor.eventStream.Publish(events.MinSOCUpdateEvent(service.ModeDecision{
		EffectiveMinSOC: state.actor.policy.EffectiveMinSOC(),
	}))
	return state
}

func (state SchedIdleState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.actor.logger.Debug("scheduler@idle: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_SCHEDULER,
			Healthy: true,
			State:   state.Name(),
		})
	case schedulerCycleTick:
		state.actor.scheduleTick(ctx, time.Duration(state.actor.config.Scheduler.CycleIntervalMillis)*time.Millisecond)
		if !state.actor.enabled {
			state.actor.logger.Debug("scheduler@idle: tick skipped, scheduler disabled")
			return
		}
		state.actor.logger.Debug("scheduler@idle: tick, cycle begins")
		state.actor.Become(SchedAwaitSnapshotState{
			actor: state.actor,
			cycle: cycleRun{tick: time.Now().In(state.actor.location)},
		}.OnEnterAction(ctx))
	case domain.GetPlanRequest:
		state.actor.logger.Debug("scheduler@idle: GetPlanRequest")
		ForRequest(msg).Respond(ctx, state.actor.planResponse())
	case domain.SchedulerControlRequest:
		state.actor.handleControlRequest(ctx, msg)
	default:
		state.actor.logger.Debug("scheduler@idle: recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// Await snapshot state

type SchedAwaitSnapshotState struct {
	ActorState
	actor *SchedulerActor
	cycle cycleRun
}

func (state SchedAwaitSnapshotState) Name() string {
	return "awaitSnapshot"
}

func (state SchedAwaitSnapshotState) OnEnterAction(ctx actor.Context) SchedAwaitSnapshotState {
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.actor.monitorActor,
		domain.GetTelemetrySnapshotRequest{}, schedulerRequestTimeout),
		func(err error) any {
			return domain.GetTelemetrySnapshotResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			}
		})
	return state
}

func (state SchedAwaitSnapshotState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetTelemetrySnapshotResponse:
		if msg.HasResponseError() {
			state.actor.degradeCycle(ctx, state.cycle, "no telemetry snapshot", msg.GetResponseError())
			return
		}
		maxAge := time.Duration(state.actor.config.Scheduler.MaxSnapshotAgeMillis) * time.Millisecond
		if maxAge > 0 && msg.Snapshot.Age > maxAge {
			state.actor.degradeCycle(ctx, state.cycle, "telemetry snapshot too old",
				fmt.Errorf("snapshot age %s exceeds %s", msg.Snapshot.Age, maxAge))
			return
		}
		state.actor.logger.Debug("scheduler@awaitSnapshot: GetTelemetrySnapshotResponse")
		state.cycle.snapshot = msg.Snapshot
		state.actor.Become(SchedAwaitForecastState{
			actor: state.actor,
			cycle: state.cycle,
		}.OnEnterAction(ctx))
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_SCHEDULER,
			Healthy: true,
			State:   state.Name(),
		})
	default:
		state.actor.logger.Debug("scheduler@awaitSnapshot: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// Await forecast state

type SchedAwaitForecastState struct {
	ActorState
	actor *SchedulerActor
	cycle cycleRun
}

func (state SchedAwaitForecastState) Name() string {
	return "awaitForecast"
}

func (state SchedAwaitForecastState) OnEnterAction(ctx actor.Context) SchedAwaitForecastState {
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.actor.forecastActor,
		domain.GetForecastRequest{}, schedulerRequestTimeout),
		func(err error) any {
			return domain.GetForecastResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			}
		})
	return state
}

func (state SchedAwaitForecastState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetForecastResponse:
		if msg.HasResponseError() {
			state.actor.degradeCycle(ctx, state.cycle, "no forecast", msg.GetResponseError())
			return
		}
		state.actor.logger.Debug("scheduler@awaitForecast: GetForecastResponse")
		state.cycle.forecast = msg.Forecast

		plan, batch, err := state.actor.computePlan(state.cycle)
		if err != nil {
			state.actor.abortCycle(ctx, "planning failed", err)
			return
		}
		state.cycle.plan = plan
		state.cycle.batch = batch
		state.actor.Become(SchedAwaitDispatchState{
			actor: state.actor,
			cycle: state.cycle,
		}.OnEnterAction(ctx))
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_SCHEDULER,
			Healthy: true,
			State:   state.Name(),
		})
	default:
		state.actor.logger.Debug("scheduler@awaitForecast: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// Await dispatch state

type SchedAwaitDispatchState struct {
	ActorState
	actor *SchedulerActor
	cycle cycleRun
}

func (state SchedAwaitDispatchState) Name() string {
	return "awaitDispatch"
}

func (state SchedAwaitDispatchState) OnEnterAction(ctx actor.Context) SchedAwaitDispatchState {
	var timeout time.Duration
	for _, cmd := range state.cycle.batch.Commands {
		timeout += cmd.Timeout
	}
	timeout += 10 * time.Second

	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.actor.modbusActor,
		domain.DispatchCommandBatchRequest{Batch: state.cycle.batch}, timeout),
		func(err error) any {
			return domain.DispatchCommandBatchResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			}
		})
	return state
}

func (state SchedAwaitDispatchState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.DispatchCommandBatchResponse:
		if msg.HasResponseError() {
			state.actor.abortCycle(ctx, "dispatch failed", msg.GetResponseError())
			return
		}
		var failed int
		for _, r := range msg.Results {
			if r.Err != nil {
				failed++
			}
		}
		if failed > 0 {
			state.actor.logger.Sugar().Warnf("scheduler@awaitDispatch: %d of %d commands failed, next cycle reprograms from live registers",
				failed, len(msg.Results))
		} else {
			state.actor.logger.Sugar().Infof("scheduler@awaitDispatch: cycle complete, %d commands applied", len(msg.Results))
		}

		state.actor.lastPlan = state.cycle.plan
		for _, ev := range events.PlanToUpdateEvents(state.cycle.plan) {
			state.actor.eventStream.Publish(ev)
		}
		state.actor.Become(SchedIdleState{
			actor: state.actor,
		})
		state.actor.stash.UnstashAll(ctx)
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_SCHEDULER,
			Healthy: true,
			State:   state.Name(),
		})
	default:
		state.actor.logger.Debug("scheduler@awaitDispatch: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// Cycle helpers

// computePlan runs the pure planning pipeline over the cycle's inputs.
func (state *SchedulerActor) computePlan(cycle cycleRun) (*domain.SchedulerPlan, domain.CommandBatch, error) {
	now := cycle.tick
	sun, err := service.SunTimesFor(state.config.Location.Latitude, state.config.Location.Longitude,
		now, state.location)
	if err != nil {
		return nil, domain.CommandBatch{}, err
	}

	soc := cycle.snapshot.BatterySOC()
	summary := cycle.forecast.SummaryAfter(now)

	policy := state.policy
	policy.Enabled = state.enabled

	gridAvailable := service.GridAvailable(cycle.snapshot, now, soc, policy.EffectiveMinSOC(), sun)
	decision := service.DecideMode(policy, gridAvailable, soc, summary, state.config.Forecast.MinConfidence)
	state.logger.Sugar().Infof("scheduler: mode %s (%s), grid available %t, soc %.1f, forecast confidence %.2f",
		decision.Mode, decision.Reason, gridAvailable, soc, summary.Confidence)

	charge, discharge := service.PlanWindows(service.WindowPlanInput{
		Now:                  now,
		SOC:                  soc,
		Decision:             decision,
		Policy:               policy,
		Forecast:             cycle.forecast,
		Sun:                  sun,
		SurplusThresholdWatt: float64(state.config.Scheduler.SurplusThresholdWatt),
	}, state.logger)

	chargeAlloc := service.AllocateFleet(domain.WindowCharge, peakWindowPower(charge),
		service.MembersFromSnapshot(domain.WindowCharge, cycle.snapshot))
	dischargeAlloc := service.AllocateFleet(domain.WindowDischarge, peakWindowPower(discharge),
		service.MembersFromSnapshot(domain.WindowDischarge, cycle.snapshot))

	plan := &domain.SchedulerPlan{
		ArrayId:          cycle.snapshot.ArrayId,
		TickTime:         now,
		Mode:             decision.Mode,
		GridAvailable:    gridAvailable,
		ChargeWindows:    charge,
		DischargeWindows: discharge,
		Charge:           chargeAlloc,
		Discharge:        dischargeAlloc,
	}

	commandTimeout := time.Duration(state.config.Scheduler.CommandTimeoutMillis) * time.Millisecond
	batch := service.BuildCommandBatch(plan, state.location, commandTimeout)
	return plan, batch, nil
}

// peakWindowPower is the fleet target for a direction: windows of one kind
// never overlap, so the fleet only ever serves one of them at a time.
func peakWindowPower(windows []domain.TOUWindow) float64 {
	var peak float64
	for _, w := range windows {
		if w.PowerWatt > peak {
			peak = w.PowerWatt
		}
	}
	return peak
}

// degradeCycle completes the cycle with a conservative self-use plan: no
// windows, no allocations, no device commands. Devices keep their current
// registers until telemetry and forecast come back.
func (state *SchedulerActor) degradeCycle(ctx actor.Context, cycle cycleRun, stage string, err error) {
	state.logger.Sugar().Warnf("scheduler: %s (%s), degrading cycle to self-use", stage, err)

	arrayId := state.config.InverterModbusTcp.ArrayId
	gridAvailable := true
	if cycle.snapshot != nil {
		arrayId = cycle.snapshot.ArrayId
		gridAvailable = !cycle.snapshot.GridFault()
	}
	plan := &domain.SchedulerPlan{
		ArrayId:       arrayId,
		TickTime:      cycle.tick,
		Mode:          domain.ModeSelfUse,
		GridAvailable: gridAvailable,
	}
	state.lastPlan = plan
	for _, ev := range events.PlanToUpdateEvents(plan) {
		state.eventStream.Publish(ev)
	}
	state.Become(SchedIdleState{
		actor: state,
	})
	state.stash.UnstashAll(ctx)
}

func (state *SchedulerActor) abortCycle(ctx actor.Context, stage string, err error) {
	state.logger.Sugar().Errorf("scheduler: cycle aborted (%s): %s", stage, err)
	state.Become(SchedIdleState{
		actor: state,
	})
	state.stash.UnstashAll(ctx)
}

func (state *SchedulerActor) scheduleTick(ctx actor.Context, delay time.Duration) {
	if state.cancelTick != nil {
		state.cancelTick()
	}
	state.cancelTick = state.scheduler.RequestOnce(delay, ctx.Self(), schedulerCycleTick{})
}

// Control requests

func (state *SchedulerActor) handleControlRequest(ctx actor.Context, msg domain.SchedulerControlRequest) {
	switch cmd := msg.(type) {
	case domain.SchedulerEnableRequest:
		state.logger.Sugar().Debugf("scheduler@idle: cmd enable %t", cmd.Enable)
		changed := state.enabled != cmd.Enable
		state.enabled = cmd.Enable
		state.eventStream.Publish(events.SchedulerEnableSwitchUpdateEvent(state.enabled))
		if changed && state.enabled {
			// apply the new mode without waiting for the next interval
			state.scheduleTick(ctx, time.Second)
		}
		state.respondControl(ctx, msg, domain.SchedulerEnableResponse{Changed: changed})
	case domain.SchedulerSetMinSOCRequest:
		state.logger.Sugar().Debugf("scheduler@idle: cmd setMinSOC %d", cmd.MinSOC)
		state.policy.OvernightMinSOC = float64(cmd.MinSOC)
		state.eventStream.Publish(events.MinSOCUpdateEvent(service.ModeDecision{
			EffectiveMinSOC: state.policy.EffectiveMinSOC(),
		}))
		state.respondControl(ctx, msg, domain.SchedulerSetMinSOCResponse{
			MinSOC: uint(state.policy.EffectiveMinSOC()),
		})
	case domain.SchedulerSetPolicyRequest:
		state.logger.Sugar().Debugf("scheduler@idle: cmd setPolicy %+v", cmd.Policy)
		state.applyPolicy(cmd.Policy)
		state.eventStream.Publish(events.SchedulerEnableSwitchUpdateEvent(state.enabled))
		state.eventStream.Publish(events.MinSOCUpdateEvent(service.ModeDecision{
			EffectiveMinSOC: state.policy.EffectiveMinSOC(),
		}))
		state.respondControl(ctx, msg, domain.SchedulerSetPolicyResponse{})
	default:
		state.logger.Debug("scheduler@idle: unknown control request", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *SchedulerActor) applyPolicy(p domain.PolicyUpdate) {
	state.enabled = p.Enabled
	state.policy.Enabled = p.Enabled
	state.policy.PrimaryMode = string(p.PrimaryMode)
	state.policy.TargetFullBeforeSunset = p.TargetFullBeforeSunset
	state.policy.OvernightMinSOC = p.OvernightMinSOC
	state.policy.BlackoutReserveSOC = p.BlackoutReserveSOC
	state.policy.MaxChargePowerWatt = p.MaxChargePowerWatt
	state.policy.MaxDischargePowerWatt = p.MaxDischargePowerWatt
}

func (state *SchedulerActor) respondControl(ctx actor.Context, req domain.SchedulerControlRequest, resp domain.SchedulerControlResponse) {
	if req.ReplyTo() != nil {
		ForRequest(req).Respond(ctx, resp)
	} else if ctx.Sender() != nil {
		ctx.Respond(resp)
	}
}

func (state *SchedulerActor) planResponse() domain.GetPlanResponse {
	if state.lastPlan == nil {
		return domain.GetPlanResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: fmt.Errorf("no plan computed yet"),
			},
		}
	}
	return domain.GetPlanResponse{
		Plan: state.lastPlan,
	}
}
