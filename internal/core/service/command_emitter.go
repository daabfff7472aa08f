package service

import (
	"context"
	"sync"
	"time"

	"smartsched/internal/core/domain"
	"smartsched/internal/core/port"

	"go.uber.org/zap"
)

// Mode register encoding shared by the adapters.
const (
	ModeValueSelfUse float64 = 0
	ModeValueTOU     float64 = 1
	ModeValueBackup  float64 = 2
)

func EncodeMode(mode domain.OperatingMode) float64 {
	switch mode {
	case domain.ModeTOU:
		return ModeValueTOU
	case domain.ModeBackup:
		return ModeValueBackup
	default:
		return ModeValueSelfUse
	}
}

// BuildCommandBatch turns a plan into the per-device logical commands that
// realize it: one mode command per inverter, then window programming for
// every planned slot and an explicit clear for every unused slot, so stale
// windows from previous cycles never survive.
//
// Window power is scaled per inverter by its allocation share, so no device
// is ever asked for more than its allocated watts.
func BuildCommandBatch(plan *domain.SchedulerPlan, loc *time.Location, commandTimeout time.Duration) domain.CommandBatch {
	batch := domain.CommandBatch{ArrayId: plan.ArrayId}
	if len(plan.Charge.Inverters) == 0 && len(plan.Discharge.Inverters) == 0 {
		return batch
	}

	// both allocations cover the same fleet membership
	ids := make([]string, 0, len(plan.Charge.Inverters))
	for _, inv := range plan.Charge.Inverters {
		ids = append(ids, inv.InverterId)
	}
	if len(ids) == 0 {
		for _, inv := range plan.Discharge.Inverters {
			ids = append(ids, inv.InverterId)
		}
	}

	for _, id := range ids {
		batch.Commands = append(batch.Commands, domain.DeviceCommand{
			DeviceId: id,
			Action:   domain.ActionSetMode,
			Value:    EncodeMode(plan.Mode),
			Timeout:  commandTimeout,
		})
		batch.Commands = append(batch.Commands,
			windowCommands(id, plan.ChargeWindows, domain.WindowCharge, plan.Charge, loc, commandTimeout)...)
		batch.Commands = append(batch.Commands,
			windowCommands(id, plan.DischargeWindows, domain.WindowDischarge, plan.Discharge, loc, commandTimeout)...)
	}
	return batch
}

func windowCommands(deviceId string, windows []domain.TOUWindow, kind domain.WindowKind,
	alloc domain.FleetAllocation, loc *time.Location, timeout time.Duration) []domain.DeviceCommand {

	var share float64
	if alloc.TargetWatt > 0 {
		for _, inv := range alloc.Inverters {
			if inv.InverterId == deviceId {
				share = inv.AllocatedWatt / alloc.TargetWatt
				break
			}
		}
	}

	var cmds []domain.DeviceCommand
	used := make(map[int]bool, len(windows))
	for _, w := range windows {
		used[w.Index] = true
		cmds = append(cmds,
			domain.DeviceCommand{
				DeviceId: deviceId, Action: domain.ActionSetWindowStart,
				WindowKind: kind, WindowIndex: w.Index,
				Value: minutesOfDay(w.Start, loc), Timeout: timeout,
			},
			domain.DeviceCommand{
				DeviceId: deviceId, Action: domain.ActionSetWindowEnd,
				WindowKind: kind, WindowIndex: w.Index,
				Value: endMinutesOfDay(w.End, loc), Timeout: timeout,
			},
			domain.DeviceCommand{
				DeviceId: deviceId, Action: domain.ActionSetWindowPower,
				WindowKind: kind, WindowIndex: w.Index,
				Value: w.PowerWatt * share, Timeout: timeout,
			},
			domain.DeviceCommand{
				DeviceId: deviceId, Action: domain.ActionSetWindowTargetSOC,
				WindowKind: kind, WindowIndex: w.Index,
				Value: w.TargetSOC, Timeout: timeout,
			},
		)
	}
	for idx := 1; idx <= domain.MaxWindowsPerKind; idx++ {
		if used[idx] {
			continue
		}
		cmds = append(cmds, domain.DeviceCommand{
			DeviceId: deviceId, Action: domain.ActionClearWindow,
			WindowKind: kind, WindowIndex: idx, Timeout: timeout,
		})
	}
	return cmds
}

func minutesOfDay(t time.Time, loc *time.Location) float64 {
	local := t.In(loc)
	return float64(local.Hour()*60 + local.Minute())
}

// endMinutesOfDay encodes a window end. The planner never emits a window
// crossing midnight, so an end at 00:00 means end-of-day and becomes the
// day's last minute; the end register must never be below the start.
func endMinutesOfDay(t time.Time, loc *time.Location) float64 {
	m := minutesOfDay(t, loc)
	if m == 0 {
		return 1439
	}
	return m
}

// DispatchBatch sends a command batch through the gateway. Commands for
// different devices run concurrently, commands for the same device run
// strictly in order. Every command is attempted exactly once under its own
// timeout, no retries, and every outcome is reported.
//
// WaitGroup and mutex are created fresh per batch and never escape this
// function; a batch is the whole lifetime of its synchronization.
func DispatchBatch(ctx context.Context, gateway port.InverterGateway, batch domain.CommandBatch, logger *zap.Logger) []domain.CommandResult {
	byDevice := make(map[string][]domain.DeviceCommand)
	var order []string
	for _, cmd := range batch.Commands {
		if _, ok := byDevice[cmd.DeviceId]; !ok {
			order = append(order, cmd.DeviceId)
		}
		byDevice[cmd.DeviceId] = append(byDevice[cmd.DeviceId], cmd)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	results := make([]domain.CommandResult, 0, len(batch.Commands))

	for _, deviceId := range order {
		cmds := byDevice[deviceId]
		wg.Add(1)
		go func(deviceId string, cmds []domain.DeviceCommand) {
			defer wg.Done()
			for _, cmd := range cmds {
				cctx, cancel := context.WithTimeout(ctx, cmd.Timeout)
				err := gateway.SendCommand(cctx, cmd)
				cancel()
				if err != nil {
					logger.Sugar().Warnf("command_emitter: command %s failed on device %s: %s",
						cmd.Action, deviceId, err)
				}
				mu.Lock()
				results = append(results, domain.CommandResult{Command: cmd, Err: err})
				mu.Unlock()
			}
		}(deviceId, cmds)
	}
	wg.Wait()
	return results
}
