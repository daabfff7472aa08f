package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"smartsched/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeGateway struct {
	mu       sync.Mutex
	byDevice map[string][]domain.DeviceCommand
	failOn   string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{byDevice: map[string][]domain.DeviceCommand{}}
}

func (g *fakeGateway) Open() error  { return nil }
func (g *fakeGateway) Close() error { return nil }

func (g *fakeGateway) GetDevicesInfo() (*domain.DevicesInfo, error) {
	return &domain.DevicesInfo{}, nil
}

func (g *fakeGateway) GetSnapshot() (*domain.TelemetrySnapshot, error) {
	return &domain.TelemetrySnapshot{}, nil
}

func (g *fakeGateway) SendCommand(_ context.Context, cmd domain.DeviceCommand) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.byDevice[cmd.DeviceId] = append(g.byDevice[cmd.DeviceId], cmd)
	if g.failOn != "" && cmd.Action == g.failOn {
		return errors.New("device rejected command")
	}
	return nil
}

func testPlan() *domain.SchedulerPlan {
	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	window := domain.TOUWindow{
		Kind:      domain.WindowCharge,
		Index:     1,
		Start:     day.Add(6 * time.Hour),
		End:       day.Add(10 * time.Hour),
		PowerWatt: 2000,
		TargetSOC: 100,
	}
	return &domain.SchedulerPlan{
		ArrayId:       "array1",
		Mode:          domain.ModeTOU,
		ChargeWindows: []domain.TOUWindow{window},
		Charge: domain.FleetAllocation{
			Kind:       domain.WindowCharge,
			TargetWatt: 2000,
			Inverters: []domain.InverterAllocation{
				{InverterId: "inv1", AllocatedWatt: 1500},
				{InverterId: "inv2", AllocatedWatt: 500},
			},
		},
		Discharge: domain.FleetAllocation{
			Kind:       domain.WindowDischarge,
			TargetWatt: 0,
			Inverters: []domain.InverterAllocation{
				{InverterId: "inv1"},
				{InverterId: "inv2"},
			},
		},
	}
}

func commandsFor(batch domain.CommandBatch, deviceId string) []domain.DeviceCommand {
	var cmds []domain.DeviceCommand
	for _, cmd := range batch.Commands {
		if cmd.DeviceId == deviceId {
			cmds = append(cmds, cmd)
		}
	}
	return cmds
}

func findCommand(cmds []domain.DeviceCommand, action string, kind domain.WindowKind, index int) *domain.DeviceCommand {
	for i, cmd := range cmds {
		if cmd.Action == action && cmd.WindowKind == kind && cmd.WindowIndex == index {
			return &cmds[i]
		}
	}
	return nil
}

func TestBuildCommandBatchProgramsAndClearsSlots(t *testing.T) {

	require := require.New(t)

	batch := BuildCommandBatch(testPlan(), time.UTC, 2*time.Second)

	for _, deviceId := range []string{"inv1", "inv2"} {
		cmds := commandsFor(batch, deviceId)

		// mode + 4 window writes + 2 charge clears + 3 discharge clears
		require.Len(cmds, 10, "device %s", deviceId)
		assert.Equal(t, domain.ActionSetMode, cmds[0].Action)
		assert.EqualValues(t, ModeValueTOU, cmds[0].Value)

		start := findCommand(cmds, domain.ActionSetWindowStart, domain.WindowCharge, 1)
		require.NotNil(start)
		assert.EqualValues(t, 6*60, start.Value)

		end := findCommand(cmds, domain.ActionSetWindowEnd, domain.WindowCharge, 1)
		require.NotNil(end)
		assert.EqualValues(t, 10*60, end.Value)

		soc := findCommand(cmds, domain.ActionSetWindowTargetSOC, domain.WindowCharge, 1)
		require.NotNil(soc)
		assert.EqualValues(t, 100, soc.Value)

		// every unused slot is explicitly cleared
		for idx := 2; idx <= domain.MaxWindowsPerKind; idx++ {
			assert.NotNil(t, findCommand(cmds, domain.ActionClearWindow, domain.WindowCharge, idx))
		}
		for idx := 1; idx <= domain.MaxWindowsPerKind; idx++ {
			assert.NotNil(t, findCommand(cmds, domain.ActionClearWindow, domain.WindowDischarge, idx))
		}
	}
}

func TestBuildCommandBatchScalesPowerByAllocationShare(t *testing.T) {

	require := require.New(t)

	batch := BuildCommandBatch(testPlan(), time.UTC, 2*time.Second)

	p1 := findCommand(commandsFor(batch, "inv1"), domain.ActionSetWindowPower, domain.WindowCharge, 1)
	require.NotNil(p1)
	assert.InDelta(t, 1500, p1.Value, 0.001)

	p2 := findCommand(commandsFor(batch, "inv2"), domain.ActionSetWindowPower, domain.WindowCharge, 1)
	require.NotNil(p2)
	assert.InDelta(t, 500, p2.Value, 0.001)
}

// a window ending exactly at local midnight encodes the day's last minute,
// never an end register below the start register
func TestBuildCommandBatchEncodesMidnightEndAsLastMinute(t *testing.T) {

	require := require.New(t)

	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	plan := testPlan()
	plan.DischargeWindows = []domain.TOUWindow{{
		Kind:      domain.WindowDischarge,
		Index:     1,
		Start:     day.Add(23 * time.Hour),
		End:       day.Add(24 * time.Hour),
		PowerWatt: 1000,
		TargetSOC: 30,
	}}
	plan.Discharge.TargetWatt = 1000
	plan.Discharge.Inverters = []domain.InverterAllocation{{InverterId: "inv1", AllocatedWatt: 1000}}

	batch := BuildCommandBatch(plan, time.UTC, 2*time.Second)
	cmds := commandsFor(batch, "inv1")

	start := findCommand(cmds, domain.ActionSetWindowStart, domain.WindowDischarge, 1)
	require.NotNil(start)
	assert.EqualValues(t, 23*60, start.Value)

	end := findCommand(cmds, domain.ActionSetWindowEnd, domain.WindowDischarge, 1)
	require.NotNil(end)
	assert.EqualValues(t, 1439, end.Value)
	assert.Greater(t, end.Value, start.Value)
}

func TestDispatchBatchKeepsPerDeviceOrder(t *testing.T) {

	require := require.New(t)

	gw := newFakeGateway()
	batch := BuildCommandBatch(testPlan(), time.UTC, 2*time.Second)

	results := DispatchBatch(context.Background(), gw, batch, zap.NewNop())
	require.Len(results, len(batch.Commands))

	for _, deviceId := range []string{"inv1", "inv2"} {
		sent := gw.byDevice[deviceId]
		expected := commandsFor(batch, deviceId)
		require.Len(sent, len(expected))
		for i := range expected {
			assert.Equal(t, expected[i].Action, sent[i].Action, "device %s command %d out of order", deviceId, i)
			assert.Equal(t, expected[i].WindowIndex, sent[i].WindowIndex)
		}
	}
}

func TestDispatchBatchReportsFailuresWithoutRetry(t *testing.T) {

	require := require.New(t)

	gw := newFakeGateway()
	gw.failOn = domain.ActionSetWindowPower
	batch := BuildCommandBatch(testPlan(), time.UTC, 2*time.Second)

	results := DispatchBatch(context.Background(), gw, batch, zap.NewNop())
	require.Len(results, len(batch.Commands), "every command gets exactly one result")

	var failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
			assert.Equal(t, domain.ActionSetWindowPower, r.Command.Action)
		}
	}
	assert.Equal(t, 2, failed, "one power command per device fails")

	// exactly one attempt per command, never a retry
	var attempts int
	for _, cmds := range gw.byDevice {
		attempts += len(cmds)
	}
	assert.Equal(t, len(batch.Commands), attempts)
}
