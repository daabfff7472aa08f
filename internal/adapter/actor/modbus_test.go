package actor

import (
	"testing"
	"time"

	"smartsched/internal/adapter/inverter"
	"smartsched/internal/config"
	"smartsched/internal/core/domain"
	"smartsched/internal/util/actorutil"
	"smartsched/pkg/touspec_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func testModbusGateway() (*inverter.ModbusGateway, []*touspec_modbus.TestHybridClient) {
	clients := []*touspec_modbus.TestHybridClient{
		touspec_modbus.CreateTestHybridClient(),
		touspec_modbus.CreateTestHybridClient(),
	}
	units := []config.InverterUnitConfig{
		{Id: "inv1", UnitId: 1, RatedChargePowerWatt: 3000, RatedDischargePowerWatt: 3000},
		{Id: "inv2", UnitId: 2, RatedChargePowerWatt: 5000, RatedDischargePowerWatt: 5000},
	}
	gw := inverter.NewGatewayWithClients("array1", units,
		[]touspec_modbus.HybridInverterClient{clients[0], clients[1]}, zap.NewNop())
	return gw, clients
}

func TestGetTelemetrySnapshotModbusActor(t *testing.T) {

	assert := assert.New(t)

	gw, _ := testModbusGateway()

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	props := actor.PropsFromProducer(func() actor.Actor { return NewModbusActor(gw, logger) })
	pid := context.Spawn(props)

	time.Sleep(1 * time.Second)

	msg := domain.GetTelemetrySnapshotRequest{}
	result, err := context.RequestFuture(pid, msg, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.GetTelemetrySnapshotResponse)

	assert.False(resp.HasResponseError())
	assert.Equal("array1", resp.Snapshot.ArrayId)
	assert.Len(resp.Snapshot.Inverters, 2)
	// default test telemetry: 50.4 V x 19.0 A charging
	assert.InDelta(-957.6, resp.Snapshot.Inverters[0].BatteryPowerWatt, 0.001)

	context.Stop(pid)

	as.Shutdown()
}

func TestGetDevicesInfoModbusActor(t *testing.T) {

	assert := assert.New(t)

	gw, _ := testModbusGateway()

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	props := actor.PropsFromProducer(func() actor.Actor { return NewModbusActor(gw, logger) })
	pid := context.Spawn(props)

	time.Sleep(1 * time.Second)

	result, err := context.RequestFuture(pid, domain.GetDevicesInfoRequest{}, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.GetDevicesInfoResponse)

	assert.False(resp.HasResponseError())
	assert.Len(resp.Devices.Inverters, 2)
	assert.Equal("inv1", resp.Devices.Inverters[0].InverterId)

	context.Stop(pid)

	as.Shutdown()
}

func TestDispatchCommandBatchModbusActor(t *testing.T) {

	assert := assert.New(t)

	gw, clients := testModbusGateway()

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	props := actor.PropsFromProducer(func() actor.Actor { return NewModbusActor(gw, logger) })
	pid := context.Spawn(props)

	time.Sleep(1 * time.Second)

	batch := domain.CommandBatch{
		ArrayId: "array1",
		Commands: []domain.DeviceCommand{
			{DeviceId: "inv1", Action: domain.ActionSetMode, Value: 1, Timeout: time.Second},
			{DeviceId: "inv2", Action: domain.ActionSetWindowTargetSOC,
				WindowKind: domain.WindowDischarge, WindowIndex: 1, Value: 30, Timeout: time.Second},
		},
	}
	result, err := context.RequestFuture(pid, domain.DispatchCommandBatchRequest{Batch: batch}, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.DispatchCommandBatchResponse)

	assert.False(resp.HasResponseError())
	assert.Len(resp.Results, 2)
	for _, r := range resp.Results {
		assert.NoError(r.Err)
	}
	assert.EqualValues(1, clients[0].Register(42000), "mode register on inv1")
	assert.EqualValues(30, clients[1].Register(41099), "discharge window 1 SOC register on inv2")

	context.Stop(pid)

	as.Shutdown()
}
