package actor

import (
	"sync"
	"testing"
	"time"

	adactor "smartsched/internal/adapter/actor"
	"smartsched/internal/adapter/inverter"
	"smartsched/internal/core/domain"
	"smartsched/internal/util"
	"smartsched/internal/util/actorutil"
	"smartsched/pkg/touspec_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func spawnTestModbusActor(t *testing.T, context *actor.RootContext, logger *zap.Logger) (*actor.PID, []*touspec_modbus.TestHybridClient) {
	t.Helper()

	cfg := util.LoadTestConfig()
	clients := []*touspec_modbus.TestHybridClient{
		touspec_modbus.CreateTestHybridClient(),
		touspec_modbus.CreateTestHybridClient(),
	}
	gw := inverter.NewGatewayWithClients(cfg.InverterModbusTcp.ArrayId, cfg.InverterModbusTcp.Inverters,
		[]touspec_modbus.HybridInverterClient{clients[0], clients[1]}, zap.NewNop())

	props := actor.PropsFromProducer(func() actor.Actor { return adactor.NewModbusActor(gw, logger) })
	pid := context.Spawn(props)
	return pid, clients
}

func TestMonitorActorPublishesTelemetry(t *testing.T) {

	require := require.New(t)

	cfg := util.LoadTestConfig()
	cfg.Monitor.PollIntervalMillis = 200

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	modbusPID, _ := spawnTestModbusActor(t, context, logger)

	es := &eventstream.EventStream{}
	var mu sync.Mutex
	var published []any
	sub := es.Subscribe(func(value any) {
		mu.Lock()
		published = append(published, value)
		mu.Unlock()
	})
	defer es.Unsubscribe(sub)

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMonitorActor(&cfg, modbusPID, es, logger)
	})
	pid := context.Spawn(props)

	time.Sleep(1 * time.Second)

	// cached snapshot is served without touching the gateway
	result, err := context.RequestFuture(pid, domain.GetTelemetrySnapshotRequest{}, 5*time.Second).Result()
	require.NoError(err)
	resp := result.(domain.GetTelemetrySnapshotResponse)
	require.False(resp.HasResponseError())
	assert.Equal(t, "array1", resp.Snapshot.ArrayId)
	assert.GreaterOrEqual(t, resp.Snapshot.Age, time.Duration(0))

	// telemetry sensor updates reached the event stream
	mu.Lock()
	defer mu.Unlock()
	var sawPVPower bool
	for _, ev := range published {
		if f, ok := ev.(domain.FloatSensorUpdateEvent); ok && f.Id == domain.SENSOR_ID_ARRAY_PV_POWER {
			sawPVPower = true
		}
	}
	assert.True(t, sawPVPower, "array pv power sensor update published")

	context.Stop(pid)
	context.Stop(modbusPID)

	as.Shutdown()
}
