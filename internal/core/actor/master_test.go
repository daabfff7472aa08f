package actor

import (
	"fmt"
	"testing"
	"time"

	adactor "smartsched/internal/adapter/actor"
	"smartsched/internal/adapter/forecast"
	"smartsched/internal/adapter/inverter"
	"smartsched/internal/core/domain"
	"smartsched/internal/util"
	"smartsched/pkg/touspec_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestMasterActor(t *testing.T) {

	as := actor.NewActorSystem()
	context := as.Root

	cfg := util.LoadTestConfig()
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(logCfg.Build())

	naive := forecast.NewNaiveSource(cfg.Location, cfg.Forecast)

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfPuppetsActor(cfg, func() *adactor.ModbusActor {
			clients := []touspec_modbus.HybridInverterClient{
				touspec_modbus.CreateTestHybridClient(),
				touspec_modbus.CreateTestHybridClient(),
			}
			gw := inverter.NewGatewayWithClients(cfg.InverterModbusTcp.ArrayId,
				cfg.InverterModbusTcp.Inverters, clients, zap.NewNop())
			return adactor.NewModbusActor(gw, logger)
		}, func() *adactor.MQTTActor {
			return adactor.NewTestMQTTActor(&cfg, logger)
		}, naive, nil, logger)
	})
	pid, err := context.SpawnNamed(props, "master")
	if err != nil {
		t.Error(err)
		return
	}

	time.Sleep(2 * time.Second)

	res, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		t.Error(err)
	}
	healthResp, ok := res.(domain.ActorHealthResponse)
	assert.True(t, ok)
	fmt.Printf("Health response: %+v\n", healthResp)
	assert.NotNil(t, healthResp)

	assert.True(t, healthResp.Healthy, "healthy is true")

	context.Stop(pid)

	as.Shutdown()
}

func TestMasterActorForwardsPlanRequest(t *testing.T) {

	as := actor.NewActorSystem()
	context := as.Root

	cfg := util.LoadTestConfig()
	cfg.Monitor.PollIntervalMillis = 200
	logger := zap.Must(zap.NewDevelopment())

	naive := forecast.NewNaiveSource(cfg.Location, cfg.Forecast)

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfPuppetsActor(cfg, func() *adactor.ModbusActor {
			clients := []touspec_modbus.HybridInverterClient{
				touspec_modbus.CreateTestHybridClient(),
				touspec_modbus.CreateTestHybridClient(),
			}
			gw := inverter.NewGatewayWithClients(cfg.InverterModbusTcp.ArrayId,
				cfg.InverterModbusTcp.Inverters, clients, zap.NewNop())
			return adactor.NewModbusActor(gw, logger)
		}, func() *adactor.MQTTActor {
			return adactor.NewTestMQTTActor(&cfg, logger)
		}, naive, nil, logger)
	})
	pid, err := context.SpawnNamed(props, "master")
	if err != nil {
		t.Error(err)
		return
	}

	time.Sleep(1 * time.Second)

	// no cycle has run yet: the scheduler answers with an error response
	res, err := context.RequestFuture(pid, domain.GetPlanRequest{}, 10*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	planResp, ok := res.(domain.GetPlanResponse)
	assert.True(t, ok)
	assert.True(t, planResp.HasResponseError())

	context.Stop(pid)

	as.Shutdown()
}
