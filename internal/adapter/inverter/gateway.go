package inverter

import (
	"context"
	"fmt"
	"time"

	"smartsched/internal/config"
	"smartsched/internal/core/domain"
	"smartsched/internal/core/service"
	"smartsched/pkg/touspec_modbus"

	"go.uber.org/zap"
)

// ModbusGateway drives a fleet of hybrid inverter units sharing one modbus
// TCP endpoint, each unit addressed by its configured unit id.
type ModbusGateway struct {
	arrayId string
	units   []gatewayUnit
	logger  *zap.Logger
}

type gatewayUnit struct {
	cfg    config.InverterUnitConfig
	client touspec_modbus.HybridInverterClient
}

func NewModbusGateway(cfg config.InverterModbusTCPConfig, timeout time.Duration, logger *zap.Logger) (*ModbusGateway, error) {
	gw := &ModbusGateway{
		arrayId: cfg.ArrayId,
		logger:  logger.With(zap.String("component", "modbus_gateway")),
	}
	for _, unitCfg := range cfg.Inverters {
		client, err := touspec_modbus.CreateHybridTCPClient(cfg.Host, cfg.Port, uint8(unitCfg.UnitId),
			timeout, "", nil)
		if err != nil {
			return nil, fmt.Errorf("modbus gateway: unit %s: %w", unitCfg.Id, err)
		}
		gw.units = append(gw.units, gatewayUnit{cfg: unitCfg, client: client})
	}
	return gw, nil
}

// NewGatewayWithClients wires pre-built unit clients. Used by tests.
func NewGatewayWithClients(arrayId string, units []config.InverterUnitConfig,
	clients []touspec_modbus.HybridInverterClient, logger *zap.Logger) *ModbusGateway {

	gw := &ModbusGateway{
		arrayId: arrayId,
		logger:  logger.With(zap.String("component", "modbus_gateway")),
	}
	for i, unitCfg := range units {
		gw.units = append(gw.units, gatewayUnit{cfg: unitCfg, client: clients[i]})
	}
	return gw
}

func (gw *ModbusGateway) Open() error {
	for _, u := range gw.units {
		if err := u.client.Open(); err != nil {
			return fmt.Errorf("modbus gateway: open %s: %w", u.cfg.Id, err)
		}
		if err := u.client.Validate(); err != nil {
			return fmt.Errorf("modbus gateway: validate %s: %w", u.cfg.Id, err)
		}
	}
	return nil
}

func (gw *ModbusGateway) Close() error {
	var firstErr error
	for _, u := range gw.units {
		if err := u.client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (gw *ModbusGateway) GetDevicesInfo() (*domain.DevicesInfo, error) {
	info := &domain.DevicesInfo{ArrayId: gw.arrayId}
	for _, u := range gw.units {
		unitInfo, err := u.client.GetInfo()
		if err != nil {
			return nil, fmt.Errorf("modbus gateway: info %s: %w", u.cfg.Id, err)
		}
		info.Inverters = append(info.Inverters, domain.DeviceInfo{
			InverterId:              u.cfg.Id,
			Manufacturer:            unitInfo.Manufacturer,
			Model:                   unitInfo.Model,
			RatedChargePowerWatt:    unitInfo.RatedChargePowerWatt,
			RatedDischargePowerWatt: unitInfo.RatedDischargePowerWatt,
		})
	}
	return info, nil
}

func (gw *ModbusGateway) GetSnapshot() (*domain.TelemetrySnapshot, error) {
	now := time.Now()
	snapshot := &domain.TelemetrySnapshot{
		ArrayId: gw.arrayId,
		Taken:   now,
	}
	for _, u := range gw.units {
		t, err := u.client.GetTelemetry()
		if err != nil {
			return nil, fmt.Errorf("modbus gateway: telemetry %s: %w", u.cfg.Id, err)
		}
		snapshot.Inverters = append(snapshot.Inverters, domain.InverterTelemetry{
			InverterId:              u.cfg.Id,
			PVPowerWatt:             t.PVPowerWatt,
			LoadPowerWatt:           t.LoadPowerWatt,
			GridPowerWatt:           t.GridPowerWatt,
			BatteryVoltage:          t.BatteryVoltage,
			BatteryCurrent:          t.BatteryCurrent,
			BatteryPowerWatt:        service.BatteryPowerWatt(t.BatteryVoltage, t.BatteryCurrent),
			BatterySOC:              t.BatterySOC,
			RatedChargePowerWatt:    float64(u.cfg.RatedChargePowerWatt),
			RatedDischargePowerWatt: float64(u.cfg.RatedDischargePowerWatt),
			GridFault:               t.GridFault,
			Timestamp:               now,
		})
	}
	return snapshot, nil
}

// SendCommand resolves the logical command to a register write on the
// addressed unit. The write runs in a goroutine so the context deadline is
// honored even if the underlying client blocks.
func (gw *ModbusGateway) SendCommand(ctx context.Context, cmd domain.DeviceCommand) error {
	unit, err := gw.unitById(cmd.DeviceId)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- gw.applyCommand(unit.client, cmd)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (gw *ModbusGateway) applyCommand(client touspec_modbus.HybridInverterClient, cmd domain.DeviceCommand) error {
	kind := touspecKind(cmd.WindowKind)
	switch cmd.Action {
	case domain.ActionSetMode:
		return client.SetMode(uint16(cmd.Value))
	case domain.ActionSetWindowStart:
		return client.SetWindowStart(kind, cmd.WindowIndex, uint16(cmd.Value))
	case domain.ActionSetWindowEnd:
		return client.SetWindowEnd(kind, cmd.WindowIndex, uint16(cmd.Value))
	case domain.ActionSetWindowPower:
		return client.SetWindowPower(kind, cmd.WindowIndex, uint16(cmd.Value))
	case domain.ActionSetWindowTargetSOC:
		return client.SetWindowTargetSOC(kind, cmd.WindowIndex, uint16(cmd.Value))
	case domain.ActionClearWindow:
		return client.ClearWindow(kind, cmd.WindowIndex)
	default:
		return fmt.Errorf("modbus gateway: unknown action %q", cmd.Action)
	}
}

func (gw *ModbusGateway) unitById(id string) (*gatewayUnit, error) {
	for i := range gw.units {
		if gw.units[i].cfg.Id == id {
			return &gw.units[i], nil
		}
	}
	return nil, fmt.Errorf("modbus gateway: unknown device %q", id)
}

func touspecKind(kind domain.WindowKind) string {
	if kind == domain.WindowDischarge {
		return touspec_modbus.WindowKindDischarge
	}
	return touspec_modbus.WindowKindCharge
}
