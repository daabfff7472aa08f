package touspec_modbus

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/simonvetter/modbus"
)

type ModbusClient struct {
	client     *modbus.ModbusClient
	instrument []ModbusInstrument
}

type ModbusInstrument struct {
	RecordTime func(fnName string, readTime time.Duration)
}

func (reader ModbusClient) readString(address uint16, size uint16) (string, error) {
	bytes, err := reader.readRawBytes(address, size, modbus.HOLDING_REGISTER)
	if err != nil {
		return "", err
	}
	f := slices.Index(bytes, 0x00)
	if f >= 0 {
		return string(bytes[:f]), nil
	}
	return string(bytes), nil
}

func (reader ModbusClient) readRegister(addr uint16, regType modbus.RegType) (uint16, error) {
	defer RecordTimer("ReadRegister", reader.instrument)()
	return reader.client.ReadRegister(addr, regType)
}

func (reader ModbusClient) readRawBytes(addr uint16, quantity uint16, regType modbus.RegType) ([]byte, error) {
	defer RecordTimer("ReadRawBytes", reader.instrument)()
	return reader.client.ReadRawBytes(addr, quantity, regType)
}

func (reader ModbusClient) writeRegister(addr uint16, value uint16) error {
	defer RecordTimer("WriteRegister", reader.instrument)()
	return reader.client.WriteRegister(addr, value)
}

func RecordTimer(name string, instrument []ModbusInstrument) func() {
	if instrument == nil {
		return func() {}
	}

	start := time.Now()
	return func() {
		duration := time.Since(start)
		for i := range instrument {
			instrument[i].RecordTime(name, duration)
		}
	}
}

// HybridTCPClient talks to one hybrid inverter unit over modbus TCP using
// the TOU register map in registers.go.
type HybridTCPClient struct {
	ModbusClient

	expectedManufacturer string
}

func (c *HybridTCPClient) Open() error {
	return c.client.Open()
}

func (c *HybridTCPClient) Close() error {
	return c.client.Close()
}

func (c *HybridTCPClient) Validate() error {
	if c.expectedManufacturer == "" {
		return nil
	}
	str, err := c.readString(regCommonBlock+regManufacturerOffset, 32)
	if err != nil {
		return err
	}
	if str != c.expectedManufacturer {
		return fmt.Errorf("touspec: expected %s inverter, found %q", c.expectedManufacturer, str)
	}
	return nil
}

func (c *HybridTCPClient) GetInfo() (*UnitInfo, error) {
	manufacturer, err := c.readString(regCommonBlock+regManufacturerOffset, 32)
	if err != nil {
		return nil, err
	}
	model, err := c.readString(regCommonBlock+regModelOffset, 32)
	if err != nil {
		return nil, err
	}
	serial, err := c.readString(regCommonBlock+regSerialOffset, 32)
	if err != nil {
		return nil, err
	}
	charge, err := c.readRegister(regRatedChargePower, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	discharge, err := c.readRegister(regRatedDischargePower, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}

	return &UnitInfo{
		Manufacturer:            manufacturer,
		Model:                   model,
		Serial:                  serial,
		RatedChargePowerWatt:    float64(charge) * 10,
		RatedDischargePowerWatt: float64(discharge) * 10,
	}, nil
}

func (c *HybridTCPClient) GetTelemetry() (*UnitTelemetry, error) {
	voltage, err := c.readRegister(regBatteryVoltage, modbus.INPUT_REGISTER)
	if err != nil {
		return nil, err
	}
	current, err := c.readRegister(regBatteryCurrent, modbus.INPUT_REGISTER)
	if err != nil {
		return nil, err
	}
	soc, err := c.readRegister(regBatterySOC, modbus.INPUT_REGISTER)
	if err != nil {
		return nil, err
	}
	pv, err := c.readRegister(regPVPower, modbus.INPUT_REGISTER)
	if err != nil {
		return nil, err
	}
	load, err := c.readRegister(regLoadPower, modbus.INPUT_REGISTER)
	if err != nil {
		return nil, err
	}
	grid, err := c.readRegister(regGridPower, modbus.INPUT_REGISTER)
	if err != nil {
		return nil, err
	}
	status, err := c.readRegister(regGridStatus, modbus.INPUT_REGISTER)
	if err != nil {
		return nil, err
	}

	return &UnitTelemetry{
		BatteryVoltage: float64(voltage) * 0.1,
		BatteryCurrent: float64(int16(current)) * 0.1,
		BatterySOC:     float64(soc),
		PVPowerWatt:    float64(pv) * 10,
		LoadPowerWatt:  float64(load) * 10,
		GridPowerWatt:  float64(int16(grid)) * 10,
		GridFault:      status&GridStatusFaultBit != 0,
	}, nil
}

func (c *HybridTCPClient) SetMode(mode uint16) error {
	return c.writeRegister(regOperatingMode, mode)
}

func (c *HybridTCPClient) GetMode() (uint16, error) {
	return c.readRegister(regOperatingMode, modbus.HOLDING_REGISTER)
}

// SetWindowStart also arms the window slot: the firmware ignores a slot
// until its enable register is written.
func (c *HybridTCPClient) SetWindowStart(kind string, index int, minutesOfDay uint16) error {
	if err := c.writeWindowField(kind, index, fieldStart, float64(minutesOfDay)); err != nil {
		return err
	}
	return c.writeWindowField(kind, index, fieldEnable, 1)
}

func (c *HybridTCPClient) SetWindowEnd(kind string, index int, minutesOfDay uint16) error {
	return c.writeWindowField(kind, index, fieldEnd, float64(minutesOfDay))
}

func (c *HybridTCPClient) SetWindowPower(kind string, index int, watts uint16) error {
	return c.writeWindowField(kind, index, fieldPower, float64(watts))
}

func (c *HybridTCPClient) SetWindowTargetSOC(kind string, index int, socPercent uint16) error {
	return c.writeWindowField(kind, index, fieldTargetSOC, float64(socPercent))
}

// ClearWindow zeroes every field of the slot, enable last, so a half
// cleared slot can never fire.
func (c *HybridTCPClient) ClearWindow(kind string, index int) error {
	for _, field := range []string{fieldStart, fieldEnd, fieldPower, fieldTargetSOC, fieldEnable} {
		if err := c.writeWindowField(kind, index, field, 0); err != nil {
			return err
		}
	}
	return nil
}

func (c *HybridTCPClient) writeWindowField(kind string, index int, field string, value float64) error {
	spec, err := windowRegister(kind, index, field)
	if err != nil {
		return err
	}
	raw := math.Round(value / spec.Scale)
	if raw < 0 || raw > math.MaxUint16 {
		return fmt.Errorf("touspec: %s value %f out of register range", field, value)
	}
	return c.writeRegister(spec.Address, uint16(raw))
}

// CreateHybridTCPClient builds a client bound to one unit id on a shared
// modbus TCP endpoint.
func CreateHybridTCPClient(ip string, port uint, unitId uint8, timeout time.Duration,
	expectedManufacturer string, instrumentation *ModbusInstrument) (HybridInverterClient, error) {

	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     fmt.Sprintf("tcp://%s:%d", ip, port),
		Timeout: timeout,
	})
	if err != nil {
		return nil, err
	}

	var inst []ModbusInstrument
	if instrumentation != nil {
		inst = append(inst, *instrumentation)
	}

	if unitId > 0 {
		if err = client.SetUnitId(unitId); err != nil {
			return nil, err
		}
	}

	return &HybridTCPClient{
		ModbusClient: ModbusClient{
			client:     client,
			instrument: inst,
		},
		expectedManufacturer: expectedManufacturer,
	}, nil
}
