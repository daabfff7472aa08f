package touspec_modbus

import (
	"fmt"
)

// window kinds
const (
	WindowKindCharge    = "charge"
	WindowKindDischarge = "discharge"
)

// operating modes (register encoding)
const (
	ModeSelfUse uint16 = 0
	ModeTOU     uint16 = 1
	ModeBackup  uint16 = 2
)

// mode strings
const (
	ModeSelfUseStr = "self_use"
	ModeTOUStr     = "tou"
	ModeBackupStr  = "backup"
	ModeUnknownStr = "unknown"
)

func ModeToString(mode uint16) string {
	switch mode {
	case ModeSelfUse:
		return ModeSelfUseStr
	case ModeTOU:
		return ModeTOUStr
	case ModeBackup:
		return ModeBackupStr
	default:
		return fmt.Sprintf("%s(%d)", ModeUnknownStr, mode)
	}
}

// grid status bits
const (
	GridStatusFaultBit = 1 << 0
)

type UnitInfo struct {
	Manufacturer            string
	Model                   string
	Serial                  string
	RatedChargePowerWatt    float64
	RatedDischargePowerWatt float64
}

// UnitTelemetry is the raw per-unit reading. BatteryCurrent is reported by
// the device positive while charging; consumers derive signed battery power
// from voltage and current themselves.
type UnitTelemetry struct {
	BatteryVoltage float64
	BatteryCurrent float64
	BatterySOC     float64
	PVPowerWatt    float64
	LoadPowerWatt  float64
	GridPowerWatt  float64
	GridFault      bool
}

type HybridInverterClient interface {
	Open() error
	Close() error
	Validate() error
	GetInfo() (*UnitInfo, error)
	GetTelemetry() (*UnitTelemetry, error)

	SetMode(mode uint16) error
	GetMode() (uint16, error)

	SetWindowStart(kind string, index int, minutesOfDay uint16) error
	SetWindowEnd(kind string, index int, minutesOfDay uint16) error
	SetWindowPower(kind string, index int, watts uint16) error
	SetWindowTargetSOC(kind string, index int, socPercent uint16) error
	ClearWindow(kind string, index int) error
}
