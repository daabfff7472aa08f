package touspec_modbus

import (
	"fmt"
)

// window register fields
const (
	fieldStart     = "start"
	fieldEnd       = "end"
	fieldPower     = "power"
	fieldTargetSOC = "target_soc"
	fieldEnable    = "enable"
)

// telemetry registers (input space, per unit)
const (
	regBatteryVoltage = 30000 // 0.1 V
	regBatteryCurrent = 30001 // int16, 0.1 A, positive while charging
	regBatterySOC     = 30002 // %
	regPVPower        = 30010 // 10 W
	regLoadPower      = 30012 // 10 W
	regGridPower      = 30014 // int16, 10 W
	regGridStatus     = 30020 // bitfield
)

// identity registers (holding space, common block)
const (
	regCommonBlock         = 40000
	regManufacturerOffset  = 0     // 16 registers
	regModelOffset         = 16    // 16 registers
	regSerialOffset        = 32    // 16 registers
	regRatedChargePower    = 40060 // 10 W
	regRatedDischargePower = 40061 // 10 W
)

const regOperatingMode = 42000

type registerSpec struct {
	Address uint16
	// Scale converts an engineering value to register counts:
	// raw = value / Scale.
	Scale float64
}

type windowField struct {
	Kind  string
	Index int
	Field string
}

// windowRegisters is the complete window-programming address map. The
// device's addressing is not uniform, so the map is the single source of
// truth and callers never compute addresses:
//
//   - charge windows 1..3 are block-addressed from 41000 with stride 8;
//   - discharge windows 2..3 are block-addressed from 41100 with the same
//     stride, BUT discharge window 1 lives in a legacy block at 41050 and
//     its target SOC sits alone in register 41099. Firmware quirk, kept
//     here as data rather than special-cased in code.
var windowRegisters = map[windowField]registerSpec{
	// charge windows, regular block scheme
	{WindowKindCharge, 1, fieldStart}:     {41000, 1},
	{WindowKindCharge, 1, fieldEnd}:       {41001, 1},
	{WindowKindCharge, 1, fieldPower}:     {41002, 10},
	{WindowKindCharge, 1, fieldTargetSOC}: {41003, 1},
	{WindowKindCharge, 1, fieldEnable}:    {41004, 1},
	{WindowKindCharge, 2, fieldStart}:     {41008, 1},
	{WindowKindCharge, 2, fieldEnd}:       {41009, 1},
	{WindowKindCharge, 2, fieldPower}:     {41010, 10},
	{WindowKindCharge, 2, fieldTargetSOC}: {41011, 1},
	{WindowKindCharge, 2, fieldEnable}:    {41012, 1},
	{WindowKindCharge, 3, fieldStart}:     {41016, 1},
	{WindowKindCharge, 3, fieldEnd}:       {41017, 1},
	{WindowKindCharge, 3, fieldPower}:     {41018, 10},
	{WindowKindCharge, 3, fieldTargetSOC}: {41019, 1},
	{WindowKindCharge, 3, fieldEnable}:    {41020, 1},

	// discharge window 1, legacy block + standalone end-SOC register
	{WindowKindDischarge, 1, fieldStart}:     {41050, 1},
	{WindowKindDischarge, 1, fieldEnd}:       {41051, 1},
	{WindowKindDischarge, 1, fieldPower}:     {41052, 10},
	{WindowKindDischarge, 1, fieldEnable}:    {41053, 1},
	{WindowKindDischarge, 1, fieldTargetSOC}: {41099, 1},

	// discharge windows 2..3, regular block scheme
	{WindowKindDischarge, 2, fieldStart}:     {41100, 1},
	{WindowKindDischarge, 2, fieldEnd}:       {41101, 1},
	{WindowKindDischarge, 2, fieldPower}:     {41102, 10},
	{WindowKindDischarge, 2, fieldTargetSOC}: {41103, 1},
	{WindowKindDischarge, 2, fieldEnable}:    {41104, 1},
	{WindowKindDischarge, 3, fieldStart}:     {41108, 1},
	{WindowKindDischarge, 3, fieldEnd}:       {41109, 1},
	{WindowKindDischarge, 3, fieldPower}:     {41110, 10},
	{WindowKindDischarge, 3, fieldTargetSOC}: {41111, 1},
	{WindowKindDischarge, 3, fieldEnable}:    {41112, 1},
}

func windowRegister(kind string, index int, field string) (registerSpec, error) {
	spec, ok := windowRegisters[windowField{Kind: kind, Index: index, Field: field}]
	if !ok {
		return registerSpec{}, fmt.Errorf("touspec: no %s register for %s window %d", field, kind, index)
	}
	return spec, nil
}
