package domain

import (
	"time"
)

type OperatingMode string

const (
	ModeSelfUse OperatingMode = "self_use"
	ModeTOU     OperatingMode = "tou"
	ModeBackup  OperatingMode = "backup"
)

func ParseOperatingMode(s string) (OperatingMode, bool) {
	switch OperatingMode(s) {
	case ModeSelfUse, ModeTOU, ModeBackup:
		return OperatingMode(s), true
	}
	return "", false
}

type WindowKind string

const (
	WindowCharge    WindowKind = "charge"
	WindowDischarge WindowKind = "discharge"
)

// MaxWindowsPerKind is a device limit: hybrid inverters expose 3 TOU slots
// per direction.
const MaxWindowsPerKind = 3

// InverterTelemetry is a point-in-time reading of a single inverter.
// BatteryPowerWatt follows the documented sign convention:
// positive = discharging (flowing out), negative = charging (flowing in).
type InverterTelemetry struct {
	InverterId              string
	PVPowerWatt             float64
	LoadPowerWatt           float64
	GridPowerWatt           float64
	BatteryPowerWatt        float64
	BatteryVoltage          float64
	BatteryCurrent          float64
	BatterySOC              float64
	RatedChargePowerWatt    float64
	RatedDischargePowerWatt float64
	GridFault               bool
	Timestamp               time.Time
}

// TelemetrySnapshot is the array-level reading consumed by a scheduling
// cycle. Immutable once captured.
type TelemetrySnapshot struct {
	ArrayId   string
	Inverters []InverterTelemetry
	Taken     time.Time
	Age       time.Duration
}

func (s TelemetrySnapshot) PVPowerWatt() float64 {
	var total float64
	for _, inv := range s.Inverters {
		total += inv.PVPowerWatt
	}
	return total
}

func (s TelemetrySnapshot) LoadPowerWatt() float64 {
	var total float64
	for _, inv := range s.Inverters {
		total += inv.LoadPowerWatt
	}
	return total
}

// BatterySOC returns the mean SOC across member inverters.
func (s TelemetrySnapshot) BatterySOC() float64 {
	if len(s.Inverters) == 0 {
		return 0
	}
	var total float64
	for _, inv := range s.Inverters {
		total += inv.BatterySOC
	}
	return total / float64(len(s.Inverters))
}

// GridFault reports whether any member inverter sees an active grid fault.
func (s TelemetrySnapshot) GridFault() bool {
	for _, inv := range s.Inverters {
		if inv.GridFault {
			return true
		}
	}
	return false
}

// ForecastPoint covers one hour starting at Time.
type ForecastPoint struct {
	Time       time.Time
	SolarKWh   float64
	LoadKWh    float64
	Confidence float64
	Source     string
}

type Forecast struct {
	Points      []ForecastPoint
	GeneratedAt time.Time
	Source      string
}

// Confidence returns the lowest point confidence, so a single bad hour
// degrades the whole horizon.
func (f Forecast) Confidence() float64 {
	if len(f.Points) == 0 {
		return 0
	}
	min := f.Points[0].Confidence
	for _, p := range f.Points[1:] {
		if p.Confidence < min {
			min = p.Confidence
		}
	}
	return min
}

// ForecastSummary aggregates the remaining horizon for the policy engine.
type ForecastSummary struct {
	RemainingSolarKWh float64
	RemainingLoadKWh  float64
	Confidence        float64
	Source            string
}

func (f Forecast) SummaryAfter(now time.Time) ForecastSummary {
	s := ForecastSummary{
		Confidence: f.Confidence(),
		Source:     f.Source,
	}
	for _, p := range f.Points {
		if p.Time.Add(time.Hour).Before(now) {
			continue
		}
		s.RemainingSolarKWh += p.SolarKWh
		s.RemainingLoadKWh += p.LoadKWh
	}
	return s
}

// SunTimes holds the computed sunrise/sunset instants for one calendar day.
// On polar days/nights the instants are zero and the matching flag is set.
type SunTimes struct {
	Sunrise    time.Time
	Sunset     time.Time
	PolarDay   bool
	PolarNight bool
}

// IsNight reports whether now falls strictly between sunset and sunrise.
// now must be timezone-aware and belong to the same day SunTimes was
// computed for.
func (s SunTimes) IsNight(now time.Time) bool {
	if s.PolarNight {
		return true
	}
	if s.PolarDay {
		return false
	}
	return now.Before(s.Sunrise) || now.After(s.Sunset)
}

// TOUWindow is a planned charge or discharge slot. Index is 1-based within
// its own kind: charge windows and discharge windows are independent
// sequences and must never share an index space.
type TOUWindow struct {
	Kind      WindowKind `json:"kind"`
	Index     int        `json:"index"`
	Start     time.Time  `json:"start"`
	End       time.Time  `json:"end"`
	PowerWatt float64    `json:"power_watt"`
	TargetSOC float64    `json:"target_soc"`
}

func (w TOUWindow) Overlaps(other TOUWindow) bool {
	return w.Start.Before(other.End) && other.Start.Before(w.End)
}

type InverterAllocation struct {
	InverterId    string  `json:"inverter_id"`
	AllocatedWatt float64 `json:"allocated_watt"`
	HeadroomWatt  float64 `json:"headroom_watt"`
	RatedWatt     float64 `json:"rated_watt"`
}

type FleetAllocation struct {
	Kind       WindowKind           `json:"kind"`
	TargetWatt float64              `json:"target_watt"`
	Inverters  []InverterAllocation `json:"inverters"`
	UnmetWatt  float64              `json:"unmet_watt"`
}

func (a FleetAllocation) AllocatedWatt() float64 {
	var total float64
	for _, inv := range a.Inverters {
		total += inv.AllocatedWatt
	}
	return total
}

// SchedulerPlan is the output of one scheduling cycle. It is discardable
// state: the source of truth is the device registers, read back via
// telemetry on the next cycle.
type SchedulerPlan struct {
	ArrayId          string          `json:"array_id"`
	TickTime         time.Time       `json:"tick_time"`
	Mode             OperatingMode   `json:"mode"`
	GridAvailable    bool            `json:"grid_available"`
	ChargeWindows    []TOUWindow     `json:"charge_windows"`
	DischargeWindows []TOUWindow     `json:"discharge_windows"`
	Charge           FleetAllocation `json:"charge"`
	Discharge        FleetAllocation `json:"discharge"`
}

// DeviceCommand is a logical command addressed by action name and window
// index. Register addresses are resolved by the adapter's register table,
// never here.
type DeviceCommand struct {
	DeviceId    string
	Action      string
	WindowKind  WindowKind
	WindowIndex int
	Value       float64
	Timeout     time.Duration
}

// Logical action names understood by device adapters.
const (
	ActionSetWindowStart     = "set_window_start"
	ActionSetWindowEnd       = "set_window_end"
	ActionSetWindowPower     = "set_window_power"
	ActionSetWindowTargetSOC = "set_window_target_soc"
	ActionClearWindow        = "clear_window"
	ActionSetMode            = "set_mode"
)

type CommandBatch struct {
	ArrayId  string
	Commands []DeviceCommand
}

type CommandResult struct {
	Command DeviceCommand
	Err     error
}

type DeviceInfo struct {
	InverterId              string
	Manufacturer            string
	Model                   string
	RatedChargePowerWatt    float64
	RatedDischargePowerWatt float64
}

type DevicesInfo struct {
	ArrayId   string
	Inverters []DeviceInfo
}
