package service

// Battery power sign convention, applied at this single point:
// positive = discharging (power flowing out of the battery),
// negative = charging (power flowing in).
// Battery current is reported positive while charging, so the product
// must be negated.
func BatteryPowerWatt(voltageVolt, currentAmp float64) float64 {
	return -(voltageVolt * currentAmp)
}

func IsCharging(batteryPowerWatt float64) bool {
	return batteryPowerWatt < 0
}

func IsDischarging(batteryPowerWatt float64) bool {
	return batteryPowerWatt > 0
}
