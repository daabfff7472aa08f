package service

import (
	"time"

	"smartsched/internal/core/domain"
)

// GridAvailable decides whether grid import/export should be considered
// available for planning this tick.
//
// now, socPct and effectiveMinSOC are required parameters on purpose: the
// detector must never read ambient clocks or closure-captured thresholds.
//
// Rules:
//   - an active grid fault always makes the grid unavailable;
//   - at night, while SOC is above the effective minimum, the battery is
//     preferred over grid import even though the grid is physically there;
//   - during daylight, availability follows telemetry directly.
func GridAvailable(snapshot *domain.TelemetrySnapshot, now time.Time, socPct, effectiveMinSOC float64, sun domain.SunTimes) bool {
	if snapshot != nil && snapshot.GridFault() {
		return false
	}
	if sun.IsNight(now) && socPct >= effectiveMinSOC {
		return false
	}
	return true
}
