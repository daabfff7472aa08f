package service

import (
	"sort"

	"smartsched/internal/core/domain"
)

// FleetMember is one inverter's capability for a single direction
// (charge or discharge).
type FleetMember struct {
	InverterId string
	RatedWatt  float64
	InUseWatt  float64
}

// HeadroomWatt is the remaining capacity in the direction under allocation,
// never negative.
func (m FleetMember) HeadroomWatt() float64 {
	h := m.RatedWatt - m.InUseWatt
	if h < 0 {
		return 0
	}
	return h
}

// MembersFromSnapshot derives per-inverter members for the given direction
// from a telemetry snapshot. In-use power follows the battery sign
// convention: negative battery power is charging, positive is discharging.
func MembersFromSnapshot(kind domain.WindowKind, snapshot *domain.TelemetrySnapshot) []FleetMember {
	if snapshot == nil {
		return nil
	}
	members := make([]FleetMember, 0, len(snapshot.Inverters))
	for _, inv := range snapshot.Inverters {
		m := FleetMember{InverterId: inv.InverterId}
		switch kind {
		case domain.WindowCharge:
			m.RatedWatt = inv.RatedChargePowerWatt
			if inv.BatteryPowerWatt < 0 {
				m.InUseWatt = -inv.BatteryPowerWatt
			}
		case domain.WindowDischarge:
			m.RatedWatt = inv.RatedDischargePowerWatt
			if inv.BatteryPowerWatt > 0 {
				m.InUseWatt = inv.BatteryPowerWatt
			}
		}
		members = append(members, m)
	}
	return members
}

// AllocateFleet splits targetWatt across fleet members proportionally to
// each member's headroom, capped at that headroom. Capacity freed by capped
// members is redistributed in a second pass over the remaining members in
// descending headroom order. Whatever the fleet cannot absorb is reported
// as UnmetWatt, never silently dropped.
func AllocateFleet(kind domain.WindowKind, targetWatt float64, members []FleetMember) domain.FleetAllocation {
	alloc := domain.FleetAllocation{
		Kind:       kind,
		TargetWatt: targetWatt,
		Inverters:  make([]domain.InverterAllocation, len(members)),
	}

	var totalHeadroom float64
	for i, m := range members {
		alloc.Inverters[i] = domain.InverterAllocation{
			InverterId:   m.InverterId,
			RatedWatt:    m.RatedWatt,
			HeadroomWatt: m.HeadroomWatt(),
		}
		totalHeadroom += m.HeadroomWatt()
	}

	if targetWatt <= 0 || totalHeadroom <= 0 {
		alloc.UnmetWatt = maxf(0, targetWatt)
		return alloc
	}

	// first pass: proportional to headroom, capped at headroom
	remaining := targetWatt
	for i := range alloc.Inverters {
		share := targetWatt * alloc.Inverters[i].HeadroomWatt / totalHeadroom
		if share > alloc.Inverters[i].HeadroomWatt {
			share = alloc.Inverters[i].HeadroomWatt
		}
		alloc.Inverters[i].AllocatedWatt = share
		remaining -= share
	}

	// second pass: capped members freed capacity, hand it to whoever still
	// has headroom, biggest first
	if remaining > 0 {
		order := make([]int, len(alloc.Inverters))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			return alloc.Inverters[order[a]].HeadroomWatt > alloc.Inverters[order[b]].HeadroomWatt
		})
		for _, i := range order {
			if remaining <= 0 {
				break
			}
			free := alloc.Inverters[i].HeadroomWatt - alloc.Inverters[i].AllocatedWatt
			if free <= 0 {
				continue
			}
			give := remaining
			if give > free {
				give = free
			}
			alloc.Inverters[i].AllocatedWatt += give
			remaining -= give
		}
	}

	alloc.UnmetWatt = maxf(0, remaining)
	return alloc
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
