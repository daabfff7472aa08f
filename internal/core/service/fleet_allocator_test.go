package service

import (
	"testing"

	"smartsched/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// two inverters rated 3000/5000 W, in use 1000/4500 W (headroom 2000/500),
// target 3000 W: each is filled to its headroom cap and 500 W stays unmet
func TestAllocateFleetHeadroomShortfall(t *testing.T) {

	require := require.New(t)

	alloc := AllocateFleet(domain.WindowDischarge, 3000, []FleetMember{
		{InverterId: "inv1", RatedWatt: 3000, InUseWatt: 1000},
		{InverterId: "inv2", RatedWatt: 5000, InUseWatt: 4500},
	})

	require.Len(alloc.Inverters, 2)
	assert.InDelta(t, 2000, alloc.Inverters[0].AllocatedWatt, 0.001)
	assert.InDelta(t, 500, alloc.Inverters[1].AllocatedWatt, 0.001)
	assert.InDelta(t, 500, alloc.UnmetWatt, 0.001)
	assert.InDelta(t, 2500, alloc.AllocatedWatt(), 0.001)
}

func TestAllocateFleetProportionalToHeadroom(t *testing.T) {

	require := require.New(t)

	alloc := AllocateFleet(domain.WindowCharge, 3000, []FleetMember{
		{InverterId: "inv1", RatedWatt: 5000, InUseWatt: 1000}, // headroom 4000
		{InverterId: "inv2", RatedWatt: 3000, InUseWatt: 1000}, // headroom 2000
	})

	require.Len(alloc.Inverters, 2)
	assert.InDelta(t, 2000, alloc.Inverters[0].AllocatedWatt, 0.001)
	assert.InDelta(t, 1000, alloc.Inverters[1].AllocatedWatt, 0.001)
	assert.Zero(t, alloc.UnmetWatt)
}

func TestAllocateFleetNeverExceedsHeadroom(t *testing.T) {

	members := []FleetMember{
		{InverterId: "inv1", RatedWatt: 3000, InUseWatt: 2900}, // headroom 100
		{InverterId: "inv2", RatedWatt: 3000, InUseWatt: 0},    // headroom 3000
		{InverterId: "inv3", RatedWatt: 2000, InUseWatt: 1500}, // headroom 500
	}

	for _, target := range []float64{100, 1000, 3600, 10000} {
		alloc := AllocateFleet(domain.WindowCharge, target, members)
		var sum float64
		for i, inv := range alloc.Inverters {
			assert.GreaterOrEqual(t, inv.AllocatedWatt, 0.0)
			assert.LessOrEqual(t, inv.AllocatedWatt, members[i].HeadroomWatt()+0.001,
				"allocation must never exceed headroom")
			sum += inv.AllocatedWatt
		}
		assert.LessOrEqual(t, sum, target+0.001, "total allocation must never exceed the target")
		assert.InDelta(t, target, sum+alloc.UnmetWatt, 0.001, "allocated + unmet must equal the target")
	}
}

func TestAllocateFleetZeroTarget(t *testing.T) {

	alloc := AllocateFleet(domain.WindowCharge, 0, []FleetMember{
		{InverterId: "inv1", RatedWatt: 3000, InUseWatt: 0},
	})
	assert.Zero(t, alloc.Inverters[0].AllocatedWatt)
	assert.Zero(t, alloc.UnmetWatt)
}

func TestAllocateFleetNoHeadroom(t *testing.T) {

	alloc := AllocateFleet(domain.WindowDischarge, 1500, []FleetMember{
		{InverterId: "inv1", RatedWatt: 3000, InUseWatt: 3000},
		{InverterId: "inv2", RatedWatt: 2000, InUseWatt: 2500},
	})
	assert.Zero(t, alloc.AllocatedWatt())
	assert.InDelta(t, 1500, alloc.UnmetWatt, 0.001)
}

func TestMembersFromSnapshotUsesSignConvention(t *testing.T) {

	require := require.New(t)

	snapshot := &domain.TelemetrySnapshot{
		Inverters: []domain.InverterTelemetry{
			{
				InverterId:              "inv1",
				BatteryPowerWatt:        -800, // charging at 800 W
				RatedChargePowerWatt:    3000,
				RatedDischargePowerWatt: 3000,
			},
			{
				InverterId:              "inv2",
				BatteryPowerWatt:        1200, // discharging at 1200 W
				RatedChargePowerWatt:    3000,
				RatedDischargePowerWatt: 3000,
			},
		},
	}

	charge := MembersFromSnapshot(domain.WindowCharge, snapshot)
	require.Len(charge, 2)
	assert.InDelta(t, 2200, charge[0].HeadroomWatt(), 0.001)
	assert.InDelta(t, 3000, charge[1].HeadroomWatt(), 0.001)

	discharge := MembersFromSnapshot(domain.WindowDischarge, snapshot)
	require.Len(discharge, 2)
	assert.InDelta(t, 3000, discharge[0].HeadroomWatt(), 0.001)
	assert.InDelta(t, 1800, discharge[1].HeadroomWatt(), 0.001)
}
