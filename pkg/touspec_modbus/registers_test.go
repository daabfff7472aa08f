package touspec_modbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterMapCoversAllSlots(t *testing.T) {

	for _, kind := range []string{WindowKindCharge, WindowKindDischarge} {
		for index := 1; index <= 3; index++ {
			for _, field := range []string{FieldStart, FieldEnd, FieldPower, FieldTargetSOC, FieldEnable} {
				_, err := windowRegister(kind, index, field)
				assert.NoError(t, err, "%s window %d field %s", kind, index, field)
			}
		}
	}

	_, err := windowRegister(WindowKindCharge, 4, FieldStart)
	assert.Error(t, err, "slot 4 does not exist")
}

func TestRegisterMapAddressesAreUnique(t *testing.T) {

	seen := map[uint16]windowField{}
	for key, spec := range windowRegisters {
		prev, dup := seen[spec.Address]
		require.False(t, dup, "address %d used by both %v and %v", spec.Address, prev, key)
		seen[spec.Address] = key
	}
}

// discharge window 1 keeps its legacy layout: target SOC in a standalone
// register outside the block, not at block offset
func TestDischargeWindowOneQuirk(t *testing.T) {

	require := require.New(t)

	socAddr, err := WindowRegisterAddress(WindowKindDischarge, 1, FieldTargetSOC)
	require.NoError(err)
	assert.EqualValues(t, 41099, socAddr)

	startAddr, err := WindowRegisterAddress(WindowKindDischarge, 1, FieldStart)
	require.NoError(err)
	assert.EqualValues(t, 41050, startAddr)

	// windows 2 and 3 follow the regular block scheme
	soc2, err := WindowRegisterAddress(WindowKindDischarge, 2, FieldTargetSOC)
	require.NoError(err)
	assert.EqualValues(t, 41103, soc2)
}

func TestWindowProgrammingThroughTestClient(t *testing.T) {

	require := require.New(t)

	client := CreateTestHybridClient()

	require.NoError(client.SetWindowStart(WindowKindDischarge, 1, 19*60))
	require.NoError(client.SetWindowEnd(WindowKindDischarge, 1, 22*60))
	require.NoError(client.SetWindowPower(WindowKindDischarge, 1, 1300))
	require.NoError(client.SetWindowTargetSOC(WindowKindDischarge, 1, 30))

	assert.EqualValues(t, 19*60, client.Register(41050))
	assert.EqualValues(t, 22*60, client.Register(41051))
	assert.EqualValues(t, 130, client.Register(41052), "power register holds 10 W counts")
	assert.EqualValues(t, 1, client.Register(41053), "writing a start arms the slot")
	assert.EqualValues(t, 30, client.Register(41099), "end SOC lands in the standalone register")

	require.NoError(client.ClearWindow(WindowKindDischarge, 1))
	assert.Zero(t, client.Register(41050))
	assert.Zero(t, client.Register(41053))
	assert.Zero(t, client.Register(41099))
}

func TestModeRegister(t *testing.T) {

	client := CreateTestHybridClient()
	assert.NoError(t, client.SetMode(ModeTOU))
	mode, err := client.GetMode()
	assert.NoError(t, err)
	assert.Equal(t, ModeTOU, mode)
	assert.Equal(t, "tou", ModeToString(mode))
}
