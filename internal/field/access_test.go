package field

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldnet/internal/value"
)

const (
	ownerID    OwnerID = 1
	externalID OwnerID = 2
)

func ownedInt(reg OwnerRegistry, name string, access AccessType) *SField[int32] {
	return newInt(name, OwnedBy(ownerID, reg), WithAccess(access))
}

func TestAccess_OutputOnlyScenario(t *testing.T) {
	reg := newFakeRegistry()
	f := ownedInt(reg, "out", OutputOnly)

	err := f.SetValue(5, externalID)
	require.Error(t, err)
	assert.True(t, IsAccessViolation(err))

	require.NoError(t, f.SetValue(5, ownerID))

	v, err := f.Value(externalID)
	require.NoError(t, err)
	assert.Equal(t, int32(5), v)
}

func TestAccess_InitializeOnly(t *testing.T) {
	reg := newFakeRegistry()
	f := ownedInt(reg, "size", InitializeOnly)

	require.NoError(t, f.SetValue(1, externalID), "writable before the owner is initialized")

	reg.initialized[ownerID] = true
	err := f.SetValue(2, externalID)
	assert.True(t, IsAccessViolation(err))

	require.NoError(t, f.SetValue(3, ownerID), "the owner may always write")
	v, err := f.Value(externalID)
	require.NoError(t, err)
	assert.Equal(t, int32(3), v)
}

func TestAccess_InputOnlyRead(t *testing.T) {
	reg := newFakeRegistry()
	f := ownedInt(reg, "set_x", InputOnly)

	require.NoError(t, f.SetValue(4, externalID))
	_, err := f.Value(externalID)
	assert.True(t, IsAccessViolation(err))

	v, err := f.Value(ownerID)
	require.NoError(t, err)
	assert.Equal(t, int32(4), v)

	// Once it routes somewhere it is readable by anyone.
	require.NoError(t, f.Route(newInt("sink"), ownerID))
	v, err = f.Value(externalID)
	require.NoError(t, err)
	assert.Equal(t, int32(4), v)
}

func TestAccess_InputOnlySequenceMutations(t *testing.T) {
	reg := newFakeRegistry()
	f := newInts("add_children", OwnedBy(ownerID, reg), WithAccess(InputOnly))

	require.NoError(t, f.PushBack(5, externalID))
	require.NoError(t, f.PushBack(6, externalID))

	removed, err := f.EraseValue(5, externalID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = f.EraseValue(42, externalID)
	require.NoError(t, err)
	assert.False(t, removed)

	assert.Equal(t, []int32{6}, valuesOf(t, f))

	// Reads stay closed until the field routes somewhere.
	_, err = f.Values(externalID)
	assert.True(t, IsAccessViolation(err))
}

func TestAccess_RouteChecks(t *testing.T) {
	reg := newFakeRegistry()
	in := ownedInt(reg, "set_x", InputOnly)
	out := ownedInt(reg, "x_changed", OutputOnly)
	initOnly := ownedInt(reg, "size", InitializeOnly)
	free := newInt("free")

	err := in.Route(free, externalID)
	assert.True(t, IsAccessViolation(err), "routing from INPUT_ONLY")

	err = free.Route(out, externalID)
	assert.True(t, IsAccessViolation(err), "routing into OUTPUT_ONLY")

	err = free.Route(initOnly, externalID)
	assert.True(t, IsAccessViolation(err), "routing into INITIALIZE_ONLY")

	assertMirror(t, in, out, initOnly, free)

	require.NoError(t, in.Route(free, ownerID))
	require.NoError(t, free.Route(out, Internal))
	assertMirror(t, in, out, initOnly, free)
}

func TestAccess_RegistryHasFinalSay(t *testing.T) {
	reg := newFakeRegistry()
	reg.denied[externalID] = true
	f := ownedInt(reg, "x", InputOutput)

	err := f.SetValue(1, externalID)
	assert.True(t, IsAccessViolation(err))
	require.NoError(t, f.SetValue(1, 3))
}

func TestAccess_InternalCallerIsTrusted(t *testing.T) {
	reg := newFakeRegistry()
	reg.initialized[ownerID] = true
	f := ownedInt(reg, "x", OutputOnly)

	require.NoError(t, f.SetValue(9, Internal))
}

func TestAccess_CheckCanBeDisabled(t *testing.T) {
	reg := newFakeRegistry()
	f := ownedInt(reg, "x", OutputOnly)
	f.SetAccessCheck(false)

	require.NoError(t, f.SetValue(9, externalID))
}

func TestAccess_UnownedFieldsAreOpen(t *testing.T) {
	f := newInt("x", WithAccess(OutputOnly))
	require.NoError(t, f.SetValue(9, externalID))
}

func TestAccess_TextAndRawBridgesAreChecked(t *testing.T) {
	reg := newFakeRegistry()
	f := ownedInt(reg, "x", OutputOnly)

	assert.True(t, IsAccessViolation(f.SetValueFromString("1", externalID)))
	assert.True(t, IsAccessViolation(f.SetValueFromRaw([]byte{1, 0, 0, 0}, 1, 4, externalID)))

	m := NewMField(value.Int32, Named("m"), OwnedBy(ownerID, reg), WithAccess(OutputOnly))
	assert.True(t, IsAccessViolation(m.PushBack(1, externalID)))
	assert.True(t, IsAccessViolation(m.AddElementFromString("1", externalID)))
}

func TestParseAccessType(t *testing.T) {
	tests := []struct {
		in   string
		want AccessType
	}{
		{"inputOutput", InputOutput},
		{"INITIALIZE_ONLY", InitializeOnly},
		{"inputOnly", InputOnly},
		{"eventOut", OutputOnly},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAccessType(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseAccessType("readWrite")
	assert.Error(t, err)
	assert.Equal(t, "outputOnly", OutputOnly.String())
}
