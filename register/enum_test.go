package register

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type senseFunction int

const (
	senseVoltage senseFunction = iota + 1
	senseCurrent
	senseResistance
)

func TestEnumReadWriteCollection_AddSelect(t *testing.T) {
	c := NewEnumReadWriteCollection[senseFunction]()
	require.NoError(t, c.Add(senseVoltage, `"VOLT:DC"`))
	require.NoError(t, c.AddEntry(EnumReadWrite[senseFunction]{
		EnumValue:   senseCurrent,
		ReadValue:   "CURR:DC",
		WriteValue:  "CURR",
		Description: "DC current",
	}))

	byEnum, err := c.SelectItem(senseVoltage)
	require.NoError(t, err)
	byReading, err := c.SelectByReading("VOLT:DC")
	require.NoError(t, err)
	assert.Equal(t, byEnum, byReading)
	assert.Equal(t, "VOLT:DC", byEnum.ReadValue)
	assert.Equal(t, "VOLT:DC", byEnum.WriteValue)

	curr, err := c.SelectByReading(" \"CURR:DC\"\n")
	require.NoError(t, err)
	assert.Equal(t, senseCurrent, curr.EnumValue)
	assert.Equal(t, "CURR", curr.WriteValue)

	assert.True(t, c.Exists(senseCurrent))
	assert.True(t, c.ExistsReading("CURR:DC"))
	assert.False(t, c.Exists(senseResistance))
	assert.False(t, c.ExistsReading("RES"))
	assert.Equal(t, 2, c.Len())
}

func TestEnumReadWriteCollection_Duplicates(t *testing.T) {
	c := NewEnumReadWriteCollection[senseFunction]()
	require.NoError(t, c.Add(senseVoltage, "VOLT"))

	err := c.Add(senseVoltage, "OTHER")
	require.ErrorIs(t, err, ErrDuplicateKey)

	err = c.Add(senseCurrent, `"VOLT"`)
	require.ErrorIs(t, err, ErrDuplicateKey)

	// a failed add leaves both indices untouched
	assert.False(t, c.Exists(senseCurrent))
	assert.False(t, c.ExistsReading("OTHER"))
	assert.Equal(t, 1, c.Len())
}

func TestEnumReadWriteCollection_RemoveAt(t *testing.T) {
	c := NewEnumReadWriteCollection[senseFunction]()
	require.NoError(t, c.Add(senseVoltage, "VOLT"))
	require.NoError(t, c.Add(senseResistance, "RES"))

	assert.True(t, c.RemoveAt(senseVoltage))
	assert.False(t, c.RemoveAt(senseVoltage))

	_, err := c.SelectItem(senseVoltage)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = c.SelectByReading("VOLT")
	require.ErrorIs(t, err, ErrNotFound)

	// the freed keys may be reused
	require.NoError(t, c.Add(senseCurrent, "VOLT"))
}

func TestEnumReadWriteCollection_Entries(t *testing.T) {
	c := NewEnumReadWriteCollection[senseFunction]()
	require.NoError(t, c.Add(senseResistance, "RES"))
	require.NoError(t, c.Add(senseVoltage, "VOLT"))
	require.NoError(t, c.Add(senseCurrent, "CURR"))

	entries := c.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, senseVoltage, entries[0].EnumValue)
	assert.Equal(t, senseCurrent, entries[1].EnumValue)
	assert.Equal(t, senseResistance, entries[2].EnumValue)
}

func TestNormalizeReading(t *testing.T) {
	tests := map[string]string{
		"VOLT":        "VOLT",
		"  VOLT \r\n": "VOLT",
		`"VOLT"`:      "VOLT",
		`" VOLT "`:    "VOLT",
		`"`:           `"`,
		`""`:          "",
	}

	for in, want := range tests {
		assert.Equal(t, want, NormalizeReading(in), "input %q", in)
	}
}
