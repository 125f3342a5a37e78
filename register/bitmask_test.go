package register

import (
	"testing"

	"github.com/arloliu/go-ivi/ivierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	keyMeasurement = iota + 1
	keyError
	keyQuestionable
	keyMessage
	keySummary
)

func newTestDictionary(t *testing.T) *BitmaskDictionary {
	t.Helper()

	d := NewBitmaskDictionary()
	require.NoError(t, d.Add(keyMeasurement, 0x01, false))
	require.NoError(t, d.Add(keyError, 0x04, false))
	require.NoError(t, d.Add(keyQuestionable, 0x08, false))
	require.NoError(t, d.Add(keyMessage, 0x10, false))

	return d
}

func TestBitmaskDictionary_Add(t *testing.T) {
	d := newTestDictionary(t)
	assert.Equal(t, 4, d.Len())
	assert.Equal(t, []int{keyMeasurement, keyError, keyQuestionable, keyMessage}, d.Keys())
	assert.Equal(t, 0x1D, d.Union())

	t.Run("overlap rejected", func(t *testing.T) {
		err := d.Add(keySummary, 0x0C, false)
		require.ErrorIs(t, err, ErrBitConflict)
		require.ErrorIs(t, err, ivierr.ErrProtocolViolation)
		assert.False(t, d.Contains(keySummary))
	})

	t.Run("overlap allowed", func(t *testing.T) {
		require.NoError(t, d.Add(keySummary, 0xFF, true))
		mask, err := d.Mask(keySummary)
		require.NoError(t, err)
		assert.Equal(t, 0xFF, mask)
	})

	t.Run("duplicate key", func(t *testing.T) {
		err := d.Add(keyError, 0x40, false)
		assert.ErrorIs(t, err, ErrDuplicateKey)
	})

	t.Run("empty mask", func(t *testing.T) {
		assert.ErrorIs(t, d.Add(99, 0, false), ErrInvalidMask)
		assert.ErrorIs(t, d.Add(99, -1, true), ErrInvalidMask)
	})
}

func TestBitmaskDictionary_IsAnyBitOn(t *testing.T) {
	d := newTestDictionary(t)

	on, err := d.IsAnyBitOn(keyError, 0x14)
	require.NoError(t, err)
	assert.True(t, on)

	on, err = d.IsAnyBitOn(keyMeasurement, 0x14)
	require.NoError(t, err)
	assert.False(t, on)

	on, err = d.IsAnyBitOn(12345, 0xFF)
	require.ErrorIs(t, err, ErrUnknownKey)
	assert.False(t, on)

	_, err = d.Mask(12345)
	assert.ErrorIs(t, err, ErrUnknownKey)
}

func TestBitmaskDictionary_AreAllBitsOn(t *testing.T) {
	d := NewBitmaskDictionary()
	require.NoError(t, d.Add(1, 0x06, false))

	all, err := d.AreAllBitsOn(1, 0x02)
	require.NoError(t, err)
	assert.False(t, all)

	all, err = d.AreAllBitsOn(1, 0x0F)
	require.NoError(t, err)
	assert.True(t, all)

	_, err = d.AreAllBitsOn(2, 0x0F)
	assert.ErrorIs(t, err, ErrUnknownKey)
}

func TestBitmaskDictionary_Remove(t *testing.T) {
	d := newTestDictionary(t)

	assert.True(t, d.Remove(keyError))
	assert.False(t, d.Remove(keyError))
	assert.False(t, d.Contains(keyError))
	assert.Equal(t, []int{keyMeasurement, keyQuestionable, keyMessage}, d.Keys())

	_, err := d.IsAnyBitOn(keyError, 0x04)
	require.ErrorIs(t, err, ErrUnknownKey)

	// the freed bits can be claimed again
	require.NoError(t, d.Add(keySummary, 0x04, false))
}

func TestBitmaskDictionary_ActiveKeys(t *testing.T) {
	d := newTestDictionary(t)

	assert.Equal(t, []int{keyMeasurement, keyMessage}, d.ActiveKeys(0x11))
	assert.Empty(t, d.ActiveKeys(0x40))
}

func TestBitmaskDictionary_Clone(t *testing.T) {
	d := newTestDictionary(t)
	clone := d.Clone()

	require.True(t, clone.Remove(keyMessage))
	assert.True(t, d.Contains(keyMessage))
	assert.Equal(t, 3, clone.Len())
}
