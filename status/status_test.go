package status

import (
	"testing"

	"github.com/arloliu/go-ivi/register"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_DefaultLayout(t *testing.T) {
	d := DefaultStatusBitmasks()

	flags := Decode(0x54, d)
	assert.Equal(t, StatusByte(0x54), flags.Raw)
	assert.True(t, flags.ErrorAvailable)
	assert.True(t, flags.MessageAvailable)
	assert.True(t, flags.RequestedService)
	assert.False(t, flags.HasMeasurementEvent)
	assert.False(t, flags.HasOperationEvent)
	assert.False(t, flags.HasQuestionableEvent)
	assert.False(t, flags.HasStandardEvent)
	assert.Equal(t, "EAV|MAV|RQS", flags.String())

	assert.Equal(t, "none", Decode(0, d).String())
}

func TestDecode_IsPure(t *testing.T) {
	d := DefaultStatusBitmasks()
	keysBefore := d.Keys()

	for v := 0; v <= 255; v++ {
		first := Decode(StatusByte(v), d)
		second := Decode(StatusByte(v), d)
		require.Equal(t, first, second, "status byte 0x%02X", v)
	}

	assert.Equal(t, keysBefore, d.Keys())
}

func TestDecode_VendorLayout(t *testing.T) {
	// a model that reports errors on bit 7 and has no operation summary
	d := register.NewBitmaskDictionary()
	require.NoError(t, d.Add(int(ErrorAvailableKey), 0x80, false))
	require.NoError(t, d.Add(int(MessageAvailableKey), 0x10, false))
	require.NoError(t, d.Add(int(RequestingServiceKey), 0x40, false))

	flags := Decode(0x80, d)
	assert.True(t, flags.ErrorAvailable)
	assert.False(t, flags.HasOperationEvent)

	assert.Equal(t, EventFlags{Raw: 0xFF}, Decode(0xFF, nil))
}

func TestKey_StringRoundTrip(t *testing.T) {
	for k := MeasurementEventKey; k <= OperationEventKey; k++ {
		parsed, ok := ParseKey(k.String())
		require.True(t, ok, k.String())
		assert.Equal(t, k, parsed)
	}

	_, ok := ParseKey("bogus")
	assert.False(t, ok)
	assert.Equal(t, "unknown", Key(0).String())
}

func TestStandardEvent(t *testing.T) {
	e := OperationComplete | CommandError

	assert.True(t, e.Has(OperationComplete))
	assert.True(t, e.Has(CommandError))
	assert.False(t, e.Has(PowerOn))
	assert.True(t, e.HasError())
	assert.Equal(t, "OPC|CME", e.String())

	assert.False(t, (PowerOn | UserRequest).HasError())
	assert.Equal(t, "none", StandardEvent(0).String())
	assert.Equal(t, StandardEvent(0x3C), AllErrors)
}

func TestDecodeEvents(t *testing.T) {
	d := DefaultMeasurementBitmasks()

	keys := DecodeEvents(1<<6|1<<14, d)
	assert.Equal(t, []int{int(ReadingAvailable), int(Compliance)}, keys)
	assert.Nil(t, DecodeEvents(0xFF, nil))

	ops := DecodeEvents(1<<4, DefaultOperationBitmasks())
	assert.Equal(t, []int{int(Measuring)}, ops)

	q := DecodeEvents(1<<8, DefaultQuestionableBitmasks())
	assert.Equal(t, []int{int(QuestionableCalibration)}, q)
}

func TestParseRegister(t *testing.T) {
	tests := []struct {
		reply   string
		want    int
		wantErr bool
	}{
		{reply: "16", want: 16},
		{reply: "+16\n", want: 16},
		{reply: "16.0", want: 16},
		{reply: "1.6E+1", want: 16},
		{reply: "+0", want: 0},
		{reply: "", wantErr: true},
		{reply: "-1", wantErr: true},
		{reply: "1.5", wantErr: true},
		{reply: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			got, err := ParseRegister(tt.reply)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidRegisterValue)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEventNames_RoundTrip(t *testing.T) {
	for e := LimitOneFailed; e <= Compliance; e++ {
		parsed, ok := ParseMeasurementEvent(e.String())
		require.True(t, ok, e.String())
		assert.Equal(t, e, parsed)
	}
	for e := Calibrating; e <= Idle; e++ {
		parsed, ok := ParseOperationEvent(e.String())
		require.True(t, ok, e.String())
		assert.Equal(t, e, parsed)
	}
	for e := QuestionableVoltage; e <= QuestionableCommandWarning; e++ {
		parsed, ok := ParseQuestionableEvent(e.String())
		require.True(t, ok, e.String())
		assert.Equal(t, e, parsed)
	}

	assert.Equal(t, "reading_available", ReadingAvailable.String())
	assert.Equal(t, "unknown", MeasurementEvent(0).String())
	_, ok := ParseOperationEvent("bogus")
	assert.False(t, ok)
}
