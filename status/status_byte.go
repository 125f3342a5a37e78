package status

import (
	"strings"

	"github.com/arloliu/go-ivi/register"
)

// StatusByte is the raw 8-bit value returned by a serial poll or *STB?.
type StatusByte uint8

// Key identifies the meaning of a status byte bit.
type Key int

const (
	MeasurementEventKey Key = iota + 1
	SystemEventKey
	ErrorAvailableKey
	QuestionableEventKey
	MessageAvailableKey
	StandardEventKey
	RequestingServiceKey
	OperationEventKey
)

// String returns the key name.
func (k Key) String() string {
	switch k {
	case MeasurementEventKey:
		return "measurement_event"
	case SystemEventKey:
		return "system_event"
	case ErrorAvailableKey:
		return "error_available"
	case QuestionableEventKey:
		return "questionable_event"
	case MessageAvailableKey:
		return "message_available"
	case StandardEventKey:
		return "standard_event"
	case RequestingServiceKey:
		return "requesting_service"
	case OperationEventKey:
		return "operation_event"
	default:
		return "unknown"
	}
}

// ParseKey returns the Key named s, as produced by Key.String.
func ParseKey(s string) (Key, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k := MeasurementEventKey; k <= OperationEventKey; k++ {
		if k.String() == s {
			return k, true
		}
	}

	return 0, false
}

// DefaultStatusBitmasks returns the IEEE-488.2/SCPI-99 status byte layout.
func DefaultStatusBitmasks() *register.BitmaskDictionary {
	d := register.NewBitmaskDictionary()
	for _, e := range []struct {
		key  Key
		mask int
	}{
		{MeasurementEventKey, 0x01},
		{SystemEventKey, 0x02},
		{ErrorAvailableKey, 0x04},
		{QuestionableEventKey, 0x08},
		{MessageAvailableKey, 0x10},
		{StandardEventKey, 0x20},
		{RequestingServiceKey, 0x40},
		{OperationEventKey, 0x80},
	} {
		_ = d.Add(int(e.key), e.mask, false) // the layout above has no overlaps
	}

	return d
}

// EventFlags is the semantic view of a status byte.
type EventFlags struct {
	Raw                  StatusByte
	MessageAvailable     bool
	ErrorAvailable       bool
	HasMeasurementEvent  bool
	HasOperationEvent    bool
	HasQuestionableEvent bool
	HasStandardEvent     bool
	HasSystemEvent       bool
	RequestedService     bool
}

// Decode maps stb onto semantic flags using the masks in d.
//
// Decode is pure: it reads d without modifying it and keeps no state, so the same
// inputs always yield the same flags. A key missing from d means the instrument does
// not implement that summary bit and decodes as false.
func Decode(stb StatusByte, d *register.BitmaskDictionary) EventFlags {
	return EventFlags{
		Raw:                  stb,
		MessageAvailable:     isOn(d, MessageAvailableKey, stb),
		ErrorAvailable:       isOn(d, ErrorAvailableKey, stb),
		HasMeasurementEvent:  isOn(d, MeasurementEventKey, stb),
		HasOperationEvent:    isOn(d, OperationEventKey, stb),
		HasQuestionableEvent: isOn(d, QuestionableEventKey, stb),
		HasStandardEvent:     isOn(d, StandardEventKey, stb),
		HasSystemEvent:       isOn(d, SystemEventKey, stb),
		RequestedService:     isOn(d, RequestingServiceKey, stb),
	}
}

func isOn(d *register.BitmaskDictionary, key Key, stb StatusByte) bool {
	if d == nil {
		return false
	}

	mask, err := d.Mask(int(key))
	if err != nil {
		return false
	}

	return int(stb)&mask != 0
}

// String returns the set flags joined by '|', or "none".
func (f EventFlags) String() string {
	var names []string
	for _, e := range []struct {
		on   bool
		name string
	}{
		{f.HasMeasurementEvent, "MSB"},
		{f.HasSystemEvent, "SSB"},
		{f.ErrorAvailable, "EAV"},
		{f.HasQuestionableEvent, "QSB"},
		{f.MessageAvailable, "MAV"},
		{f.HasStandardEvent, "ESB"},
		{f.RequestedService, "RQS"},
		{f.HasOperationEvent, "OSB"},
	} {
		if e.on {
			names = append(names, e.name)
		}
	}

	if len(names) == 0 {
		return "none"
	}

	return strings.Join(names, "|")
}
