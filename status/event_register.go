package status

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/arloliu/go-ivi/ivierr"
	"github.com/arloliu/go-ivi/register"
)

// ErrInvalidRegisterValue indicates a register reply that is not a non-negative number.
var ErrInvalidRegisterValue = ivierr.New("status: invalid register value", ivierr.ErrProtocolViolation)

// MeasurementEvent identifies a bit of the measurement event register.
type MeasurementEvent int

const (
	LimitOneFailed MeasurementEvent = iota + 1
	LowLimitTwoFailed
	HighLimitTwoFailed
	LowLimitThreeFailed
	HighLimitThreeFailed
	LimitsPassed
	ReadingAvailable
	ReadingOverflow
	BufferAvailable
	BufferFull
	ContactCheckFailed
	InterlockAsserted
	OverTemperature
	OverVoltageProtection
	Compliance
)

// OperationEvent identifies a bit of the operation event register.
type OperationEvent int

const (
	Calibrating OperationEvent = iota + 1
	Settling
	Measuring
	Sweeping
	WaitingForTrigger
	WaitingForArm
	Idle
)

// QuestionableEvent identifies a bit of the questionable event register.
type QuestionableEvent int

const (
	QuestionableVoltage QuestionableEvent = iota + 1
	QuestionableCurrent
	QuestionableTemperature
	QuestionableCalibration
	QuestionableCommandWarning
)

var (
	measurementNames = []string{
		"", "limit_one_failed", "low_limit_two_failed", "high_limit_two_failed",
		"low_limit_three_failed", "high_limit_three_failed", "limits_passed", "reading_available",
		"reading_overflow", "buffer_available", "buffer_full", "contact_check_failed",
		"interlock_asserted", "over_temperature", "over_voltage_protection", "compliance",
	}
	operationNames = []string{
		"", "calibrating", "settling", "measuring", "sweeping", "waiting_for_trigger",
		"waiting_for_arm", "idle",
	}
	questionableNames = []string{
		"", "voltage", "current", "temperature", "calibration", "command_warning",
	}
)

func enumName(names []string, v int) string {
	if v <= 0 || v >= len(names) {
		return "unknown"
	}

	return names[v]
}

func parseEnumName(names []string, s string) (int, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i := 1; i < len(names); i++ {
		if names[i] == s {
			return i, true
		}
	}

	return 0, false
}

func (e MeasurementEvent) String() string { return enumName(measurementNames, int(e)) }

func (e OperationEvent) String() string { return enumName(operationNames, int(e)) }

func (e QuestionableEvent) String() string { return enumName(questionableNames, int(e)) }

// ParseMeasurementEvent returns the event named s, as produced by MeasurementEvent.String.
func ParseMeasurementEvent(s string) (MeasurementEvent, bool) {
	v, ok := parseEnumName(measurementNames, s)
	return MeasurementEvent(v), ok
}

// ParseOperationEvent returns the event named s, as produced by OperationEvent.String.
func ParseOperationEvent(s string) (OperationEvent, bool) {
	v, ok := parseEnumName(operationNames, s)
	return OperationEvent(v), ok
}

// ParseQuestionableEvent returns the event named s, as produced by QuestionableEvent.String.
func ParseQuestionableEvent(s string) (QuestionableEvent, bool) {
	v, ok := parseEnumName(questionableNames, s)
	return QuestionableEvent(v), ok
}

type bitmaskDef struct {
	key  int
	mask int
}

func newDictionary(defs []bitmaskDef) *register.BitmaskDictionary {
	d := register.NewBitmaskDictionary()
	for _, def := range defs {
		_ = d.Add(def.key, def.mask, false) // default layouts have no overlaps
	}

	return d
}

// DefaultMeasurementBitmasks returns the measurement event layout used by
// source-measure units of the 2400 family.
func DefaultMeasurementBitmasks() *register.BitmaskDictionary {
	return newDictionary([]bitmaskDef{
		{int(LimitOneFailed), 1 << 0},
		{int(LowLimitTwoFailed), 1 << 1},
		{int(HighLimitTwoFailed), 1 << 2},
		{int(LowLimitThreeFailed), 1 << 3},
		{int(HighLimitThreeFailed), 1 << 4},
		{int(LimitsPassed), 1 << 5},
		{int(ReadingAvailable), 1 << 6},
		{int(ReadingOverflow), 1 << 7},
		{int(BufferAvailable), 1 << 8},
		{int(BufferFull), 1 << 9},
		{int(ContactCheckFailed), 1 << 10},
		{int(InterlockAsserted), 1 << 11},
		{int(OverTemperature), 1 << 12},
		{int(OverVoltageProtection), 1 << 13},
		{int(Compliance), 1 << 14},
	})
}

// DefaultOperationBitmasks returns the SCPI-99 operation status layout.
func DefaultOperationBitmasks() *register.BitmaskDictionary {
	return newDictionary([]bitmaskDef{
		{int(Calibrating), 1 << 0},
		{int(Settling), 1 << 1},
		{int(Measuring), 1 << 4},
		{int(Sweeping), 1 << 3},
		{int(WaitingForTrigger), 1 << 5},
		{int(WaitingForArm), 1 << 6},
		{int(Idle), 1 << 10},
	})
}

// DefaultQuestionableBitmasks returns the SCPI-99 questionable status layout.
func DefaultQuestionableBitmasks() *register.BitmaskDictionary {
	return newDictionary([]bitmaskDef{
		{int(QuestionableVoltage), 1 << 0},
		{int(QuestionableCurrent), 1 << 1},
		{int(QuestionableTemperature), 1 << 4},
		{int(QuestionableCalibration), 1 << 8},
		{int(QuestionableCommandWarning), 1 << 14},
	})
}

// DecodeEvents returns, in dictionary order, the keys of d signalled by value.
func DecodeEvents(value int, d *register.BitmaskDictionary) []int {
	if d == nil {
		return nil
	}

	return d.ActiveKeys(value)
}

// ParseRegister converts a register query reply such as "+16", "16.0" or "1.6E+1"
// to its integer value.
func ParseRegister(reply string) (int, error) {
	s := strings.TrimSpace(reply)
	if s == "" {
		return 0, fmt.Errorf("%w: empty reply", ErrInvalidRegisterValue)
	}

	if v, err := strconv.ParseInt(s, 10, 32); err == nil {
		if v < 0 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidRegisterValue, reply)
		}

		return int(v), nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || f > math.MaxInt32 || f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRegisterValue, reply)
	}

	return int(f), nil
}
