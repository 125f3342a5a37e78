package simulator

import (
	"fmt"

	"github.com/arloliu/go-ivi/ivierr"
)

var (
	// ErrClosed is returned by every operation on a closed instrument.
	ErrClosed = ivierr.New("simulator: instrument closed", ivierr.ErrTransport)
	// ErrInjected is returned by operations failed on purpose with FailStatusReads or FailWrites.
	ErrInjected = ivierr.New("simulator: injected failure", ivierr.ErrTransport)
	// ErrReadTimeout is returned when no output becomes available within the timeout.
	ErrReadTimeout = ivierr.New("simulator: read timeout", ivierr.ErrTimeout)
)

// DeviceError is an entry of the instrument error queue.
type DeviceError struct {
	Code    int
	Message string
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%d,%q", e.Code, e.Message)
}

// Standard SCPI error queue entries.
var (
	ErrUndefinedHeader  = &DeviceError{Code: -113, Message: "Undefined header"}
	ErrDataOutOfRange   = &DeviceError{Code: -222, Message: "Data out of range"}
	ErrIllegalParameter = &DeviceError{Code: -224, Message: "Illegal parameter value"}
	ErrExecution        = &DeviceError{Code: -200, Message: "Execution error"}
	ErrQueueOverflow    = &DeviceError{Code: -350, Message: "Queue overflow"}
)
