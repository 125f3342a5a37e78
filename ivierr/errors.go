// Package ivierr defines the failure kinds shared by all go-ivi packages.
//
// Every package-level sentinel error in go-ivi is created with [New] and carries one or
// more kinds, so callers can classify any error returned by the core with errors.Is:
//
//	if errors.Is(err, ivierr.ErrTimeout) {
//	    // bounded wait exceeded, distinct from a device-reported error
//	}
//
// Kinds:
//   - ErrTransport: link down, write or read failure.
//   - ErrTimeout: a bounded wait was exceeded.
//   - ErrDevice: the instrument reported an error through its error queue.
//   - ErrProtocolViolation: programmer error such as a duplicate key or an unknown key probe.
//   - ErrConfiguration: required settings are absent or contradictory.
package ivierr

import "errors"

var (
	// ErrTransport indicates a link failure between the host and the instrument.
	ErrTransport = errors.New("transport error")

	// ErrTimeout indicates that a bounded wait was exceeded.
	ErrTimeout = errors.New("timeout")

	// ErrDevice indicates that the instrument reported an error through its error queue.
	ErrDevice = errors.New("device error")

	// ErrProtocolViolation indicates a programmer or configuration error detected at runtime.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrConfiguration indicates that required settings are absent or contradictory.
	ErrConfiguration = errors.New("configuration error")
)

var kinds = []error{ErrTransport, ErrTimeout, ErrDevice, ErrProtocolViolation, ErrConfiguration}

type kindError struct {
	msg   string
	kinds []error
}

// New returns an error with the given message that matches each of kinds under errors.Is.
func New(msg string, kinds ...error) error {
	return &kindError{msg: msg, kinds: kinds}
}

func (e *kindError) Error() string {
	return e.msg
}

func (e *kindError) Is(target error) bool {
	for _, k := range e.kinds {
		if k == target {
			return true
		}
	}

	return false
}

// Kind returns the first failure kind matched by err, or nil if err is nil or unclassified.
func Kind(err error) error {
	if err == nil {
		return nil
	}

	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}

	return nil
}
