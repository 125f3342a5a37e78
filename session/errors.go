package session

import (
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/arloliu/go-ivi/ivierr"
)

var (
	// ErrNotOpen is returned by I/O operations on a session that is not open.
	ErrNotOpen = ivierr.New("session: not open", ivierr.ErrTransport)
	// ErrAlreadyOpen is returned when Open is called on a session that is not closed.
	ErrAlreadyOpen = ivierr.New("session: already open", ivierr.ErrProtocolViolation)
	// ErrResourceBusy is returned when another open session already owns the resource.
	ErrResourceBusy = ivierr.New("session: resource owned by another session", ivierr.ErrTransport)
	// ErrOpenFailed wraps the dialer error of a failed Open.
	ErrOpenFailed = ivierr.New("session: open failed", ivierr.ErrTransport)
	// ErrWriteFailed wraps a transport write failure.
	ErrWriteFailed = ivierr.New("session: write failed", ivierr.ErrTransport)
	// ErrReadFailed wraps a transport read failure.
	ErrReadFailed = ivierr.New("session: read failed", ivierr.ErrTransport)
	// ErrReadTimeout is returned when no complete line arrives within the session timeout.
	ErrReadTimeout = ivierr.New("session: read timeout", ivierr.ErrTimeout)
	// ErrWriteTimeout is returned when the transport cannot accept a command within the session timeout.
	ErrWriteTimeout = ivierr.New("session: write timeout", ivierr.ErrTimeout)
	// ErrStatusReadFailed is returned when every status byte read attempt failed.
	ErrStatusReadFailed = ivierr.New("session: status byte read failed", ivierr.ErrTransport)
	// ErrClearFailed wraps a device clear failure.
	ErrClearFailed = ivierr.New("session: device clear failed", ivierr.ErrTransport)
	// ErrCloseFailed wraps a transport close failure.
	ErrCloseFailed = ivierr.New("session: transport close failed", ivierr.ErrTransport)
	// ErrSetTimeoutFailed wraps a transport that rejected a timeout change.
	ErrSetTimeoutFailed = ivierr.New("session: set timeout failed", ivierr.ErrTransport)
	// ErrSetTerminationFailed wraps a transport that rejected a termination change.
	ErrSetTerminationFailed = ivierr.New("session: set termination failed", ivierr.ErrTransport)
	// ErrTimeoutStackEmpty is returned by RestoreTimeout without a matching StoreTimeout.
	ErrTimeoutStackEmpty = ivierr.New("session: timeout stack empty", ivierr.ErrProtocolViolation)
	// ErrInvalidTermination is returned for an empty or too long termination sequence.
	ErrInvalidTermination = ivierr.New("session: invalid termination sequence", ivierr.ErrConfiguration)
	// ErrInvalidTimeout is returned for a timeout outside [MinTimeout, MaxTimeout].
	ErrInvalidTimeout = ivierr.New("session: invalid timeout", ivierr.ErrConfiguration)
	// ErrMissingDialer is returned by New when no dialer is configured.
	ErrMissingDialer = ivierr.New("session: dialer is required", ivierr.ErrConfiguration)
	// ErrUnexpectedReply is returned when a query reply cannot be interpreted.
	ErrUnexpectedReply = ivierr.New("session: unexpected reply", ivierr.ErrProtocolViolation)
)

var errNoTermination = fmt.Errorf("no termination before deadline: %w", os.ErrDeadlineExceeded)

// isTimeout reports whether err is a transport deadline expiry.
func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, ivierr.ErrTimeout) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}

func wrapErr(kind error, err error) error {
	return fmt.Errorf("%w: %w", kind, err)
}
