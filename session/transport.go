package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Transport is a message-based connection to one instrument.
//
// Read returns an error matching os.ErrDeadlineExceeded (or ivierr.ErrTimeout) when the
// configured timeout elapses without data. A Session never calls Transport methods
// concurrently, except Close, which may interrupt a blocked Read.
type Transport interface {
	// Write sends p to the instrument.
	Write(p []byte) (int, error)
	// Read reads the available bytes into p.
	Read(p []byte) (int, error)
	// SetTimeout sets the timeout of subsequent reads and writes.
	SetTimeout(d time.Duration) error
	// ReadStatusByte performs a serial poll, or its closest equivalent.
	ReadStatusByte() (byte, error)
	// Clear performs a device clear and discards pending input.
	Clear() error
	// Close releases the connection.
	Close() error
}

// ServiceRequester is implemented by transports that deliver hardware service requests.
//
// The callback runs on a goroutine owned by the transport. It must not block, and it must
// not call back into the session.
type ServiceRequester interface {
	EnableServiceRequest(fn func()) error
	DisableServiceRequest() error
}

// TerminationSetter is implemented by transports that frame their own traffic, such as the
// *STB? exchange of a socket. The session forwards its termination sequence on Open and on
// NewTermination.
type TerminationSetter interface {
	SetTermination(term []byte) error
}

// Dialer opens transports by VISA resource name.
type Dialer interface {
	Dial(ctx context.Context, resourceName string, timeout time.Duration) (Transport, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, resourceName string, timeout time.Duration) (Transport, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, resourceName string, timeout time.Duration) (Transport, error) {
	return f(ctx, resourceName, timeout)
}

// IOTracer observes the traffic of a session. Implementations must be safe for concurrent use
// by several sessions and must not retain data after returning.
type IOTracer interface {
	Sent(sessionID uuid.UUID, resource string, data []byte)
	Received(sessionID uuid.UUID, resource string, data []byte)
	StatusRead(sessionID uuid.UUID, resource string, stb byte)
	Failed(sessionID uuid.UUID, resource string, op string, err error)
}

type nopTracer struct{}

func (nopTracer) Sent(uuid.UUID, string, []byte)          {}
func (nopTracer) Received(uuid.UUID, string, []byte)      {}
func (nopTracer) StatusRead(uuid.UUID, string, byte)      {}
func (nopTracer) Failed(uuid.UUID, string, string, error) {}
