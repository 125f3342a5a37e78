package tracelog

import (
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/arloliu/go-ivi/session"
)

// Tracer encodes session traffic to a writer. It is safe for concurrent use by several sessions.
type Tracer struct {
	mu      sync.Mutex
	encoder *cbor.Encoder
	closer  io.Closer
	closed  bool

	// OnError, when set, receives encoding errors. Tracing never fails the traced operation.
	OnError func(error)

	count   atomic.Uint64
	dropped atomic.Uint64
}

var _ session.IOTracer = (*Tracer)(nil)

// NewTracer creates a tracer writing to w.
func NewTracer(w io.Writer) *Tracer {
	t := &Tracer{encoder: newEncoder(w)}
	if c, ok := w.(io.Closer); ok {
		t.closer = c
	}

	return t
}

// NewFileTracer creates a tracer appending to the file at path. The file is created
// with permissions 0644 if it doesn't exist.
func NewFileTracer(path string) (*Tracer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	return NewTracer(f), nil
}

// Sent implements session.IOTracer.
func (t *Tracer) Sent(id uuid.UUID, resource string, data []byte) {
	t.log(Event{SessionID: id.String(), Resource: resource, Kind: KindSent, Data: data})
}

// Received implements session.IOTracer.
func (t *Tracer) Received(id uuid.UUID, resource string, data []byte) {
	t.log(Event{SessionID: id.String(), Resource: resource, Kind: KindReceived, Data: data})
}

// StatusRead implements session.IOTracer.
func (t *Tracer) StatusRead(id uuid.UUID, resource string, stb byte) {
	t.log(Event{SessionID: id.String(), Resource: resource, Kind: KindStatus, StatusByte: stb})
}

// Failed implements session.IOTracer.
func (t *Tracer) Failed(id uuid.UUID, resource string, op string, err error) {
	e := Event{SessionID: id.String(), Resource: resource, Kind: KindFailure, Op: op}
	if err != nil {
		e.Error = err.Error()
	}
	t.log(e)
}

// Count returns the number of events written.
func (t *Tracer) Count() uint64 {
	return t.count.Load()
}

// Dropped returns the number of events that could not be written.
func (t *Tracer) Dropped() uint64 {
	return t.dropped.Load()
}

// Close closes the underlying writer when it is an io.Closer. Events logged after Close
// are ignored. Close is idempotent.
func (t *Tracer) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	if t.closer != nil {
		return t.closer.Close()
	}

	return nil
}

func (t *Tracer) log(e Event) {
	e.Timestamp = time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}

	// the encoder copies data before returning, so the caller may reuse its buffer
	if err := t.encoder.Encode(e); err != nil {
		t.dropped.Add(1)
		if t.OnError != nil {
			t.OnError(err)
		}

		return
	}
	t.count.Add(1)
}
