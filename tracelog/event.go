package tracelog

import (
	"fmt"
	"time"
)

// Kind classifies an event.
type Kind uint8

const (
	KindSent Kind = iota
	KindReceived
	KindStatus
	KindFailure
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindSent:
		return "SENT"
	case KindReceived:
		return "RECV"
	case KindStatus:
		return "STB"
	case KindFailure:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// Event is one traced operation. CBOR encoding uses integer keys for compactness.
type Event struct {
	Timestamp time.Time `cbor:"1,keyasint"`
	SessionID string    `cbor:"2,keyasint"`
	Resource  string    `cbor:"3,keyasint"`
	Kind      Kind      `cbor:"4,keyasint"`

	// Data is the raw bytes of a sent or received line.
	Data []byte `cbor:"5,keyasint,omitempty"`
	// StatusByte is set for KindStatus.
	StatusByte uint8 `cbor:"6,keyasint,omitempty"`
	// Op and Error are set for KindFailure.
	Op    string `cbor:"7,keyasint,omitempty"`
	Error string `cbor:"8,keyasint,omitempty"`
}

// String renders the event as one log line.
func (e Event) String() string {
	ts := e.Timestamp.Format("15:04:05.000000")

	switch e.Kind {
	case KindSent, KindReceived:
		return fmt.Sprintf("%s %s %s %q", ts, e.Resource, e.Kind, e.Data)
	case KindStatus:
		return fmt.Sprintf("%s %s %s 0x%02X", ts, e.Resource, e.Kind, e.StatusByte)
	case KindFailure:
		return fmt.Sprintf("%s %s %s %s: %s", ts, e.Resource, e.Kind, e.Op, e.Error)
	default:
		return fmt.Sprintf("%s %s %s", ts, e.Resource, e.Kind)
	}
}
