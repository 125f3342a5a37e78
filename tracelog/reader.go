package tracelog

import (
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Filter selects events. Empty or nil fields match every event.
type Filter struct {
	SessionID string
	// Resource matches case-insensitively.
	Resource  string
	Kind      *Kind
	TimeStart *time.Time
	// TimeEnd is exclusive.
	TimeEnd *time.Time
}

func (f *Filter) matches(e Event) bool {
	if f.SessionID != "" && e.SessionID != f.SessionID {
		return false
	}
	if f.Resource != "" && !strings.EqualFold(e.Resource, f.Resource) {
		return false
	}
	if f.Kind != nil && e.Kind != *f.Kind {
		return false
	}
	if f.TimeStart != nil && e.Timestamp.Before(*f.TimeStart) {
		return false
	}
	if f.TimeEnd != nil && !e.Timestamp.Before(*f.TimeEnd) {
		return false
	}

	return true
}

// Reader reads events from a trace file.
type Reader struct {
	file    *os.File
	decoder *cbor.Decoder
	filter  Filter
}

// NewReader opens the trace file at path and reads every event.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader opens the trace file at path and reads the events matching filter.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	return &Reader{file: f, decoder: newDecoder(f), filter: filter}, nil
}

// Next returns the next matching event, or io.EOF at the end of the file.
// A partially written last event is reported as io.ErrUnexpectedEOF.
func (r *Reader) Next() (Event, error) {
	for {
		var e Event
		if err := r.decoder.Decode(&e); err != nil {
			return Event{}, err
		}
		if r.filter.matches(e) {
			return e, nil
		}
	}
}

// ReadAll returns the remaining matching events.
func (r *Reader) ReadAll() ([]Event, error) {
	var events []Event
	for {
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, e)
	}
}

// Close closes the file.
func (r *Reader) Close() error {
	return r.file.Close()
}
