// Package errqueue drains and aggregates the error queue of an SCPI instrument.
//
// The Reader issues the error query repeatedly until the instrument reports "no error" or
// a bounded number of iterations is reached, so a queue that never empties cannot stall
// the caller. The records read are accumulated locally, with a compound message, until
// ClearErrorReport is called; the local report is independent from the device queue.
package errqueue

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/arloliu/go-ivi/ivierr"
	"github.com/arloliu/go-ivi/logger"
)

var (
	// ErrMalformedRecord is returned for an error query reply that is not "<code>,<message>".
	ErrMalformedRecord = ivierr.New("errqueue: malformed error record", ivierr.ErrProtocolViolation)
	// ErrDrainLimit is returned when the queue still reported errors after the maximum number of queries.
	ErrDrainLimit = ivierr.New("errqueue: error queue not drained within iteration limit", ivierr.ErrDevice)
)

// Querier is the part of a session used by the Reader.
type Querier interface {
	Query(command string) (string, error)
	WriteLine(command string) error
}

// Record is one entry of the device error queue.
type Record struct {
	Code    int
	Message string
	Raw     string
}

// ParseRecord parses an error query reply such as `-113,"Undefined header"`.
// The message may itself contain commas; a reply with a code only has an empty message.
func ParseRecord(reply string) (Record, error) {
	raw := strings.TrimSpace(reply)
	codeStr, msg, _ := strings.Cut(raw, ",")

	code, err := strconv.Atoi(strings.TrimSpace(codeStr))
	if err != nil {
		return Record{}, fmt.Errorf("%w: %q", ErrMalformedRecord, reply)
	}

	msg = strings.TrimSpace(msg)
	if len(msg) >= 2 && msg[0] == '"' && msg[len(msg)-1] == '"' {
		msg = strings.ReplaceAll(msg[1:len(msg)-1], `""`, `"`)
	}

	return Record{Code: code, Message: msg, Raw: raw}, nil
}

// IsNoError reports whether r is the SCPI "no error" entry.
func (r Record) IsNoError() bool {
	return r.Code == 0
}

func (r Record) String() string {
	if r.Message == "" {
		return strconv.Itoa(r.Code)
	}

	return fmt.Sprintf("%d, %s", r.Code, r.Message)
}

// DeviceErrors is the aggregate of the records accumulated by a Reader.
// It matches ivierr.ErrDevice under errors.Is.
type DeviceErrors struct {
	Records []Record
	Message string
}

func (e *DeviceErrors) Error() string {
	return e.Message
}

func (e *DeviceErrors) Is(target error) bool {
	return target == ivierr.ErrDevice
}

// Reader drains the error queue of one instrument. It is safe for concurrent use.
type Reader struct {
	q   Querier
	cfg *Config

	mu       sync.Mutex
	records  []Record
	compound strings.Builder
}

// NewReader creates a Reader over q.
func NewReader(q Querier, opts ...Option) (*Reader, error) {
	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}

	return &Reader{q: q, cfg: cfg}, nil
}

// ReadDeviceErrors queries the error queue until the no-error entry, and returns the records
// read by this call. The records are also added to the local report.
//
// When the limit of queries is reached first, the records read so far are returned with
// ErrDrainLimit. Transport and timeout failures are returned as is.
func (r *Reader) ReadDeviceErrors() ([]Record, error) {
	var got []Record

	for i := 0; i < r.cfg.maxIterations; i++ {
		reply, err := r.q.Query(r.cfg.query)
		if err != nil {
			return got, err
		}

		rec, err := ParseRecord(reply)
		if err != nil {
			return got, err
		}
		if rec.Code == r.cfg.noErrorCode {
			return got, nil
		}

		r.cfg.logger.Debug("device error", "code", rec.Code, "message", rec.Message)
		got = append(got, rec)
		r.accumulate(rec)
	}

	r.cfg.logger.Warn("error queue drain limit reached", "limit", r.cfg.maxIterations, "read", len(got))

	return got, fmt.Errorf("%w: %d queries", ErrDrainLimit, r.cfg.maxIterations)
}

func (r *Reader) accumulate(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.records) == 0 {
		r.compound.WriteString(r.cfg.preamble)
	}
	r.records = append(r.records, rec)
	if r.compound.Len() > 0 {
		r.compound.WriteString("\n")
	}
	r.compound.WriteString(rec.String())
}

// ClearErrorReport resets the local report. The device queue is not touched.
func (r *Reader) ClearErrorReport() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = nil
	r.compound.Reset()
}

// ClearDeviceQueue sends the clear command, which empties the device error queue.
// The local report is not touched.
func (r *Reader) ClearDeviceQueue() error {
	return r.q.WriteLine(r.cfg.clearCommand)
}

// HasError reports whether the local report holds any record.
func (r *Reader) HasError() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.records) > 0
}

// LastError returns the most recent record of the local report.
func (r *Reader) LastError() (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.records) == 0 {
		return Record{}, false
	}

	return r.records[len(r.records)-1], true
}

// Records returns a copy of the local report.
func (r *Reader) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]Record(nil), r.records...)
}

// CompoundMessage returns the preamble followed by one line per accumulated record,
// or an empty string when the report is empty.
func (r *Reader) CompoundMessage() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.compound.String()
}

// Err returns the local report as a *DeviceErrors, or nil when it is empty.
func (r *Reader) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.records) == 0 {
		return nil
	}

	return &DeviceErrors{
		Records: append([]Record(nil), r.records...),
		Message: r.compound.String(),
	}
}
