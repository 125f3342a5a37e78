package simulator

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/arloliu/go-ivi/internal/pool"
	"github.com/arloliu/go-ivi/internal/queue"
	"github.com/arloliu/go-ivi/logger"
	"github.com/arloliu/go-ivi/status"
)

// Status byte bits of the simulated instrument.
const (
	stbMSB = 0x01
	stbEAV = 0x04
	stbQSB = 0x08
	stbMAV = 0x10
	stbESB = 0x20
	stbRQS = 0x40
	stbOSB = 0x80
)

// Measurement event bits raised by the simulator.
const (
	ReadingAvailableBit   = 1 << 6
	ContactCheckFailedBit = 1 << 10
)

// Defaults of a new Instrument.
const (
	DefaultIdentity         = "GO-IVI,SIM-2450,0000001,1.0.0"
	DefaultReading          = "+1.000000E+00"
	DefaultOutputQueueSize  = 64
	DefaultErrorQueueSize   = 10
	DefaultTimeout          = 2 * time.Second
	DefaultContactThreshold = 50.0
)

// CommandFunc handles a custom command. A non-empty reply is queued for reading. A returned
// *DeviceError is pushed to the error queue as is; any other error is pushed as an execution error.
type CommandFunc func(args string) (reply string, err error)

type eventRegister struct {
	event  int
	enable int
}

type reply struct {
	data    []byte
	readyAt time.Time
}

// Instrument is a simulated message-based instrument. It is safe for concurrent use.
type Instrument struct {
	mu     sync.Mutex
	logger logger.Logger

	identity      string
	termination   []byte
	readings      []string
	readingIdx    int
	responseDelay time.Duration
	timeout       time.Duration

	connected bool
	closedCh  chan struct{}
	wake      chan struct{}

	input    []byte
	output   *queue.Queue[reply]
	current  []byte
	errQueue *queue.Queue[*DeviceError]

	esr  status.StandardEvent
	ese  status.StandardEvent
	sre  status.StatusByte
	meas eventRegister
	oper eventRegister
	ques eventRegister

	srqFn      func()
	srqCount   int
	summary    bool
	rqsLatched bool

	failStatusReads int
	failWrites      int

	contactThreshold float64
	highOhms         float64
	lowOhms          float64

	commands map[string]CommandFunc
	history  []string
}

// Option configures an Instrument.
type Option func(*Instrument)

// WithIdentity sets the *IDN? reply.
func WithIdentity(idn string) Option {
	return func(i *Instrument) { i.identity = idn }
}

// WithTermination sets the termination sequence of commands and replies.
func WithTermination(term []byte) Option {
	return func(i *Instrument) {
		if len(term) > 0 {
			i.termination = append([]byte(nil), term...)
		}
	}
}

// WithReadings sets the readings returned, in rotation, by measurement queries.
func WithReadings(values ...string) Option {
	return func(i *Instrument) { i.readings = append([]string(nil), values...) }
}

// WithQueueSizes sets the capacities of the output queue and the error queue.
func WithQueueSizes(output, errs int) Option {
	return func(i *Instrument) {
		i.output = queue.New[reply](output)
		i.errQueue = queue.New[*DeviceError](errs)
	}
}

// WithResponseDelay delays every reply by d.
func WithResponseDelay(d time.Duration) Option {
	return func(i *Instrument) { i.responseDelay = d }
}

// WithLeadResistance sets the sense-high and sense-low lead resistances in ohms.
func WithLeadResistance(high, low float64) Option {
	return func(i *Instrument) { i.highOhms, i.lowOhms = high, low }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(i *Instrument) {
		if l != nil {
			i.logger = l
		}
	}
}

// New creates a connected instrument.
func New(opts ...Option) *Instrument {
	i := &Instrument{
		logger:           logger.GetLogger(),
		identity:         DefaultIdentity,
		termination:      []byte{'\n'},
		readings:         []string{DefaultReading},
		timeout:          DefaultTimeout,
		connected:        true,
		closedCh:         make(chan struct{}),
		wake:             make(chan struct{}, 1),
		output:           queue.New[reply](DefaultOutputQueueSize),
		errQueue:         queue.New[*DeviceError](DefaultErrorQueueSize),
		contactThreshold: DefaultContactThreshold,
		commands:         make(map[string]CommandFunc),
	}
	for _, opt := range opts {
		opt(i)
	}

	return i
}

// Connect reconnects a closed instrument. Queued output and partial input are discarded;
// the status registers are kept.
func (i *Instrument) Connect() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.connected {
		return nil
	}
	i.connected = true
	i.closedCh = make(chan struct{})
	i.input = nil
	i.current = nil
	i.output.Reset()
	i.update()

	return nil
}

// Connected reports whether the instrument is connected.
func (i *Instrument) Connected() bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	return i.connected
}

// Write receives terminated commands. Several commands may be joined with ';'.
func (i *Instrument) Write(p []byte) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.connected {
		return 0, ErrClosed
	}
	if i.failWrites > 0 {
		i.failWrites--
		return 0, ErrInjected
	}

	i.input = append(i.input, p...)
	for {
		idx := bytes.Index(i.input, i.termination)
		if idx < 0 {
			break
		}
		line := string(i.input[:idx])
		i.input = i.input[idx+len(i.termination):]
		for _, cmd := range strings.Split(line, ";") {
			i.execute(cmd)
		}
	}
	i.update()

	return len(p), nil
}

// Read returns queued output. It blocks until a reply is ready, the timeout elapses, or
// the instrument is closed.
func (i *Instrument) Read(p []byte) (int, error) {
	i.mu.Lock()
	deadline := time.Now().Add(i.timeout)

	for {
		if !i.connected {
			i.mu.Unlock()
			return 0, ErrClosed
		}

		if len(i.current) == 0 {
			if head, ok := i.output.Peek(); ok && !time.Now().Before(head.readyAt) {
				_, _ = i.output.Dequeue()
				i.current = head.data
			}
		}
		if len(i.current) > 0 {
			n := copy(p, i.current)
			i.current = i.current[n:]
			i.update()
			i.mu.Unlock()

			return n, nil
		}

		wait := time.Until(deadline)
		if wait <= 0 {
			i.mu.Unlock()
			return 0, fmt.Errorf("%w: %w", ErrReadTimeout, os.ErrDeadlineExceeded)
		}
		if head, ok := i.output.Peek(); ok {
			if until := time.Until(head.readyAt); until < wait {
				wait = until
			}
		}

		wake, closed := i.wake, i.closedCh
		i.mu.Unlock()

		if wait > 0 {
			t := pool.GetTimer(wait)
			select {
			case <-wake:
			case <-closed:
			case <-t.C:
			}
			pool.PutTimer(t)
		}

		i.mu.Lock()
	}
}

// SetTimeout sets the read timeout.
func (i *Instrument) SetTimeout(d time.Duration) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.timeout = d

	return nil
}

// ReadStatusByte performs a serial poll. Bit 6 reports a pending service request, which
// the poll acknowledges.
func (i *Instrument) ReadStatusByte() (byte, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.connected {
		return 0, ErrClosed
	}
	if i.failStatusReads > 0 {
		i.failStatusReads--
		return 0, ErrInjected
	}

	stb := i.statusByte() &^ stbRQS
	if i.rqsLatched {
		stb |= stbRQS
	}
	i.rqsLatched = false

	return stb, nil
}

// Clear performs a device clear: unread output and partial input are discarded.
func (i *Instrument) Clear() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.connected {
		return ErrClosed
	}
	i.input = nil
	i.current = nil
	i.output.Reset()
	i.update()

	return nil
}

// Close disconnects the instrument and unblocks pending reads.
func (i *Instrument) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.connected {
		return nil
	}
	i.connected = false
	i.srqFn = nil
	close(i.closedCh)

	return nil
}

// EnableServiceRequest registers fn to be called on every rising service request edge.
func (i *Instrument) EnableServiceRequest(fn func()) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.connected {
		return ErrClosed
	}
	i.srqFn = fn
	if fn != nil && i.rqsLatched {
		i.srqCount++
		go fn()
	}

	return nil
}

// DisableServiceRequest removes the service request callback.
func (i *Instrument) DisableServiceRequest() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.srqFn = nil

	return nil
}

// ServiceRequests returns how many times the service request callback was called.
func (i *Instrument) ServiceRequests() int {
	i.mu.Lock()
	defer i.mu.Unlock()

	return i.srqCount
}

// StatusByte returns the current status byte as *STB? would report it.
func (i *Instrument) StatusByte() status.StatusByte {
	i.mu.Lock()
	defer i.mu.Unlock()

	return status.StatusByte(i.statusByte())
}

// Handle registers fn for header, which overrides the built-in command of the same header.
// Headers are matched in their SCPI short form.
func (i *Instrument) Handle(header string, fn CommandFunc) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.commands[shortForm(header)] = fn
}

// SetReadings replaces the measurement readings.
func (i *Instrument) SetReadings(values ...string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.readings = append([]string(nil), values...)
	i.readingIdx = 0
}

// SetLeadResistance sets the sense-high and sense-low lead resistances in ohms.
func (i *Instrument) SetLeadResistance(high, low float64) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.highOhms, i.lowOhms = high, low
}

// PushError appends an entry to the error queue and sets the matching event status bit.
func (i *Instrument) PushError(code int, message string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.pushError(&DeviceError{Code: code, Message: message})
	i.update()
}

// RaiseMeasurementEvent sets bits in the measurement event register.
func (i *Instrument) RaiseMeasurementEvent(bits int) {
	i.raise(&i.meas, bits)
}

// RaiseOperationEvent sets bits in the operation event register.
func (i *Instrument) RaiseOperationEvent(bits int) {
	i.raise(&i.oper, bits)
}

// RaiseQuestionableEvent sets bits in the questionable event register.
func (i *Instrument) RaiseQuestionableEvent(bits int) {
	i.raise(&i.ques, bits)
}

// FailStatusReads makes the next n serial polls fail with ErrInjected.
func (i *Instrument) FailStatusReads(n int) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.failStatusReads = n
}

// FailWrites makes the next n writes fail with ErrInjected.
func (i *Instrument) FailWrites(n int) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.failWrites = n
}

// History returns the commands received so far.
func (i *Instrument) History() []string {
	i.mu.Lock()
	defer i.mu.Unlock()

	return append([]string(nil), i.history...)
}

func (i *Instrument) raise(r *eventRegister, bits int) {
	i.mu.Lock()
	defer i.mu.Unlock()

	r.event |= bits
	i.update()
}

// statusByte must be called with mu held.
func (i *Instrument) statusByte() byte {
	var stb byte
	if i.meas.event&i.meas.enable != 0 {
		stb |= stbMSB
	}
	if !i.errQueue.IsEmpty() {
		stb |= stbEAV
	}
	if i.ques.event&i.ques.enable != 0 {
		stb |= stbQSB
	}
	if len(i.current) > 0 || !i.output.IsEmpty() {
		stb |= stbMAV
	}
	if uint8(i.esr)&uint8(i.ese) != 0 {
		stb |= stbESB
	}
	if i.oper.event&i.oper.enable != 0 {
		stb |= stbOSB
	}
	if stb&uint8(i.sre) != 0 {
		stb |= stbRQS
	}

	return stb
}

// update latches a rising service request edge and calls the callback.
// It must be called with mu held after every state change.
func (i *Instrument) update() {
	summary := i.statusByte()&stbRQS != 0
	if summary && !i.summary {
		i.rqsLatched = true
		if fn := i.srqFn; fn != nil {
			i.srqCount++
			go fn()
		}
	}
	i.summary = summary
}

func (i *Instrument) push(s string) {
	data := make([]byte, 0, len(s)+len(i.termination))
	data = append(data, s...)
	data = append(data, i.termination...)

	if !i.output.Enqueue(reply{data: data, readyAt: time.Now().Add(i.responseDelay)}) {
		i.pushError(ErrQueueOverflow)
		return
	}

	select {
	case i.wake <- struct{}{}:
	default:
	}
}

func (i *Instrument) pushError(e *DeviceError) {
	_ = i.errQueue.Enqueue(e)

	switch {
	case e.Code <= -100 && e.Code > -200:
		i.esr |= status.CommandError
	case e.Code <= -200 && e.Code > -300:
		i.esr |= status.ExecutionError
	case e.Code <= -300 && e.Code > -400:
		i.esr |= status.DeviceDependentError
	case e.Code <= -400 && e.Code > -500:
		i.esr |= status.QueryError
	case e.Code > 0:
		i.esr |= status.DeviceDependentError
	}
}

func (i *Instrument) nextReading() string {
	if len(i.readings) == 0 {
		return DefaultReading
	}
	r := i.readings[i.readingIdx%len(i.readings)]
	i.readingIdx++
	i.meas.event |= ReadingAvailableBit

	return r
}
