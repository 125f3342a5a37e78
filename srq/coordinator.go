package srq

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-ivi/errqueue"
	"github.com/arloliu/go-ivi/internal/task"
	"github.com/arloliu/go-ivi/ivierr"
	"github.com/arloliu/go-ivi/logger"
	"github.com/arloliu/go-ivi/session"
	"github.com/arloliu/go-ivi/status"
)

var (
	// ErrModeConflict is returned when enabling one delivery mode while the other is active.
	ErrModeConflict = ivierr.New("srq: interrupt and poll modes are mutually exclusive",
		ivierr.ErrConfiguration, ivierr.ErrProtocolViolation)
	// ErrInterruptUnsupported is returned by AttachInterrupt when the transport cannot deliver service requests.
	ErrInterruptUnsupported = ivierr.New("srq: transport does not support service requests", ivierr.ErrConfiguration)
	// ErrInvalidInterval is returned for a poll interval below MinPollInterval.
	ErrInvalidInterval = ivierr.New("srq: invalid poll interval", ivierr.ErrConfiguration)
	// ErrClosed is returned by operations on a closed coordinator.
	ErrClosed = ivierr.New("srq: coordinator closed", ivierr.ErrProtocolViolation)
)

const (
	consumerTask = "srq-consumer"
	pollTask     = "srq-poll"
)

// Mode is the active delivery mode.
type Mode int32

const (
	ModeNone Mode = iota
	ModeInterrupt
	ModePoll
)

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeInterrupt:
		return "interrupt"
	case ModePoll:
		return "poll"
	default:
		return "unknown"
	}
}

// Source tells what triggered an Event.
type Source int

const (
	SourceInterrupt Source = iota + 1
	SourcePoll
)

func (s Source) String() string {
	switch s {
	case SourceInterrupt:
		return "interrupt"
	case SourcePoll:
		return "poll"
	default:
		return "unknown"
	}
}

// Session is the part of a session driven by the Coordinator.
type Session interface {
	ReadStatusByte() (status.StatusByte, error)
	ApplyStatusByte(stb status.StatusByte) status.EventFlags
	ReadLine() (string, error)
	ServiceRequester() (session.ServiceRequester, bool)
}

// ErrorReader drains the device error queue.
type ErrorReader interface {
	ReadDeviceErrors() ([]errqueue.Record, error)
}

// Event is the outcome of one status byte read.
type Event struct {
	Time       time.Time
	Source     Source
	Flags      status.EventFlags
	Reading    string
	HasReading bool
	Errors     []errqueue.Record
	// Err holds the first failure of the read, auto-read or error drain.
	Err error
}

// Handler receives events on the consumer goroutine.
type Handler func(ev Event)

// Coordinator arbitrates between service request interrupts and status polling for one session.
type Coordinator struct {
	sess   Session
	cfg    *Config
	logger logger.Logger
	tasks  *task.Manager

	requests chan Source

	mu        sync.Mutex
	mode      Mode
	requester session.ServiceRequester
	handlers  []Handler
	closed    bool

	coalesced atomic.Uint64
	processed atomic.Uint64
}

// New creates a coordinator for sess and starts its consumer goroutine. No delivery mode is active.
func New(sess Session, opts ...Option) (*Coordinator, error) {
	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}

	c := &Coordinator{
		sess:     sess,
		cfg:      cfg,
		logger:   cfg.logger,
		tasks:    task.NewManager(context.Background(), cfg.logger),
		requests: make(chan Source, cfg.queueSize),
	}

	if err := task.StartConsumer(c.tasks, consumerTask, c.requests, c.process); err != nil {
		return nil, err
	}

	return c, nil
}

// Mode returns the active delivery mode.
func (c *Coordinator) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.mode
}

// AddHandler registers h to receive every event.
func (c *Coordinator) AddHandler(h Handler) {
	if h == nil {
		return
	}

	c.mu.Lock()
	c.handlers = append(c.handlers, h)
	c.mu.Unlock()
}

// AttachInterrupt enables interrupt mode. It fails with ErrModeConflict while polling.
func (c *Coordinator) AttachInterrupt() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	switch c.mode {
	case ModeInterrupt:
		return nil
	case ModePoll:
		return fmt.Errorf("%w: stop polling before attaching the interrupt handler", ErrModeConflict)
	}

	sr, ok := c.sess.ServiceRequester()
	if !ok || sr == nil {
		return ErrInterruptUnsupported
	}
	if err := sr.EnableServiceRequest(c.onServiceRequest); err != nil {
		return fmt.Errorf("srq: enable service request: %w", err)
	}

	c.requester = sr
	c.mode = ModeInterrupt
	c.logger.Debug("interrupt handler attached")

	return nil
}

// DetachInterrupt disables interrupt mode. It does nothing in other modes.
func (c *Coordinator) DetachInterrupt() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.detachLocked()
}

func (c *Coordinator) detachLocked() error {
	if c.mode != ModeInterrupt {
		return nil
	}

	sr := c.requester
	c.requester = nil
	c.mode = ModeNone
	c.logger.Debug("interrupt handler detached")

	if err := sr.DisableServiceRequest(); err != nil {
		return fmt.Errorf("srq: disable service request: %w", err)
	}

	return nil
}

// StartPolling enables poll mode with the given interval. It fails with ErrModeConflict while
// the interrupt handler is attached. Calling it while polling restarts the timer with the new interval.
func (c *Coordinator) StartPolling(interval time.Duration) error {
	if interval < MinPollInterval {
		return fmt.Errorf("%w: %v is below %v", ErrInvalidInterval, interval, MinPollInterval)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	switch c.mode {
	case ModeInterrupt:
		return fmt.Errorf("%w: detach the interrupt handler before polling", ErrModeConflict)
	case ModePoll:
		_ = c.tasks.StopTask(pollTask)
	}

	err := c.tasks.StartInterval(pollTask, func(context.Context) bool {
		c.enqueue(SourcePoll)
		return true
	}, interval, false)
	if err != nil {
		c.mode = ModeNone
		return err
	}

	c.mode = ModePoll
	c.logger.Debug("polling started", "interval", interval)

	return nil
}

// StopPolling disables poll mode and waits for the timer goroutine to exit.
// It does nothing in other modes.
func (c *Coordinator) StopPolling() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.stopPollingLocked()
}

func (c *Coordinator) stopPollingLocked() error {
	if c.mode != ModePoll {
		return nil
	}
	c.mode = ModeNone
	c.logger.Debug("polling stopped")

	return c.tasks.StopTask(pollTask)
}

// Coalesced returns how many requests were merged into a pending one.
func (c *Coordinator) Coalesced() uint64 {
	return c.coalesced.Load()
}

// Processed returns how many events were published.
func (c *Coordinator) Processed() uint64 {
	return c.processed.Load()
}

// Close leaves the active mode, then stops the poll timer and the consumer and waits for both
// to exit. Requests still queued are dropped. Close is idempotent.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	err := c.detachLocked()
	if perr := c.stopPollingLocked(); err == nil {
		err = perr
	}
	c.mu.Unlock()

	c.tasks.Stop()
	c.tasks.Wait()
	c.logger.Debug("coordinator closed", "processed", c.Processed(), "coalesced", c.Coalesced())

	return err
}

// onServiceRequest runs on a transport goroutine.
func (c *Coordinator) onServiceRequest() {
	c.enqueue(SourceInterrupt)
}

func (c *Coordinator) enqueue(src Source) {
	select {
	case c.requests <- src:
	default:
		c.coalesced.Add(1)
	}
}

func (c *Coordinator) process(ctx context.Context, src Source) bool {
	ev := Event{Time: time.Now(), Source: src}

	stb, err := c.sess.ReadStatusByte()
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		c.logger.Warn("status byte read failed", "source", src.String(), "error", err)
		ev.Err = err
		c.publish(ev)

		return true
	}

	ev.Flags = c.sess.ApplyStatusByte(stb)

	if ev.Flags.MessageAvailable && c.cfg.autoRead {
		line, err := c.sess.ReadLine()
		if err != nil {
			ev.Err = err
		} else {
			ev.Reading = line
			ev.HasReading = true
		}
	}

	if ev.Flags.ErrorAvailable && c.cfg.errorReader != nil {
		records, err := c.cfg.errorReader.ReadDeviceErrors()
		ev.Errors = records
		if err != nil && ev.Err == nil {
			ev.Err = err
		}
	}

	c.publish(ev)

	return ctx.Err() == nil
}

func (c *Coordinator) publish(ev Event) {
	c.processed.Add(1)

	c.mu.Lock()
	handlers := c.handlers
	c.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}
