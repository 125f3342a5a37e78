package session

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/arloliu/go-ivi/internal/pool"
	"github.com/arloliu/go-ivi/internal/util"
	"github.com/arloliu/go-ivi/logger"
	"github.com/arloliu/go-ivi/status"
)

// StatusHandler receives the decoded status of every applied status byte.
type StatusHandler func(flags status.EventFlags)

// Session owns one instrument transport.
//
// All methods are safe for concurrent use. Transport operations are serialized: a write,
// a read and a status byte read never overlap on one session, and a Query holds the
// session for its write and its read.
type Session struct {
	cfg     *Config
	id      uuid.UUID
	logger  logger.Logger
	metrics Metrics
	stack   *TimeoutStack

	state   atomicState
	ioState atomic.Uint32

	// ioMu serializes transport operations.
	ioMu    sync.Mutex
	pending []byte
	rbuf    []byte

	// mu protects the fields below.
	mu          sync.RWMutex
	transport   Transport
	resource    string
	termination []byte
	timeout     time.Duration
	ctx         context.Context
	cancel      context.CancelFunc
	handlers    []StatusHandler
	// openDone is closed when the running Open returns
	openDone chan struct{}

	lastStatus atomic.Pointer[status.EventFlags]
	lastWrite  atomic.Int64
}

// New creates a closed session.
func New(opts ...Option) (*Session, error) {
	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}

	return NewWithConfig(cfg), nil
}

// NewWithConfig creates a closed session from an existing configuration.
func NewWithConfig(cfg *Config) *Session {
	s := &Session{
		cfg:         cfg,
		id:          uuid.New(),
		termination: util.CloneSlice(cfg.termination, 0),
		timeout:     cfg.timeout,
		rbuf:        make([]byte, cfg.readBufferSize),
	}
	s.logger = cfg.logger.With("session_id", s.id.String())
	s.stack = NewTimeoutStack(s)

	return s
}

// ID returns the unique identifier of the session.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// ResourceName returns the resource of the current or last Open.
func (s *Session) ResourceName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.resource
}

// State returns the lifecycle state.
func (s *Session) State() State {
	return s.state.Get()
}

// IOState returns the I/O sub-state.
func (s *Session) IOState() IOState {
	return IOState(s.ioState.Load())
}

// Metrics returns the counters of the session.
func (s *Session) Metrics() *Metrics {
	return &s.metrics
}

// Config returns the session configuration.
func (s *Session) Config() *Config {
	return s.cfg
}

// Open dials resourceName and moves the session to the Open state.
//
// timeout becomes the I/O timeout; a zero timeout keeps the current one. On failure the
// session stays Closed and no transport is held.
func (s *Session) Open(ctx context.Context, resourceName string, timeout time.Duration) error {
	if timeout == 0 {
		timeout = s.Timeout()
	}
	if err := checkTimeout(timeout); err != nil {
		return err
	}

	s.mu.Lock()
	opening := s.state.toOpening()
	if opening {
		s.openDone = make(chan struct{})
	}
	done := s.openDone
	s.mu.Unlock()
	if !opening {
		return ErrAlreadyOpen
	}
	defer close(done)

	if !s.cfg.registry.acquire(resourceName, s) {
		s.state.set(ClosedState)
		return fmt.Errorf("%w: %s", ErrResourceBusy, resourceName)
	}

	l := s.logger.With("resource", resourceName)
	l.Debug("open session", "timeout", timeout)

	t, err := s.dial(ctx, resourceName, timeout)
	if err != nil {
		s.cfg.registry.release(resourceName, s)
		s.state.set(ClosedState)
		l.Warn("open session failed", "error", err)

		return err
	}

	sctx, cancel := context.WithCancel(context.Background())

	s.ioMu.Lock()
	s.pending = s.pending[:0]
	s.ioMu.Unlock()

	s.mu.Lock()
	s.transport = t
	s.resource = resourceName
	s.timeout = timeout
	s.ctx = sctx
	s.cancel = cancel
	s.mu.Unlock()

	if !s.state.toOpen() {
		// Close was called while dialing
		s.mu.Lock()
		s.transport = nil
		s.mu.Unlock()
		cancel()
		_ = t.Close()
		s.cfg.registry.release(resourceName, s)
		s.state.set(ClosedState)

		return ErrNotOpen
	}

	s.metrics.incOpenCount()
	l.Info("session opened")

	return nil
}

func (s *Session) dial(ctx context.Context, resourceName string, timeout time.Duration) (t Transport, err error) {
	t, err = s.cfg.dialer.Dial(ctx, resourceName, timeout)
	if err != nil {
		return nil, wrapErr(ErrOpenFailed, err)
	}

	// the transport must be released on every failure below
	defer func() {
		if err != nil {
			_ = t.Close()
		}
	}()

	if err = t.SetTimeout(timeout); err != nil {
		return nil, wrapErr(ErrOpenFailed, err)
	}
	if ts, ok := t.(TerminationSetter); ok {
		if err = ts.SetTermination(s.TerminationCharacters()); err != nil {
			return nil, wrapErr(ErrOpenFailed, err)
		}
	}

	return t, nil
}

// Close releases the transport. It cancels pending settle delays, waits for the in-flight
// operation to return, and unregisters the resource.
//
// Close is idempotent; closing a closed session returns nil. The transport close error is
// returned, but the session is Closed either way. Closing a session that is still opening
// makes that Open fail with ErrNotOpen, and Close returns once the Open has released its
// transport.
func (s *Session) Close() error {
	if !s.state.toClosing() {
		s.mu.RLock()
		canceled := s.state.cancelOpening()
		done := s.openDone
		s.mu.RUnlock()

		// the Open in progress sees the transition and releases its own transport
		if canceled {
			<-done
		}

		return nil
	}

	s.mu.Lock()
	t := s.transport
	cancel := s.cancel
	resource := s.resource
	s.transport = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	var err error
	if t != nil {
		if sr, ok := t.(ServiceRequester); ok {
			_ = sr.DisableServiceRequest()
		}
		// closing the transport unblocks a pending read
		if cerr := t.Close(); cerr != nil {
			err = wrapErr(ErrCloseFailed, cerr)
		}
	}

	// join the in-flight operation
	s.ioMu.Lock()
	s.pending = s.pending[:0]
	s.ioState.Store(uint32(IOIdle))
	s.ioMu.Unlock()

	s.cfg.registry.release(resource, s)
	s.state.toClosed()
	s.logger.Info("session closed", "resource", resource)

	return err
}

// Timeout returns the current I/O timeout.
func (s *Session) Timeout() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.timeout
}

// SetTimeout sets the I/O timeout. The new value applies from the next transport operation.
func (s *Session) SetTimeout(d time.Duration) error {
	if err := checkTimeout(d); err != nil {
		return err
	}

	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.transport != nil {
		if err := s.transport.SetTimeout(d); err != nil {
			return wrapErr(ErrSetTimeoutFailed, err)
		}
	}
	s.timeout = d

	return nil
}

// StoreTimeout pushes the current timeout and installs d.
func (s *Session) StoreTimeout(d time.Duration) error {
	return s.stack.Store(d)
}

// RestoreTimeout re-installs the timeout saved by the matching StoreTimeout.
func (s *Session) RestoreTimeout() error {
	return s.stack.Restore()
}

// TimeoutDepth returns the number of outstanding StoreTimeout calls.
func (s *Session) TimeoutDepth() int {
	return s.stack.Depth()
}

// WithTimeout runs fn with timeout d and restores the previous timeout on every exit path.
func (s *Session) WithTimeout(d time.Duration, fn func() error) error {
	return s.stack.Bracket(d, fn)
}

// NewTermination sets the termination sequence appended to writes and expected on reads.
// The sequence must hold 1 to MaxTerminationLength bytes. An open transport that implements
// TerminationSetter receives the new sequence too.
func (s *Session) NewTermination(chars []byte) error {
	if err := checkTermination(chars); err != nil {
		return err
	}

	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if ts, ok := s.transport.(TerminationSetter); ok {
		if err := ts.SetTermination(chars); err != nil {
			return wrapErr(ErrSetTerminationFailed, err)
		}
	}
	s.termination = util.CloneSlice(chars, 0)

	return nil
}

// TerminationCharacters returns a copy of the termination sequence.
func (s *Session) TerminationCharacters() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return util.CloneSlice(s.termination, 0)
}

// Elapsed returns the time since the last WriteLine started, or zero before the first write.
func (s *Session) Elapsed() time.Duration {
	start := s.lastWrite.Load()
	if start == 0 {
		return 0
	}

	return time.Since(time.Unix(0, start))
}

// ServiceRequester returns the hardware service request capability of the open transport.
func (s *Session) ServiceRequester() (ServiceRequester, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sr, ok := s.transport.(ServiceRequester)

	return sr, ok
}

// AddStatusHandler registers h to receive the flags of every applied status byte.
func (s *Session) AddStatusHandler(h StatusHandler) {
	if h == nil {
		return
	}

	s.mu.Lock()
	s.handlers = append(s.handlers, h)
	s.mu.Unlock()
}

// LastStatus returns the flags of the last applied status byte.
func (s *Session) LastStatus() (status.EventFlags, bool) {
	flags := s.lastStatus.Load()
	if flags == nil {
		return status.EventFlags{}, false
	}

	return *flags, true
}

// ApplyStatusByte decodes stb with the configured status layout, records the result as
// the last status and publishes it to the status handlers. It performs no I/O.
func (s *Session) ApplyStatusByte(stb status.StatusByte) status.EventFlags {
	flags := status.Decode(stb, s.cfg.statusBitmasks)
	s.lastStatus.Store(&flags)

	s.mu.RLock()
	handlers := s.handlers
	s.mu.RUnlock()

	for _, h := range handlers {
		h(flags)
	}

	return flags
}

// WriteLine appends the termination sequence to command and sends it.
func (s *Session) WriteLine(command string) error {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	ic, err := s.begin()
	if err != nil {
		return err
	}

	return s.writeLocked(ic, command)
}

// ReadLine reads until the termination sequence and returns the line without it.
func (s *Session) ReadLine() (string, error) {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	ic, err := s.begin()
	if err != nil {
		return "", err
	}

	return s.readLocked(ic)
}

// Query writes command, waits the read-after-write delay, and reads one reply line.
// No other operation of the session runs between the write and the read.
func (s *Session) Query(command string) (string, error) {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	ic, err := s.begin()
	if err != nil {
		return "", err
	}

	start := time.Now()
	if err := s.writeLocked(ic, command); err != nil {
		return "", err
	}
	if err := s.delay(ic.ctx, s.cfg.readAfterWriteDelay); err != nil {
		return "", err
	}

	reply, err := s.readLocked(ic)
	if err != nil {
		return "", err
	}
	s.metrics.setLastQuery(time.Since(start))

	return reply, nil
}

// ReadStatusByte reads the raw status byte. A failed read is retried up to the configured
// number of times after the status retry delay.
func (s *Session) ReadStatusByte() (status.StatusByte, error) {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	ic, err := s.begin()
	if err != nil {
		return 0, err
	}

	s.setIOState(IOPolling)
	defer s.setIOState(IOIdle)

	if err := s.delay(ic.ctx, s.cfg.statusReadDelay); err != nil {
		return 0, err
	}

	var lastErr error
	for attempt := 0; attempt <= s.cfg.statusReadRetries; attempt++ {
		if attempt > 0 {
			s.metrics.incStatusRetryCount()
			s.logger.Debug("retry status byte read", "attempt", attempt, "error", lastErr)
			if err := s.delay(ic.ctx, s.cfg.statusRetryDelay); err != nil {
				return 0, err
			}
		}

		stb, err := ic.t.ReadStatusByte()
		if err == nil {
			s.metrics.incStatusReadCount()
			s.cfg.tracer.StatusRead(s.id, ic.resource, stb)

			return status.StatusByte(stb), nil
		}
		lastErr = err
	}

	s.metrics.incErr(isTimeout(lastErr))
	s.cfg.tracer.Failed(s.id, ic.resource, "status", lastErr)

	return 0, wrapErr(ErrStatusReadFailed, lastErr)
}

// ClearActiveState issues a device clear, discards unread input, then waits refractory
// before returning. The wait is cut short with ErrNotOpen when the session closes.
func (s *Session) ClearActiveState(refractory time.Duration) error {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	ic, err := s.begin()
	if err != nil {
		return err
	}

	s.pending = s.pending[:0]
	if err := ic.t.Clear(); err != nil {
		s.metrics.incErr(isTimeout(err))
		s.cfg.tracer.Failed(s.id, ic.resource, "clear", err)

		return wrapErr(ErrClearFailed, err)
	}
	s.metrics.incClearCount()
	s.logger.Debug("device cleared", "refractory", refractory)

	return s.delay(ic.ctx, refractory)
}

// ioContext is the snapshot of the open session used by one transport operation.
type ioContext struct {
	t           Transport
	ctx         context.Context
	resource    string
	termination []byte
	timeout     time.Duration
}

// begin must be called with ioMu held.
func (s *Session) begin() (ioContext, error) {
	if !s.state.IsOpen() {
		return ioContext{}, ErrNotOpen
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.transport == nil {
		return ioContext{}, ErrNotOpen
	}

	return ioContext{
		t:           s.transport,
		ctx:         s.ctx,
		resource:    s.resource,
		termination: s.termination,
		timeout:     s.timeout,
	}, nil
}

func (s *Session) setIOState(st IOState) {
	s.ioState.Store(uint32(st))
}

func (s *Session) delay(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	if err := pool.Sleep(ctx, d); err != nil {
		return ErrNotOpen
	}

	return nil
}

func (s *Session) writeLocked(ic ioContext, command string) error {
	s.setIOState(IOWriting)
	defer s.setIOState(IOIdle)

	data := make([]byte, 0, len(command)+len(ic.termination))
	data = append(data, command...)
	data = append(data, ic.termination...)

	s.lastWrite.Store(time.Now().UnixNano())
	s.logger.Debug("write", "command", command)

	if _, err := ic.t.Write(data); err != nil {
		return s.ioFailure(ic, "write", err, ErrWriteTimeout, ErrWriteFailed)
	}

	s.metrics.addWrite(len(data))
	s.cfg.tracer.Sent(s.id, ic.resource, data)

	return nil
}

func (s *Session) readLocked(ic ioContext) (string, error) {
	s.setIOState(IOReading)
	defer s.setIOState(IOIdle)

	deadline := time.Now().Add(ic.timeout)
	for {
		if idx := bytes.Index(s.pending, ic.termination); idx >= 0 {
			n := idx + len(ic.termination)
			line := string(s.pending[:idx])
			s.cfg.tracer.Received(s.id, ic.resource, s.pending[:n])
			s.pending = append(s.pending[:0], s.pending[n:]...)
			s.metrics.addRead(n)
			s.logger.Debug("read", "reply", line)

			return line, nil
		}

		if ic.ctx.Err() != nil {
			return "", ErrNotOpen
		}
		if time.Now().After(deadline) {
			return "", s.ioFailure(ic, "read", errNoTermination, ErrReadTimeout, ErrReadFailed)
		}

		n, err := ic.t.Read(s.rbuf)
		if n > 0 {
			s.pending = append(s.pending, s.rbuf[:n]...)
		}
		if err != nil {
			if n > 0 && bytes.Contains(s.pending, ic.termination) {
				continue
			}
			if ic.ctx.Err() != nil {
				return "", ErrNotOpen
			}

			return "", s.ioFailure(ic, "read", err, ErrReadTimeout, ErrReadFailed)
		}
	}
}

func (s *Session) ioFailure(ic ioContext, op string, err error, timeoutErr error, transportErr error) error {
	timeout := isTimeout(err)
	s.metrics.incErr(timeout)
	s.cfg.tracer.Failed(s.id, ic.resource, op, err)
	s.logger.Debug("transport failure", "op", op, "error", err)

	if timeout {
		return wrapErr(timeoutErr, err)
	}

	return wrapErr(transportErr, err)
}
