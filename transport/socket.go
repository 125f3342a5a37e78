package transport

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/arloliu/go-ivi/logger"
)

// drainSilence is the quiet period that ends a Clear.
const drainSilence = 20 * time.Millisecond

// Socket is a raw TCP socket transport (TCPIP::host::port::SOCKET).
type Socket struct {
	conn   net.Conn
	reader *bufio.Reader
	framer *framer
	logger logger.Logger

	mu      sync.Mutex
	timeout time.Duration
}

// DialSocket connects to address. The dial is bounded by ctx and timeout.
func DialSocket(ctx context.Context, address string, timeout time.Duration, termination []byte, l logger.Logger) (*Socket, error) {
	dialer := &net.Dialer{KeepAlive: 30 * time.Second}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := dialer.DialContext(dialCtx, "tcp", address)
	if err != nil {
		return nil, err
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}

	if l == nil {
		l = logger.GetLogger()
	}
	l.Debug("socket connected", "local_addr", conn.LocalAddr(), "remote_addr", conn.RemoteAddr())

	return newSocket(conn, timeout, termination, l), nil
}

func newSocket(conn net.Conn, timeout time.Duration, termination []byte, l logger.Logger) *Socket {
	return &Socket{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		framer:  newFramer(termination),
		logger:  l,
		timeout: timeout,
	}
}

func (s *Socket) getTimeout() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.timeout
}

// Write writes p within the timeout.
func (s *Socket) Write(p []byte) (int, error) {
	return s.framer.write(p, s.writeRaw)
}

func (s *Socket) writeRaw(p []byte) (int, error) {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.getTimeout())); err != nil {
		return 0, err
	}

	return s.conn.Write(p)
}

// Read reads the available bytes. It fails with os.ErrDeadlineExceeded when the
// timeout elapses without data.
func (s *Socket) Read(p []byte) (int, error) {
	return s.framer.read(p, s.readRaw)
}

func (s *Socket) readRaw(p []byte) (int, error) {
	if s.reader.Buffered() == 0 {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.getTimeout())); err != nil {
			return 0, err
		}
	}

	return s.reader.Read(p)
}

// SetTimeout sets the timeout of subsequent reads and writes.
func (s *Socket) SetTimeout(d time.Duration) error {
	s.mu.Lock()
	s.timeout = d
	s.mu.Unlock()

	return nil
}

// SetTermination sets the sequence that frames *STB? and its reply.
func (s *Socket) SetTermination(term []byte) error {
	if len(term) == 0 {
		return ErrInvalidTermination
	}
	s.framer.setTermination(term)

	return nil
}

// ReadStatusByte queries *STB?. Replies that were still unread stay readable.
func (s *Socket) ReadStatusByte() (byte, error) {
	return queryStatusByte(rawLink{read: s.readRaw, write: s.writeRaw}, s.framer, s.getTimeout())
}

// Clear discards pending input and drains the connection until it is silent.
// It fails with ErrClearTimeout when the device is still sending after the timeout.
func (s *Socket) Clear() error {
	s.framer.reset()
	if _, err := s.reader.Discard(s.reader.Buffered()); err != nil {
		return err
	}

	deadline := time.Now().Add(s.getTimeout())
	buf := make([]byte, 256)
	for {
		if !time.Now().Before(deadline) {
			s.logger.Warn("device still sending after clear", "remote_addr", s.conn.RemoteAddr())
			return ErrClearTimeout
		}

		if err := s.conn.SetReadDeadline(time.Now().Add(drainSilence)); err != nil {
			return err
		}
		if _, err := s.reader.Read(buf); err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return nil
			}

			return err
		}
	}
}

// Close closes the connection and unblocks a pending Read.
func (s *Socket) Close() error {
	return s.conn.Close()
}
