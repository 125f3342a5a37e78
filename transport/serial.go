package transport

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/arloliu/go-ivi/logger"
)

// SerialSettings is the line configuration of an ASRL resource.
type SerialSettings struct {
	BaudRate int `yaml:"baud_rate" toml:"baud_rate" json:"baud_rate" jsonschema:"minimum=50,maximum=4000000"`
	DataBits int `yaml:"data_bits" toml:"data_bits" json:"data_bits" jsonschema:"enum=5,enum=6,enum=7,enum=8"`
	// Parity is one of none, odd, even, mark, space.
	Parity string `yaml:"parity" toml:"parity" json:"parity" jsonschema:"enum=none,enum=odd,enum=even,enum=mark,enum=space"`
	// StopBits is one of 1, 1.5, 2.
	StopBits string `yaml:"stop_bits" toml:"stop_bits" json:"stop_bits" jsonschema:"enum=1,enum=1.5,enum=2"`
}

// DefaultSerialSettings returns 9600 baud, 8 data bits, no parity, one stop bit.
func DefaultSerialSettings() SerialSettings {
	return SerialSettings{BaudRate: 9600, DataBits: 8, Parity: "none", StopBits: "1"}
}

// Mode converts the settings into a serial port mode.
func (ss SerialSettings) Mode() (*serial.Mode, error) {
	if ss.BaudRate < 50 || ss.BaudRate > 4_000_000 {
		return nil, fmt.Errorf("%w: baud rate %d", ErrInvalidSerialSettings, ss.BaudRate)
	}
	if ss.DataBits < 5 || ss.DataBits > 8 {
		return nil, fmt.Errorf("%w: data bits %d", ErrInvalidSerialSettings, ss.DataBits)
	}

	mode := &serial.Mode{BaudRate: ss.BaudRate, DataBits: ss.DataBits}

	switch strings.ToLower(ss.Parity) {
	case "", "none":
		mode.Parity = serial.NoParity
	case "odd":
		mode.Parity = serial.OddParity
	case "even":
		mode.Parity = serial.EvenParity
	case "mark":
		mode.Parity = serial.MarkParity
	case "space":
		mode.Parity = serial.SpaceParity
	default:
		return nil, fmt.Errorf("%w: parity %q", ErrInvalidSerialSettings, ss.Parity)
	}

	switch ss.StopBits {
	case "", "1":
		mode.StopBits = serial.OneStopBit
	case "1.5":
		mode.StopBits = serial.OnePointFiveStopBits
	case "2":
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("%w: stop bits %q", ErrInvalidSerialSettings, ss.StopBits)
	}

	return mode, nil
}

// PortName maps an ASRL board number to the operating system port name.
// ASRL1 is COM1 on Windows and /dev/ttyS0 elsewhere.
func PortName(board int) string {
	if runtime.GOOS == "windows" {
		return fmt.Sprintf("COM%d", board)
	}
	if board < 1 {
		board = 1
	}

	return fmt.Sprintf("/dev/ttyS%d", board-1)
}

// Serial is a serial port transport (ASRL::INSTR).
type Serial struct {
	port   serial.Port
	device string
	framer *framer
	logger logger.Logger

	mu      sync.Mutex
	timeout time.Duration
}

// OpenSerial opens device with the given line settings.
func OpenSerial(device string, settings SerialSettings, timeout time.Duration, termination []byte, l logger.Logger) (*Serial, error) {
	mode, err := settings.Mode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("transport: open %s: %w", device, err)
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("transport: configure %s: %w", device, err)
	}

	if l == nil {
		l = logger.GetLogger()
	}
	l.Debug("serial port opened", "device", device, "baud_rate", mode.BaudRate)

	return &Serial{
		port:    port,
		device:  device,
		framer:  newFramer(termination),
		logger:  l,
		timeout: timeout,
	}, nil
}

// Device returns the port name.
func (s *Serial) Device() string {
	return s.device
}

// Write writes p to the port.
func (s *Serial) Write(p []byte) (int, error) {
	return s.framer.write(p, s.port.Write)
}

// Read reads the available bytes. The port reports a timeout as a zero-length read,
// which is returned as os.ErrDeadlineExceeded.
func (s *Serial) Read(p []byte) (int, error) {
	return s.framer.read(p, s.readRaw)
}

func (s *Serial) readRaw(p []byte) (int, error) {
	n, err := s.port.Read(p)
	if n == 0 && err == nil {
		return 0, os.ErrDeadlineExceeded
	}

	return n, err
}

// SetTimeout sets the read timeout.
func (s *Serial) SetTimeout(d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.port.SetReadTimeout(d); err != nil {
		return err
	}
	s.timeout = d

	return nil
}

// ReadStatusByte queries *STB?. Replies that were still unread stay readable.
func (s *Serial) ReadStatusByte() (byte, error) {
	s.mu.Lock()
	timeout := s.timeout
	s.mu.Unlock()

	return queryStatusByte(rawLink{read: s.readRaw, write: s.port.Write}, s.framer, timeout)
}

// SetTermination sets the sequence that frames *STB? and its reply.
func (s *Serial) SetTermination(term []byte) error {
	if len(term) == 0 {
		return ErrInvalidTermination
	}
	s.framer.setTermination(term)

	return nil
}

// Clear discards both port buffers.
func (s *Serial) Clear() error {
	s.framer.reset()
	if err := s.port.ResetInputBuffer(); err != nil {
		return err
	}

	return s.port.ResetOutputBuffer()
}

// Close closes the port.
func (s *Serial) Close() error {
	return s.port.Close()
}
