package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/arloliu/go-ivi/logger"
	"github.com/arloliu/go-ivi/resource"
	"github.com/arloliu/go-ivi/session"
)

// Dialer opens Socket and Serial transports by resource name. It implements session.Dialer.
type Dialer struct {
	termination []byte
	serial      SerialSettings
	ports       map[int]string
	logger      logger.Logger
}

// DialerOption configures a Dialer.
type DialerOption func(*Dialer)

// WithTermination sets the initial termination used by ReadStatusByte. A session replaces it
// with its own sequence on Open and on NewTermination.
func WithTermination(term []byte) DialerOption {
	return func(d *Dialer) {
		if len(term) > 0 {
			d.termination = append([]byte(nil), term...)
		}
	}
}

// WithSerialSettings sets the line settings of ASRL resources.
func WithSerialSettings(ss SerialSettings) DialerOption {
	return func(d *Dialer) { d.serial = ss }
}

// WithPortName maps an ASRL board number to a device path, overriding PortName.
func WithPortName(board int, device string) DialerOption {
	return func(d *Dialer) { d.ports[board] = device }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) DialerOption {
	return func(d *Dialer) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDialer creates a dialer.
func NewDialer(opts ...DialerOption) *Dialer {
	d := &Dialer{
		termination: []byte{'\n'},
		serial:      DefaultSerialSettings(),
		ports:       make(map[int]string),
		logger:      logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Dial implements session.Dialer. TCPIP SOCKET resources open a Socket, ASRL resources a
// Serial port. Other resources need a VISA driver and fail with ErrUnsupportedResource.
func (d *Dialer) Dial(ctx context.Context, resourceName string, timeout time.Duration) (session.Transport, error) {
	name, err := resource.Parse(resourceName)
	if err != nil {
		return nil, err
	}

	switch {
	case name.Interface == resource.TCPIP && name.Class == resource.SOCKET:
		s, err := DialSocket(ctx, name.Address(), timeout, d.termination, d.logger)
		if err != nil {
			return nil, err
		}

		return s, nil
	case name.Interface == resource.ASRL:
		s, err := OpenSerial(d.device(name), d.serial, timeout, d.termination, d.logger)
		if err != nil {
			return nil, err
		}

		return s, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedResource, name)
	}
}

func (d *Dialer) device(name resource.Name) string {
	if name.Device != "" {
		return name.Device
	}
	if dev, ok := d.ports[name.Board]; ok {
		return dev
	}

	return PortName(name.Board)
}

var (
	_ session.Dialer            = (*Dialer)(nil)
	_ session.TerminationSetter = (*Socket)(nil)
	_ session.TerminationSetter = (*Serial)(nil)
)
