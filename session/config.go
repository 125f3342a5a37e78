package session

import (
	"fmt"
	"time"

	"github.com/arloliu/go-ivi/internal/util"
	"github.com/arloliu/go-ivi/logger"
	"github.com/arloliu/go-ivi/register"
	"github.com/arloliu/go-ivi/status"
)

// Default session settings.
const (
	DefaultTimeout             = 2 * time.Second
	DefaultStatusReadDelay     = 0
	DefaultReadAfterWriteDelay = 0
	DefaultStatusReadRetries   = 3
	DefaultStatusRetryDelay    = 10 * time.Millisecond
	DefaultReadBufferSize      = 4096
)

// Range limits of the session settings.
const (
	MinTimeout = time.Millisecond
	MaxTimeout = 10 * time.Minute

	MaxSettleDelay = 10 * time.Second

	MaxStatusReadRetries = 10

	MinReadBufferSize = 16
	MaxReadBufferSize = 1 << 20

	MaxTerminationLength = 8
)

// DefaultTermination is the line feed termination used by most SCPI instruments.
var DefaultTermination = []byte{'\n'}

// Config holds the construction-time configuration of a Session.
type Config struct {
	dialer   Dialer
	registry *Registry

	timeout             time.Duration
	statusReadDelay     time.Duration
	readAfterWriteDelay time.Duration
	statusReadRetries   int
	statusRetryDelay    time.Duration
	termination         []byte
	readBufferSize      int

	statusBitmasks *register.BitmaskDictionary
	tracer         IOTracer
	logger         logger.Logger
}

// NewConfig creates a session configuration. WithDialer is required.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		registry:            defaultRegistry,
		timeout:             DefaultTimeout,
		statusReadDelay:     DefaultStatusReadDelay,
		readAfterWriteDelay: DefaultReadAfterWriteDelay,
		statusReadRetries:   DefaultStatusReadRetries,
		statusRetryDelay:    DefaultStatusRetryDelay,
		termination:         util.CloneSlice(DefaultTermination, 0),
		readBufferSize:      DefaultReadBufferSize,
		tracer:              nopTracer{},
		logger:              logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.dialer == nil {
		return nil, ErrMissingDialer
	}
	if cfg.statusBitmasks == nil {
		cfg.statusBitmasks = status.DefaultStatusBitmasks()
	}

	return cfg, nil
}

// Timeout returns the initial I/O timeout.
func (cfg *Config) Timeout() time.Duration { return cfg.timeout }

// StatusReadDelay returns the settle delay applied before each status byte read.
func (cfg *Config) StatusReadDelay() time.Duration { return cfg.statusReadDelay }

// ReadAfterWriteDelay returns the delay between the write and the read of a query.
func (cfg *Config) ReadAfterWriteDelay() time.Duration { return cfg.readAfterWriteDelay }

// StatusReadRetries returns how many times a failed status byte read is retried.
func (cfg *Config) StatusReadRetries() int { return cfg.statusReadRetries }

// StatusRetryDelay returns the delay before each status byte retry.
func (cfg *Config) StatusRetryDelay() time.Duration { return cfg.statusRetryDelay }

// Termination returns a copy of the initial termination sequence.
func (cfg *Config) Termination() []byte { return util.CloneSlice(cfg.termination, 0) }

// ReadBufferSize returns the size of the per-read buffer.
func (cfg *Config) ReadBufferSize() int { return cfg.readBufferSize }

// StatusBitmasks returns the status byte bit layout.
func (cfg *Config) StatusBitmasks() *register.BitmaskDictionary { return cfg.statusBitmasks }

// GetLogger returns the configured logger.
func (cfg *Config) GetLogger() logger.Logger { return cfg.logger }

// Option is a functional option for configuring a Session.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithDialer sets the dialer used by Open.
func WithDialer(d Dialer) Option {
	return optFunc(func(cfg *Config) error {
		if d == nil {
			return ErrMissingDialer
		}
		cfg.dialer = d

		return nil
	})
}

// WithRegistry sets the registry that enforces one open session per resource.
// Sessions share a process-wide registry by default.
func WithRegistry(r *Registry) Option {
	return optFunc(func(cfg *Config) error {
		if r == nil {
			return fmt.Errorf("session: registry is nil")
		}
		cfg.registry = r

		return nil
	})
}

// WithTimeout sets the initial I/O timeout. Must be in [MinTimeout, MaxTimeout].
func WithTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if err := checkTimeout(d); err != nil {
			return err
		}
		cfg.timeout = d

		return nil
	})
}

// WithStatusReadDelay sets the settle delay before each status byte read. Must be in [0, MaxSettleDelay].
func WithStatusReadDelay(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < 0 || d > MaxSettleDelay {
			return fmt.Errorf("session: status read delay %v out of range [0, %v]", d, MaxSettleDelay)
		}
		cfg.statusReadDelay = d

		return nil
	})
}

// WithReadAfterWriteDelay sets the delay between the write and the read of a query.
// Must be in [0, MaxSettleDelay].
func WithReadAfterWriteDelay(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < 0 || d > MaxSettleDelay {
			return fmt.Errorf("session: read after write delay %v out of range [0, %v]", d, MaxSettleDelay)
		}
		cfg.readAfterWriteDelay = d

		return nil
	})
}

// WithStatusReadRetries sets the number of retries of a failed status byte read.
// Must be in [0, MaxStatusReadRetries].
func WithStatusReadRetries(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < 0 || n > MaxStatusReadRetries {
			return fmt.Errorf("session: status read retries %d out of range [0, %d]", n, MaxStatusReadRetries)
		}
		cfg.statusReadRetries = n

		return nil
	})
}

// WithStatusRetryDelay sets the delay before each status byte retry. Must be in [0, MaxSettleDelay].
func WithStatusRetryDelay(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < 0 || d > MaxSettleDelay {
			return fmt.Errorf("session: status retry delay %v out of range [0, %v]", d, MaxSettleDelay)
		}
		cfg.statusRetryDelay = d

		return nil
	})
}

// WithTermination sets the initial termination sequence, 1 to MaxTerminationLength bytes.
func WithTermination(chars []byte) Option {
	return optFunc(func(cfg *Config) error {
		if err := checkTermination(chars); err != nil {
			return err
		}
		cfg.termination = util.CloneSlice(chars, 0)

		return nil
	})
}

// WithStatusBitmasks sets the status byte bit layout of the instrument model.
func WithStatusBitmasks(d *register.BitmaskDictionary) Option {
	return optFunc(func(cfg *Config) error {
		if d == nil {
			return fmt.Errorf("session: status bitmasks are nil")
		}
		cfg.statusBitmasks = d

		return nil
	})
}

// WithReadBufferSize sets the size of the per-read buffer. Must be in [MinReadBufferSize, MaxReadBufferSize].
func WithReadBufferSize(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < MinReadBufferSize || n > MaxReadBufferSize {
			return fmt.Errorf("session: read buffer size %d out of range [%d, %d]", n, MinReadBufferSize, MaxReadBufferSize)
		}
		cfg.readBufferSize = n

		return nil
	})
}

// WithTracer sets the I/O tracer.
func WithTracer(t IOTracer) Option {
	return optFunc(func(cfg *Config) error {
		if t == nil {
			t = nopTracer{}
		}
		cfg.tracer = t

		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l != nil {
			cfg.logger = l
		}

		return nil
	})
}

func checkTimeout(d time.Duration) error {
	if d < MinTimeout || d > MaxTimeout {
		return fmt.Errorf("%w: %v out of range [%v, %v]", ErrInvalidTimeout, d, MinTimeout, MaxTimeout)
	}

	return nil
}

func checkTermination(chars []byte) error {
	if len(chars) == 0 || len(chars) > MaxTerminationLength {
		return fmt.Errorf("%w: length %d out of range [1, %d]", ErrInvalidTermination, len(chars), MaxTerminationLength)
	}

	return nil
}
