package srq

import (
	"fmt"
	"time"

	"github.com/arloliu/go-ivi/ivierr"
	"github.com/arloliu/go-ivi/logger"
)

// Coordinator defaults and limits.
const (
	DefaultQueueSize = 8
	MaxQueueSize     = 1024
	MinPollInterval  = time.Millisecond
)

// Config holds the coordinator settings.
type Config struct {
	autoRead    bool
	queueSize   int
	errorReader ErrorReader
	logger      logger.Logger
}

// NewConfig creates a coordinator configuration. Auto-read is enabled by default.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		autoRead:  true,
		queueSize: DefaultQueueSize,
		logger:    logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// AutoRead reports whether a pending reply is read when the message available bit is set.
func (cfg *Config) AutoRead() bool { return cfg.autoRead }

// QueueSize returns the capacity of the request channel.
func (cfg *Config) QueueSize() int { return cfg.queueSize }

// Option is a functional option for configuring a Coordinator.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithAutoRead enables or disables reading the pending reply on message available.
func WithAutoRead(enabled bool) Option {
	return optFunc(func(cfg *Config) error {
		cfg.autoRead = enabled
		return nil
	})
}

// WithQueueSize sets the capacity of the request channel. Must be in [1, MaxQueueSize].
func WithQueueSize(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < 1 || n > MaxQueueSize {
			return fmt.Errorf("srq: queue size %d out of range [1, %d]: %w", n, MaxQueueSize, ivierr.ErrConfiguration)
		}
		cfg.queueSize = n

		return nil
	})
}

// WithErrorReader sets the reader used to drain the error queue on error available.
func WithErrorReader(r ErrorReader) Option {
	return optFunc(func(cfg *Config) error {
		cfg.errorReader = r
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
