package errqueue

import (
	"fmt"
	"strings"

	"github.com/arloliu/go-ivi/ivierr"
	"github.com/arloliu/go-ivi/logger"
)

// Default reader settings.
const (
	DefaultQuery         = "SYST:ERR?"
	DefaultNoErrorCode   = 0
	DefaultMaxIterations = 10
	DefaultPreamble      = "Device errors:"
	DefaultClearCommand  = "*CLS"

	MaxIterations = 1000
)

// Config holds the reader settings.
type Config struct {
	query         string
	noErrorCode   int
	maxIterations int
	preamble      string
	clearCommand  string
	logger        logger.Logger
}

// NewConfig creates a reader configuration.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		query:         DefaultQuery,
		noErrorCode:   DefaultNoErrorCode,
		maxIterations: DefaultMaxIterations,
		preamble:      DefaultPreamble,
		clearCommand:  DefaultClearCommand,
		logger:        logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Query returns the error queue query.
func (cfg *Config) Query() string { return cfg.query }

// NoErrorCode returns the code that ends a drain.
func (cfg *Config) NoErrorCode() int { return cfg.noErrorCode }

// MaxIterations returns the drain cap.
func (cfg *Config) MaxIterations() int { return cfg.maxIterations }

// Option is a functional option for configuring a Reader.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithQuery sets the error queue query.
func WithQuery(query string) Option {
	return optFunc(func(cfg *Config) error {
		query = strings.TrimSpace(query)
		if query == "" {
			return ivierr.New("errqueue: empty error query", ivierr.ErrConfiguration)
		}
		cfg.query = query

		return nil
	})
}

// WithNoErrorCode sets the code of the entry that marks an empty queue.
func WithNoErrorCode(code int) Option {
	return optFunc(func(cfg *Config) error {
		cfg.noErrorCode = code
		return nil
	})
}

// WithMaxIterations sets the maximum number of queries of one drain. Must be in [1, MaxIterations].
func WithMaxIterations(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < 1 || n > MaxIterations {
			return fmt.Errorf("errqueue: max iterations %d out of range [1, %d]: %w", n, MaxIterations, ivierr.ErrConfiguration)
		}
		cfg.maxIterations = n

		return nil
	})
}

// WithPreamble sets the first line of the compound message.
func WithPreamble(preamble string) Option {
	return optFunc(func(cfg *Config) error {
		cfg.preamble = preamble
		return nil
	})
}

// WithClearCommand sets the command sent by ClearDeviceQueue.
func WithClearCommand(cmd string) Option {
	return optFunc(func(cfg *Config) error {
		cmd = strings.TrimSpace(cmd)
		if cmd == "" {
			return ivierr.New("errqueue: empty clear command", ivierr.ErrConfiguration)
		}
		cfg.clearCommand = cmd

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
