// Package config loads instrument settings from YAML, TOML or JSON files and turns them
// into options of the session, errqueue and srq packages.
//
// Settings are read once, validated, and then translated; nothing in this package is global.
//
//	st, err := config.Load("dmm.yaml")
//	if err != nil {
//		return err
//	}
//	opts, err := st.SessionOptions()
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/arloliu/go-ivi/errqueue"
	"github.com/arloliu/go-ivi/ivierr"
	"github.com/arloliu/go-ivi/session"
	"github.com/arloliu/go-ivi/srq"
	"github.com/arloliu/go-ivi/transport"
)

// ErrInvalidSettings is returned for settings that fail validation.
var ErrInvalidSettings = ivierr.New("config: invalid settings", ivierr.ErrConfiguration)

// Service request modes.
const (
	ModeNone      = "none"
	ModeInterrupt = "interrupt"
	ModePoll      = "poll"
)

// Log backends.
const (
	BackendSlog   = "slog"
	BackendLogrus = "logrus"
)

// Settings is the complete instrument configuration.
type Settings struct {
	// Resource is the VISA resource name or an alias from the resource list.
	Resource       string                   `yaml:"resource" toml:"resource" json:"resource,omitempty"`
	Timing         TimingSettings           `yaml:"timing" toml:"timing" json:"timing"`
	Registers      RegisterSettings         `yaml:"registers" toml:"registers" json:"registers"`
	DeviceErrors   DeviceErrorSettings      `yaml:"device_errors" toml:"device_errors" json:"device_errors"`
	ServiceRequest ServiceRequestSettings   `yaml:"service_request" toml:"service_request" json:"service_request"`
	Serial         transport.SerialSettings `yaml:"serial" toml:"serial" json:"serial"`
	Log            LogSettings              `yaml:"log" toml:"log" json:"log"`
}

// TimingSettings are the per-model session timings.
type TimingSettings struct {
	Timeout             Duration `yaml:"timeout" toml:"timeout" json:"timeout"`
	StatusReadDelay     Duration `yaml:"status_read_delay" toml:"status_read_delay" json:"status_read_delay"`
	ReadAfterWriteDelay Duration `yaml:"read_after_write_delay" toml:"read_after_write_delay" json:"read_after_write_delay"`
	StatusReadRetries   int      `yaml:"status_read_retries" toml:"status_read_retries" json:"status_read_retries" jsonschema:"minimum=0,maximum=10"`
	StatusRetryDelay    Duration `yaml:"status_retry_delay" toml:"status_retry_delay" json:"status_retry_delay"`
	// Termination is the line termination, e.g. "\n" or "\r\n".
	Termination    string `yaml:"termination" toml:"termination" json:"termination" jsonschema:"minLength=1,maxLength=8"`
	ReadBufferSize int    `yaml:"read_buffer_size" toml:"read_buffer_size" json:"read_buffer_size" jsonschema:"minimum=16,maximum=1048576"`
}

// BitmaskSetting maps a named register bit to its mask.
type BitmaskSetting struct {
	Name         string `yaml:"name" toml:"name" json:"name"`
	Mask         int    `yaml:"mask" toml:"mask" json:"mask" jsonschema:"minimum=1"`
	AllowOverlap bool   `yaml:"allow_overlap,omitempty" toml:"allow_overlap,omitempty" json:"allow_overlap,omitempty"`
}

// RegisterSettings holds the register layouts of an instrument model. An empty layout
// selects the built-in default. Entries are added in order, so broad masks that overlap
// others belong at the end with allow_overlap set.
type RegisterSettings struct {
	StatusByte   []BitmaskSetting `yaml:"status_byte,omitempty" toml:"status_byte,omitempty" json:"status_byte,omitempty"`
	Measurement  []BitmaskSetting `yaml:"measurement,omitempty" toml:"measurement,omitempty" json:"measurement,omitempty"`
	Operation    []BitmaskSetting `yaml:"operation,omitempty" toml:"operation,omitempty" json:"operation,omitempty"`
	Questionable []BitmaskSetting `yaml:"questionable,omitempty" toml:"questionable,omitempty" json:"questionable,omitempty"`
	// ServiceRequestEnable is the *SRE mask; bit 6 is ignored by instruments.
	ServiceRequestEnable int `yaml:"service_request_enable" toml:"service_request_enable" json:"service_request_enable" jsonschema:"minimum=0,maximum=255"`
	// EventStatusEnable is the *ESE mask.
	EventStatusEnable int `yaml:"event_status_enable" toml:"event_status_enable" json:"event_status_enable" jsonschema:"minimum=0,maximum=255"`
}

// DeviceErrorSettings configure the error queue reader.
type DeviceErrorSettings struct {
	Query         string `yaml:"query" toml:"query" json:"query"`
	NoErrorCode   int    `yaml:"no_error_code" toml:"no_error_code" json:"no_error_code"`
	MaxIterations int    `yaml:"max_iterations" toml:"max_iterations" json:"max_iterations" jsonschema:"minimum=1,maximum=1000"`
	Preamble      string `yaml:"preamble" toml:"preamble" json:"preamble"`
	ClearCommand  string `yaml:"clear_command" toml:"clear_command" json:"clear_command"`
}

// ServiceRequestSettings configure the service request coordinator.
type ServiceRequestSettings struct {
	Mode         string   `yaml:"mode" toml:"mode" json:"mode" jsonschema:"enum=none,enum=interrupt,enum=poll"`
	PollInterval Duration `yaml:"poll_interval" toml:"poll_interval" json:"poll_interval"`
	AutoRead     bool     `yaml:"auto_read" toml:"auto_read" json:"auto_read"`
	QueueSize    int      `yaml:"queue_size" toml:"queue_size" json:"queue_size" jsonschema:"minimum=1,maximum=1024"`
}

// LogSettings select the logger.
type LogSettings struct {
	Level     string `yaml:"level" toml:"level" json:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	Backend   string `yaml:"backend" toml:"backend" json:"backend" jsonschema:"enum=slog,enum=logrus"`
	AddSource bool   `yaml:"add_source,omitempty" toml:"add_source,omitempty" json:"add_source,omitempty"`
}

// Default returns the settings used for every field a file leaves out.
func Default() *Settings {
	return &Settings{
		Timing: TimingSettings{
			Timeout:             Duration(session.DefaultTimeout),
			StatusReadDelay:     Duration(session.DefaultStatusReadDelay),
			ReadAfterWriteDelay: Duration(session.DefaultReadAfterWriteDelay),
			StatusReadRetries:   session.DefaultStatusReadRetries,
			StatusRetryDelay:    Duration(session.DefaultStatusRetryDelay),
			Termination:         string(session.DefaultTermination),
			ReadBufferSize:      session.DefaultReadBufferSize,
		},
		Registers: RegisterSettings{
			// message available and error available
			ServiceRequestEnable: 0x14,
			EventStatusEnable:    0x3C,
		},
		DeviceErrors: DeviceErrorSettings{
			Query:         errqueue.DefaultQuery,
			NoErrorCode:   errqueue.DefaultNoErrorCode,
			MaxIterations: errqueue.DefaultMaxIterations,
			Preamble:      errqueue.DefaultPreamble,
			ClearCommand:  errqueue.DefaultClearCommand,
		},
		ServiceRequest: ServiceRequestSettings{
			Mode:         ModePoll,
			PollInterval: Duration(250 * time.Millisecond),
			AutoRead:     true,
			QueueSize:    srq.DefaultQueueSize,
		},
		Serial: transport.DefaultSerialSettings(),
		Log: LogSettings{
			Level:   "info",
			Backend: BackendSlog,
		},
	}
}

// Validate checks every section and reports all problems at once.
func (st *Settings) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	t := st.Timing
	if d := t.Timeout.Std(); d < session.MinTimeout || d > session.MaxTimeout {
		add("timing.timeout %v out of range [%v, %v]", d, session.MinTimeout, session.MaxTimeout)
	}
	for _, delay := range []struct {
		name string
		d    Duration
	}{
		{"status_read_delay", t.StatusReadDelay},
		{"read_after_write_delay", t.ReadAfterWriteDelay},
		{"status_retry_delay", t.StatusRetryDelay},
	} {
		if d := delay.d.Std(); d < 0 || d > session.MaxSettleDelay {
			add("timing.%s %v out of range [0, %v]", delay.name, d, session.MaxSettleDelay)
		}
	}
	if t.StatusReadRetries < 0 || t.StatusReadRetries > session.MaxStatusReadRetries {
		add("timing.status_read_retries %d out of range [0, %d]", t.StatusReadRetries, session.MaxStatusReadRetries)
	}
	if n := len(t.Termination); n == 0 || n > session.MaxTerminationLength {
		add("timing.termination length %d out of range [1, %d]", n, session.MaxTerminationLength)
	}
	if t.ReadBufferSize < session.MinReadBufferSize || t.ReadBufferSize > session.MaxReadBufferSize {
		add("timing.read_buffer_size %d out of range [%d, %d]", t.ReadBufferSize, session.MinReadBufferSize, session.MaxReadBufferSize)
	}

	r := st.Registers
	if r.ServiceRequestEnable < 0 || r.ServiceRequestEnable > 0xFF {
		add("registers.service_request_enable %d out of range [0, 255]", r.ServiceRequestEnable)
	}
	if r.EventStatusEnable < 0 || r.EventStatusEnable > 0xFF {
		add("registers.event_status_enable %d out of range [0, 255]", r.EventStatusEnable)
	}
	for _, build := range []func() error{
		func() error { _, err := st.StatusBitmasks(); return err },
		func() error { _, err := st.MeasurementBitmasks(); return err },
		func() error { _, err := st.OperationBitmasks(); return err },
		func() error { _, err := st.QuestionableBitmasks(); return err },
	} {
		if err := build(); err != nil {
			errs = append(errs, err)
		}
	}

	e := st.DeviceErrors
	if strings.TrimSpace(e.Query) == "" {
		add("device_errors.query is empty")
	}
	if e.MaxIterations < 1 || e.MaxIterations > errqueue.MaxIterations {
		add("device_errors.max_iterations %d out of range [1, %d]", e.MaxIterations, errqueue.MaxIterations)
	}

	sr := st.ServiceRequest
	switch sr.Mode {
	case ModeNone, ModeInterrupt:
	case ModePoll:
		if sr.PollInterval.Std() < srq.MinPollInterval {
			add("service_request.poll_interval %v below %v", sr.PollInterval.Std(), srq.MinPollInterval)
		}
	default:
		add("service_request.mode %q is not one of none, interrupt, poll", sr.Mode)
	}
	if sr.QueueSize < 1 || sr.QueueSize > srq.MaxQueueSize {
		add("service_request.queue_size %d out of range [1, %d]", sr.QueueSize, srq.MaxQueueSize)
	}

	if _, err := st.Serial.Mode(); err != nil {
		errs = append(errs, err)
	}

	switch st.Log.Backend {
	case BackendSlog, BackendLogrus:
	default:
		add("log.backend %q is not one of slog, logrus", st.Log.Backend)
	}

	if len(errs) == 0 {
		return nil
	}

	return fmt.Errorf("%w: %w", ErrInvalidSettings, errors.Join(errs...))
}
