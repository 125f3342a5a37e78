package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/arloliu/go-ivi/errqueue"
	"github.com/arloliu/go-ivi/logger"
	"github.com/arloliu/go-ivi/register"
	"github.com/arloliu/go-ivi/session"
	"github.com/arloliu/go-ivi/srq"
	"github.com/arloliu/go-ivi/status"
	"github.com/arloliu/go-ivi/transport"
)

// SessionOptions translates the timing and status byte settings into session options.
// The dialer, registry and tracer are left to the caller.
func (st *Settings) SessionOptions() ([]session.Option, error) {
	stb, err := st.StatusBitmasks()
	if err != nil {
		return nil, err
	}

	t := st.Timing

	return []session.Option{
		session.WithTimeout(t.Timeout.Std()),
		session.WithStatusReadDelay(t.StatusReadDelay.Std()),
		session.WithReadAfterWriteDelay(t.ReadAfterWriteDelay.Std()),
		session.WithStatusReadRetries(t.StatusReadRetries),
		session.WithStatusRetryDelay(t.StatusRetryDelay.Std()),
		session.WithTermination([]byte(t.Termination)),
		session.WithReadBufferSize(t.ReadBufferSize),
		session.WithStatusBitmasks(stb),
	}, nil
}

// ErrorQueueOptions translates the device error settings into errqueue options.
func (st *Settings) ErrorQueueOptions() []errqueue.Option {
	e := st.DeviceErrors

	return []errqueue.Option{
		errqueue.WithQuery(e.Query),
		errqueue.WithNoErrorCode(e.NoErrorCode),
		errqueue.WithMaxIterations(e.MaxIterations),
		errqueue.WithPreamble(e.Preamble),
		errqueue.WithClearCommand(e.ClearCommand),
	}
}

// ServiceRequestOptions translates the service request settings into srq options.
// The error reader is left to the caller.
func (st *Settings) ServiceRequestOptions() []srq.Option {
	return []srq.Option{
		srq.WithAutoRead(st.ServiceRequest.AutoRead),
		srq.WithQueueSize(st.ServiceRequest.QueueSize),
	}
}

// DialerOptions translates the serial line and termination settings into dialer options.
func (st *Settings) DialerOptions() []transport.DialerOption {
	return []transport.DialerOption{
		transport.WithTermination([]byte(st.Timing.Termination)),
		transport.WithSerialSettings(st.Serial),
	}
}

// EnableMasks returns the *SRE and *ESE masks.
func (st *Settings) EnableMasks() (status.StatusByte, status.StandardEvent) {
	return status.StatusByte(st.Registers.ServiceRequestEnable), status.StandardEvent(st.Registers.EventStatusEnable)
}

// StatusBitmasks builds the status byte layout, or the IEEE-488.2 default when none is configured.
func (st *Settings) StatusBitmasks() (*register.BitmaskDictionary, error) {
	return buildDictionary("status_byte", st.Registers.StatusByte, status.DefaultStatusBitmasks,
		func(name string) (int, bool) {
			k, ok := status.ParseKey(name)
			return int(k), ok
		})
}

// MeasurementBitmasks builds the measurement event layout.
func (st *Settings) MeasurementBitmasks() (*register.BitmaskDictionary, error) {
	return buildDictionary("measurement", st.Registers.Measurement, status.DefaultMeasurementBitmasks,
		func(name string) (int, bool) {
			e, ok := status.ParseMeasurementEvent(name)
			return int(e), ok
		})
}

// OperationBitmasks builds the operation event layout.
func (st *Settings) OperationBitmasks() (*register.BitmaskDictionary, error) {
	return buildDictionary("operation", st.Registers.Operation, status.DefaultOperationBitmasks,
		func(name string) (int, bool) {
			e, ok := status.ParseOperationEvent(name)
			return int(e), ok
		})
}

// QuestionableBitmasks builds the questionable event layout.
func (st *Settings) QuestionableBitmasks() (*register.BitmaskDictionary, error) {
	return buildDictionary("questionable", st.Registers.Questionable, status.DefaultQuestionableBitmasks,
		func(name string) (int, bool) {
			e, ok := status.ParseQuestionableEvent(name)
			return int(e), ok
		})
}

func buildDictionary(
	section string,
	entries []BitmaskSetting,
	defaults func() *register.BitmaskDictionary,
	parse func(string) (int, bool),
) (*register.BitmaskDictionary, error) {
	if len(entries) == 0 {
		return defaults(), nil
	}

	d := register.NewBitmaskDictionary()
	for i, e := range entries {
		key, ok := parse(e.Name)
		if !ok {
			return nil, fmt.Errorf("%w: registers.%s[%d]: unknown bit name %q", ErrInvalidSettings, section, i, e.Name)
		}
		if err := d.Add(key, e.Mask, e.AllowOverlap); err != nil {
			return nil, fmt.Errorf("%w: registers.%s[%d] %s: %w", ErrInvalidSettings, section, i, e.Name, err)
		}
	}

	return d, nil
}

// Logger builds the configured logger. The logrus backend writes text to stderr.
func (st *Settings) Logger() logger.Logger {
	level := logger.ParseLevel(strings.ToLower(st.Log.Level))

	if st.Log.Backend == BackendLogrus {
		l := logrus.New()
		l.SetOutput(os.Stderr)
		l.SetReportCaller(st.Log.AddSource)
		lg := logger.NewLogrus(l)
		lg.SetLevel(level)

		return lg
	}

	return logger.NewSlog(level, st.Log.AddSource)
}
