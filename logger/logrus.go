package logger

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// LogrusLogger adapts a *logrus.Logger to the Logger interface.
type LogrusLogger struct {
	base  *logrus.Logger
	entry *logrus.Entry
}

var _ Logger = (*LogrusLogger)(nil)

// NewLogrus wraps l. Key-value pairs are converted to logrus fields; a key without a
// value is recorded under "!BADKEY", matching log/slog.
func NewLogrus(l *logrus.Logger) Logger {
	return &LogrusLogger{base: l, entry: logrus.NewEntry(l)}
}

func (l *LogrusLogger) Debug(msg string, keysAndValues ...any) {
	l.withFields(keysAndValues).Debug(msg)
}

func (l *LogrusLogger) Info(msg string, keysAndValues ...any) {
	l.withFields(keysAndValues).Info(msg)
}

func (l *LogrusLogger) Warn(msg string, keysAndValues ...any) {
	l.withFields(keysAndValues).Warn(msg)
}

func (l *LogrusLogger) Error(msg string, keysAndValues ...any) {
	l.withFields(keysAndValues).Error(msg)
}

func (l *LogrusLogger) Fatal(msg string, keysAndValues ...any) {
	l.withFields(keysAndValues).Fatal(msg)
}

func (l *LogrusLogger) With(keyValues ...any) Logger {
	return &LogrusLogger{base: l.base, entry: l.withFields(keyValues)}
}

func (l *LogrusLogger) Level() LogLevel {
	switch l.base.GetLevel() {
	case logrus.TraceLevel, logrus.DebugLevel:
		return DebugLevel
	case logrus.InfoLevel:
		return InfoLevel
	case logrus.WarnLevel:
		return WarnLevel
	case logrus.ErrorLevel:
		return ErrorLevel
	default:
		return FatalLevel
	}
}

func (l *LogrusLogger) SetLevel(level LogLevel) {
	switch level {
	case DebugLevel:
		l.base.SetLevel(logrus.DebugLevel)
	case InfoLevel:
		l.base.SetLevel(logrus.InfoLevel)
	case WarnLevel:
		l.base.SetLevel(logrus.WarnLevel)
	case ErrorLevel:
		l.base.SetLevel(logrus.ErrorLevel)
	default:
		l.base.SetLevel(logrus.FatalLevel)
	}
}

func (l *LogrusLogger) withFields(keysAndValues []any) *logrus.Entry {
	if len(keysAndValues) == 0 {
		return l.entry
	}

	fields := make(logrus.Fields, (len(keysAndValues)+1)/2)
	for i := 0; i < len(keysAndValues); i += 2 {
		if i+1 >= len(keysAndValues) {
			fields["!BADKEY"] = keysAndValues[i]
			break
		}
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		fields[key] = keysAndValues[i+1]
	}

	return l.entry.WithFields(fields)
}
