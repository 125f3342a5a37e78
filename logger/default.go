package logger

import "sync/atomic"

type holder struct{ l Logger }

// defLogger is the process default, used by every go-ivi component configured without WithLogger.
var defLogger atomic.Pointer[holder]

func init() {
	defLogger.Store(&holder{l: NewSlog(InfoLevel, false)})
}

// SetDefault replaces the process default logger. Components already constructed keep the
// logger they were built with. A nil l is ignored.
func SetDefault(l Logger) {
	if l == nil {
		return
	}
	defLogger.Store(&holder{l: l})
}

func Debug(msg string, keysAndValues ...any) {
	GetLogger().Debug(msg, keysAndValues...)
}

func Info(msg string, keysAndValues ...any) {
	GetLogger().Info(msg, keysAndValues...)
}

func Warn(msg string, keysAndValues ...any) {
	GetLogger().Warn(msg, keysAndValues...)
}

func Error(msg string, keysAndValues ...any) {
	GetLogger().Error(msg, keysAndValues...)
}

func Fatal(msg string, keysAndValues ...any) {
	GetLogger().Fatal(msg, keysAndValues...)
}

func SetLevel(level LogLevel) {
	GetLogger().SetLevel(level)
}

// GetLogger returns the process default logger.
func GetLogger() Logger {
	return defLogger.Load().l
}

func With(keyValues ...any) Logger {
	return GetLogger().With(keyValues...)
}
