// Package applog is the logging facade shared by App, Extern,
// ExternServer, and COMRelay: a thin wrapper over pion/logging, using
// its LoggerFactory/NewLogger(name) idiom.
package applog

import "github.com/pion/logging"

// Factory is the shared LoggerFactory type. Pass nil to any component
// Config to fall back to logging.NewDefaultLoggerFactory().
type Factory = logging.LoggerFactory

// Logger is the shared per-component leveled logger type.
type Logger = logging.LeveledLogger

// Default returns pion/logging's default logger factory, which logs at
// LogLevelError unless its PION_LOG_* environment variables raise the
// level.
func Default() Factory {
	return logging.NewDefaultLoggerFactory()
}

// New resolves factory (falling back to Default()) and returns a
// named logger for component name.
func New(factory Factory, name string) Logger {
	if factory == nil {
		factory = Default()
	}
	return factory.NewLogger(name)
}
