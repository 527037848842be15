// Package logger holds the process-wide structured logger.
package logger

import (
	"log/slog"
)

// Logger is the global logger instance
var Logger *slog.Logger

func init() {
	Logger = NewLogger(LoadConfig())
}

// Configure replaces the global logger. Called once by the command layer after flags
// and config files are resolved.
func Configure(config Config) {
	Logger = NewLogger(config)
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

// Info logs an info message
func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	Logger.Warn(msg, args...)
}

// Error logs an error message
func Error(msg string, args ...any) {
	Logger.Error(msg, args...)
}

// With returns a new Logger that includes the given attributes in each output operation
func With(args ...any) *slog.Logger {
	return Logger.With(args...)
}

// Or returns l when set, otherwise the global logger.
func Or(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return Logger
}
