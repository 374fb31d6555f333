package logging

import (
	"github.com/sirupsen/logrus"
)

// Logger defines the interface for logging across the library.
type Logger interface {
	// Debug logs a debug message.
	Debug(msg string, args ...any)

	// Info logs an info message.
	Info(msg string, args ...any)

	// Warn logs a warning message.
	Warn(msg string, args ...any)

	// Error logs an error message.
	Error(msg string, args ...any)
}

// NoOpLogger is a logger that does nothing.
type NoOpLogger struct{}

// Debug logs a debug message (no-op).
func (n *NoOpLogger) Debug(msg string, args ...any) {}

// Info logs an info message (no-op).
func (n *NoOpLogger) Info(msg string, args ...any) {}

// Warn logs a warning message (no-op).
func (n *NoOpLogger) Warn(msg string, args ...any) {}

// Error logs an error message (no-op).
func (n *NoOpLogger) Error(msg string, args ...any) {}

// NewNoOpLogger creates a new no-op logger.
func NewNoOpLogger() Logger {
	return &NoOpLogger{}
}

// LogrusLogger adapts a logrus logger to the Logger interface.
// args are interpreted as alternating key/value pairs.
type LogrusLogger struct {
	entry *logrus.Entry
}

// NewLogrusLogger creates a Logger backed by the given logrus logger,
// tagging every line with the component name.
func NewLogrusLogger(base *logrus.Logger, component string) Logger {
	if base == nil {
		base = logrus.StandardLogger()
	}
	return &LogrusLogger{entry: base.WithField("component", component)}
}

// Debug logs a debug message via logrus.
func (l *LogrusLogger) Debug(msg string, args ...any) {
	l.entry.WithFields(pairFields(args)).Debug(msg)
}

// Info logs an info message via logrus.
func (l *LogrusLogger) Info(msg string, args ...any) {
	l.entry.WithFields(pairFields(args)).Info(msg)
}

// Warn logs a warning message via logrus.
func (l *LogrusLogger) Warn(msg string, args ...any) {
	l.entry.WithFields(pairFields(args)).Warn(msg)
}

// Error logs an error message via logrus.
func (l *LogrusLogger) Error(msg string, args ...any) {
	l.entry.WithFields(pairFields(args)).Error(msg)
}

// pairFields converts alternating key/value args into logrus fields.
// A trailing key with no value is kept under the key with a nil value.
func pairFields(args []any) logrus.Fields {
	fields := make(logrus.Fields, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		if i+1 < len(args) {
			fields[key] = args[i+1]
		} else {
			fields[key] = nil
		}
	}
	return fields
}
