// Package logger defines the logging interface used by the core packages.
// The zerolog backed implementation lives in infra/logger.
package logger

// Logger is a levelled, printf style logger. Debugw attaches structured
// fields, e.g. route statistics.
type Logger interface {
	Debugf(format string, args ...any)
	Debugw(msg string, fields map[string]any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}
