package game

import "github.com/decred/slog"

// log is the package logger. It is disabled until the caller installs
// one via UseLogger.
var log = slog.Disabled

// UseLogger sets the package logger.
func UseLogger(logger slog.Logger) {
	log = logger
}
