package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"

	"fishshoot.dev/server/anticheat"
	"fishshoot.dev/server/audit"
	"fishshoot.dev/server/game"
	"fishshoot.dev/server/server"
)

// logWriter duplicates log output to stdout and the rotating log file.
type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	os.Stdout.Write(p)
	if logRotator != nil {
		logRotator.Write(p)
	}
	return len(p), nil
}

var (
	backendLog = slog.NewBackend(logWriter{})
	logRotator *rotator.Rotator

	mainLog = backendLog.Logger("MAIN")
	srvrLog = backendLog.Logger("SRVR")
	gameLog = backendLog.Logger("GAME")
	achtLog = backendLog.Logger("ACHT")
	audtLog = backendLog.Logger("AUDT")
)

func init() {
	server.UseLogger(srvrLog)
	game.UseLogger(gameLog)
	anticheat.UseLogger(achtLog)
	audit.UseLogger(audtLog)
}

var subsystemLoggers = map[string]slog.Logger{
	"MAIN": mainLog,
	"SRVR": srvrLog,
	"GAME": gameLog,
	"ACHT": achtLog,
	"AUDT": audtLog,
}

// initLogRotator starts file logging under logDir. Must run before any
// log output worth keeping.
func initLogRotator(logDir string) error {
	if err := os.MkdirAll(logDir, 0o700); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	r, err := rotator.New(filepath.Join(logDir, "fishshootd.log"), 10*1024, false, 3)
	if err != nil {
		return fmt.Errorf("create log rotator: %w", err)
	}
	logRotator = r
	return nil
}

// setLogLevel applies a level to one subsystem.
func setLogLevel(subsystemID string, logLevel string) {
	logger, ok := subsystemLoggers[subsystemID]
	if !ok {
		return
	}
	level, _ := slog.LevelFromString(logLevel)
	logger.SetLevel(level)
}

// setLogLevels applies a level to every subsystem.
func setLogLevels(logLevel string) {
	for subsystemID := range subsystemLoggers {
		setLogLevel(subsystemID, logLevel)
	}
}

func validLogLevel(logLevel string) bool {
	_, ok := slog.LevelFromString(logLevel)
	return ok
}
