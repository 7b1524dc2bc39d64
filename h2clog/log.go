// Package h2clog is the injectable logging sink used throughout h2c.
//
// It exists so the client library never hardwires a specific logging
// backend: the default wraps the standard library's log.Logger, exactly
// as this project's upstream wraps it with direct log.Println calls, but
// callers embedding h2c in a service can swap in their own structured
// logger by implementing the single-method Logger interface.
package h2clog

import (
	"log"
	"os"
)

// Logger is the minimal sink h2c writes diagnostic output through.
type Logger interface {
	Printf(format string, args ...interface{})
}

type stdLogger struct {
	l *log.Logger
}

func (s *stdLogger) Printf(format string, args ...interface{}) {
	s.l.Printf(format, args...)
}

// Default returns the package's default Logger, a thin wrapper over
// log.New(os.Stderr, "h2c: ", log.LstdFlags).
func Default() Logger {
	return &stdLogger{l: log.New(os.Stderr, "h2c: ", log.LstdFlags)}
}

// Discard is a Logger that drops everything, for callers who want h2c
// to stay silent.
var Discard Logger = discard{}

type discard struct{}

func (discard) Printf(string, ...interface{}) {}
