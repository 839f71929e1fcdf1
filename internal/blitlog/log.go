// Package blitlog is the thin per-session logger every endpoint uses,
// mirroring teacher's internal/log: a plain log.Logger wrapper, never
// a global, with a Verbose gate so call sites read
// "if logger.Verbose { logger.Printf(...) }" the way teacher's
// receiver package does throughout.
package blitlog

import (
	"io"
	"log"
)

// Logger wraps the standard logger with an explicit verbosity gate.
type Logger struct {
	*log.Logger
	Verbose bool
}

// New builds a Logger writing to w, prefixed for the given role
// ("client", "server", or a connection identifier).
func New(w io.Writer, prefix string) *Logger {
	return &Logger{
		Logger: log.New(w, "["+prefix+"] ", log.LstdFlags),
	}
}

// Debugf logs only when Verbose is set.
func (l *Logger) Debugf(format string, args ...any) {
	if l == nil || !l.Verbose {
		return
	}
	l.Printf(format, args...)
}
