package logger

import (
	"io"
	"log"
	"os"
)

// Logger is an alias used by components for dependency injection.
type Logger = log.Logger

// New returns a standard logger with a consistent service prefix.
func New(service string) *Logger {
	return NewTo(os.Stdout, service)
}

func NewTo(w io.Writer, service string) *Logger {
	return log.New(w, "["+service+"] ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
}

// OrDefault returns l, or the standard logger when l is nil
func OrDefault(l *Logger) *Logger {
	if l == nil {
		return log.Default()
	}
	return l
}

// Discard returns a logger that drops everything, for tests
func Discard() *Logger {
	return log.New(io.Discard, "", 0)
}
