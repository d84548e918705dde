// Package logger provides a leveled, component-tagged logger for diagnostic
// output. Lines are written to stderr in the form
//
//	[component LEVEL] message
//
// keeping stdout clean for the JSON event protocol. The caller never parses
// these lines.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
)

// Level controls which messages are emitted.
type Level int32

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	default:
		return "ERROR"
	}
}

var (
	level atomic.Int32

	mu  sync.Mutex
	out io.Writer = os.Stderr
)

func init() {
	level.Store(int32(INFO))
}

// SetLevel sets the minimum level that will be emitted.
func SetLevel(l Level) {
	level.Store(int32(l))
}

// SetOutput redirects log output, primarily for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

func logC(l Level, component, msg string) {
	if int32(l) < level.Load() {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(out, "[%s %s] %s\n", component, l, msg)
}

// DebugC logs a debug message for a component.
func DebugC(component, msg string) { logC(DEBUG, component, msg) }

// InfoC logs an info message for a component.
func InfoC(component, msg string) { logC(INFO, component, msg) }

// WarnC logs a warning for a component.
func WarnC(component, msg string) { logC(WARN, component, msg) }

// ErrorC logs an error for a component.
func ErrorC(component, msg string) { logC(ERROR, component, msg) }

// DebugCf logs a formatted debug message for a component.
func DebugCf(component, format string, args ...any) {
	logC(DEBUG, component, fmt.Sprintf(format, args...))
}

// InfoCf logs a formatted info message for a component.
func InfoCf(component, format string, args ...any) {
	logC(INFO, component, fmt.Sprintf(format, args...))
}

// WarnCf logs a formatted warning for a component.
func WarnCf(component, format string, args ...any) {
	logC(WARN, component, fmt.Sprintf(format, args...))
}

// ErrorCf logs a formatted error for a component.
func ErrorCf(component, format string, args ...any) {
	logC(ERROR, component, fmt.Sprintf(format, args...))
}
