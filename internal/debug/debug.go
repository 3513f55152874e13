// Package debug provides env-gated diagnostic logging.
//
// Logging is off unless TD_DEBUG is set or SetVerbose(true) was called.
// Output goes to stderr by default; once the TUI owns the terminal, call
// LogToFile to redirect through a size-rotated file instead.
package debug

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	enabled     = os.Getenv("TD_DEBUG") != ""
	verboseMode = false

	mu   sync.Mutex
	sink io.Writer = os.Stderr
)

// Enabled reports whether debug logging is active.
func Enabled() bool {
	return enabled || verboseMode
}

// SetVerbose enables verbose/debug output.
func SetVerbose(verbose bool) {
	verboseMode = verbose
}

// LogToFile redirects debug output to a rotating log file. The TUI calls
// this before taking over the terminal so stderr stays clean.
func LogToFile(path string) {
	mu.Lock()
	defer mu.Unlock()
	sink = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    5, // megabytes
		MaxBackups: 2,
	}
}

// Logf writes a timestamped line when debug logging is enabled.
func Logf(format string, args ...interface{}) {
	if !Enabled() {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(sink, "%s ", time.Now().Format("15:04:05.000"))
	fmt.Fprintf(sink, format, args...)
	if len(format) == 0 || format[len(format)-1] != '\n' {
		fmt.Fprintln(sink)
	}
}
