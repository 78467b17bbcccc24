// Package logger configures the process-wide structured logger.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Configure installs a default logger writing to w (stderr when nil) at the
// given level. Unknown levels fall back to info.
func Configure(level string, w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}

	l := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
		Level:           parseLevel(level),
	})
	log.SetDefault(l)
	return l
}

// With returns a child of the default logger tagged with a component name.
func With(component string) *log.Logger {
	return log.Default().With("component", component)
}

func parseLevel(level string) log.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	case "fatal":
		return log.FatalLevel
	default:
		return log.InfoLevel
	}
}
