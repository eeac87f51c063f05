// Package logging wraps charmbracelet/log with spec.md §6's
// QUIET/ERROR/WARNING/INFO level scale (the same ints groove_set_logging
// forwarded straight to ffmpeg's av_log_set_level in
// original_source/groove/global.c). A package-level logger is shared by
// every internal package that logs, set once via SetLevel and fetched with
// Default.
package logging

import (
	"sync"

	charmlog "github.com/charmbracelet/log"
)

// Level mirrors spec.md §6's log level scale.
type Level int

const (
	Quiet   Level = -8
	Error   Level = 16
	Warning Level = 24
	Info    Level = 32
)

// offLevel sits above charmlog.FatalLevel so nothing is ever emitted at
// Quiet; charmlog has no dedicated "off" level of its own.
const offLevel = charmlog.FatalLevel + 1

var (
	mu  sync.Mutex
	log = charmlog.Default()
)

// SetLevel sets the shared logger's verbosity from spec.md's scale.
// Anything other than Quiet/Error/Warning/Info is clamped to the nearest
// named level below it, the same tolerance av_log_set_level gives an
// arbitrary int.
func SetLevel(level Level) {
	mu.Lock()
	defer mu.Unlock()
	log.SetLevel(charmLevel(level))
}

func charmLevel(level Level) charmlog.Level {
	switch {
	case level < Error:
		return offLevel
	case level < Warning:
		return charmlog.ErrorLevel
	case level < Info:
		return charmlog.WarnLevel
	default:
		return charmlog.InfoLevel
	}
}

// Default returns the shared logger, scoped to component via With.
func Default(component string) *charmlog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return log.With("component", component)
}
