// Package worker runs the attendance session: a single goroutine owns the
// state machine, applies events in arrival order and executes its effects.
package worker

import (
	"time"

	"github.com/okian/geoasistencia/pkg/logger"
)

// Option applies a configuration option to the Loop.
type Option func(*Loop)

// WithDeviceID tags the loop's log lines with the device they belong to.
func WithDeviceID(id string) Option {
	return func(l *Loop) { l.deviceID = id }
}

// WithLogger sets a custom logger for the loop.
func WithLogger(logger logger.Logger) Option {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithSubmitTimeout bounds each gateway call made on behalf of the machine.
func WithSubmitTimeout(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.callTimeout = d
		}
	}
}

// WithClock sets the clock used to stamp completions and snapshots.
func WithClock(now func() time.Time) Option {
	return func(l *Loop) {
		if now != nil {
			l.now = now
		}
	}
}
