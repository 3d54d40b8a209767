// Package location adapts platform location providers to a stream of fixes.
//
// A Source delivers Updates: a fix when the provider has one, or an error
// when the signal is unavailable. Sources never decide anything about the
// attendance session; they only report what the provider sees.
package location

import (
	"context"
	"errors"

	"github.com/okian/geoasistencia/internal/domain/model"
)

// Sentinel errors reported by sources.
var (
	ErrTimeout        = errors.New("no location fix within timeout")
	ErrStopped        = errors.New("location source stopped")
	ErrNotStarted     = errors.New("location source not started")
	ErrAlreadyStarted = errors.New("location source already started")
	ErrConnectionLost = errors.New("location provider connection lost")
	ErrInvalidPayload = errors.New("invalid location payload")
	ErrBackpressure   = errors.New("location consumer is not keeping up")
	ErrTrackLoss      = errors.New("simulated signal loss")
)

// Update is one observation from a source. Exactly one of Fix and Err is set.
type Update struct {
	Fix *model.Fix
	Err error
}

// Available reports whether the update carries a fix.
func (u Update) Available() bool { return u.Err == nil && u.Fix != nil }

// Source produces location updates until stopped.
type Source interface {
	// Start begins watching. The returned channel is closed after Stop or
	// when ctx is done.
	Start(ctx context.Context) (<-chan Update, error)

	// Stop ends the watch. Stopping a stopped source is a no-op.
	Stop() error
}
