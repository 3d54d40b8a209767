// Package autoclose provides the single-fire guard for automatic session closures.
package autoclose

import (
	"time"
)

// DefaultCooldown is how long the lock stays armed after an automatic
// submission completes.
const DefaultCooldown = 4 * time.Second

// Lock guards against issuing more than one automatic closure per real exit.
// Time is supplied by the caller so the lock behaves as a logical debounce
// keyed on event time rather than on wall-clock timers.
type Lock interface {
	// TryArm arms the lock if it is not armed at time at.
	// Returns true if the caller now owns the closure.
	TryArm(at time.Time) bool

	// Release marks the guarded submission as completed at time at, whether it
	// succeeded or not. The lock stays armed for the cooldown after that.
	Release(at time.Time)

	// Armed reports whether a new automatic closure must be suppressed at time at.
	Armed(at time.Time) bool

	// ReleaseAt is the instant the cooldown ends. Zero while a submission is
	// in flight or if the lock was never released.
	ReleaseAt() time.Time
}

// cooldownLock is armed from TryArm until cooldown has elapsed past Release.
// It is owned by a single session loop and is not safe for concurrent use.
type cooldownLock struct {
	cooldown  time.Duration
	inFlight  bool
	releaseAt time.Time
}

// NewCooldownLock creates a lock with configuration options.
func NewCooldownLock(opts ...Option) Lock {
	l := &cooldownLock{
		cooldown: DefaultCooldown,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *cooldownLock) TryArm(at time.Time) bool {
	if l.Armed(at) {
		return false
	}
	l.inFlight = true
	l.releaseAt = time.Time{}
	return true
}

func (l *cooldownLock) Release(at time.Time) {
	if !l.inFlight {
		return
	}
	l.inFlight = false
	l.releaseAt = at.Add(l.cooldown)
}

func (l *cooldownLock) Armed(at time.Time) bool {
	if l.inFlight {
		return true
	}
	return at.Before(l.releaseAt)
}

func (l *cooldownLock) ReleaseAt() time.Time {
	if l.inFlight {
		return time.Time{}
	}
	return l.releaseAt
}
