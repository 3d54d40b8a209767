package autoclose

import "time"

// Option applies a configuration option to the cooldown lock.
type Option func(*cooldownLock)

// WithCooldown sets how long the lock stays armed after Release.
// Zero disarms the lock as soon as the submission completes.
func WithCooldown(d time.Duration) Option {
	return func(l *cooldownLock) {
		if d >= 0 {
			l.cooldown = d
		}
	}
}
