package location

import (
	"context"
	"time"
)

// DefaultTimeout matches the browser geolocation watch timeout.
const DefaultTimeout = 15 * time.Second

// Watchdog forwards updates from in and reports ErrTimeout when no fix has
// arrived for timeout. It reports once per silent period and re-arms on the
// next fix. A non-positive timeout disables it.
func Watchdog(ctx context.Context, in <-chan Update, timeout time.Duration) <-chan Update {
	if timeout <= 0 {
		return in
	}
	out := make(chan Update)
	go func() {
		defer close(out)
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		send := func(u Update) bool {
			select {
			case out <- u:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case u, ok := <-in:
				if !ok {
					return
				}
				if u.Available() {
					timer.Reset(timeout)
				}
				if !send(u) {
					return
				}
			case <-timer.C:
				if !send(Update{Err: ErrTimeout}) {
					return
				}
			}
		}
	}()
	return out
}
