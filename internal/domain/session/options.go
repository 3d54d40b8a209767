package session

import (
	"github.com/okian/geoasistencia/internal/domain/autoclose"
)

// Option applies a configuration option to the Machine.
type Option func(*Machine)

// WithDeviceID sets the device identifier stamped on every mark.
func WithDeviceID(id string) Option {
	return func(m *Machine) {
		m.deviceID = id
	}
}

// WithLock replaces the automatic-closure lock.
func WithLock(l autoclose.Lock) Option {
	return func(m *Machine) {
		if l != nil {
			m.lock = l
		}
	}
}

// WithMaxAccuracy discards fixes whose accuracy radius exceeds meters.
// Zero or negative disables the filter.
func WithMaxAccuracy(meters float64) Option {
	return func(m *Machine) {
		m.maxAccuracy = meters
	}
}

// WithIDGenerator sets the generator for mark ids when a request carries none.
func WithIDGenerator(fn func() string) Option {
	return func(m *Machine) {
		if fn != nil {
			m.newID = fn
		}
	}
}
