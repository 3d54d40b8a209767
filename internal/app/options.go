package service

import (
	"time"

	"github.com/okian/geoasistencia/internal/adapters/gateway"
	"github.com/okian/geoasistencia/internal/adapters/location"
	"github.com/okian/geoasistencia/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithGateway sets the attendance backend. If it also lists sites it is used
// as the site directory unless WithSiteDirectory says otherwise.
func WithGateway(gw gateway.Gateway) Option {
	return func(s *Service) {
		s.gateway = gw
		if dir, ok := gw.(gateway.SiteDirectory); ok && s.directory == nil {
			s.directory = dir
		}
	}
}

// WithSiteDirectory sets where sites are listed from.
func WithSiteDirectory(dir gateway.SiteDirectory) Option {
	return func(s *Service) { s.directory = dir }
}

// WithLocationSource sets the location provider used by StartGPS.
func WithLocationSource(src location.Source) Option {
	return func(s *Service) { s.source = src }
}

// WithLocationTimeout sets how long the provider may stay silent before the
// signal is considered lost. Zero disables the watchdog.
func WithLocationTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.locationTimeout = d
		}
	}
}

// WithQueueSize sets the maximum size of the event queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDeviceID sets the device identifier sent with every mark.
func WithDeviceID(id string) Option {
	return func(s *Service) { s.deviceID = id }
}

// WithCredentials attaches the parsed bearer token of the signed-in employee.
func WithCredentials(c gateway.Credentials) Option {
	return func(s *Service) { s.credentials = &c }
}

// WithSiteID preselects a site by id on Start. The first listed site is used
// when empty or not found.
func WithSiteID(id string) Option {
	return func(s *Service) { s.siteID = id }
}

// WithAutoCloseCooldown sets how long automatic closures stay suppressed
// after one completes. Zero suppresses only while one is in flight.
func WithAutoCloseCooldown(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.cooldown = d
		}
	}
}

// WithMaxAccuracy discards fixes whose accuracy radius exceeds meters.
// Zero keeps every fix.
func WithMaxAccuracy(meters float64) Option {
	return func(s *Service) {
		if meters >= 0 {
			s.maxAccuracy = meters
		}
	}
}

// WithRequestTimeout bounds every backend call.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.requestTimeout = d
		}
	}
}

// WithClock sets the clock used to stamp events.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}
