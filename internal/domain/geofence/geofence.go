// Package geofence evaluates location fixes against circular site geofences.
package geofence

import (
	"errors"
	"fmt"
	"math"

	"github.com/okian/geoasistencia/internal/domain/geo"
	"github.com/okian/geoasistencia/internal/domain/model"
)

// ErrInvalidRadius is returned for a negative or non-finite geofence radius.
var ErrInvalidRadius = errors.New("invalid geofence radius")

// Site is a work location ("sede") with a circular geofence.
type Site struct {
	ID           string
	Name         string
	Center       geo.Coordinate
	RadiusMeters float64
}

// Validate checks the center coordinate and the radius.
func (s Site) Validate() error {
	if err := s.Center.Validate(); err != nil {
		return fmt.Errorf("site %s: %w", s.ID, err)
	}
	if math.IsNaN(s.RadiusMeters) || math.IsInf(s.RadiusMeters, 0) || s.RadiusMeters < 0 {
		return fmt.Errorf("site %s: %w: %v", s.ID, ErrInvalidRadius, s.RadiusMeters)
	}
	return nil
}

// Status is the containment of one fix in one site. Derived, never persisted.
type Status struct {
	Inside bool
	// DistanceMeters is nil when containment is undefined (no fix or no site).
	DistanceMeters *float64
}

// Distance returns the distance and whether it is known.
func (s Status) Distance() (float64, bool) {
	if s.DistanceMeters == nil {
		return 0, false
	}
	return *s.DistanceMeters, true
}

// Evaluate computes the containment of fix within site.
// A fix exactly on the boundary counts as inside.
func Evaluate(fix *model.Fix, site *Site) Status {
	if fix == nil || site == nil {
		return Status{}
	}
	d := geo.DistanceMeters(fix.Coord, site.Center)
	return Status{
		Inside:         d <= site.RadiusMeters,
		DistanceMeters: &d,
	}
}
