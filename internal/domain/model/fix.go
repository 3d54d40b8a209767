// Package model contains domain models passed between layers.
package model

import (
	"time"

	"github.com/okian/geoasistencia/internal/domain/geo"
)

// Fix is one location sample. Fixes are ephemeral and never persisted.
type Fix struct {
	Coord          geo.Coordinate
	AccuracyMeters float64   // radius of the 68% confidence circle, >= 0
	CapturedAt     time.Time // monotonically non-decreasing per stream
}
