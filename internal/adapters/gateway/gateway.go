// Package gateway is the boundary to the attendance backend: it submits
// marks, reads today's history and lists the sites a user may clock in at.
package gateway

import (
	"context"
	"time"

	"github.com/okian/geoasistencia/internal/domain/geo"
	"github.com/okian/geoasistencia/internal/domain/geofence"
	"github.com/okian/geoasistencia/internal/domain/model"
)

// MarkRequest is what the backend receives for one clock-in or clock-out.
type MarkRequest struct {
	RequestID      string
	SiteID         string
	Type           model.MarkType
	Coord          geo.Coordinate
	InsideGeofence bool
	DeviceID       string
	Automatic      bool
}

// RequestFromMark builds the wire request for m.
func RequestFromMark(m model.Mark) MarkRequest {
	return MarkRequest{
		RequestID:      m.ID,
		SiteID:         m.SiteID,
		Type:           m.Type,
		Coord:          m.Coord,
		InsideGeofence: m.InsideGeofence,
		DeviceID:       m.DeviceID,
		Automatic:      m.Automatic,
	}
}

// Receipt is the backend's acknowledgement of a mark.
type Receipt struct {
	Accepted        bool
	ServerTimestamp time.Time
	Message         string
}

// Gateway persists marks and serves today's history for the current user.
type Gateway interface {
	SubmitMark(ctx context.Context, req MarkRequest) (Receipt, error)
	FetchTodayHistory(ctx context.Context) (model.DailyHistory, error)
}

// SiteDirectory lists the sites with their geofences.
type SiteDirectory interface {
	ListSites(ctx context.Context) ([]geofence.Site, error)
}
