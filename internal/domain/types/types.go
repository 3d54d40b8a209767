// Package types contains the JSON shapes served to the attendance UI.
package types

import (
	"time"

	"github.com/okian/geoasistencia/internal/domain/geofence"
	"github.com/okian/geoasistencia/internal/domain/model"
	"github.com/okian/geoasistencia/internal/domain/session"
)

// Site is a geofenced workplace.
type Site struct {
	ID           string  `json:"id_sede"`
	Name         string  `json:"nombre"`
	Lat          float64 `json:"latitud"`
	Lng          float64 `json:"longitud"`
	RadiusMeters float64 `json:"radio_metros"`
}

// Mark is one saved attendance mark.
type Mark struct {
	ID              string     `json:"id,omitempty"`
	Type            string     `json:"tipo"`
	SiteID          string     `json:"id_sede,omitempty"`
	SiteName        string     `json:"sede,omitempty"`
	InsideGeofence  bool       `json:"dentro_geocerca"`
	Automatic       bool       `json:"auto"`
	ServerTimestamp *time.Time `json:"ts_servidor,omitempty"`
}

// Fix is the last accepted location sample.
type Fix struct {
	Lat            float64   `json:"lat"`
	Lng            float64   `json:"lng"`
	AccuracyMeters float64   `json:"accuracy_m"`
	CapturedAt     time.Time `json:"captured_at"`
}

// Session is the state the UI renders its buttons and banners from.
type Session struct {
	State           string     `json:"state"`
	SignalAvailable bool       `json:"signal"`
	Inside          bool       `json:"inside"`
	DistanceMeters  *float64   `json:"distance_m"`
	Site            *Site      `json:"site"`
	Fix             *Fix       `json:"fix"`
	Busy            bool       `json:"busy"`
	AutoCloseArmed  bool       `json:"auto_close_armed"`
	AutoCloseReady  *time.Time `json:"auto_close_ready,omitempty"`
	DeferredClose   bool       `json:"deferred_close"`
	CanEntrada      bool       `json:"can_entrada"`
	CanSalida       bool       `json:"can_salida"`
	History         []Mark     `json:"history"`
	Employee        string     `json:"employee,omitempty"`
	DeviceID        string     `json:"device_id,omitempty"`
}

// FromSite converts a domain site.
func FromSite(s geofence.Site) Site {
	return Site{ID: s.ID, Name: s.Name, Lat: s.Center.Lat, Lng: s.Center.Lng, RadiusMeters: s.RadiusMeters}
}

// FromMark converts a domain mark. A zero server timestamp is omitted.
func FromMark(m model.Mark) Mark {
	out := Mark{
		ID:             m.ID,
		Type:           string(m.Type),
		SiteID:         m.SiteID,
		SiteName:       m.SiteName,
		InsideGeofence: m.InsideGeofence,
		Automatic:      m.Automatic,
	}
	if !m.ServerTimestamp.IsZero() {
		ts := m.ServerTimestamp
		out.ServerTimestamp = &ts
	}
	return out
}

// FromSnapshot converts a session snapshot.
func FromSnapshot(s session.Snapshot) Session {
	out := Session{
		State:           s.State.String(),
		SignalAvailable: s.SignalAvailable,
		Inside:          s.Inside,
		DistanceMeters:  s.DistanceMeters,
		Busy:            s.Busy,
		AutoCloseArmed:  s.AutoCloseArmed,
		DeferredClose:   s.DeferredClose,
		CanEntrada:      s.CanEntrada,
		CanSalida:       s.CanSalida,
		History:         make([]Mark, 0, s.History.Len()),
	}
	if s.Site != nil {
		site := FromSite(*s.Site)
		out.Site = &site
	}
	if s.Fix != nil {
		out.Fix = &Fix{
			Lat:            s.Fix.Coord.Lat,
			Lng:            s.Fix.Coord.Lng,
			AccuracyMeters: s.Fix.AccuracyMeters,
			CapturedAt:     s.Fix.CapturedAt,
		}
	}
	if !s.AutoCloseReady.IsZero() {
		ready := s.AutoCloseReady
		out.AutoCloseReady = &ready
	}
	for _, m := range s.History.Entries {
		out.History = append(out.History, FromMark(m))
	}
	return out
}
