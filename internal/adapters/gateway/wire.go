package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/okian/geoasistencia/internal/domain/geo"
	"github.com/okian/geoasistencia/internal/domain/geofence"
	"github.com/okian/geoasistencia/internal/domain/model"
)

// The backend serializes numeric columns inconsistently, sometimes as JSON
// numbers and sometimes as strings. These types accept both.

type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("number %q: %w", s, err)
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*s = ""
	case len(b) > 0 && b[0] == '"':
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		*s = flexString(n.String())
	}
	return nil
}

var serverTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000000",
}

type flexTime time.Time

func (t *flexTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil || s == "" {
		*t = flexTime(time.Time{})
		return nil //nolint:nilerr // a missing server timestamp is tolerated
	}
	for _, layout := range serverTimeLayouts {
		if v, err := time.Parse(layout, s); err == nil {
			*t = flexTime(v)
			return nil
		}
	}
	return fmt.Errorf("timestamp %q: unknown layout", s)
}

// markBody is the POST /asistencia/marcar payload.
type markBody struct {
	SiteID         string  `json:"id_sede"`
	Type           string  `json:"tipo"`
	Lat            float64 `json:"latitud"`
	Lng            float64 `json:"longitud"`
	InsideGeofence bool    `json:"dentro_geocerca"`
	DeviceID       string  `json:"device_id"`
	Automatic      bool    `json:"auto"`
}

func newMarkBody(req MarkRequest) markBody {
	return markBody{
		SiteID:         req.SiteID,
		Type:           string(req.Type),
		Lat:            req.Coord.Lat,
		Lng:            req.Coord.Lng,
		InsideGeofence: req.InsideGeofence,
		DeviceID:       req.DeviceID,
		Automatic:      req.Automatic,
	}
}

type markReply struct {
	Message         string   `json:"message"`
	ServerTimestamp flexTime `json:"ts_servidor"`
}

type historyRow struct {
	Type            string     `json:"tipo"`
	SiteName        string     `json:"sede"`
	SiteID          flexString `json:"id_sede"`
	ServerTimestamp flexTime   `json:"ts_servidor"`
	Automatic       bool       `json:"auto"`
	InsideGeofence  bool       `json:"dentro_geocerca"`
	Lat             flexFloat  `json:"latitud"`
	Lng             flexFloat  `json:"longitud"`
}

func (r historyRow) toMark() (model.Mark, error) {
	t, err := model.ParseMarkType(r.Type)
	if err != nil {
		return model.Mark{}, err
	}
	return model.Mark{
		Type:            t,
		SiteID:          string(r.SiteID),
		SiteName:        r.SiteName,
		Coord:           geo.Coordinate{Lat: float64(r.Lat), Lng: float64(r.Lng)},
		InsideGeofence:  r.InsideGeofence,
		Automatic:       r.Automatic,
		ServerTimestamp: time.Time(r.ServerTimestamp),
	}, nil
}

type siteRow struct {
	ID     flexString `json:"id_sede"`
	Name   string     `json:"nombre"`
	Lat    flexFloat  `json:"latitud"`
	Lng    flexFloat  `json:"longitud"`
	Radius flexFloat  `json:"radio_metros"`
}

func (r siteRow) toSite() (geofence.Site, error) {
	s := geofence.Site{
		ID:           string(r.ID),
		Name:         r.Name,
		Center:       geo.Coordinate{Lat: float64(r.Lat), Lng: float64(r.Lng)},
		RadiusMeters: float64(r.Radius),
	}
	if err := s.Validate(); err != nil {
		return geofence.Site{}, err
	}
	return s, nil
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (e errorBody) text() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}
