// Package replay drives the session machine through scripted scenarios on a
// virtual clock, against the in-memory backend, and checks the outcome.
package replay

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/okian/geoasistencia/internal/adapters/location"
	"github.com/okian/geoasistencia/internal/domain/geo"
	"github.com/okian/geoasistencia/internal/domain/geofence"
	"github.com/okian/geoasistencia/internal/domain/model"
	"gopkg.in/yaml.v3"
)

// Sentinel kinds for replay errors.
var (
	ErrInvalidScript = errors.New("invalid replay script")
	ErrExpectation   = errors.New("expectation not met")
)

// metersPerDegree is the length of one degree of latitude.
const metersPerDegree = 111_195.0

// Script is one scenario.
type Script struct {
	Name         string     `yaml:"name"`
	Site         SiteSpec   `yaml:"site"`
	Sites        []SiteSpec `yaml:"sites"`
	DeviceID     string     `yaml:"device_id"`
	CooldownMS   int        `yaml:"cooldown_ms"`
	LatencyMS    int        `yaml:"latency_ms"`
	MaxAccuracyM float64    `yaml:"max_accuracy_m"`
	History      []MarkSpec `yaml:"history"`
	Steps        []Step     `yaml:"steps"`
	Expect       Expect     `yaml:"expect"`
}

// SiteSpec describes a geofenced site.
type SiteSpec struct {
	ID      string  `yaml:"id"`
	Name    string  `yaml:"name"`
	Lat     float64 `yaml:"lat"`
	Lng     float64 `yaml:"lng"`
	RadiusM float64 `yaml:"radius_m"`
}

func (s SiteSpec) site() geofence.Site {
	return geofence.Site{ID: s.ID, Name: s.Name, Center: geo.Coordinate{Lat: s.Lat, Lng: s.Lng}, RadiusMeters: s.RadiusM}
}

// MarkSpec is a mark already in today's history.
type MarkSpec struct {
	Type   string `yaml:"type"`
	SiteID string `yaml:"site_id"`
	Auto   bool   `yaml:"auto"`
}

// FixSpec is a location sample. Either Lat/Lng or an offset from the
// selected site's center in meters.
type FixSpec struct {
	Lat    *float64 `yaml:"lat"`
	Lng    *float64 `yaml:"lng"`
	NorthM float64  `yaml:"north_m"`
	EastM  float64  `yaml:"east_m"`
	AccM   float64  `yaml:"acc_m"`
}

// Step is one timed input. Exactly one action field is set.
type Step struct {
	AtMS       int      `yaml:"at_ms"`
	Fix        *FixSpec `yaml:"fix"`
	Lost       string   `yaml:"lost"`
	Mark       string   `yaml:"mark"`
	SelectSite *string  `yaml:"select_site"`
	FailSubmit string   `yaml:"fail_submit"`
}

// Expect is checked against the Report.
type Expect struct {
	Marks       []MarkExpect `yaml:"marks"`
	Rejections  []string     `yaml:"rejections"`
	FinalState  string       `yaml:"final_state"`
	AutoCloses  *int         `yaml:"auto_closes"`
	Suppressed  *int         `yaml:"suppressed"`
	FailedMarks *int         `yaml:"failed_marks"`
}

// MarkExpect describes one saved mark.
type MarkExpect struct {
	Type   string `yaml:"type"`
	Auto   *bool  `yaml:"auto"`
	SiteID string `yaml:"site_id"`
	Inside *bool  `yaml:"inside"`
}

// Load reads and validates a script file.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse decodes and validates a YAML script.
func Parse(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidScript, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the script for structural mistakes.
func (s *Script) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidScript, fmt.Sprintf(format, args...))
	}

	for _, site := range s.AllSites() {
		if err := site.site().Validate(); err != nil {
			return invalid("site %q: %v", site.ID, err)
		}
	}
	for i, m := range s.History {
		if _, err := model.ParseMarkType(m.Type); err != nil {
			return invalid("history[%d]: %v", i, err)
		}
	}
	last := 0
	for i, st := range s.Steps {
		if st.AtMS < last {
			return invalid("step %d goes back in time (%dms < %dms)", i, st.AtMS, last)
		}
		last = st.AtMS

		actions := 0
		for _, set := range []bool{st.Fix != nil, st.Lost != "", st.Mark != "", st.SelectSite != nil, st.FailSubmit != ""} {
			if set {
				actions++
			}
		}
		if actions != 1 {
			return invalid("step %d must have exactly one action, has %d", i, actions)
		}
		if st.Mark != "" {
			if _, err := model.ParseMarkType(st.Mark); err != nil {
				return invalid("step %d: %v", i, err)
			}
		}
		if st.FailSubmit != "" {
			if _, ok := failures[st.FailSubmit]; !ok {
				return invalid("step %d: unknown failure %q", i, st.FailSubmit)
			}
		}
		if st.Fix != nil && (st.Fix.Lat == nil) != (st.Fix.Lng == nil) {
			return invalid("step %d: fix needs both lat and lng", i)
		}
	}
	return nil
}

// AllSites returns Site followed by Sites, skipping an empty Site.
func (s *Script) AllSites() []SiteSpec {
	var out []SiteSpec
	if s.Site.ID != "" {
		out = append(out, s.Site)
	}
	return append(out, s.Sites...)
}

// Seed returns the site directory and today's history the script starts
// from. History entries are stamped an hour apart before base.
func (s *Script) Seed(base time.Time) ([]geofence.Site, model.DailyHistory) {
	var sites []geofence.Site
	names := make(map[string]string)
	for _, spec := range s.AllSites() {
		sites = append(sites, spec.site())
		names[spec.ID] = spec.Name
	}
	var h model.DailyHistory
	for i, spec := range s.History {
		t, _ := model.ParseMarkType(spec.Type)
		h.Entries = append(h.Entries, model.Mark{
			ID:              fmt.Sprintf("history-%d", i),
			Type:            t,
			SiteID:          spec.SiteID,
			SiteName:        names[spec.SiteID],
			Automatic:       spec.Auto,
			ServerTimestamp: base.Add(-time.Duration(i+1) * time.Hour),
		})
	}
	return sites, h
}

// Cooldown returns the configured cooldown, or zero for the default.
func (s *Script) Cooldown() time.Duration { return time.Duration(s.CooldownMS) * time.Millisecond }

// coord resolves a fix relative to center.
func (f FixSpec) coord(center geo.Coordinate) geo.Coordinate {
	if f.Lat != nil && f.Lng != nil {
		return geo.Coordinate{Lat: *f.Lat, Lng: *f.Lng}
	}
	lat := center.Lat + f.NorthM/metersPerDegree
	lng := center.Lng + f.EastM/(metersPerDegree*math.Cos(center.Lat*math.Pi/180))
	return geo.Coordinate{Lat: lat, Lng: lng}
}

// Waypoints turns the fix and signal-loss steps into a track, relative to the
// script's first site. Other actions are skipped.
func (s *Script) Waypoints() []location.Waypoint {
	var center geo.Coordinate
	if sites := s.AllSites(); len(sites) > 0 {
		center = sites[0].site().Center
	}
	var out []location.Waypoint
	for _, st := range s.Steps {
		switch {
		case st.Fix != nil:
			out = append(out, location.Waypoint{Coord: st.Fix.coord(center), AccuracyMeters: st.Fix.AccM})
		case st.Lost != "":
			out = append(out, location.Waypoint{Lost: true})
		}
	}
	return out
}
