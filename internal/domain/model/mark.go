package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/geoasistencia/internal/domain/geo"
)

// ErrUnknownMarkType is returned by ParseMarkType for anything but ENTRADA or SALIDA.
var ErrUnknownMarkType = errors.New("unknown mark type")

// MarkType is the direction of an attendance mark.
type MarkType string

const (
	Entrada MarkType = "ENTRADA" // clock-in
	Salida  MarkType = "SALIDA"  // clock-out
)

// ParseMarkType parses a mark type case-insensitively.
func ParseMarkType(s string) (MarkType, error) {
	switch MarkType(strings.ToUpper(strings.TrimSpace(s))) {
	case Entrada:
		return Entrada, nil
	case Salida:
		return Salida, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMarkType, s)
}

// Mark is a clock-in/out event. Once accepted by the gateway it is immutable.
type Mark struct {
	ID              string // client-side request id
	Type            MarkType
	SiteID          string
	SiteName        string
	Coord           geo.Coordinate
	InsideGeofence  bool
	DeviceID        string
	Automatic       bool
	ServerTimestamp time.Time // assigned by the gateway
}

// DailyHistory is today's marks for the current user, most recent first.
type DailyHistory struct {
	Entries []Mark
}

// Latest returns the most recent mark, if any.
func (h DailyHistory) Latest() (Mark, bool) {
	if len(h.Entries) == 0 {
		return Mark{}, false
	}
	return h.Entries[0], true
}

// Prepend returns a new history with m as the most recent entry.
func (h DailyHistory) Prepend(m Mark) DailyHistory {
	entries := make([]Mark, 0, len(h.Entries)+1)
	entries = append(entries, m)
	entries = append(entries, h.Entries...)
	return DailyHistory{Entries: entries}
}

// Len returns the number of marks.
func (h DailyHistory) Len() int { return len(h.Entries) }
