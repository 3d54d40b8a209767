// Package session implements the attendance session state machine.
//
// The machine is a reducer: Apply folds one Event into the current state and
// returns the Effects the caller must run. It performs no I/O and reads no
// clock, every event carries its own timestamp.
package session

import (
	"strings"

	"github.com/okian/geoasistencia/internal/domain/model"
)

// State is the derived openness of today's attendance session.
type State uint8

const (
	Closed State = iota
	Open
)

func (s State) String() string {
	if s == Open {
		return "OPEN"
	}
	return "CLOSED"
}

// StateOf derives the session state from the latest mark of the day.
func StateOf(h model.DailyHistory) State {
	if latest, ok := h.Latest(); ok && latest.Type == model.Entrada {
		return Open
	}
	return Closed
}

// Observation is the pair of boolean inputs watched for edges.
type Observation struct {
	SignalAvailable bool
	Inside          bool
}

// Edge is a set of on-to-off transitions between two observations.
type Edge uint8

const (
	EdgeSignalLost Edge = 1 << iota
	EdgeGeofenceExit
)

// Has reports whether e contains f.
func (e Edge) Has(f Edge) bool { return e&f != 0 }

func (e Edge) String() string {
	if e == 0 {
		return "none"
	}
	var parts []string
	if e.Has(EdgeSignalLost) {
		parts = append(parts, "signal_lost")
	}
	if e.Has(EdgeGeofenceExit) {
		parts = append(parts, "geofence_exit")
	}
	return strings.Join(parts, "+")
}

// DetectEdges compares two consecutive observations.
// Only true-to-false transitions are edges.
func DetectEdges(prev, cur Observation) Edge {
	var e Edge
	if prev.SignalAvailable && !cur.SignalAvailable {
		e |= EdgeSignalLost
	}
	if prev.Inside && !cur.Inside {
		e |= EdgeGeofenceExit
	}
	return e
}
