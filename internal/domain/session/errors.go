package session

import "errors"

// ErrRejected wraps every synchronous rejection of a manual mark.
var ErrRejected = errors.New("mark rejected")

// Rejection reasons. Always returned wrapped together with ErrRejected.
var (
	ErrBusy            = errors.New("a mark is already being saved")
	ErrNoSite          = errors.New("no site selected")
	ErrNoSignal        = errors.New("location signal unavailable")
	ErrNoFix           = errors.New("no location fix yet")
	ErrSessionOpen     = errors.New("session already open")
	ErrSessionClosed   = errors.New("no open session")
	ErrOutsideGeofence = errors.New("outside the site geofence")
)

// ErrNotAccepted is reported when the gateway answered without accepting the mark.
var ErrNotAccepted = errors.New("mark not accepted by gateway")

// ReasonCode maps a rejection to a stable machine-readable code.
func ReasonCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrNoSite):
		return "no_site"
	case errors.Is(err, ErrNoSignal):
		return "no_signal"
	case errors.Is(err, ErrNoFix):
		return "no_fix"
	case errors.Is(err, ErrSessionOpen):
		return "session_open"
	case errors.Is(err, ErrSessionClosed):
		return "session_closed"
	case errors.Is(err, ErrOutsideGeofence):
		return "outside_geofence"
	}
	return "rejected"
}
