package session

import (
	"time"

	"github.com/okian/geoasistencia/internal/domain/geofence"
	"github.com/okian/geoasistencia/internal/domain/model"
)

// Event is an input to the machine.
type Event interface {
	Time() time.Time
}

// FixReceived delivers a new location sample.
type FixReceived struct {
	Fix model.Fix
	At  time.Time
}

// SignalLost reports that the location source stopped delivering fixes.
type SignalLost struct {
	Reason error
	At     time.Time
}

// SiteSelected changes the selected site. A nil Site clears the selection.
type SiteSelected struct {
	Site *geofence.Site
	At   time.Time
}

// HistoryLoaded replaces today's history with a fresh copy from the gateway.
type HistoryLoaded struct {
	History model.DailyHistory
	At      time.Time
}

// HistoryFailed reports a failed history refresh.
type HistoryFailed struct {
	Err error
	At  time.Time
}

// MarkRequested is a manual clock-in or clock-out request.
type MarkRequested struct {
	Type      model.MarkType
	RequestID string
	At        time.Time
}

// Receipt is the gateway's answer to a submission.
type Receipt struct {
	Accepted        bool
	ServerTimestamp time.Time
}

// SubmissionCompleted reports the outcome of a Submit effect.
type SubmissionCompleted struct {
	RequestID string
	Receipt   Receipt
	Err       error
	At        time.Time
}

func (e FixReceived) Time() time.Time         { return e.At }
func (e SignalLost) Time() time.Time          { return e.At }
func (e SiteSelected) Time() time.Time        { return e.At }
func (e HistoryLoaded) Time() time.Time       { return e.At }
func (e HistoryFailed) Time() time.Time       { return e.At }
func (e MarkRequested) Time() time.Time       { return e.At }
func (e SubmissionCompleted) Time() time.Time { return e.At }

// Effect is work the caller must perform on behalf of the machine.
type Effect interface {
	effect()
}

// Submit asks the caller to send Mark to the gateway and report back with
// SubmissionCompleted carrying Mark.ID.
type Submit struct {
	Mark model.Mark
}

// RefreshHistory asks the caller to fetch today's history and report back
// with HistoryLoaded or HistoryFailed.
type RefreshHistory struct{}

func (Submit) effect()         {}
func (RefreshHistory) effect() {}

// Discard explains why a fix was ignored.
type Discard uint8

const (
	DiscardNone Discard = iota
	DiscardStale
	DiscardInaccurate
	DiscardInvalid
)

func (d Discard) String() string {
	switch d {
	case DiscardStale:
		return "stale"
	case DiscardInaccurate:
		return "inaccurate"
	case DiscardInvalid:
		return "invalid"
	}
	return "none"
}

// AutoClose is what happened to an automatic closure on this event.
type AutoClose uint8

const (
	AutoCloseNone AutoClose = iota
	AutoCloseTriggered
	AutoCloseSkippedClosed // edge while the session was not open
	AutoCloseSuppressed    // edge while the lock was armed
	AutoCloseDeferred      // edge while another mark was being saved
	AutoCloseDropped       // deferred closure no longer needed
)

func (a AutoClose) String() string {
	switch a {
	case AutoCloseTriggered:
		return "triggered"
	case AutoCloseSkippedClosed:
		return "skipped_closed"
	case AutoCloseSuppressed:
		return "suppressed"
	case AutoCloseDeferred:
		return "deferred"
	case AutoCloseDropped:
		return "dropped"
	}
	return "none"
}

// Completion describes a settled submission.
type Completion struct {
	Mark model.Mark
	Err  error
}

// Decision is the result of applying one event.
type Decision struct {
	Effects   []Effect
	Edges     Edge
	AutoClose AutoClose
	Discard   Discard
	// Rejected is set when a MarkRequested was refused. Wraps ErrRejected.
	Rejected error
	// Completed is set when a SubmissionCompleted settled the pending mark.
	Completed *Completion
}

// Submitted returns the mark of the Submit effect, if any.
func (d Decision) Submitted() (model.Mark, bool) {
	for _, e := range d.Effects {
		if s, ok := e.(Submit); ok {
			return s.Mark, true
		}
	}
	return model.Mark{}, false
}
