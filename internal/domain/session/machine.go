package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/okian/geoasistencia/internal/domain/autoclose"
	"github.com/okian/geoasistencia/internal/domain/geofence"
	"github.com/okian/geoasistencia/internal/domain/model"
)

// Machine tracks one user's attendance session. It is owned by a single
// goroutine and is not safe for concurrent use.
type Machine struct {
	deviceID    string
	maxAccuracy float64
	lock        autoclose.Lock
	newID       func() string

	history model.DailyHistory
	site    *geofence.Site
	fix     *model.Fix
	status  geofence.Status
	obs     Observation

	pending    *model.Mark // submission in flight
	refreshing bool        // history refresh following an accepted submission
	deferred   bool        // automatic closure waiting for the in-flight mark
}

// NewMachine creates a machine with an empty history and no site.
func NewMachine(opts ...Option) *Machine {
	m := &Machine{
		lock:  autoclose.NewCooldownLock(),
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Apply folds ev into the machine and returns the resulting decision.
func (m *Machine) Apply(ev Event) Decision {
	switch e := ev.(type) {
	case FixReceived:
		return m.onFix(e)
	case SignalLost:
		return m.observe(Observation{SignalAvailable: false, Inside: m.obs.Inside}, e.At, m.site)
	case SiteSelected:
		return m.onSite(e)
	case HistoryLoaded:
		m.history = e.History
		m.refreshing = false
		return m.settleDeferred(e.At, Decision{})
	case HistoryFailed:
		m.refreshing = false
		return m.settleDeferred(e.At, Decision{})
	case MarkRequested:
		return m.onMarkRequested(e)
	case SubmissionCompleted:
		return m.onSubmissionCompleted(e)
	case nil:
		panic("session: nil event")
	default:
		panic(fmt.Sprintf("session: unknown event %T", ev))
	}
}

func (m *Machine) onFix(e FixReceived) Decision {
	if m.fix != nil && !e.Fix.CapturedAt.After(m.fix.CapturedAt) {
		return Decision{Discard: DiscardStale}
	}
	if err := e.Fix.Coord.Validate(); err != nil || e.Fix.AccuracyMeters < 0 {
		return Decision{Discard: DiscardInvalid}
	}
	if m.maxAccuracy > 0 && e.Fix.AccuracyMeters > m.maxAccuracy {
		return Decision{Discard: DiscardInaccurate}
	}

	fix := e.Fix
	m.fix = &fix
	m.status = geofence.Evaluate(m.fix, m.site)
	return m.observe(Observation{SignalAvailable: true, Inside: m.status.Inside}, e.At, m.site)
}

func (m *Machine) onSite(e SiteSelected) Decision {
	left := m.site
	if e.Site != nil {
		s := *e.Site
		m.site = &s
	} else {
		m.site = nil
	}
	m.status = geofence.Evaluate(m.fix, m.site)
	return m.observe(Observation{SignalAvailable: m.obs.SignalAvailable, Inside: m.status.Inside}, e.At, left)
}

// observe advances the observation fold and runs the automatic-closure rule.
// site is the site the user is considered to be leaving.
func (m *Machine) observe(next Observation, at time.Time, site *geofence.Site) Decision {
	d := Decision{Edges: DetectEdges(m.obs, next)}
	m.obs = next
	if d.Edges == 0 {
		return d
	}

	switch {
	case m.opening():
		// The session opens once the ENTRADA lands; decide then.
		m.deferred = true
		d.AutoClose = AutoCloseDeferred
	case StateOf(m.history) != Open:
		d.AutoClose = AutoCloseSkippedClosed
	case m.lock.Armed(at):
		d.AutoClose = AutoCloseSuppressed
	case m.busy():
		m.deferred = true
		d.AutoClose = AutoCloseDeferred
	default:
		m.triggerAutoClose(at, site, &d)
	}
	return d
}

func (m *Machine) triggerAutoClose(at time.Time, site *geofence.Site, d *Decision) {
	if !m.lock.TryArm(at) {
		d.AutoClose = AutoCloseSuppressed
		return
	}
	mark := m.newMark(m.newID(), model.Salida, site)
	mark.Automatic = true
	m.pending = &mark
	d.AutoClose = AutoCloseTriggered
	d.Effects = append(d.Effects, Submit{Mark: mark})
}

// settleDeferred fires a deferred closure once nothing is in flight, provided
// the session is still open and the signal or containment is still degraded.
func (m *Machine) settleDeferred(at time.Time, d Decision) Decision {
	if !m.deferred || m.busy() {
		return d
	}
	m.deferred = false

	switch {
	case StateOf(m.history) != Open || (m.obs.SignalAvailable && m.obs.Inside):
		d.AutoClose = AutoCloseDropped
	case m.lock.Armed(at):
		d.AutoClose = AutoCloseSuppressed
	default:
		m.triggerAutoClose(at, m.site, &d)
	}
	return d
}

func (m *Machine) onMarkRequested(e MarkRequested) Decision {
	if err := m.check(e.Type); err != nil {
		return Decision{Rejected: err}
	}
	id := e.RequestID
	if id == "" {
		id = m.newID()
	}
	mark := m.newMark(id, e.Type, m.site)
	m.pending = &mark
	return Decision{Effects: []Effect{Submit{Mark: mark}}}
}

// check decides whether a manual mark of type t is legal right now.
func (m *Machine) check(t model.MarkType) error {
	reject := func(reason error) error { return fmt.Errorf("%w: %w", ErrRejected, reason) }

	switch {
	case t != model.Entrada && t != model.Salida:
		return reject(fmt.Errorf("%w: %q", model.ErrUnknownMarkType, t))
	case m.busy():
		return reject(ErrBusy)
	case m.site == nil:
		return reject(ErrNoSite)
	case !m.obs.SignalAvailable:
		return reject(ErrNoSignal)
	case m.fix == nil:
		return reject(ErrNoFix)
	}

	state := StateOf(m.history)
	if t == model.Entrada {
		if state == Open {
			return reject(ErrSessionOpen)
		}
		if !m.status.Inside {
			return reject(ErrOutsideGeofence)
		}
		return nil
	}
	if state != Open {
		return reject(ErrSessionClosed)
	}
	return nil
}

func (m *Machine) onSubmissionCompleted(e SubmissionCompleted) Decision {
	if m.pending == nil || m.pending.ID != e.RequestID {
		return Decision{}
	}
	mark := *m.pending
	m.pending = nil
	if mark.Automatic {
		m.lock.Release(e.At)
	}

	err := e.Err
	if err == nil && !e.Receipt.Accepted {
		err = ErrNotAccepted
	}
	if err != nil {
		d := Decision{Completed: &Completion{Mark: mark, Err: err}}
		return m.settleDeferred(e.At, d)
	}

	mark.ServerTimestamp = e.Receipt.ServerTimestamp
	m.history = m.history.Prepend(mark)
	m.refreshing = true
	return Decision{
		Completed: &Completion{Mark: mark},
		Effects:   []Effect{RefreshHistory{}},
	}
}

func (m *Machine) newMark(id string, t model.MarkType, site *geofence.Site) model.Mark {
	mark := model.Mark{
		ID:             id,
		Type:           t,
		InsideGeofence: m.status.Inside,
		DeviceID:       m.deviceID,
	}
	if m.fix != nil {
		mark.Coord = m.fix.Coord
	}
	switch {
	case site != nil:
		mark.SiteID, mark.SiteName = site.ID, site.Name
	default:
		// No site selected: close against the site the session was opened at.
		if latest, ok := m.history.Latest(); ok {
			mark.SiteID, mark.SiteName = latest.SiteID, latest.SiteName
		}
	}
	return mark
}

func (m *Machine) busy() bool { return m.pending != nil || m.refreshing }

// opening reports whether a manual ENTRADA is being saved.
func (m *Machine) opening() bool {
	return m.pending != nil && m.pending.Type == model.Entrada
}

// Snapshot is a read-only view of the machine.
type Snapshot struct {
	State           State
	SignalAvailable bool
	Inside          bool
	DistanceMeters  *float64
	Site            *geofence.Site
	Fix             *model.Fix
	History         model.DailyHistory
	Busy            bool
	AutoCloseArmed  bool
	AutoCloseReady  time.Time // end of the current cooldown, zero if none
	DeferredClose   bool
	CanEntrada      bool
	CanSalida       bool
}

// Snapshot returns the current view, evaluating the lock at time at.
func (m *Machine) Snapshot(at time.Time) Snapshot {
	s := Snapshot{
		State:           StateOf(m.history),
		SignalAvailable: m.obs.SignalAvailable,
		Inside:          m.status.Inside,
		History:         model.DailyHistory{Entries: append([]model.Mark(nil), m.history.Entries...)},
		Busy:            m.busy(),
		AutoCloseArmed:  m.lock.Armed(at),
		DeferredClose:   m.deferred,
		CanEntrada:      m.check(model.Entrada) == nil,
		CanSalida:       m.check(model.Salida) == nil,
	}
	if s.AutoCloseArmed {
		s.AutoCloseReady = m.lock.ReleaseAt()
	}
	if d, ok := m.status.Distance(); ok {
		s.DistanceMeters = &d
	}
	if m.site != nil {
		site := *m.site
		s.Site = &site
	}
	if m.fix != nil {
		fix := *m.fix
		s.Fix = &fix
	}
	return s
}
