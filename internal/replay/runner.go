package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/geoasistencia/internal/adapters/gateway"
	"github.com/okian/geoasistencia/internal/adapters/location"
	"github.com/okian/geoasistencia/internal/domain/autoclose"
	"github.com/okian/geoasistencia/internal/domain/geo"
	"github.com/okian/geoasistencia/internal/domain/geofence"
	"github.com/okian/geoasistencia/internal/domain/model"
	"github.com/okian/geoasistencia/internal/domain/session"
	"github.com/okian/geoasistencia/pkg/logger"
)

// Epoch is the virtual time of step at_ms 0.
var Epoch = time.Date(2026, time.January, 5, 8, 0, 0, 0, time.UTC)

var failures = map[string]error{
	"transport":    gateway.ErrTransport,
	"unauthorized": gateway.ErrUnauthorized,
	"rejected":     fmt.Errorf("%w: rechazado por el servidor", gateway.ErrRejectedByServer),
	"timeout":      fmt.Errorf("%w: %w", gateway.ErrTransport, context.DeadlineExceeded),
}

func lossReason(name string) error {
	switch name {
	case "timeout":
		return location.ErrTimeout
	case "stopped":
		return location.ErrStopped
	case "connection_lost":
		return location.ErrConnectionLost
	}
	return errors.New(name)
}

// Report is what happened during one replay.
type Report struct {
	Name        string
	Saved       []model.Mark
	Attempts    int
	FailedMarks int
	Rejections  []string
	AutoCloses  int
	Suppressed  int
	Deferred    int
	Dropped     int
	Discarded   int
	FinalState  session.State
	Trace       []string
}

type call struct {
	due  time.Time
	mark *model.Mark // nil for a history refresh
}

type runner struct {
	script  *Script
	machine *session.Machine
	gw      *gateway.Memory
	sites   map[string]geofence.Site
	center  geo.Coordinate
	now     time.Time
	latency time.Duration
	queue   []call
	report  *Report
	logger  logger.Logger
}

// Run replays s on a virtual clock and returns what happened. Backend calls
// complete latency_ms after they are issued.
func Run(ctx context.Context, s *Script) (*Report, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	r := &runner{
		script:  s,
		sites:   make(map[string]geofence.Site),
		now:     Epoch,
		latency: time.Duration(s.LatencyMS) * time.Millisecond,
		report:  &Report{Name: s.Name},
		logger:  logger.Get().Named("replay"),
	}

	sites, history := s.Seed(Epoch)
	for _, site := range sites {
		r.sites[site.ID] = site
	}
	r.gw = gateway.NewMemory(
		gateway.WithSites(sites...),
		gateway.WithHistory(history.Entries...),
		gateway.WithMemoryClock(func() time.Time { return r.now }),
	)

	lockOpts := []autoclose.Option{}
	if s.CooldownMS > 0 {
		lockOpts = append(lockOpts, autoclose.WithCooldown(s.Cooldown()))
	}
	deviceID := s.DeviceID
	if deviceID == "" {
		deviceID = "replay"
	}
	seq := 0
	r.machine = session.NewMachine(
		session.WithDeviceID(deviceID),
		session.WithLock(autoclose.NewCooldownLock(lockOpts...)),
		session.WithMaxAccuracy(s.MaxAccuracyM),
		session.WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("auto-%d", seq)
		}),
	)

	if len(sites) > 0 {
		first := sites[0]
		r.center = first.Center
		r.apply(ctx, session.SiteSelected{Site: &first, At: r.now})
	}
	r.apply(ctx, session.HistoryLoaded{History: history, At: r.now})

	for i, st := range s.Steps {
		at := Epoch.Add(time.Duration(st.AtMS) * time.Millisecond)
		r.flush(ctx, at)
		r.now = at

		switch {
		case st.Fix != nil:
			fix := model.Fix{Coord: st.Fix.coord(r.center), AccuracyMeters: st.Fix.AccM, CapturedAt: at}
			r.apply(ctx, session.FixReceived{Fix: fix, At: at})
		case st.Lost != "":
			r.apply(ctx, session.SignalLost{Reason: lossReason(st.Lost), At: at})
		case st.Mark != "":
			t, _ := model.ParseMarkType(st.Mark)
			r.apply(ctx, session.MarkRequested{Type: t, RequestID: fmt.Sprintf("step-%d", i), At: at})
		case st.SelectSite != nil:
			ev := session.SiteSelected{At: at}
			if id := *st.SelectSite; id != "" {
				site, ok := r.sites[id]
				if !ok {
					return nil, fmt.Errorf("%w: step %d selects unknown site %q", ErrInvalidScript, i, id)
				}
				r.center = site.Center
				ev.Site = &site
			}
			r.apply(ctx, ev)
		case st.FailSubmit != "":
			r.gw.FailNextSubmits(failures[st.FailSubmit])
			r.tracef("next submission fails with %s", st.FailSubmit)
		}
	}
	r.flush(ctx, time.Time{})

	r.report.FinalState = r.machine.Snapshot(r.now).State
	return r.report, nil
}

// flush completes queued backend calls due at or before limit. A zero limit
// drains everything.
func (r *runner) flush(ctx context.Context, limit time.Time) {
	for len(r.queue) > 0 {
		c := r.queue[0]
		if !limit.IsZero() && c.due.After(limit) {
			return
		}
		r.queue = r.queue[1:]
		r.now = c.due

		if c.mark == nil {
			h, err := r.gw.FetchTodayHistory(ctx)
			if err != nil {
				r.apply(ctx, session.HistoryFailed{Err: err, At: r.now})
				continue
			}
			r.apply(ctx, session.HistoryLoaded{History: h, At: r.now})
			continue
		}

		rcpt, err := r.gw.SubmitMark(ctx, gateway.RequestFromMark(*c.mark))
		r.apply(ctx, session.SubmissionCompleted{
			RequestID: c.mark.ID,
			Receipt:   session.Receipt{Accepted: rcpt.Accepted, ServerTimestamp: rcpt.ServerTimestamp},
			Err:       err,
			At:        r.now,
		})
	}
}

func (r *runner) apply(ctx context.Context, ev session.Event) {
	d := r.machine.Apply(ev)

	if d.Discard != session.DiscardNone {
		r.report.Discarded++
		r.tracef("fix discarded (%s)", d.Discard)
	}
	if d.Edges != 0 {
		r.tracef("edge %s", d.Edges)
	}
	switch d.AutoClose {
	case session.AutoCloseTriggered:
		r.report.AutoCloses++
	case session.AutoCloseSuppressed:
		r.report.Suppressed++
	case session.AutoCloseDeferred:
		r.report.Deferred++
	case session.AutoCloseDropped:
		r.report.Dropped++
	}
	if d.AutoClose != session.AutoCloseNone {
		r.tracef("automatic closure %s", d.AutoClose)
	}
	if d.Rejected != nil {
		code := session.ReasonCode(d.Rejected)
		r.report.Rejections = append(r.report.Rejections, code)
		r.tracef("mark rejected: %s", code)
	}
	if c := d.Completed; c != nil {
		if c.Err != nil {
			r.report.FailedMarks++
			r.tracef("%s failed: %v", c.Mark.Type, c.Err)
		} else {
			r.report.Saved = append(r.report.Saved, c.Mark)
			r.tracef("%s saved (auto=%t, site=%s)", c.Mark.Type, c.Mark.Automatic, c.Mark.SiteID)
		}
	}

	for _, eff := range d.Effects {
		switch e := eff.(type) {
		case session.Submit:
			mark := e.Mark
			r.report.Attempts++
			r.queue = append(r.queue, call{due: r.now.Add(r.latency), mark: &mark})
			r.tracef("submit %s (auto=%t)", mark.Type, mark.Automatic)
		case session.RefreshHistory:
			r.queue = append(r.queue, call{due: r.now.Add(r.latency)})
		}
	}

	r.logger.Debug(ctx, "replay event",
		logger.String("script", r.script.Name),
		logger.String("event", fmt.Sprintf("%T", ev)),
		logger.Duration("at", ev.Time().Sub(Epoch)),
	)
}

func (r *runner) tracef(format string, args ...any) {
	line := fmt.Sprintf("%8s  ", r.now.Sub(Epoch)) + fmt.Sprintf(format, args...)
	r.report.Trace = append(r.report.Trace, line)
}
