package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/okian/geoasistencia/internal/adapters/gateway"
	"github.com/okian/geoasistencia/internal/adapters/location"
	"github.com/okian/geoasistencia/internal/adapters/mq/queue"
	"github.com/okian/geoasistencia/internal/domain/model"
	"github.com/okian/geoasistencia/internal/domain/session"
	"github.com/okian/geoasistencia/pkg/logger"
	"github.com/okian/geoasistencia/pkg/metrics"
)

const (
	defaultCallTimeout = 10 * time.Second
	completionsBuffer  = 8
)

// Queue defines how the loop receives events and how manual marks are queued.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Event
	EnqueueWait(ctx context.Context, e queue.Event) error
}

// Stats are counters kept by the loop.
type Stats struct {
	EventsApplied   int64
	FixesDiscarded  int64
	MarksSubmitted  int64
	AutoCloses      int64
	MarksAccepted   int64
	MarksFailed     int64
	Rejections      int64
	HistoryRefreshs int64
}

type markReply struct {
	mark model.Mark
	err  error
}

// Loop owns one session machine. Everything that touches the machine happens
// on the goroutine running Run.
type Loop struct {
	queue       Queue
	machine     *session.Machine
	gateway     gateway.Gateway
	deviceID    string
	callTimeout time.Duration
	now         func() time.Time

	completions chan session.Event
	queries     chan chan session.Snapshot

	mu      sync.Mutex
	waiters map[string]chan markReply

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	stats struct {
		events, discarded, submitted, auto, accepted, failed, rejected, refreshes atomic.Int64
	}

	logger logger.Logger
}

// NewLoop creates a loop applying events from q to m and sending marks through gw.
func NewLoop(q Queue, m *session.Machine, gw gateway.Gateway, opts ...Option) *Loop {
	l := &Loop{
		queue:       q,
		machine:     m,
		gateway:     gw,
		callTimeout: defaultCallTimeout,
		now:         time.Now,
		completions: make(chan session.Event, completionsBuffer),
		queries:     make(chan chan session.Snapshot),
		waiters:     make(map[string]chan markReply),
		shutdown:    make(chan struct{}),
		done:        make(chan struct{}),
		logger:      logger.Get().Named("worker"),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Run applies events until ctx is done, Shutdown is called or the queue closes.
func (l *Loop) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		l.failWaiters(ErrStopped)
		close(l.done)
	}()

	events := l.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.shutdown:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			l.apply(ctx, ev)
		case ev := <-l.completions:
			l.apply(ctx, ev)
		case reply := <-l.queries:
			reply <- l.machine.Snapshot(l.now())
		}
	}
}

// Shutdown stops the loop and waits for it to exit.
func (l *Loop) Shutdown(ctx context.Context) error {
	l.shutdownOnce.Do(func() { close(l.shutdown) })

	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		l.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Mark requests a manual mark and waits for its outcome. Rejections return
// immediately wrapped in session.ErrRejected; accepted submissions return the
// stored mark.
func (l *Loop) Mark(ctx context.Context, t model.MarkType) (model.Mark, error) {
	id := uuid.NewString()
	reply := make(chan markReply, 1)

	l.mu.Lock()
	l.waiters[id] = reply
	l.mu.Unlock()
	defer l.dropWaiter(id)

	ev := session.MarkRequested{Type: t, RequestID: id, At: l.now()}
	if err := l.queue.EnqueueWait(ctx, ev); err != nil {
		return model.Mark{}, fmt.Errorf("queue mark request: %w", err)
	}

	select {
	case r := <-reply:
		return r.mark, r.err
	case <-ctx.Done():
		return model.Mark{}, ctx.Err()
	case <-l.done:
		return model.Mark{}, ErrStopped
	}
}

// Snapshot returns the machine's current view.
func (l *Loop) Snapshot(ctx context.Context) (session.Snapshot, error) {
	reply := make(chan session.Snapshot, 1)
	select {
	case l.queries <- reply:
	case <-ctx.Done():
		return session.Snapshot{}, ctx.Err()
	case <-l.done:
		return session.Snapshot{}, ErrStopped
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return session.Snapshot{}, ctx.Err()
	}
}

// Stats returns the loop counters.
func (l *Loop) Stats() Stats {
	return Stats{
		EventsApplied:   l.stats.events.Load(),
		FixesDiscarded:  l.stats.discarded.Load(),
		MarksSubmitted:  l.stats.submitted.Load(),
		AutoCloses:      l.stats.auto.Load(),
		MarksAccepted:   l.stats.accepted.Load(),
		MarksFailed:     l.stats.failed.Load(),
		Rejections:      l.stats.rejected.Load(),
		HistoryRefreshs: l.stats.refreshes.Load(),
	}
}

// apply folds one event into the machine and runs the resulting effects.
func (l *Loop) apply(ctx context.Context, ev session.Event) {
	start := time.Now()
	defer func() {
		metrics.RecordEventProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	d := l.machine.Apply(ev)
	l.stats.events.Add(1)
	l.observe(ctx, ev, d)

	for _, eff := range d.Effects {
		switch e := eff.(type) {
		case session.Submit:
			go l.submit(ctx, e.Mark)
		case session.RefreshHistory:
			go l.refresh(ctx)
		}
	}
}

// observe records metrics, logs and answers waiters for one decision.
func (l *Loop) observe(ctx context.Context, ev session.Event, d session.Decision) {
	switch e := ev.(type) {
	case session.FixReceived:
		if d.Discard != session.DiscardNone {
			l.stats.discarded.Add(1)
			metrics.RecordFix(d.Discard.String())
			l.logger.Debug(ctx, "fix discarded", logger.String("reason", d.Discard.String()))
		} else {
			metrics.RecordFix("accepted")
		}
	case session.SignalLost:
		metrics.RecordSignalLost(lossReason(e.Reason))
	case session.MarkRequested:
		if d.Rejected != nil {
			l.stats.rejected.Add(1)
			metrics.RecordMarkRejected(session.ReasonCode(d.Rejected))
			l.logger.Info(ctx, "mark rejected",
				logger.String("device_id", l.deviceID),
				logger.String("type", string(e.Type)),
				logger.String("reason", session.ReasonCode(d.Rejected)),
			)
			l.resolve(e.RequestID, markReply{err: d.Rejected})
		}
	case session.HistoryLoaded:
		l.stats.refreshes.Add(1)
		metrics.RecordHistoryRefresh("ok")
	case session.HistoryFailed:
		metrics.RecordHistoryRefresh("failed")
		l.logger.Warn(ctx, "history refresh failed", logger.Error(e.Err))
	}

	if d.Edges != 0 {
		for _, edge := range []session.Edge{session.EdgeSignalLost, session.EdgeGeofenceExit} {
			if d.Edges.Has(edge) {
				metrics.RecordEdge(edge.String())
			}
		}
	}
	if d.AutoClose != session.AutoCloseNone {
		metrics.RecordAutoClose(d.AutoClose.String())
		l.logger.Info(ctx, "automatic closure",
			logger.String("device_id", l.deviceID),
			logger.String("edges", d.Edges.String()),
			logger.String("outcome", d.AutoClose.String()),
		)
	}
	if mark, ok := d.Submitted(); ok {
		l.stats.submitted.Add(1)
		if mark.Automatic {
			l.stats.auto.Add(1)
		}
		metrics.RecordMarkSubmitted(string(mark.Type), mark.Automatic)
	}
	if c := d.Completed; c != nil {
		l.complete(ctx, c)
	}

	snap := l.machine.Snapshot(ev.Time())
	dist := -1.0
	if snap.DistanceMeters != nil {
		dist = *snap.DistanceMeters
	}
	metrics.UpdateSessionOpen(snap.State == session.Open)
	metrics.UpdateLocation(snap.SignalAvailable, snap.Inside, dist)
}

func (l *Loop) complete(ctx context.Context, c *session.Completion) {
	if c.Err != nil {
		l.stats.failed.Add(1)
		metrics.RecordMarkResult(string(c.Mark.Type), "failed")
		l.logger.Warn(ctx, "mark not saved",
			logger.String("device_id", l.deviceID),
			logger.String("request_id", c.Mark.ID),
			logger.String("type", string(c.Mark.Type)),
			logger.Bool("auto", c.Mark.Automatic),
			logger.Error(c.Err),
		)
		l.resolve(c.Mark.ID, markReply{mark: c.Mark, err: fmt.Errorf("save %s: %w", c.Mark.Type, c.Err)})
		return
	}
	l.stats.accepted.Add(1)
	metrics.RecordMarkResult(string(c.Mark.Type), "accepted")
	l.logger.Info(ctx, "mark saved",
		logger.String("device_id", l.deviceID),
		logger.String("request_id", c.Mark.ID),
		logger.String("type", string(c.Mark.Type)),
		logger.Bool("auto", c.Mark.Automatic),
		logger.Time("server_ts", c.Mark.ServerTimestamp),
	)
	l.resolve(c.Mark.ID, markReply{mark: c.Mark})
}

// submit sends mark to the gateway and reports back on the completions channel.
func (l *Loop) submit(ctx context.Context, mark model.Mark) {
	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, l.callTimeout)
	defer cancel()

	rcpt, err := l.gateway.SubmitMark(callCtx, gateway.RequestFromMark(mark))
	metrics.RecordSubmissionLatency(float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordErrorByComponent("worker", "submit")
	}

	l.deliver(session.SubmissionCompleted{
		RequestID: mark.ID,
		Receipt:   session.Receipt{Accepted: rcpt.Accepted, ServerTimestamp: rcpt.ServerTimestamp},
		Err:       err,
		At:        l.now(),
	})
}

// refresh reloads today's history and reports back on the completions channel.
func (l *Loop) refresh(ctx context.Context) {
	callCtx, cancel := context.WithTimeout(ctx, l.callTimeout)
	defer cancel()

	h, err := l.gateway.FetchTodayHistory(callCtx)
	if err != nil {
		metrics.RecordErrorByComponent("worker", "history")
		l.deliver(session.HistoryFailed{Err: err, At: l.now()})
		return
	}
	l.deliver(session.HistoryLoaded{History: h, At: l.now()})
}

func (l *Loop) deliver(ev session.Event) {
	select {
	case l.completions <- ev:
	case <-l.done:
	}
}

func (l *Loop) resolve(id string, r markReply) {
	l.mu.Lock()
	reply, ok := l.waiters[id]
	delete(l.waiters, id)
	l.mu.Unlock()
	if ok {
		reply <- r
	}
}

func (l *Loop) dropWaiter(id string) {
	l.mu.Lock()
	delete(l.waiters, id)
	l.mu.Unlock()
}

func (l *Loop) failWaiters(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, reply := range l.waiters {
		reply <- markReply{err: err}
		delete(l.waiters, id)
	}
}

// lossReason maps a signal-loss cause onto a bounded metric label.
func lossReason(err error) string {
	switch {
	case errors.Is(err, location.ErrTimeout):
		return "timeout"
	case errors.Is(err, location.ErrStopped):
		return "stopped"
	case errors.Is(err, location.ErrConnectionLost):
		return "connection_lost"
	case err == nil:
		return "unknown"
	}
	return "error"
}
