package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/geoasistencia/internal/domain/geofence"
	"github.com/okian/geoasistencia/internal/domain/model"
)

// MemoryOption configures a Memory gateway.
type MemoryOption func(*Memory)

// WithSites seeds the site directory.
func WithSites(sites ...geofence.Site) MemoryOption {
	return func(m *Memory) { m.sites = append([]geofence.Site(nil), sites...) }
}

// WithHistory seeds today's history, most recent first.
func WithHistory(entries ...model.Mark) MemoryOption {
	return func(m *Memory) { m.history = append([]model.Mark(nil), entries...) }
}

// WithMemoryClock sets the clock used for server timestamps.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLatency delays every call.
func WithLatency(d time.Duration) MemoryOption {
	return func(m *Memory) { m.latency = d }
}

// Memory is an in-process backend. It applies the same open/closed rules as
// the real server and lets tests inject failures.
type Memory struct {
	mu             sync.Mutex
	sites          []geofence.Site
	history        []model.Mark
	submitted      []MarkRequest
	submitFailures []error
	historyFailure []error
	now            func() time.Time
	latency        time.Duration
}

var (
	_ Gateway       = (*Memory)(nil)
	_ SiteDirectory = (*Memory)(nil)
)

// NewMemory creates an empty in-memory backend.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FailNextSubmits makes the next len(errs) submissions fail with errs in order.
func (m *Memory) FailNextSubmits(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitFailures = append(m.submitFailures, errs...)
}

// FailNextHistory makes the next history fetches fail with errs in order.
func (m *Memory) FailNextHistory(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.historyFailure = append(m.historyFailure, errs...)
}

func (m *Memory) wait(ctx context.Context) error {
	if m.latency <= 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrTransport, err)
		}
		return nil
	}
	t := time.NewTimer(m.latency)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrTransport, ctx.Err())
	}
}

// SubmitMark records req and prepends it to today's history.
func (m *Memory) SubmitMark(ctx context.Context, req MarkRequest) (Receipt, error) {
	if err := m.wait(ctx); err != nil {
		return Receipt{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.submitted = append(m.submitted, req)
	if len(m.submitFailures) > 0 {
		err := m.submitFailures[0]
		m.submitFailures = m.submitFailures[1:]
		if err != nil {
			return Receipt{}, err
		}
	}

	open := len(m.history) > 0 && m.history[0].Type == model.Entrada
	switch {
	case req.Type == model.Entrada && open:
		return Receipt{}, fmt.Errorf("%w: ya existe una ENTRADA abierta", ErrRejectedByServer)
	case req.Type == model.Salida && !open:
		return Receipt{}, fmt.Errorf("%w: no hay una ENTRADA abierta", ErrRejectedByServer)
	}

	ts := m.now()
	mark := model.Mark{
		ID:              req.RequestID,
		Type:            req.Type,
		SiteID:          req.SiteID,
		SiteName:        m.siteName(req.SiteID),
		Coord:           req.Coord,
		InsideGeofence:  req.InsideGeofence,
		DeviceID:        req.DeviceID,
		Automatic:       req.Automatic,
		ServerTimestamp: ts,
	}
	m.history = append([]model.Mark{mark}, m.history...)
	return Receipt{Accepted: true, ServerTimestamp: ts}, nil
}

func (m *Memory) siteName(id string) string {
	for _, s := range m.sites {
		if s.ID == id {
			return s.Name
		}
	}
	return ""
}

// FetchTodayHistory returns a copy of today's history.
func (m *Memory) FetchTodayHistory(ctx context.Context) (model.DailyHistory, error) {
	if err := m.wait(ctx); err != nil {
		return model.DailyHistory{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.historyFailure) > 0 {
		err := m.historyFailure[0]
		m.historyFailure = m.historyFailure[1:]
		if err != nil {
			return model.DailyHistory{}, err
		}
	}
	return model.DailyHistory{Entries: append([]model.Mark(nil), m.history...)}, nil
}

// ListSites returns a copy of the directory.
func (m *Memory) ListSites(ctx context.Context) ([]geofence.Site, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]geofence.Site(nil), m.sites...), nil
}

// Submitted returns every submission attempt in order, including failed ones.
func (m *Memory) Submitted() []MarkRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MarkRequest(nil), m.submitted...)
}
