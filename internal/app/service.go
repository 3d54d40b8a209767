// Package service runs one employee's attendance session: it wires the
// location source, the session loop and the attendance backend, and exposes
// the operations the HTTP API needs.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/geoasistencia/internal/adapters/gateway"
	"github.com/okian/geoasistencia/internal/adapters/location"
	eventqueue "github.com/okian/geoasistencia/internal/adapters/mq/queue"
	"github.com/okian/geoasistencia/internal/adapters/mq/worker"
	"github.com/okian/geoasistencia/internal/domain/autoclose"
	"github.com/okian/geoasistencia/internal/domain/geofence"
	"github.com/okian/geoasistencia/internal/domain/model"
	"github.com/okian/geoasistencia/internal/domain/session"
	"github.com/okian/geoasistencia/pkg/logger"
	"github.com/okian/geoasistencia/pkg/metrics"
)

const shutdownTimeout = 5 * time.Second

// Service implements the API dependencies for one attendance session.
type Service struct {
	mu sync.RWMutex

	// Collaborators
	gateway     gateway.Gateway
	directory   gateway.SiteDirectory
	source      location.Source
	credentials *gateway.Credentials

	// Configuration
	queueSize       int
	deviceID        string
	siteID          string
	cooldown        time.Duration
	maxAccuracy     float64
	requestTimeout  time.Duration
	locationTimeout time.Duration
	now             func() time.Time

	// Runtime
	queue     *eventqueue.InMemoryQueue
	loop      *worker.Loop
	sites     []geofence.Site
	selected  string
	runCtx    context.Context
	runCancel context.CancelFunc
	gpsCancel context.CancelFunc
	gpsDone   chan struct{}
	started   bool
	startedAt time.Time

	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		queueSize:       1024,
		cooldown:        autoclose.DefaultCooldown,
		requestTimeout:  10 * time.Second,
		locationTimeout: location.DefaultTimeout,
		now:             time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start loads the site directory and today's history and starts the session loop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.gateway == nil {
		return ErrNoGateway
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.logger.Info(ctx, "starting attendance service...")

	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	machine := session.NewMachine(
		session.WithDeviceID(s.deviceID),
		session.WithLock(autoclose.NewCooldownLock(autoclose.WithCooldown(s.cooldown))),
		session.WithMaxAccuracy(s.maxAccuracy),
	)
	s.loop = worker.NewLoop(s.queue, machine, s.gateway,
		worker.WithDeviceID(s.deviceID),
		worker.WithLogger(s.logger.Named("worker")),
		worker.WithSubmitTimeout(s.requestTimeout),
		worker.WithClock(s.now),
	)

	s.runCtx, s.runCancel = context.WithCancel(context.Background())
	go s.loop.Run(s.runCtx)

	s.loadSites(ctx)
	s.loadHistory(ctx)

	s.started = true
	s.startedAt = s.now()

	fields := []logger.Field{
		logger.String("device_id", s.deviceID),
		logger.String("site", s.selected),
		logger.Int("sites", len(s.sites)),
		logger.Duration("cooldown", s.cooldown),
	}
	if s.credentials != nil {
		fields = append(fields, logger.String("employee", s.credentials.PublicID))
	}
	s.logger.Info(ctx, "attendance service started", fields...)

	return nil
}

// loadSites fills the directory and selects the configured or first site.
// A failing directory leaves the session without a site; manual marks are
// then refused until one is selected.
func (s *Service) loadSites(ctx context.Context) {
	if s.directory == nil {
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()

	sites, err := s.directory.ListSites(callCtx)
	if err != nil {
		s.logger.Warn(ctx, "site directory unavailable", logger.Error(err))
		return
	}
	s.sites = sites
	if len(sites) == 0 {
		return
	}

	pick := sites[0]
	for _, site := range sites {
		if site.ID == s.siteID {
			pick = site
			break
		}
	}
	s.selected = pick.ID
	_ = s.queue.EnqueueWait(ctx, session.SiteSelected{Site: &pick, At: s.now()})
}

func (s *Service) loadHistory(ctx context.Context) {
	callCtx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()

	h, err := s.gateway.FetchTodayHistory(callCtx)
	if err != nil {
		metrics.RecordHistoryRefresh("failed")
		s.logger.Warn(ctx, "history unavailable", logger.Error(err))
		_ = s.queue.EnqueueWait(ctx, session.HistoryFailed{Err: err, At: s.now()})
		return
	}
	_ = s.queue.EnqueueWait(ctx, session.HistoryLoaded{History: h, At: s.now()})
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	ctx := context.Background()
	_ = s.StopGPS(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info(ctx, "stopping attendance service...")

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := s.loop.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn(ctx, "session loop did not stop in time", logger.Error(err))
	}
	s.runCancel()
	_ = s.queue.Close()

	s.started = false
	s.logger.Info(ctx, "attendance service stopped")
}

// StartGPS starts the location source and feeds its updates to the session.
func (s *Service) StartGPS(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return ErrNotStarted
	}
	if s.source == nil {
		return fmt.Errorf("start location: %w", location.ErrNotStarted)
	}
	if s.gpsCancel != nil {
		return ErrGPSRunning
	}

	gpsCtx, cancel := context.WithCancel(s.runCtx)
	updates, err := s.source.Start(gpsCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("start location: %w", err)
	}

	s.gpsCancel = cancel
	s.gpsDone = make(chan struct{})
	go s.pump(location.Watchdog(gpsCtx, updates, s.locationTimeout), s.gpsDone)

	s.logger.Info(ctx, "location tracking started", logger.Duration("timeout", s.locationTimeout))
	return nil
}

// pump turns location updates into session events. Fixes never block the
// source: a full queue drops them. Signal changes wait for room.
func (s *Service) pump(updates <-chan location.Update, done chan<- struct{}) {
	defer close(done)

	for u := range updates {
		if u.Available() {
			s.queue.Enqueue(s.runCtx, session.FixReceived{Fix: *u.Fix, At: s.now()})
			continue
		}
		s.logger.Debug(s.runCtx, "location unavailable", logger.Error(u.Err))
		_ = s.queue.EnqueueWait(s.runCtx, session.SignalLost{Reason: u.Err, At: s.now()})
	}
	// The source is gone: from here on there is no signal.
	_ = s.queue.EnqueueWait(s.runCtx, session.SignalLost{Reason: location.ErrStopped, At: s.now()})
}

// StopGPS stops the location source. The session sees an immediate signal loss.
func (s *Service) StopGPS(ctx context.Context) error {
	s.mu.Lock()
	cancel, done, src := s.gpsCancel, s.gpsDone, s.source
	s.gpsCancel, s.gpsDone = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return ErrGPSStopped
	}

	err := src.Stop()
	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.logger.Info(ctx, "location tracking stopped")
	if err != nil {
		return fmt.Errorf("stop location: %w", err)
	}
	return nil
}

// GPSRunning reports whether the location source is being consumed.
func (s *Service) GPSRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gpsCancel != nil
}

// PushFix hands a fix to a push-based location source.
func (s *Service) PushFix(_ context.Context, fix model.Fix) error {
	src, err := s.pushSource()
	if err != nil {
		return err
	}
	if fix.CapturedAt.IsZero() {
		fix.CapturedAt = s.now()
	}
	return src.Push(fix)
}

// PushError reports a provider failure through a push-based location source.
func (s *Service) PushError(_ context.Context, cause error) error {
	src, err := s.pushSource()
	if err != nil {
		return err
	}
	return src.Fail(cause)
}

func (s *Service) pushSource() (*location.PushSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.source.(*location.PushSource)
	if !ok {
		return nil, ErrPushUnsupported
	}
	return src, nil
}

// Sites returns the site directory loaded on Start.
func (s *Service) Sites(_ context.Context) []geofence.Site {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]geofence.Site(nil), s.sites...)
}

// SelectSite changes the site the geofence is evaluated against. An empty id
// clears the selection.
func (s *Service) SelectSite(ctx context.Context, id string) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}
	ev := session.SiteSelected{At: s.now()}
	if id != "" {
		site, ok := s.findSite(id)
		if !ok {
			s.mu.Unlock()
			return fmt.Errorf("%w: %q", ErrUnknownSite, id)
		}
		ev.Site = &site
	}
	s.selected = id
	q := s.queue
	s.mu.Unlock()

	s.logger.Info(ctx, "site selected", logger.String("site", id))
	return q.EnqueueWait(ctx, ev)
}

func (s *Service) findSite(id string) (geofence.Site, bool) {
	for _, site := range s.sites {
		if site.ID == id {
			return site, true
		}
	}
	return geofence.Site{}, false
}

// Mark requests a manual ENTRADA or SALIDA. Refusals wrap session.ErrRejected;
// backend failures wrap the gateway error. An expired token fails with
// gateway.ErrUnauthorized without reaching the backend.
func (s *Service) Mark(ctx context.Context, t model.MarkType) (model.Mark, error) {
	loop, err := s.running()
	if err != nil {
		return model.Mark{}, err
	}
	if c := s.credentials; c != nil && c.Expired(s.now()) {
		return model.Mark{}, fmt.Errorf("%w: %w", gateway.ErrUnauthorized, gateway.ErrTokenExpired)
	}
	return loop.Mark(ctx, t)
}

// Snapshot returns the current session view.
func (s *Service) Snapshot(ctx context.Context) (session.Snapshot, error) {
	loop, err := s.running()
	if err != nil {
		return session.Snapshot{}, err
	}
	return loop.Snapshot(ctx)
}

func (s *Service) running() (*worker.Loop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.loop, nil
}

// Employee returns the signed-in employee's public id, if known.
func (s *Service) Employee() string {
	if s.credentials == nil {
		return ""
	}
	return s.credentials.PublicID
}

// DeviceID returns the device identifier sent with every mark.
func (s *Service) DeviceID() string { return s.deviceID }

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":    s.started,
		"queueSize":  s.queueSize,
		"deviceId":   s.deviceID,
		"employee":   s.Employee(),
		"site":       s.selected,
		"sites":      len(s.sites),
		"gpsRunning": s.gpsCancel != nil,
		"cooldownMs": s.cooldown.Milliseconds(),
	}

	if s.started {
		queueLen := s.queue.Len(context.Background())
		ls := s.loop.Stats()

		stats["queueLength"] = queueLen
		stats["uptimeSeconds"] = s.now().Sub(s.startedAt).Seconds()
		stats["eventsApplied"] = ls.EventsApplied
		stats["fixesDiscarded"] = ls.FixesDiscarded
		stats["marksSubmitted"] = ls.MarksSubmitted
		stats["marksAccepted"] = ls.MarksAccepted
		stats["marksFailed"] = ls.MarksFailed
		stats["autoCloses"] = ls.AutoCloses
		stats["rejections"] = ls.Rejections

		metrics.UpdateQueueSize(queueLen)
	}

	return stats
}
