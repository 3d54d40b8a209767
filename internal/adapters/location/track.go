package location

import (
	"context"
	"sync"
	"time"

	"github.com/okian/geoasistencia/internal/domain/geo"
	"github.com/okian/geoasistencia/internal/domain/model"
)

const defaultTrackInterval = time.Second

// Waypoint is one step of a synthetic track. A Lost waypoint reports
// ErrTrackLoss instead of a fix.
type Waypoint struct {
	Coord          geo.Coordinate
	AccuracyMeters float64
	Lost           bool
}

// TrackOption configures a TrackSource.
type TrackOption func(*TrackSource)

// WithInterval sets the time between waypoints.
func WithInterval(d time.Duration) TrackOption {
	return func(s *TrackSource) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithLoop replays the track from the start once it ends.
func WithLoop(loop bool) TrackOption {
	return func(s *TrackSource) { s.loop = loop }
}

// WithClock sets the clock used to stamp fixes.
func WithClock(now func() time.Time) TrackOption {
	return func(s *TrackSource) {
		if now != nil {
			s.now = now
		}
	}
}

// TrackSource replays a scripted list of waypoints at a fixed interval.
type TrackSource struct {
	points   []Waypoint
	interval time.Duration
	loop     bool
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTrackSource creates a source replaying points.
func NewTrackSource(points []Waypoint, opts ...TrackOption) *TrackSource {
	s := &TrackSource{
		points:   append([]Waypoint(nil), points...),
		interval: defaultTrackInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins emitting waypoints. The channel closes when the track ends
// (unless looping), on Stop, or when ctx is done.
func (s *TrackSource) Start(ctx context.Context) (<-chan Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil, ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	out := make(chan Update)
	go s.run(ctx, out, s.done)
	return out, nil
}

func (s *TrackSource) run(ctx context.Context, out chan<- Update, done chan<- struct{}) {
	defer close(done)
	defer close(out)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for i := 0; len(s.points) > 0; i++ {
		if i == len(s.points) {
			if !s.loop {
				return
			}
			i = 0
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		p := s.points[i]
		u := Update{Err: ErrTrackLoss}
		if !p.Lost {
			u = Update{Fix: &model.Fix{Coord: p.Coord, AccuracyMeters: p.AccuracyMeters, CapturedAt: s.now()}}
		}
		select {
		case out <- u:
		case <-ctx.Done():
			return
		}
	}
}

// Stop ends the replay and waits for the emitter to exit.
func (s *TrackSource) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// Line returns steps+1 evenly spaced waypoints from a to b inclusive.
func Line(a, b geo.Coordinate, steps int, accuracy float64) []Waypoint {
	if steps < 1 {
		steps = 1
	}
	out := make([]Waypoint, 0, steps+1)
	for i := 0; i <= steps; i++ {
		f := float64(i) / float64(steps)
		out = append(out, Waypoint{
			Coord: geo.Coordinate{
				Lat: a.Lat + (b.Lat-a.Lat)*f,
				Lng: a.Lng + (b.Lng-a.Lng)*f,
			},
			AccuracyMeters: accuracy,
		})
	}
	return out
}
