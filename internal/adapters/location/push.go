package location

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/geoasistencia/internal/domain/model"
	"github.com/okian/geoasistencia/pkg/metrics"
)

const defaultPushBuffer = 32

// PushOption configures a PushSource.
type PushOption func(*PushSource)

// WithPushBuffer sets how many updates may wait for the consumer.
func WithPushBuffer(size int) PushOption {
	return func(s *PushSource) {
		if size > 0 {
			s.buffer = size
		}
	}
}

// PushSource is fed by an outer layer, typically a browser forwarding
// navigator.geolocation results over HTTP.
type PushSource struct {
	buffer int

	mu   sync.Mutex
	ch   chan Update
	stop chan struct{}
}

// NewPushSource creates a stopped push source.
func NewPushSource(opts ...PushOption) *PushSource {
	s := &PushSource{buffer: defaultPushBuffer}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the update channel.
func (s *PushSource) Start(ctx context.Context) (<-chan Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch != nil {
		return nil, ErrAlreadyStarted
	}
	s.ch = make(chan Update, s.buffer)
	s.stop = make(chan struct{})

	stop := s.stop
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Stop()
		case <-stop:
		}
	}()
	return s.ch, nil
}

// Push delivers a fix.
func (s *PushSource) Push(fix model.Fix) error {
	if err := fix.Coord.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if fix.AccuracyMeters < 0 {
		return fmt.Errorf("%w: negative accuracy", ErrInvalidPayload)
	}
	return s.send(Update{Fix: &fix})
}

// Fail reports that the provider could not produce a fix.
func (s *PushSource) Fail(err error) error {
	if err == nil {
		err = ErrTimeout
	}
	return s.send(Update{Err: err})
}

func (s *PushSource) send(u Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch == nil {
		return ErrNotStarted
	}
	select {
	case s.ch <- u:
		return nil
	default:
		metrics.RecordFix("dropped")
		return ErrBackpressure
	}
}

// Stop closes the update channel.
func (s *PushSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch == nil {
		return nil
	}
	close(s.stop)
	close(s.ch)
	s.ch, s.stop = nil, nil
	return nil
}
