package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/okian/geoasistencia/internal/domain/geo"
	"github.com/okian/geoasistencia/internal/domain/model"
	"github.com/okian/geoasistencia/pkg/logger"
	"github.com/okian/geoasistencia/pkg/metrics"
)

const (
	defaultMQTTBuffer         = 32
	defaultMQTTConnectTimeout = 10 * time.Second
	mqttDisconnectQuiesceMs   = 250
)

// errIgnoredMessage marks payloads that are valid but carry no location.
var errIgnoredMessage = errors.New("not a location message")

// MQTTOption configures an MQTTSource.
type MQTTOption func(*MQTTSource)

// WithCredentials sets the broker username and password.
func WithCredentials(username, password string) MQTTOption {
	return func(s *MQTTSource) {
		s.username, s.password = username, password
	}
}

// WithClientID sets the MQTT client id.
func WithClientID(id string) MQTTOption {
	return func(s *MQTTSource) {
		if id != "" {
			s.clientID = id
		}
	}
}

// WithQoS sets the subscription QoS.
func WithQoS(qos byte) MQTTOption {
	return func(s *MQTTSource) {
		if qos <= 2 {
			s.qos = qos
		}
	}
}

// WithConnectTimeout bounds the initial broker connection.
func WithConnectTimeout(d time.Duration) MQTTOption {
	return func(s *MQTTSource) {
		if d > 0 {
			s.connectTimeout = d
		}
	}
}

// WithClientFactory replaces the paho client constructor.
func WithClientFactory(fn func(*mqtt.ClientOptions) mqtt.Client) MQTTOption {
	return func(s *MQTTSource) {
		if fn != nil {
			s.newClient = fn
		}
	}
}

// WithMQTTLogger sets a custom logger.
func WithMQTTLogger(l logger.Logger) MQTTOption {
	return func(s *MQTTSource) {
		if l != nil {
			s.logger = l
		}
	}
}

// MQTTSource subscribes to a device topic carrying OwnTracks-style location
// messages, e.g. {"_type":"location","lat":-2.19,"lon":-79.88,"acc":12,"tst":1760860800}.
type MQTTSource struct {
	broker         string
	topic          string
	clientID       string
	username       string
	password       string
	qos            byte
	connectTimeout time.Duration
	newClient      func(*mqtt.ClientOptions) mqtt.Client
	logger         logger.Logger

	mu     sync.Mutex
	client mqtt.Client
	ch     chan Update
	stop   chan struct{}
}

// NewMQTTSource creates a source for broker and topic.
func NewMQTTSource(broker, topic string, opts ...MQTTOption) *MQTTSource {
	s := &MQTTSource{
		broker:         broker,
		topic:          topic,
		clientID:       "geoasistencia",
		qos:            1,
		connectTimeout: defaultMQTTConnectTimeout,
		newClient:      mqtt.NewClient,
		logger:         logger.Get().Named("mqtt"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start connects to the broker and subscribes to the topic.
func (s *MQTTSource) Start(ctx context.Context) (<-chan Update, error) {
	s.mu.Lock()
	if s.ch != nil {
		s.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	s.ch = make(chan Update, defaultMQTTBuffer)
	s.stop = make(chan struct{})
	ch, stop := s.ch, s.stop
	s.mu.Unlock()

	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.broker)
	opts.SetClientID(s.clientID)
	if s.username != "" {
		opts.SetUsername(s.username)
	}
	if s.password != "" {
		opts.SetPassword(s.password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(s.connectTimeout)
	opts.SetOnConnectHandler(s.onConnect)
	opts.SetConnectionLostHandler(s.onConnectionLost)

	client := s.newClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(s.connectTimeout) {
		client.Disconnect(0)
		_ = s.Stop()
		return nil, fmt.Errorf("connect to MQTT broker %s: %w", s.broker, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		_ = s.Stop()
		return nil, fmt.Errorf("connect to MQTT broker %s: %w", s.broker, err)
	}

	s.mu.Lock()
	s.client = client
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			_ = s.Stop()
		case <-stop:
		}
	}()

	s.logger.Info(ctx, "mqtt location source started",
		logger.String("broker", s.broker),
		logger.String("topic", s.topic),
	)
	return ch, nil
}

// onConnect subscribes on every (re)connection since the session is clean.
func (s *MQTTSource) onConnect(c mqtt.Client) {
	token := c.Subscribe(s.topic, s.qos, s.handleMessage)
	if token.Wait() && token.Error() != nil {
		s.logger.Error(context.Background(), "mqtt subscribe failed",
			logger.String("topic", s.topic),
			logger.Error(token.Error()),
		)
		s.emit(Update{Err: fmt.Errorf("subscribe %s: %w", s.topic, token.Error())})
	}
}

func (s *MQTTSource) onConnectionLost(_ mqtt.Client, err error) {
	s.logger.Warn(context.Background(), "mqtt connection lost", logger.Error(err))
	s.emit(Update{Err: fmt.Errorf("%w: %w", ErrConnectionLost, err)})
}

func (s *MQTTSource) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	fix, err := DecodeOwnTracks(msg.Payload())
	switch {
	case errors.Is(err, errIgnoredMessage):
		return
	case err != nil:
		metrics.RecordFix("invalid")
		s.logger.Debug(context.Background(), "dropping mqtt payload",
			logger.String("topic", msg.Topic()),
			logger.Error(err),
		)
		return
	}
	s.emit(Update{Fix: fix})
}

func (s *MQTTSource) emit(u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch == nil {
		return
	}
	select {
	case s.ch <- u:
	default:
		metrics.RecordFix("dropped")
	}
}

// Stop unsubscribes and disconnects. Message handlers run on the goroutine
// that also reads the UNSUBACK, so the broker is released without holding mu.
func (s *MQTTSource) Stop() error {
	s.mu.Lock()
	if s.ch == nil {
		s.mu.Unlock()
		return nil
	}
	client, ch, stop := s.client, s.ch, s.stop
	s.client, s.ch, s.stop = nil, nil, nil
	s.mu.Unlock()

	close(stop)
	close(ch)

	if client == nil {
		return nil
	}
	var err error
	t := client.Unsubscribe(s.topic)
	switch {
	case !t.WaitTimeout(s.connectTimeout):
		err = fmt.Errorf("unsubscribe %s: %w", s.topic, ErrTimeout)
	case t.Error() != nil:
		err = fmt.Errorf("unsubscribe %s: %w", s.topic, t.Error())
	}
	client.Disconnect(mqttDisconnectQuiesceMs)
	return err
}

type ownTracksLocation struct {
	Type string   `json:"_type"`
	Lat  *float64 `json:"lat"`
	Lon  *float64 `json:"lon"`
	Acc  float64  `json:"acc"`
	Tst  int64    `json:"tst"`
}

// DecodeOwnTracks parses an OwnTracks location message into a fix.
func DecodeOwnTracks(payload []byte) (*model.Fix, error) {
	var m ownTracksLocation
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if m.Type != "" && m.Type != "location" {
		return nil, errIgnoredMessage
	}
	if m.Lat == nil || m.Lon == nil {
		return nil, fmt.Errorf("%w: missing lat/lon", ErrInvalidPayload)
	}
	if m.Tst <= 0 {
		return nil, fmt.Errorf("%w: missing tst", ErrInvalidPayload)
	}
	c := geo.Coordinate{Lat: *m.Lat, Lng: *m.Lon}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if m.Acc < 0 {
		return nil, fmt.Errorf("%w: negative accuracy", ErrInvalidPayload)
	}
	return &model.Fix{
		Coord:          c,
		AccuracyMeters: m.Acc,
		CapturedAt:     time.Unix(m.Tst, 0).UTC(),
	}, nil
}
