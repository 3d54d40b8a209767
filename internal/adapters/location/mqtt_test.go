package location_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/okian/geoasistencia/internal/adapters/location"
	"github.com/okian/geoasistencia/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeToken struct {
	err     error
	pending bool
}

func (t *fakeToken) Wait() bool                       { return true }
func (t *fakeToken) WaitTimeout(_ time.Duration) bool { return !t.pending }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type fakeClient struct {
	opts           *mqtt.ClientOptions
	connectErr     error
	connectPending bool
	unsubPending   bool
	onUnsubscribe  func()

	mu           sync.Mutex
	handler      mqtt.MessageHandler
	subscribed   []string
	unsubscribed []string
	disconnected bool
}

func (c *fakeClient) IsConnected() bool      { return !c.disconnected }
func (c *fakeClient) IsConnectionOpen() bool { return !c.disconnected }
func (c *fakeClient) Connect() mqtt.Token {
	if c.connectPending {
		return &fakeToken{pending: true}
	}
	if c.connectErr != nil {
		return &fakeToken{err: c.connectErr}
	}
	if c.opts.OnConnect != nil {
		c.opts.OnConnect(c)
	}
	return &fakeToken{}
}
func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}
func (c *fakeClient) Publish(string, byte, bool, interface{}) mqtt.Token { return &fakeToken{} }
func (c *fakeClient) Subscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed = append(c.subscribed, topic)
	c.handler = cb
	return &fakeToken{}
}
func (c *fakeClient) SubscribeMultiple(map[string]byte, mqtt.MessageHandler) mqtt.Token {
	return &fakeToken{}
}
func (c *fakeClient) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	c.unsubscribed = append(c.unsubscribed, topics...)
	hook := c.onUnsubscribe
	c.mu.Unlock()
	if hook != nil {
		hook()
	}
	return &fakeToken{pending: c.unsubPending}
}

func (c *fakeClient) isDisconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}
func (c *fakeClient) AddRoute(string, mqtt.MessageHandler)   {}
func (c *fakeClient) OptionsReader() mqtt.ClientOptionsReader { return mqtt.ClientOptionsReader{} }

func (c *fakeClient) deliver(payload string) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	h(c, fakeMessage{topic: "owntracks/ana/phone", payload: []byte(payload)})
}

func TestMQTTSource(t *testing.T) {
	_ = logger.Init()

	Convey("Given an MQTT source backed by a fake client", t, func() {
		fake := &fakeClient{}
		src := location.NewMQTTSource("tcp://broker:1883", "owntracks/ana/phone",
			location.WithClientID("device-1"),
			location.WithCredentials("ana", "secret"),
			location.WithQoS(1),
			location.WithConnectTimeout(time.Second),
			location.WithClientFactory(func(o *mqtt.ClientOptions) mqtt.Client {
				fake.opts = o
				return fake
			}),
		)

		Convey("When started", func() {
			ch, err := src.Start(context.Background())
			So(err, ShouldBeNil)

			Convey("Then the client is configured and subscribed", func() {
				So(fake.opts.ClientID, ShouldEqual, "device-1")
				So(fake.opts.Username, ShouldEqual, "ana")
				So(fake.opts.Servers[0].Host, ShouldEqual, "broker:1883")
				So(fake.opts.AutoReconnect, ShouldBeTrue)
				So(fake.subscribed, ShouldResemble, []string{"owntracks/ana/phone"})
			})

			Convey("Then location messages become fixes", func() {
				fake.deliver(`{"_type":"transition"}`)
				fake.deliver(`garbage`)
				fake.deliver(`{"_type":"location","lat":-2.2,"lon":-79.9,"acc":7,"tst":1760860800}`)

				u, ok := recv(ch, time.Second)
				So(ok, ShouldBeTrue)
				So(u.Available(), ShouldBeTrue)
				So(u.Fix.AccuracyMeters, ShouldEqual, 7)
			})

			Convey("Then a lost connection reports the signal as unavailable", func() {
				fake.opts.OnConnectionLost(fake, errors.New("EOF"))

				u, ok := recv(ch, time.Second)
				So(ok, ShouldBeTrue)
				So(errors.Is(u.Err, location.ErrConnectionLost), ShouldBeTrue)
			})

			Convey("Then Stop unsubscribes and disconnects", func() {
				So(src.Stop(), ShouldBeNil)
				So(fake.unsubscribed, ShouldResemble, []string{"owntracks/ana/phone"})
				So(fake.disconnected, ShouldBeTrue)
				_, ok := <-ch
				So(ok, ShouldBeFalse)
				So(src.Stop(), ShouldBeNil)
			})
		})

		Convey("When a publish arrives while unsubscribing", func() {
			ch, err := src.Start(context.Background())
			So(err, ShouldBeNil)
			fake.onUnsubscribe = func() {
				fake.deliver(`{"_type":"location","lat":-2.2,"lon":-79.9,"acc":7,"tst":1760860800}`)
			}

			errCh := make(chan error, 1)
			go func() { errCh <- src.Stop() }()

			Convey("Then Stop still returns and the channel is closed", func() {
				var stopErr error
				select {
				case stopErr = <-errCh:
				case <-time.After(2 * time.Second):
					stopErr = errors.New("stop blocked")
				}
				So(stopErr, ShouldBeNil)
				So(fake.isDisconnected(), ShouldBeTrue)
				for range ch {
				}
			})
		})

		Convey("When the broker never acknowledges the unsubscribe", func() {
			_, err := src.Start(context.Background())
			So(err, ShouldBeNil)
			fake.unsubPending = true

			Convey("Then Stop gives up and disconnects anyway", func() {
				err := src.Stop()
				So(errors.Is(err, location.ErrTimeout), ShouldBeTrue)
				So(fake.isDisconnected(), ShouldBeTrue)
			})
		})

		Convey("When the broker does not answer the connect", func() {
			fake.connectPending = true
			_, err := src.Start(context.Background())

			Convey("Then Start times out and the reconnecting client is released", func() {
				So(errors.Is(err, location.ErrTimeout), ShouldBeTrue)
				So(fake.isDisconnected(), ShouldBeTrue)
			})
		})

		Convey("When the broker refuses the connection", func() {
			fake.connectErr = errors.New("not authorized")
			_, err := src.Start(context.Background())

			Convey("Then Start fails and may be retried", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "not authorized")

				fake.connectErr = nil
				_, err = src.Start(context.Background())
				So(err, ShouldBeNil)
				So(src.Stop(), ShouldBeNil)
			})
		})
	})
}
