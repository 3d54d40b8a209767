package config_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/geoasistencia/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 1024)
			convey.So(cfg.LocationSource, convey.ShouldEqual, config.SourcePush)
			convey.So(cfg.Backend, convey.ShouldEqual, config.BackendHTTP)
			convey.So(cfg.AutoCloseCooldown(), convey.ShouldEqual, 4*time.Second)
			convey.So(cfg.LocationTimeout(), convey.ShouldEqual, 15*time.Second)
			convey.So(cfg.RequestTimeout(), convey.ShouldEqual, 10*time.Second)
		})

		convey.Convey("Then it needs a backend URL to be valid", func() {
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
			cfg.APIBaseURL = "https://asistencia.example.com/api"
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a valid memory-backed config", t, func() {
		cfg := config.New()
		cfg.Backend = config.BackendMemory
		convey.So(cfg.Validate(), convey.ShouldBeNil)

		cases := []struct {
			name   string
			mutate func(*config.Config)
			want   string
		}{
			{"unknown log format", func(c *config.Config) { c.LogFormat = "xml" }, "log_format"},
			{"zero queue", func(c *config.Config) { c.QueueSize = 0 }, "queue_size"},
			{"negative cooldown", func(c *config.Config) { c.AutoCloseCooldownMS = -1 }, "auto_close_cooldown_ms"},
			{"negative accuracy", func(c *config.Config) { c.MaxAccuracyMeters = -5 }, "max_accuracy_meters"},
			{"unknown backend", func(c *config.Config) { c.Backend = "ftp" }, "backend"},
			{"unknown source", func(c *config.Config) { c.LocationSource = "wifi" }, "location_source"},
			{"mqtt without broker", func(c *config.Config) { c.LocationSource = config.SourceMQTT }, "mqtt_broker"},
			{"mqtt bad qos", func(c *config.Config) {
				c.LocationSource = config.SourceMQTT
				c.MQTTBroker, c.MQTTTopic, c.MQTTQoS = "tcp://localhost:1883", "owntracks/emp/phone", 3
			}, "mqtt_qos"},
			{"track without file", func(c *config.Config) { c.LocationSource = config.SourceTrack }, "track_file"},
		}

		for _, tc := range cases {
			tc := tc
			convey.Convey("When it has "+tc.name, func() {
				tc.mutate(cfg)
				err := cfg.Validate()

				convey.Convey("Then validation fails naming the field", func() {
					convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
					convey.So(err.Error(), convey.ShouldContainSubstring, tc.want)
				})
			})
		}
	})
}
