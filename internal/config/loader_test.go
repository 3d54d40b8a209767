package config_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/okian/geoasistencia/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		_ = os.Setenv("GEOASIS_API_BASE_URL", "https://asistencia.example.com/api")
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.APIBaseURL, convey.ShouldEqual, "https://asistencia.example.com/api")
				convey.So(cfg.AutoCloseCooldownMS, convey.ShouldEqual, 4000)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("GEOASIS_ADDR", ":8080")
			_ = os.Setenv("GEOASIS_QUEUE_SIZE", "64")
			_ = os.Setenv("GEOASIS_SITE_ID", "7")
			_ = os.Setenv("GEOASIS_LOCATION_SOURCE", "mqtt")
			_ = os.Setenv("GEOASIS_MQTT_BROKER", "tcp://broker:1883")
			_ = os.Setenv("GEOASIS_MQTT_TOPIC", "owntracks/emp/phone")
			_ = os.Setenv("GEOASIS_MAX_ACCURACY_METERS", "75.5")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 64)
				convey.So(cfg.SiteID, convey.ShouldEqual, "7")
				convey.So(cfg.LocationSource, convey.ShouldEqual, config.SourceMQTT)
				convey.So(cfg.MQTTBroker, convey.ShouldEqual, "tcp://broker:1883")
				convey.So(cfg.MaxAccuracyMeters, convey.ShouldEqual, 75.5)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			tmpFile := createTempConfigFile(`
addr: ":9090"
log_format: json
queue_size: 256
auto_close_cooldown_ms: 6000
`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("GEOASIS_CONFIG", tmpFile)
			_ = os.Setenv("GEOASIS_ADDR", ":8080") // This should override the file

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")             // Overridden by env
				convey.So(cfg.LogFormat, convey.ShouldEqual, "json")         // From file
				convey.So(cfg.QueueSize, convey.ShouldEqual, 256)            // From file
				convey.So(cfg.AutoCloseCooldownMS, convey.ShouldEqual, 6000) // From file
				convey.So(cfg.LocationTimeoutMS, convey.ShouldEqual, 15000)  // From defaults
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("GEOASIS_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("GEOASIS_CONFIG", "/non/existent/geoasistencia.yaml")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("GEOASIS_QUEUE_SIZE", "invalid")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the loaded config is invalid", func() {
			_ = os.Setenv("GEOASIS_LOCATION_SOURCE", "track")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "track_file")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

// Helper functions

func clearConfigEnvVars() {
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, config.EnvPrefix) {
			_ = os.Unsetenv(strings.SplitN(kv, "=", 2)[0])
		}
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "geoasistencia-config-*.yaml")
	if err != nil {
		panic(err)
	}
	defer func() { _ = tmpFile.Close() }()

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}
