// Package config defines process configuration and how it is loaded.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Location source kinds.
const (
	SourcePush  = "push"
	SourceMQTT  = "mqtt"
	SourceTrack = "track"
)

// Backend kinds.
const (
	BackendHTTP   = "http"
	BackendMemory = "memory"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory event queue.
	QueueSize int `koanf:"queue_size"`

	// Backend selects the attendance backend: http or memory.
	Backend string `koanf:"backend"`

	// APIBaseURL is the attendance backend root, e.g. https://host/api.
	APIBaseURL string `koanf:"api_base_url"`

	// APIToken is the employee's bearer token.
	APIToken string `koanf:"api_token"`

	// RequestTimeoutMS bounds every backend call.
	RequestTimeoutMS int `koanf:"request_timeout_ms"`

	// RetryCount is how many times idempotent reads are retried.
	RetryCount int `koanf:"retry_count"`

	// DeviceIDFile persists the device identifier. Empty keeps it in memory.
	DeviceIDFile string `koanf:"device_id_file"`

	// SiteID preselects a site; the first listed site is used when empty.
	SiteID string `koanf:"site_id"`

	// AutoCloseCooldownMS suppresses automatic closures after one completes.
	AutoCloseCooldownMS int `koanf:"auto_close_cooldown_ms"`

	// LocationSource selects where fixes come from: push, mqtt or track.
	LocationSource string `koanf:"location_source"`

	// LocationTimeoutMS is how long the source may stay silent before the
	// signal counts as lost. Zero disables the watchdog.
	LocationTimeoutMS int `koanf:"location_timeout_ms"`

	// MaxAccuracyMeters discards coarser fixes. Zero keeps every fix.
	MaxAccuracyMeters float64 `koanf:"max_accuracy_meters"`

	MQTTBroker   string `koanf:"mqtt_broker"`
	MQTTTopic    string `koanf:"mqtt_topic"`
	MQTTUsername string `koanf:"mqtt_username"`
	MQTTPassword string `koanf:"mqtt_password"`
	MQTTClientID string `koanf:"mqtt_client_id"`
	MQTTQoS      int    `koanf:"mqtt_qos"`

	// TrackFile is a replay script whose steps drive the track source.
	TrackFile       string `koanf:"track_file"`
	TrackIntervalMS int    `koanf:"track_interval_ms"`
	TrackLoop       bool   `koanf:"track_loop"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9080",
		QueueSize:           1024,
		Backend:             BackendHTTP,
		RequestTimeoutMS:    10_000,
		RetryCount:          2,
		AutoCloseCooldownMS: 4_000,
		LocationSource:      SourcePush,
		LocationTimeoutMS:   15_000,
		MQTTQoS:             1,
		TrackIntervalMS:     1_000,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	switch {
	case strings.TrimSpace(c.Addr) == "":
		return invalid("addr must not be empty")
	case c.LogFormat != "text" && c.LogFormat != "json":
		return invalid("log_format must be text or json, got %q", c.LogFormat)
	case c.QueueSize <= 0:
		return invalid("queue_size must be positive")
	case c.RequestTimeoutMS <= 0:
		return invalid("request_timeout_ms must be positive")
	case c.RetryCount < 0:
		return invalid("retry_count must not be negative")
	case c.AutoCloseCooldownMS < 0:
		return invalid("auto_close_cooldown_ms must not be negative")
	case c.LocationTimeoutMS < 0:
		return invalid("location_timeout_ms must not be negative")
	case c.MaxAccuracyMeters < 0:
		return invalid("max_accuracy_meters must not be negative")
	}

	switch c.Backend {
	case BackendHTTP:
		if strings.TrimSpace(c.APIBaseURL) == "" {
			return invalid("api_base_url is required for the http backend")
		}
	case BackendMemory:
	default:
		return invalid("unknown backend %q", c.Backend)
	}

	switch c.LocationSource {
	case SourcePush:
	case SourceMQTT:
		if c.MQTTBroker == "" || c.MQTTTopic == "" {
			return invalid("mqtt_broker and mqtt_topic are required for the mqtt source")
		}
		if c.MQTTQoS < 0 || c.MQTTQoS > 2 {
			return invalid("mqtt_qos must be 0, 1 or 2")
		}
	case SourceTrack:
		if c.TrackFile == "" {
			return invalid("track_file is required for the track source")
		}
		if c.TrackIntervalMS <= 0 {
			return invalid("track_interval_ms must be positive")
		}
	default:
		return invalid("unknown location_source %q", c.LocationSource)
	}
	return nil
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// RequestTimeout returns RequestTimeoutMS as a duration.
func (c *Config) RequestTimeout() time.Duration { return ms(c.RequestTimeoutMS) }

// AutoCloseCooldown returns AutoCloseCooldownMS as a duration.
func (c *Config) AutoCloseCooldown() time.Duration { return ms(c.AutoCloseCooldownMS) }

// LocationTimeout returns LocationTimeoutMS as a duration.
func (c *Config) LocationTimeout() time.Duration { return ms(c.LocationTimeoutMS) }

// TrackInterval returns TrackIntervalMS as a duration.
func (c *Config) TrackInterval() time.Duration { return ms(c.TrackIntervalMS) }
