package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/geoasistencia/internal/adapters/device"
	"github.com/okian/geoasistencia/internal/adapters/gateway"
	"github.com/okian/geoasistencia/internal/adapters/http/api"
	"github.com/okian/geoasistencia/internal/adapters/location"
	app "github.com/okian/geoasistencia/internal/app"
	"github.com/okian/geoasistencia/internal/config"
	"github.com/okian/geoasistencia/internal/replay"
	"github.com/okian/geoasistencia/pkg/logger"
	"github.com/okian/geoasistencia/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 30 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Configure(cfg.LogFormat, os.Stdout); err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}
	loggerInstance := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		loggerInstance.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	svc, err := newService(ctx, cfg, loggerInstance)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	defer svc.Stop()

	if err := svc.StartGPS(ctx); err != nil {
		loggerInstance.Warn(ctx, "location tracking not started", logger.Error(err))
	}

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	mux := http.NewServeMux()
	api.NewServer(svc, svc).Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		loggerInstance.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	loggerInstance.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		loggerInstance.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	loggerInstance.Info(ctx, "server stopped")
	return nil
}

// newService assembles the attendance service from cfg.
func newService(ctx context.Context, cfg *config.Config, log logger.Logger) (*app.Service, error) {
	opts := []app.Option{
		app.WithLogger(log.Named("service")),
		app.WithQueueSize(cfg.QueueSize),
		app.WithSiteID(cfg.SiteID),
		app.WithAutoCloseCooldown(cfg.AutoCloseCooldown()),
		app.WithMaxAccuracy(cfg.MaxAccuracyMeters),
		app.WithRequestTimeout(cfg.RequestTimeout()),
		app.WithLocationTimeout(cfg.LocationTimeout()),
	}

	if cfg.APIToken != "" {
		creds, err := gateway.ParseCredentials(cfg.APIToken, time.Now())
		if err != nil {
			return nil, fmt.Errorf("api_token: %w", err)
		}
		log.Info(ctx, "signed in", logger.String("employee", creds.PublicID), logger.String("role", creds.Role))
		opts = append(opts, app.WithCredentials(creds))
	}

	deviceID, err := device.LoadOrCreate(cfg.DeviceIDFile)
	if err != nil {
		return nil, fmt.Errorf("device id: %w", err)
	}
	opts = append(opts, app.WithDeviceID(deviceID))

	var script *replay.Script
	if cfg.TrackFile != "" {
		if script, err = replay.Load(cfg.TrackFile); err != nil {
			return nil, fmt.Errorf("track_file: %w", err)
		}
	}

	gw := buildGateway(cfg, script, log)
	src, err := buildSource(cfg, script, log)
	if err != nil {
		return nil, err
	}
	opts = append(opts, app.WithGateway(gw), app.WithLocationSource(src))

	return app.New(opts...), nil
}

// buildGateway returns the attendance backend selected by cfg. The memory
// backend is seeded from the track script, when there is one.
func buildGateway(cfg *config.Config, script *replay.Script, log logger.Logger) gateway.Gateway {
	if cfg.Backend == config.BackendMemory {
		var memOpts []gateway.MemoryOption
		if script != nil {
			sites, history := script.Seed(time.Now())
			memOpts = append(memOpts, gateway.WithSites(sites...), gateway.WithHistory(history.Entries...))
		}
		log.Warn(context.Background(), "using the in-memory attendance backend; marks are not persisted")
		return gateway.NewMemory(memOpts...)
	}

	gwLog := log.Named("gateway")
	return gateway.NewHTTPClient(cfg.APIBaseURL,
		gateway.WithToken(cfg.APIToken),
		gateway.WithTimeout(cfg.RequestTimeout()),
		gateway.WithRetryCount(cfg.RetryCount),
		gateway.WithHTTPLogger(gwLog),
		gateway.WithOnUnauthorized(func() {
			gwLog.Warn(context.Background(), "backend rejected the token; sign in again")
		}),
	)
}

// buildSource returns the location source selected by cfg.
func buildSource(cfg *config.Config, script *replay.Script, log logger.Logger) (location.Source, error) {
	switch cfg.LocationSource {
	case config.SourceMQTT:
		opts := []location.MQTTOption{
			location.WithQoS(byte(cfg.MQTTQoS)),
			location.WithConnectTimeout(cfg.RequestTimeout()),
			location.WithMQTTLogger(log.Named("mqtt")),
		}
		if cfg.MQTTUsername != "" {
			opts = append(opts, location.WithCredentials(cfg.MQTTUsername, cfg.MQTTPassword))
		}
		if cfg.MQTTClientID != "" {
			opts = append(opts, location.WithClientID(cfg.MQTTClientID))
		}
		return location.NewMQTTSource(cfg.MQTTBroker, cfg.MQTTTopic, opts...), nil
	case config.SourceTrack:
		if script == nil {
			return nil, fmt.Errorf("%w: track source needs track_file", config.ErrInvalidConfig)
		}
		return location.NewTrackSource(script.Waypoints(),
			location.WithInterval(cfg.TrackInterval()),
			location.WithLoop(cfg.TrackLoop),
		), nil
	default:
		return location.NewPushSource(), nil
	}
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater starts a background goroutine that updates service metrics.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics refreshes the gauges derived from service stats.
func updateServiceMetrics(svc *app.Service) {
	stats := svc.GetStats()

	if queueLen, ok := stats["queueLength"].(int); ok {
		metrics.UpdateQueueSize(queueLen)
	}
}
