package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNotStarted      = errors.New("service not started")
	ErrNoGateway       = errors.New("no attendance gateway configured")
	ErrUnknownSite     = errors.New("unknown site")
	ErrPushUnsupported = errors.New("location source does not accept pushed fixes")
	ErrGPSRunning      = errors.New("location tracking already running")
	ErrGPSStopped      = errors.New("location tracking not running")
)
