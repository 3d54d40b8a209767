package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/okian/geoasistencia/internal/adapters/gateway"
	"github.com/okian/geoasistencia/internal/adapters/location"
	service "github.com/okian/geoasistencia/internal/app"
	"github.com/okian/geoasistencia/internal/domain/model"
	"github.com/okian/geoasistencia/internal/domain/session"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
)

const maxBodyBytes = 1 << 16

// classify maps an upstream error onto a status code and a stable error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrRejected):
		return http.StatusConflict, session.ReasonCode(err)
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, model.ErrUnknownMarkType),
		errors.Is(err, location.ErrInvalidPayload):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, service.ErrUnknownSite):
		return http.StatusNotFound, "unknown_site"
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "not_started"
	case errors.Is(err, service.ErrGPSRunning):
		return http.StatusConflict, "gps_running"
	case errors.Is(err, service.ErrGPSStopped), errors.Is(err, location.ErrNotStarted):
		return http.StatusConflict, "gps_stopped"
	case errors.Is(err, service.ErrPushUnsupported):
		return http.StatusConflict, "push_unsupported"
	case errors.Is(err, location.ErrBackpressure):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, gateway.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, gateway.ErrRejectedByServer):
		return http.StatusBadGateway, "rejected_by_server"
	case errors.Is(err, session.ErrNotAccepted):
		return http.StatusBadGateway, "not_accepted"
	case errors.Is(err, gateway.ErrTransport), errors.Is(err, gateway.ErrDecode):
		return http.StatusBadGateway, "gateway_error"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	}
	return http.StatusInternalServerError, "internal_error"
}

func writeUpstreamError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err)
}
