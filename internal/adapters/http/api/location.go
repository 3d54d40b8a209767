package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/okian/geoasistencia/internal/domain/geo"
	"github.com/okian/geoasistencia/internal/domain/model"
)

// fixRequest is a browser geolocation position.
type fixRequest struct {
	Lat        *float64 `json:"lat"`
	Lng        *float64 `json:"lng"`
	Accuracy   float64  `json:"accuracy"`
	CapturedAt string   `json:"ts"`
}

func (f fixRequest) toFix() (model.Fix, error) {
	if f.Lat == nil || f.Lng == nil {
		return model.Fix{}, fmt.Errorf("%w: lat and lng are required", ErrBadRequest)
	}
	fix := model.Fix{Coord: geo.Coordinate{Lat: *f.Lat, Lng: *f.Lng}, AccuracyMeters: f.Accuracy}
	if strings.TrimSpace(f.CapturedAt) != "" {
		ts, err := time.Parse(time.RFC3339Nano, f.CapturedAt)
		if err != nil {
			return model.Fix{}, fmt.Errorf("%w: invalid ts; must be RFC3339", ErrBadRequest)
		}
		fix.CapturedAt = ts
	}
	return fix, nil
}

// errorRequest is a browser geolocation error.
type errorRequest struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// LocationHandler controls tracking and receives pushed positions.
type LocationHandler struct {
	deps LocationDependencies
}

// NewLocationHandler creates a new location handler.
func NewLocationHandler(deps LocationDependencies) *LocationHandler {
	return &LocationHandler{deps: deps}
}

// HandleStart handles POST /gps/start requests.
func (h *LocationHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	if err := h.deps.StartGPS(r.Context()); err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "tracking"})
}

// HandleStop handles POST /gps/stop requests.
func (h *LocationHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	if err := h.deps.StopGPS(r.Context()); err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "stopped"})
}

// HandlePostFix handles POST /fixes requests.
func (h *LocationHandler) HandlePostFix(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req fixRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	fix, err := req.toFix()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if err := h.deps.PushFix(r.Context(), fix); err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, statusResponse{Status: "accepted"})
}

// HandlePostError handles POST /fixes/error requests.
func (h *LocationHandler) HandlePostError(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req errorRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	msg := req.Message
	if msg == "" {
		msg = "geolocation unavailable"
	}
	cause := errors.New(msg)
	if req.Code != 0 {
		cause = fmt.Errorf("geolocation error %d: %s", req.Code, msg)
	}
	if err := h.deps.PushError(r.Context(), cause); err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, statusResponse{Status: "accepted"})
}
