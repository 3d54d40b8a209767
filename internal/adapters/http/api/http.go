// Package api serves the attendance session to the UI over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/geoasistencia/internal/domain/geofence"
	"github.com/okian/geoasistencia/internal/domain/model"
	"github.com/okian/geoasistencia/internal/domain/session"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	SessionDependencies
	SiteDependencies
	LocationDependencies
	MarkDependencies
}

// SessionDependencies exposes the session view.
type SessionDependencies interface {
	Snapshot(ctx context.Context) (session.Snapshot, error)
	Employee() string
	DeviceID() string
}

// SiteDependencies lists and selects sites.
type SiteDependencies interface {
	Sites(ctx context.Context) []geofence.Site
	SelectSite(ctx context.Context, id string) error
}

// LocationDependencies controls tracking and accepts fixes from the browser.
type LocationDependencies interface {
	StartGPS(ctx context.Context) error
	StopGPS(ctx context.Context) error
	PushFix(ctx context.Context, fix model.Fix) error
	PushError(ctx context.Context, cause error) error
}

// MarkDependencies requests manual marks.
type MarkDependencies interface {
	Mark(ctx context.Context, t model.MarkType) (model.Mark, error)
}

// Server wires HTTP routes for the attendance API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	sessionHandler  *SessionHandler
	sitesHandler    *SitesHandler
	locationHandler *LocationHandler
	marksHandler    *MarksHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		sessionHandler:  NewSessionHandler(deps),
		sitesHandler:    NewSitesHandler(deps),
		locationHandler: NewLocationHandler(deps),
		marksHandler:    NewMarksHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/session", MetricsMiddleware(s.sessionHandler.HandleGetSession, "session"))
	mux.HandleFunc("/sites", MetricsMiddleware(s.sitesHandler.HandleListSites, "sites"))
	mux.HandleFunc("/site", MetricsMiddleware(s.sitesHandler.HandleSelectSite, "site"))
	mux.HandleFunc("/gps/start", MetricsMiddleware(s.locationHandler.HandleStart, "gps_start"))
	mux.HandleFunc("/gps/stop", MetricsMiddleware(s.locationHandler.HandleStop, "gps_stop"))
	mux.HandleFunc("/fixes", MetricsMiddleware(s.locationHandler.HandlePostFix, "fixes"))
	mux.HandleFunc("/fixes/error", MetricsMiddleware(s.locationHandler.HandlePostError, "fixes_error"))
	mux.HandleFunc("/marks", MetricsMiddleware(s.marksHandler.HandlePostMark, "marks"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type statusResponse struct {
	Status string `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// allow answers 405 unless r uses method.
func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
	return false
}

// decode reads a JSON body into v, rejecting unknown fields.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
