package api

import (
	"net/http"

	"github.com/okian/geoasistencia/internal/domain/types"
)

// SessionHandler serves the session view.
type SessionHandler struct {
	deps SessionDependencies
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(deps SessionDependencies) *SessionHandler {
	return &SessionHandler{deps: deps}
}

// HandleGetSession handles GET /session requests.
func (h *SessionHandler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	snap, err := h.deps.Snapshot(r.Context())
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	view := types.FromSnapshot(snap)
	view.Employee = h.deps.Employee()
	view.DeviceID = h.deps.DeviceID()
	writeJSON(w, http.StatusOK, view)
}
