package api

import (
	"fmt"
	"net/http"

	"github.com/okian/geoasistencia/internal/domain/types"
)

type selectSiteRequest struct {
	SiteID string `json:"id_sede"`
}

// SitesHandler lists and selects sites.
type SitesHandler struct {
	deps SiteDependencies
}

// NewSitesHandler creates a new sites handler.
func NewSitesHandler(deps SiteDependencies) *SitesHandler {
	return &SitesHandler{deps: deps}
}

// HandleListSites handles GET /sites requests.
func (h *SitesHandler) HandleListSites(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	sites := h.deps.Sites(r.Context())
	out := make([]types.Site, 0, len(sites))
	for _, s := range sites {
		out = append(out, types.FromSite(s))
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleSelectSite handles PUT /site requests. An empty id clears the selection.
func (h *SitesHandler) HandleSelectSite(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPut) {
		return
	}
	var req selectSiteRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	if err := h.deps.SelectSite(r.Context(), req.SiteID); err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "selected"})
}
