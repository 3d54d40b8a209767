package api

import (
	"fmt"
	"net/http"

	"github.com/okian/geoasistencia/internal/domain/model"
	"github.com/okian/geoasistencia/internal/domain/types"
)

type markRequest struct {
	Type string `json:"tipo"`
}

// MarksHandler requests manual marks.
type MarksHandler struct {
	deps MarkDependencies
}

// NewMarksHandler creates a new marks handler.
func NewMarksHandler(deps MarkDependencies) *MarksHandler {
	return &MarksHandler{deps: deps}
}

// HandlePostMark handles POST /marks requests. The response is sent once the
// backend has answered; refusals are answered immediately with 409.
func (h *MarksHandler) HandlePostMark(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req markRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	t, err := model.ParseMarkType(req.Type)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	mark, err := h.deps.Mark(r.Context(), t)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.FromMark(mark))
}
