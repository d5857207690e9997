package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/okian/swish/internal/domain/model"
	"github.com/okian/swish/internal/domain/types"
)

// DefaultListLimit is used when GET /shots has no limit.
const DefaultListLimit = 20

// ShotLister reads stored shots.
type ShotLister interface {
	Recent(ctx context.Context, n int) ([]model.StoredShot, error)
}

// ShotsHandler handles shot listing requests.
type ShotsHandler struct {
	deps     ShotLister
	maxLimit int
}

// NewShotsHandler creates a new shots handler.
func NewShotsHandler(deps ShotLister, maxLimit int) *ShotsHandler {
	if maxLimit < DefaultListLimit {
		maxLimit = DefaultListLimit
	}
	return &ShotsHandler{deps: deps, maxLimit: maxLimit}
}

// HandleGetShots handles GET /shots?limit=N requests.
func (h *ShotsHandler) HandleGetShots(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_shots"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	n := DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		n = v
	}
	if n > h.maxLimit {
		writeError(w, http.StatusBadRequest, "limit_exceeded", NewKind(op, ErrLimitExceeded))
		return
	}

	shots, err := h.deps.Recent(r.Context(), n)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	out := types.ShotList{Shots: make([]types.Shot, 0, len(shots))}
	for _, s := range shots {
		out.Shots = append(out.Shots, types.FromStored(s))
	}
	writeJSON(w, http.StatusOK, out)
}
