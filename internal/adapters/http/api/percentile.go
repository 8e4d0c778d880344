// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/bodiman/elocheck/internal/adapters/repository"
	"github.com/bodiman/elocheck/internal/domain/model"
)

// PercentileDependencies defines the interface for percentile lookups.
type PercentileDependencies interface {
	GetPercentile(ctx context.Context, ref model.ItemRef) (float64, error)
}

// PercentileHandler handles percentile lookups.
type PercentileHandler struct {
	deps PercentileDependencies
}

// NewPercentileHandler creates a new percentile handler.
func NewPercentileHandler(deps PercentileDependencies) *PercentileHandler {
	return &PercentileHandler{deps: deps}
}

type percentileResponse struct {
	Kind       string  `json:"kind"`
	ID         string  `json:"id"`
	Percentile float64 `json:"percentile"`
}

// HandleGetPercentile handles GET /percentile/{kind}/{id} requests.
func (h *PercentileHandler) HandleGetPercentile(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_percentile"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	// Extract path parameters after /percentile/
	path := strings.TrimPrefix(r.URL.Path, "/percentile/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	kind, err := model.ParseKind(parts[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	ref := model.ItemRef{Kind: kind, ID: parts[1]}

	pct, err := h.deps.GetPercentile(r.Context(), ref)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}

	writeJSON(w, http.StatusOK, percentileResponse{
		Kind:       ref.Kind.String(),
		ID:         ref.ID,
		Percentile: pct,
	})
}
