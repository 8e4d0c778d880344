// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"

	service "github.com/bodiman/elocheck/internal/app"
	"github.com/bodiman/elocheck/internal/recalc"
)

// AdminDependencies defines the interface for maintenance operations.
type AdminDependencies interface {
	RecomputeAll(ctx context.Context) (*recalc.Report, error)
	Validate(ctx context.Context) ([]service.Finding, error)
}

// AdminHandler handles maintenance requests.
type AdminHandler struct {
	deps AdminDependencies
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(deps AdminDependencies) *AdminHandler {
	return &AdminHandler{deps: deps}
}

type validateResponse struct {
	Consistent bool              `json:"consistent"`
	Findings   []service.Finding `json:"findings"`
}

// HandlePostRecalc handles POST /recalc requests. The rebuild is
// synchronous; the response carries the full report.
func (h *AdminHandler) HandlePostRecalc(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_recalc"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	report, err := h.deps.RecomputeAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleGetValidate handles GET /validate requests.
func (h *AdminHandler) HandleGetValidate(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_validate"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	findings, err := h.deps.Validate(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, validateResponse{
		Consistent: len(findings) == 0,
		Findings:   findings,
	})
}
