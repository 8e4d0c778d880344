// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bodiman/elocheck/internal/adapters/repository"
	service "github.com/bodiman/elocheck/internal/app"
	"github.com/bodiman/elocheck/internal/domain/model"
)

// ComparisonDependencies defines the interface for judgment submission.
type ComparisonDependencies interface {
	SubmitComparison(ctx context.Context, winner, loser model.ItemRef, raterID, sessionID string) (service.ComparisonResult, error)
}

// ComparisonsHandler handles judgment submissions.
type ComparisonsHandler struct {
	deps ComparisonDependencies
}

// NewComparisonsHandler creates a new comparisons handler.
func NewComparisonsHandler(deps ComparisonDependencies) *ComparisonsHandler {
	return &ComparisonsHandler{deps: deps}
}

type comparisonRequest struct {
	Winner    itemRefRequest `json:"winner"`
	Loser     itemRefRequest `json:"loser"`
	RaterID   string         `json:"rater_id"`
	SessionID string         `json:"session_id"`
}

type comparisonResponse struct {
	Status          string  `json:"status"`
	NewWinnerRating float64 `json:"new_winner_rating"`
	NewLoserRating  float64 `json:"new_loser_rating"`
}

// HandlePostComparison handles POST /comparisons requests.
func (h *ComparisonsHandler) HandlePostComparison(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_comparison"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req comparisonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	winner, err := req.Winner.ref()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	loser, err := req.Loser.ref()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	result, err := h.deps.SubmitComparison(r.Context(), winner, loser, req.RaterID, req.SessionID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		case errors.Is(err, repository.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		}
		return
	}

	writeJSON(w, http.StatusOK, comparisonResponse{
		Status:          "recorded",
		NewWinnerRating: result.NewWinnerRating,
		NewLoserRating:  result.NewLoserRating,
	})
}
