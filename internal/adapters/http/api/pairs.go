// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"net/http"

	service "github.com/bodiman/elocheck/internal/app"
	"github.com/bodiman/elocheck/internal/domain/model"
	"github.com/bodiman/elocheck/internal/domain/selection"
)

// PairDependencies defines the interface for pair selection.
type PairDependencies interface {
	NextPair(ctx context.Context, raterID string, raterGender model.Gender) (model.Pair, error)
}

// PairsHandler handles pair selection requests.
type PairsHandler struct {
	deps PairDependencies
}

// NewPairsHandler creates a new pairs handler.
func NewPairsHandler(deps PairDependencies) *PairsHandler {
	return &PairsHandler{deps: deps}
}

// pairResponse is the wire shape of GET /pair. Exactly one of the item
// fields or the exhausted fields is populated.
type pairResponse struct {
	Left      *itemRefRequest `json:"left,omitempty"`
	Right     *itemRefRequest `json:"right,omitempty"`
	Phase     string          `json:"phase,omitempty"`
	Message   string          `json:"message,omitempty"`
	Exhausted bool            `json:"exhausted"`
	Reason    string          `json:"reason,omitempty"`
}

// HandleGetPair handles GET /pair?rater_id=X&gender=Y requests.
// Pool exhaustion is a normal outcome, not an error, so it returns 200
// with an exhausted payload.
func (h *PairsHandler) HandleGetPair(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_pair"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	raterID := r.URL.Query().Get("rater_id")
	gender := model.Gender(r.URL.Query().Get("gender"))
	if raterID == "" || !gender.Valid() {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}

	pair, err := h.deps.NextPair(r.Context(), raterID, gender)
	if err != nil {
		var ex *selection.ExhaustedError
		if errors.As(err, &ex) {
			writeJSON(w, http.StatusOK, pairResponse{
				Exhausted: true,
				Reason:    string(ex.Reason),
				Message:   ex.Message,
			})
			return
		}
		if errors.Is(err, service.ErrValidation) {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}

	writeJSON(w, http.StatusOK, pairResponse{
		Left:    &itemRefRequest{Kind: pair.Left.Kind.String(), ID: pair.Left.ID},
		Right:   &itemRefRequest{Kind: pair.Right.Kind.String(), ID: pair.Right.ID},
		Phase:   string(pair.Phase),
		Message: pair.Message,
	})
}
