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

// ItemDependencies defines the interface for pool management.
type ItemDependencies interface {
	AddItem(ctx context.Context, ref model.ItemRef, gender model.Gender, ownerID string) error
	SetItemActive(ctx context.Context, ref model.ItemRef, active bool) error
}

// ItemsHandler handles pool management requests.
type ItemsHandler struct {
	deps ItemDependencies
}

// NewItemsHandler creates a new items handler.
func NewItemsHandler(deps ItemDependencies) *ItemsHandler {
	return &ItemsHandler{deps: deps}
}

type itemRequest struct {
	itemRefRequest
	Gender  string `json:"gender"`
	OwnerID string `json:"owner_id"`
}

type itemActiveRequest struct {
	itemRefRequest
	Active bool `json:"active"`
}

type statusResponse struct {
	Status string `json:"status"`
}

// HandlePostItem handles POST /items requests.
func (h *ItemsHandler) HandlePostItem(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_item"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req itemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	ref, err := req.ref()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	err = h.deps.AddItem(r.Context(), ref, model.Gender(req.Gender), req.OwnerID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		case errors.Is(err, repository.ErrAlreadyExists):
			writeError(w, http.StatusConflict, "already_exists", Wrap(op, err))
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		}
		return
	}
	writeJSON(w, http.StatusCreated, statusResponse{Status: "created"})
}

// HandlePostItemActive handles POST /items/active requests.
func (h *ItemsHandler) HandlePostItemActive(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_item_active"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req itemActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	ref, err := req.ref()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	if err := h.deps.SetItemActive(r.Context(), ref, req.Active); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "updated"})
}
