// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	service "github.com/bodiman/elocheck/internal/app"
	"github.com/bodiman/elocheck/internal/domain/model"
	"github.com/bodiman/elocheck/internal/domain/types"
	"github.com/bodiman/elocheck/internal/recalc"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	NextPair(ctx context.Context, raterID string, raterGender model.Gender) (model.Pair, error)
	SubmitComparison(ctx context.Context, winner, loser model.ItemRef, raterID, sessionID string) (service.ComparisonResult, error)
	GetPercentile(ctx context.Context, ref model.ItemRef) (float64, error)
	RecomputeAll(ctx context.Context) (*recalc.Report, error)
	Validate(ctx context.Context) ([]service.Finding, error)
	TopN(ctx context.Context, cohort model.Cohort, n int) ([]Entry, error)
	AddItem(ctx context.Context, ref model.ItemRef, gender model.Gender, ownerID string) error
	SetItemActive(ctx context.Context, ref model.ItemRef, active bool) error
}

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = types.Entry

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	pairsHandler       *PairsHandler
	comparisonsHandler *ComparisonsHandler
	percentileHandler  *PercentileHandler
	leaderboardHandler *LeaderboardHandler
	itemsHandler       *ItemsHandler
	adminHandler       *AdminHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxLeaderboardLimit int) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		pairsHandler:       NewPairsHandler(deps),
		comparisonsHandler: NewComparisonsHandler(deps),
		percentileHandler:  NewPercentileHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps, maxLeaderboardLimit),
		itemsHandler:       NewItemsHandler(deps),
		adminHandler:       NewAdminHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	// Specific paths first (most specific to least specific)
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/pair", MetricsMiddleware(s.pairsHandler.HandleGetPair, "pair"))
	mux.HandleFunc("/comparisons", MetricsMiddleware(s.comparisonsHandler.HandlePostComparison, "comparisons"))
	mux.HandleFunc("/percentile/", MetricsMiddleware(s.percentileHandler.HandleGetPercentile, "percentile"))
	mux.HandleFunc("/leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("/items", MetricsMiddleware(s.itemsHandler.HandlePostItem, "items"))
	mux.HandleFunc("/items/active", MetricsMiddleware(s.itemsHandler.HandlePostItemActive, "items_active"))
	mux.HandleFunc("/recalc", MetricsMiddleware(s.adminHandler.HandlePostRecalc, "recalc"))
	mux.HandleFunc("/validate", MetricsMiddleware(s.adminHandler.HandleGetValidate, "validate"))
}

// itemRefRequest is the wire shape of an item reference.
type itemRefRequest struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

func (r itemRefRequest) ref() (model.ItemRef, error) {
	kind, err := model.ParseKind(r.Kind)
	if err != nil {
		return model.ItemRef{}, err
	}
	if r.ID == "" {
		return model.ItemRef{}, ErrBadRequest
	}
	return model.ItemRef{Kind: kind, ID: r.ID}, nil
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
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
