package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// OpportunityTracker is the in-memory view of this process's passes.
type OpportunityTracker interface {
	Top(n int) []*domain.EnhancedOpportunity
	Filter(class domain.OpportunityClass, minProfit float64) []*domain.EnhancedOpportunity
}

// OpportunityHistory lists persisted opportunities.
type OpportunityHistory interface {
	ListRecentOpportunities(ctx context.Context, opts domain.ListOpts) ([]domain.OpportunityRecord, error)
}

// OpportunitySnapshots reads cached opportunities by signature.
type OpportunitySnapshots interface {
	Get(ctx context.Context, signature string) (domain.OpportunityRecord, error)
}

// OpportunityHandler serves opportunity endpoints.
type OpportunityHandler struct {
	tracker OpportunityTracker
	history OpportunityHistory   // optional
	cache   OpportunitySnapshots // optional
	logger  *slog.Logger
}

// NewOpportunityHandler creates an OpportunityHandler. history and cache may
// be nil; their endpoints then answer 501.
func NewOpportunityHandler(tracker OpportunityTracker, history OpportunityHistory, cache OpportunitySnapshots, logger *slog.Logger) *OpportunityHandler {
	return &OpportunityHandler{
		tracker: tracker,
		history: history,
		cache:   cache,
		logger:  logHandler(logger, "opportunities"),
	}
}

type listOpportunitiesResponse struct {
	Opportunities []domain.OpportunityRecord `json:"opportunities"`
}

// List returns tracked opportunities, best first.
// GET /api/opportunities?class=single_condition&min_profit=1&limit=20
func (h *OpportunityHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := parseLimit(r)

	var opps []*domain.EnhancedOpportunity
	class := q.Get("class")
	minProfit, _ := strconv.ParseFloat(q.Get("min_profit"), 64)
	if class != "" || minProfit > 0 {
		opps = h.tracker.Filter(domain.OpportunityClass(class), minProfit)
		if len(opps) > limit {
			opps = opps[len(opps)-limit:]
		}
	} else {
		opps = h.tracker.Top(limit)
	}

	out := make([]domain.OpportunityRecord, len(opps))
	for i, o := range opps {
		out[i] = o.ToRecord()
	}
	writeJSON(w, http.StatusOK, listOpportunitiesResponse{Opportunities: out})
}

// History returns persisted opportunities, newest first.
// GET /api/opportunities/history?since=2026-01-01T00:00:00Z&limit=100
func (h *OpportunityHandler) History(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusNotImplemented, "no opportunity store configured")
		return
	}
	recs, err := h.history.ListRecentOpportunities(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list opportunity history failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list opportunities")
		return
	}
	if recs == nil {
		recs = []domain.OpportunityRecord{}
	}
	writeJSON(w, http.StatusOK, listOpportunitiesResponse{Opportunities: recs})
}

// Get returns the cached snapshot for a signature.
// GET /api/opportunities/{signature}
func (h *OpportunityHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		writeError(w, http.StatusNotImplemented, "no opportunity cache configured")
		return
	}
	sig := r.PathValue("signature")
	rec, err := h.cache.Get(r.Context(), sig)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "opportunity not found")
	case err != nil:
		h.logger.ErrorContext(r.Context(), "get cached opportunity failed",
			slog.String("signature", sig),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read opportunity")
	default:
		writeJSON(w, http.StatusOK, rec)
	}
}
