package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// ExecutionLister returns this process's execution results.
type ExecutionLister interface {
	Executions() []domain.ExecutionResult
}

// ExecutionGetter reads a persisted execution result.
type ExecutionGetter interface {
	GetExecution(ctx context.Context, id string) (domain.ExecutionResult, error)
}

// ExecutionHandler serves execution endpoints.
type ExecutionHandler struct {
	lister ExecutionLister
	store  ExecutionGetter // optional
	logger *slog.Logger
}

// NewExecutionHandler creates an ExecutionHandler. store may be nil.
func NewExecutionHandler(lister ExecutionLister, store ExecutionGetter, logger *slog.Logger) *ExecutionHandler {
	return &ExecutionHandler{lister: lister, store: store, logger: logHandler(logger, "executions")}
}

type listExecutionsResponse struct {
	Executions []domain.ExecutionResult `json:"executions"`
}

// List returns the most recent executions, newest first.
// GET /api/executions?limit=20
func (h *ExecutionHandler) List(w http.ResponseWriter, r *http.Request) {
	all := h.lister.Executions()
	limit := parseLimit(r)

	out := make([]domain.ExecutionResult, 0, min(limit, len(all)))
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	writeJSON(w, http.StatusOK, listExecutionsResponse{Executions: out})
}

// Get returns one execution, looking in memory before the store.
// GET /api/executions/{id}
func (h *ExecutionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	for _, res := range h.lister.Executions() {
		if res.ID == id {
			writeJSON(w, http.StatusOK, res)
			return
		}
	}
	if h.store == nil {
		writeError(w, http.StatusNotFound, "execution not found")
		return
	}

	res, err := h.store.GetExecution(r.Context(), id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "execution not found")
	case err != nil:
		h.logger.ErrorContext(r.Context(), "get execution failed",
			slog.String("execution_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read execution")
	default:
		writeJSON(w, http.StatusOK, res)
	}
}
