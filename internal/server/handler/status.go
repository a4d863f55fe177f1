package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/polyarb/internal/risk"
	"github.com/alanyoungcy/polyarb/internal/service"
)

// MetricsSource reports aggregate performance.
type MetricsSource interface {
	Metrics() service.Metrics
}

// ExposureSource reports current risk exposure.
type ExposureSource interface {
	ExposureSummary() risk.Exposure
}

// StatusHandler serves performance and exposure summaries.
type StatusHandler struct {
	metrics  MetricsSource
	exposure ExposureSource
	logger   *slog.Logger
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(metrics MetricsSource, exposure ExposureSource, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{metrics: metrics, exposure: exposure, logger: logHandler(logger, "status")}
}

// Metrics returns tracker metrics.
// GET /api/metrics
func (h *StatusHandler) Metrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.metrics.Metrics())
}

// Exposure returns the risk manager's exposure summary.
// GET /api/exposure
func (h *StatusHandler) Exposure(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.exposure.ExposureSummary())
}
