package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/risk"
	"github.com/alanyoungcy/polyarb/internal/server/handler"
	"github.com/alanyoungcy/polyarb/internal/service"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeHistory struct {
	recs []domain.OpportunityRecord
	opts domain.ListOpts
}

func (f *fakeHistory) ListRecentOpportunities(_ context.Context, opts domain.ListOpts) ([]domain.OpportunityRecord, error) {
	f.opts = opts
	return f.recs, nil
}

type emptyCache struct{}

func (emptyCache) Get(context.Context, string) (domain.OpportunityRecord, error) {
	return domain.OpportunityRecord{}, domain.ErrNotFound
}

type fixture struct {
	tracker *service.Tracker
	history *fakeHistory
	handler http.Handler
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	logger := discardLogger()
	f := &fixture{tracker: service.NewTracker(), history: &fakeHistory{}}
	rm := risk.NewManager(risk.DefaultLimits(), logger)
	f.handler = NewHandler(cfg, Handlers{
		Health:        handler.NewHealthHandler("run", time.Now(), logger),
		Opportunities: handler.NewOpportunityHandler(f.tracker, f.history, emptyCache{}, logger),
		Executions:    handler.NewExecutionHandler(f.tracker, nil, logger),
		Status:        handler.NewStatusHandler(f.tracker, rm, logger),
	}, nil, logger)
	return f
}

func (f *fixture) get(t *testing.T, path string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func opp(id string, class domain.OpportunityClass, profit float64) *domain.EnhancedOpportunity {
	return &domain.EnhancedOpportunity{
		ID:               id,
		Class:            class,
		ProfitPercentage: profit,
		RiskLevel:        domain.RiskLow,
		DiscoveredAt:     time.Now(),
	}
}

func TestHealth_NoAuthRequired(t *testing.T) {
	f := newFixture(t, Config{APIKey: "secret"})
	rec := f.get(t, "/api/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestAuth(t *testing.T) {
	f := newFixture(t, Config{APIKey: "secret"})

	assert.Equal(t, http.StatusUnauthorized, f.get(t, "/api/metrics").Code)
	assert.Equal(t, http.StatusUnauthorized, f.get(t, "/api/metrics", "X-API-Key", "wrong").Code)
	assert.Equal(t, http.StatusOK, f.get(t, "/api/metrics", "Authorization", "Bearer secret").Code)
	assert.Equal(t, http.StatusOK, f.get(t, "/api/metrics?token=secret").Code)
}

func TestOpportunities_ListBestFirst(t *testing.T) {
	f := newFixture(t, Config{})
	f.tracker.AddOpportunity(opp("a", domain.ClassSingleCondition, 1))
	f.tracker.AddOpportunity(opp("b", domain.ClassNegRiskRebalancing, 3))

	rec := f.get(t, "/api/opportunities")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Opportunities []domain.OpportunityRecord `json:"opportunities"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Opportunities, 2)
	assert.Equal(t, "b", body.Opportunities[0].ID)

	rec = f.get(t, "/api/opportunities?class=single_condition")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Opportunities, 1)
	assert.Equal(t, "a", body.Opportunities[0].ID)
}

func TestOpportunities_History(t *testing.T) {
	f := newFixture(t, Config{})
	f.history.recs = []domain.OpportunityRecord{{ID: "x"}}

	rec := f.get(t, "/api/opportunities/history?limit=10&since=2026-01-02T00:00:00Z")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"x"`)
	assert.Equal(t, 10, f.history.opts.Limit)
	require.NotNil(t, f.history.opts.Since)
	assert.Equal(t, 2026, f.history.opts.Since.Year())
}

func TestOpportunities_GetMissing(t *testing.T) {
	f := newFixture(t, Config{})
	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/opportunities/single_condition:t1,t2").Code)
}

func TestExecutions(t *testing.T) {
	f := newFixture(t, Config{})
	f.tracker.AddExecution(domain.ExecutionResult{ID: "e1", Status: domain.ExecCompleted})
	f.tracker.AddExecution(domain.ExecutionResult{ID: "e2", Status: domain.ExecFailed})

	rec := f.get(t, "/api/executions?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Executions []domain.ExecutionResult `json:"executions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Executions, 1)
	assert.Equal(t, "e2", body.Executions[0].ID)

	assert.Equal(t, http.StatusOK, f.get(t, "/api/executions/e1").Code)
	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/executions/nope").Code)
}

func TestMetricsAndExposure(t *testing.T) {
	f := newFixture(t, Config{})
	f.tracker.AddOpportunity(opp("a", domain.ClassSingleCondition, 2))

	var m service.Metrics
	require.NoError(t, json.Unmarshal(f.get(t, "/api/metrics").Body.Bytes(), &m))
	assert.Equal(t, 1, m.Opportunities)

	var e risk.Exposure
	rec := f.get(t, "/api/exposure")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	assert.Zero(t, e.TotalPositions)
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, Config{RateLimit: 1, RateBurst: 1})
	assert.Equal(t, http.StatusOK, f.get(t, "/api/metrics").Code)
	assert.Equal(t, http.StatusTooManyRequests, f.get(t, "/api/metrics").Code)
	assert.Equal(t, http.StatusOK, f.get(t, "/api/metrics", "X-Forwarded-For", "10.0.0.9").Code)
}

func TestCORS_Preflight(t *testing.T) {
	f := newFixture(t, Config{CORSOrigins: []string{"https://ok.example"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/metrics", nil)
	req.Header.Set("Origin", "https://ok.example")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://ok.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/metrics", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
