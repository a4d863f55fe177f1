package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p%40ss@db:5432/arb?sslmode=disable",
		DSN(ClientConfig{Host: "db", Database: "arb", User: "u", Password: "p@ss"}))
	assert.Equal(t, "postgres://x", DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}))
}

func TestMigrationsEmbedded(t *testing.T) {
	data, err := migrationsFS.ReadFile("migrations/001_init.sql")
	require.NoError(t, err)
	assert.Contains(t, string(data), "CREATE TABLE IF NOT EXISTS fills")
}

// newTestClient connects to POLYARB_TEST_POSTGRES_DSN and migrates, or skips.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	dsn := os.Getenv("POLYARB_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POLYARB_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	c, err := New(ctx, ClientConfig{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	require.NoError(t, c.RunMigrations(ctx))
	return c
}

func TestFillStore_LatestFill(t *testing.T) {
	c := newTestClient(t)
	s := c.Stores().Fills
	ctx := context.Background()
	user := "user-" + uuid.NewString()
	now := time.Now().UTC().Truncate(time.Microsecond)

	require.NoError(t, s.InsertFill(ctx, domain.Fill{UserID: user, TokenID: "tok", Side: domain.OrderSideBuy, Price: 0.4, Size: 1, ExecutedAt: now.Add(-time.Minute)}))
	require.NoError(t, s.InsertFill(ctx, domain.Fill{UserID: user, TokenID: "tok", Side: domain.OrderSideBuy, Price: 0.43, Size: 1, ExecutedAt: now}))

	f, err := s.LatestFill(ctx, user, "tok")
	require.NoError(t, err)
	assert.Equal(t, 0.43, f.Price)

	_, err = s.LatestFill(ctx, user, "other")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestExecutionStore_RoundTrip(t *testing.T) {
	c := newTestClient(t)
	s := c.Stores().Executions
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	res := domain.ExecutionResult{
		ID:            uuid.NewString(),
		OpportunityID: "opp",
		Status:        domain.ExecAborted,
		TargetSize:    10,
		TotalCost:     9,
		Notes:         []string{"Aborted after leg A failed"},
		StartedAt:     now,
		CompletedAt:   now,
		Legs: []domain.LegExecution{{
			Leg:         domain.Leg{TokenID: "a", Side: domain.SideYes, OutcomeLabel: "A", Price: 0.3},
			TargetSize:  10,
			Status:      domain.ExecFailed,
			Error:       "order rejected",
			StartedAt:   now,
			CompletedAt: now,
		}},
	}
	require.NoError(t, s.InsertExecution(ctx, res))

	got, err := s.GetExecution(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecAborted, got.Status)
	assert.Equal(t, res.Notes, got.Notes)
	require.Len(t, got.Legs, 1)
	assert.Equal(t, "order rejected", got.Legs[0].Error)

	_, err = s.GetExecution(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOpportunityStore_ListRecent(t *testing.T) {
	c := newTestClient(t)
	s := c.Stores().Opportunities
	ctx := context.Background()
	since := time.Now().UTC()

	opp := &domain.EnhancedOpportunity{
		ID:               uuid.NewString(),
		Class:            domain.ClassSingleCondition,
		Legs:             []domain.Leg{{TokenID: "y"}, {TokenID: "n"}},
		TotalCost:        0.95,
		ProfitPercentage: 5.26,
		RiskLevel:        domain.RiskLow,
		DiscoveredAt:     since.Add(time.Second),
	}
	require.NoError(t, s.InsertOpportunity(ctx, opp))

	recs, err := s.ListRecentOpportunities(ctx, domain.ListOpts{Since: &since, Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, recs)
	assert.Equal(t, opp.ID, recs[0].ID)
}
