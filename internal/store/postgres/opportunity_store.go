package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL. The
// full record is kept as JSONB next to the columns used for filtering.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates a new OpportunityStore.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

// InsertOpportunity upserts opp by id.
func (s *OpportunityStore) InsertOpportunity(ctx context.Context, opp *domain.EnhancedOpportunity) error {
	rec := opp.ToRecord()
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("postgres: marshal opportunity %s: %w", opp.ID, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO opportunities (id, signature, opportunity_class, strategy_id, total_cost, expected_profit,
			profit_percentage, risk_level, is_pure_arbitrage, discovered_at, record)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			profit_percentage = EXCLUDED.profit_percentage,
			risk_level        = EXCLUDED.risk_level,
			record            = EXCLUDED.record`,
		opp.ID, opp.Signature(), rec.OpportunityClass, rec.StrategyID, opp.TotalCost, opp.ExpectedProfit,
		opp.ProfitPercentage, rec.RiskLevel, opp.IsPureArbitrage, opp.DiscoveredAt, payload,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert opportunity %s: %w", opp.ID, err)
	}
	return nil
}

// ListRecentOpportunities returns records newest first within opts.
func (s *OpportunityStore) ListRecentOpportunities(ctx context.Context, opts domain.ListOpts) ([]domain.OpportunityRecord, error) {
	var (
		where []string
		args  []any
	)
	if opts.Since != nil {
		args = append(args, *opts.Since)
		where = append(where, fmt.Sprintf("discovered_at >= $%d", len(args)))
	}
	if opts.Until != nil {
		args = append(args, *opts.Until)
		where = append(where, fmt.Sprintf("discovered_at < $%d", len(args)))
	}
	q := "SELECT record FROM opportunities"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, max(opts.Offset, 0))
	q += fmt.Sprintf(" ORDER BY discovered_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities: %w", err)
	}
	defer rows.Close()

	var out []domain.OpportunityRecord
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		var rec domain.OpportunityRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("postgres: decode opportunity: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list opportunities: %w", err)
	}
	return out, nil
}

var _ domain.OpportunityStore = (*OpportunityStore)(nil)
