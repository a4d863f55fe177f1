package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// ExecutionStore implements domain.ExecutionStore using PostgreSQL.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore creates a new ExecutionStore.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

// InsertExecution inserts a basket result and its legs in one transaction.
func (s *ExecutionStore) InsertExecution(ctx context.Context, res domain.ExecutionResult) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	notes := res.Notes
	if notes == nil {
		notes = []string{}
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO executions (id, opportunity_id, status, target_size, total_cost, actual_cost,
			realized_slippage_bps, notes, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		res.ID, res.OpportunityID, string(res.Status), res.TargetSize, res.TotalCost, res.ActualCost,
		res.RealizedSlippageBps, notes, res.StartedAt, res.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert execution %s: %w", res.ID, err)
	}

	for i, le := range res.Legs {
		orderIDs := le.OrderIDs
		if orderIDs == nil {
			orderIDs = []string{}
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO execution_legs (execution_id, seq, token_id, side, outcome_label, market_id, quoted_price,
				price_type, target_size, status, filled_size, avg_fill_price, slippage_bps, order_ids, error,
				started_at, completed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
			res.ID, i, le.Leg.TokenID, string(le.Leg.Side), le.Leg.OutcomeLabel, le.Leg.MarketID, le.Leg.Price,
			string(le.Leg.PriceType), le.TargetSize, string(le.Status), le.FilledSize, le.AvgFillPrice,
			le.SlippageBps, orderIDs, le.Error, le.StartedAt, le.CompletedAt,
		)
		if err != nil {
			return fmt.Errorf("postgres: insert execution leg %s/%d: %w", res.ID, i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit execution %s: %w", res.ID, err)
	}
	return nil
}

// GetExecution returns an execution with its legs in order.
func (s *ExecutionStore) GetExecution(ctx context.Context, id string) (domain.ExecutionResult, error) {
	var (
		res    domain.ExecutionResult
		status string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, opportunity_id, status, target_size, total_cost, actual_cost, realized_slippage_bps,
			notes, started_at, completed_at
		FROM executions WHERE id = $1`,
		id,
	).Scan(&res.ID, &res.OpportunityID, &status, &res.TargetSize, &res.TotalCost, &res.ActualCost,
		&res.RealizedSlippageBps, &res.Notes, &res.StartedAt, &res.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ExecutionResult{}, fmt.Errorf("postgres: execution %s: %w", id, domain.ErrNotFound)
		}
		return domain.ExecutionResult{}, fmt.Errorf("postgres: get execution %s: %w", id, err)
	}
	res.Status = domain.ExecutionStatus(status)

	rows, err := s.pool.Query(ctx, `
		SELECT token_id, side, outcome_label, market_id, quoted_price, price_type, target_size, status,
			filled_size, avg_fill_price, slippage_bps, order_ids, error, started_at, completed_at
		FROM execution_legs WHERE execution_id = $1 ORDER BY seq`,
		id,
	)
	if err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("postgres: get execution legs %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			le                         domain.LegExecution
			side, priceType, legStatus string
		)
		if err := rows.Scan(&le.Leg.TokenID, &side, &le.Leg.OutcomeLabel, &le.Leg.MarketID, &le.Leg.Price,
			&priceType, &le.TargetSize, &legStatus, &le.FilledSize, &le.AvgFillPrice, &le.SlippageBps,
			&le.OrderIDs, &le.Error, &le.StartedAt, &le.CompletedAt); err != nil {
			return domain.ExecutionResult{}, fmt.Errorf("postgres: scan execution leg %s: %w", id, err)
		}
		le.Leg.Side = domain.PositionSide(side)
		le.Leg.PriceType = domain.PriceType(priceType)
		le.Status = domain.ExecutionStatus(legStatus)
		res.Legs = append(res.Legs, le)
	}
	if err := rows.Err(); err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("postgres: get execution legs %s: %w", id, err)
	}
	return res, nil
}

var _ domain.ExecutionStore = (*ExecutionStore)(nil)
