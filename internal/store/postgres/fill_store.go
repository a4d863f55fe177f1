package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// FillStore implements domain.FillStore using PostgreSQL.
type FillStore struct {
	pool *pgxpool.Pool
}

// NewFillStore creates a new FillStore.
func NewFillStore(pool *pgxpool.Pool) *FillStore {
	return &FillStore{pool: pool}
}

// InsertFill records a fill. An empty id is replaced by a new uuid.
func (s *FillStore) InsertFill(ctx context.Context, f domain.Fill) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO fills (id, user_id, token_id, market_id, opportunity_id, side, price, size, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		f.ID, f.UserID, f.TokenID, f.MarketID, f.OpportunityID, string(f.Side), f.Price, f.Size, f.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert fill %s: %w", f.ID, err)
	}
	return nil
}

// LatestFill returns the most recent fill of tokenID by userID.
func (s *FillStore) LatestFill(ctx context.Context, userID, tokenID string) (domain.Fill, error) {
	var (
		f    domain.Fill
		side string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, token_id, market_id, opportunity_id, side, price, size, executed_at
		FROM fills
		WHERE user_id = $1 AND token_id = $2
		ORDER BY executed_at DESC
		LIMIT 1`,
		userID, tokenID,
	).Scan(&f.ID, &f.UserID, &f.TokenID, &f.MarketID, &f.OpportunityID, &side, &f.Price, &f.Size, &f.ExecutedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Fill{}, fmt.Errorf("postgres: latest fill %s/%s: %w", userID, tokenID, domain.ErrNotFound)
		}
		return domain.Fill{}, fmt.Errorf("postgres: latest fill %s/%s: %w", userID, tokenID, err)
	}
	f.Side = domain.OrderSide(side)
	return f, nil
}

var _ domain.FillStore = (*FillStore)(nil)
