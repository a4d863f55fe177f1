// Package sqlite is the single-file storage backend: fills, opportunities
// and execution results in one SQLite database (pure Go, no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS fills (
    id             TEXT PRIMARY KEY,
    user_id        TEXT    NOT NULL,
    token_id       TEXT    NOT NULL,
    market_id      TEXT    NOT NULL DEFAULT '',
    opportunity_id TEXT    NOT NULL DEFAULT '',
    side           TEXT    NOT NULL,
    price          REAL    NOT NULL,
    size           REAL    NOT NULL,
    executed_at    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fills_user_token ON fills(user_id, token_id, executed_at DESC);

CREATE TABLE IF NOT EXISTS opportunities (
    id                TEXT PRIMARY KEY,
    signature         TEXT    NOT NULL,
    opportunity_class TEXT    NOT NULL,
    profit_percentage REAL    NOT NULL,
    discovered_at     INTEGER NOT NULL,
    record            TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_opp_discovered ON opportunities(discovered_at DESC);

CREATE TABLE IF NOT EXISTS executions (
    id             TEXT PRIMARY KEY,
    opportunity_id TEXT    NOT NULL,
    status         TEXT    NOT NULL,
    started_at     INTEGER NOT NULL,
    result         TEXT    NOT NULL
);
`

// Store implements domain.FillStore, domain.OpportunityStore and
// domain.ExecutionStore.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	// single writer; also keeps one :memory: database per Store
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertFill implements domain.FillStore.
func (s *Store) InsertFill(ctx context.Context, f domain.Fill) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO fills (id, user_id, token_id, market_id, opportunity_id, side, price, size, executed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.UserID, f.TokenID, f.MarketID, f.OpportunityID, string(f.Side), f.Price, f.Size, f.ExecutedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert fill %s: %w", f.ID, err)
	}
	return nil
}

// LatestFill implements domain.FillStore.
func (s *Store) LatestFill(ctx context.Context, userID, tokenID string) (domain.Fill, error) {
	var (
		f    domain.Fill
		side string
		ts   int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, token_id, market_id, opportunity_id, side, price, size, executed_at
		 FROM fills WHERE user_id = ? AND token_id = ?
		 ORDER BY executed_at DESC LIMIT 1`,
		userID, tokenID,
	).Scan(&f.ID, &f.UserID, &f.TokenID, &f.MarketID, &f.OpportunityID, &side, &f.Price, &f.Size, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Fill{}, fmt.Errorf("sqlite: latest fill %s/%s: %w", userID, tokenID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Fill{}, fmt.Errorf("sqlite: latest fill %s/%s: %w", userID, tokenID, err)
	}
	f.Side = domain.OrderSide(side)
	f.ExecutedAt = time.Unix(0, ts).UTC()
	return f, nil
}

// InsertOpportunity implements domain.OpportunityStore.
func (s *Store) InsertOpportunity(ctx context.Context, opp *domain.EnhancedOpportunity) error {
	rec := opp.ToRecord()
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("sqlite: marshal opportunity %s: %w", opp.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO opportunities (id, signature, opportunity_class, profit_percentage, discovered_at, record)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET profit_percentage = excluded.profit_percentage, record = excluded.record`,
		opp.ID, opp.Signature(), rec.OpportunityClass, opp.ProfitPercentage, opp.DiscoveredAt.UnixNano(), string(payload),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert opportunity %s: %w", opp.ID, err)
	}
	return nil
}

// ListRecentOpportunities implements domain.OpportunityStore.
func (s *Store) ListRecentOpportunities(ctx context.Context, opts domain.ListOpts) ([]domain.OpportunityRecord, error) {
	var (
		where []string
		args  []any
	)
	if opts.Since != nil {
		where = append(where, "discovered_at >= ?")
		args = append(args, opts.Since.UnixNano())
	}
	if opts.Until != nil {
		where = append(where, "discovered_at < ?")
		args = append(args, opts.Until.UnixNano())
	}
	q := "SELECT record FROM opportunities"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " ORDER BY discovered_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, max(opts.Offset, 0))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list opportunities: %w", err)
	}
	defer rows.Close()

	var out []domain.OpportunityRecord
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("sqlite: scan opportunity: %w", err)
		}
		var rec domain.OpportunityRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("sqlite: decode opportunity: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list opportunities: %w", err)
	}
	return out, nil
}

// InsertExecution implements domain.ExecutionStore. The full result is
// stored as JSON.
func (s *Store) InsertExecution(ctx context.Context, res domain.ExecutionResult) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("sqlite: marshal execution %s: %w", res.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO executions (id, opportunity_id, status, started_at, result) VALUES (?, ?, ?, ?, ?)`,
		res.ID, res.OpportunityID, string(res.Status), res.StartedAt.UnixNano(), string(payload),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert execution %s: %w", res.ID, err)
	}
	return nil
}

// GetExecution implements domain.ExecutionStore.
func (s *Store) GetExecution(ctx context.Context, id string) (domain.ExecutionResult, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT result FROM executions WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ExecutionResult{}, fmt.Errorf("sqlite: execution %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("sqlite: get execution %s: %w", id, err)
	}
	var res domain.ExecutionResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("sqlite: decode execution %s: %w", id, err)
	}
	return res, nil
}

var (
	_ domain.FillStore        = (*Store)(nil)
	_ domain.OpportunityStore = (*Store)(nil)
	_ domain.ExecutionStore   = (*Store)(nil)
)
