package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// MarketService produces validated market snapshots for a scan pass.
type MarketService struct {
	source domain.MarketSource
	logger *slog.Logger
}

// NewMarketService creates a MarketService.
func NewMarketService(source domain.MarketSource, logger *slog.Logger) *MarketService {
	return &MarketService{
		source: source,
		logger: logger.With(slog.String("component", "market_service")),
	}
}

// Snapshot lists up to limit markets and keeps the active ones that pass
// validation. Invalid descriptors are logged and dropped.
func (s *MarketService) Snapshot(ctx context.Context, limit int) ([]domain.Market, error) {
	markets, err := s.source.ListMarkets(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("market_service: list markets: %w", err)
	}

	out := make([]domain.Market, 0, len(markets))
	var invalid, inactive int
	for _, m := range markets {
		if !m.Active {
			inactive++
			continue
		}
		if err := m.Validate(); err != nil {
			invalid++
			s.logger.DebugContext(ctx, "dropping invalid market",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		out = append(out, m)
	}

	s.logger.InfoContext(ctx, "market snapshot",
		slog.Int("listed", len(markets)),
		slog.Int("kept", len(out)),
		slog.Int("inactive", inactive),
		slog.Int("invalid", invalid),
	)
	return out, nil
}
