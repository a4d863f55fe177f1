package pricing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// LayeredSource reads books from a fast local source (the live feed cache)
// and falls back to a remote source, writing fetched books back through
// writer so the next read is local.
type LayeredSource struct {
	local  domain.BookSource
	remote domain.BookSource
	writer domain.BookWriter
	maxAge time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewLayeredSource creates a LayeredSource. writer may be nil. Local books
// older than maxAge are ignored when maxAge > 0.
func NewLayeredSource(local, remote domain.BookSource, writer domain.BookWriter, maxAge time.Duration, logger *slog.Logger) *LayeredSource {
	return &LayeredSource{
		local:  local,
		remote: remote,
		writer: writer,
		maxAge: maxAge,
		logger: logger.With(slog.String("component", "layered_book_source")),
		now:    time.Now,
	}
}

// GetOrderbook implements domain.BookSource.
func (s *LayeredSource) GetOrderbook(ctx context.Context, tokenID string, depth int) (domain.OrderbookSnapshot, error) {
	if book, err := s.local.GetOrderbook(ctx, tokenID, depth); err == nil && s.fresh(book.Timestamp) {
		return book, nil
	}
	book, err := s.remote.GetOrderbook(ctx, tokenID, depth)
	if err != nil {
		return domain.OrderbookSnapshot{}, fmt.Errorf("pricing: layered book %s: %w", tokenID, err)
	}
	if s.writer != nil {
		if werr := s.writer.SetSnapshot(ctx, book); werr != nil {
			s.logger.WarnContext(ctx, "write-through failed",
				slog.String("token_id", tokenID),
				slog.String("error", werr.Error()),
			)
		}
	}
	return book, nil
}

// GetLastTradePrice implements domain.BookSource.
func (s *LayeredSource) GetLastTradePrice(ctx context.Context, tokenID string) (float64, error) {
	if p, err := s.local.GetLastTradePrice(ctx, tokenID); err == nil {
		return p, nil
	}
	p, err := s.remote.GetLastTradePrice(ctx, tokenID)
	if err != nil {
		return 0, fmt.Errorf("pricing: layered last trade %s: %w", tokenID, err)
	}
	if s.writer != nil {
		_ = s.writer.SetLastTrade(ctx, tokenID, p, s.now())
	}
	return p, nil
}

// GetSpread implements domain.BookSource.
func (s *LayeredSource) GetSpread(ctx context.Context, tokenID string) (domain.SpreadInfo, error) {
	book, err := s.GetOrderbook(ctx, tokenID, 1)
	if err != nil {
		return domain.SpreadInfo{}, err
	}
	info, ok := domain.SpreadFromSnapshot(book)
	if !ok {
		return domain.SpreadInfo{}, fmt.Errorf("pricing: spread %s: %w", tokenID, domain.ErrPriceUnavailable)
	}
	return info, nil
}

func (s *LayeredSource) fresh(ts time.Time) bool {
	if s.maxAge <= 0 {
		return true
	}
	return !ts.IsZero() && s.now().Sub(ts) <= s.maxAge
}

var _ domain.BookSource = (*LayeredSource)(nil)
