// Package feed keeps a book store current from the live market channel.
package feed

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/platform/polymarket"
)

// Streamer delivers live book events. *polymarket.WSClient implements it.
type Streamer interface {
	OnBookUpdate(polymarket.BookUpdateHandler)
	OnLastTradePrice(polymarket.LastTradePriceHandler)
	Run(ctx context.Context, assetIDs []string) error
}

// BatchFetcher loads books in bulk. *polymarket.ClobClient implements it.
type BatchFetcher interface {
	GetOrderbooks(ctx context.Context, tokenIDs []string, depth int) map[string]domain.OrderbookSnapshot
}

// BookFeed seeds a BookWriter from REST and then streams updates into it.
type BookFeed struct {
	stream Streamer
	warm   BatchFetcher
	writer domain.BookWriter
	logger *slog.Logger

	books  atomic.Int64
	trades atomic.Int64
	errs   atomic.Int64
}

// NewBookFeed creates a BookFeed. warm may be nil to skip seeding.
func NewBookFeed(stream Streamer, warm BatchFetcher, writer domain.BookWriter, logger *slog.Logger) *BookFeed {
	return &BookFeed{
		stream: stream,
		warm:   warm,
		writer: writer,
		logger: logger.With(slog.String("component", "book_feed")),
	}
}

// Run seeds assetIDs and streams until ctx is cancelled.
func (f *BookFeed) Run(ctx context.Context, assetIDs []string) error {
	if len(assetIDs) == 0 {
		f.logger.InfoContext(ctx, "no asset ids to stream")
		return nil
	}

	if f.warm != nil {
		seeded := 0
		for _, book := range f.warm.GetOrderbooks(ctx, assetIDs, 0) {
			if err := f.writer.SetSnapshot(ctx, book); err != nil {
				f.logger.WarnContext(ctx, "seed book write failed",
					slog.String("token_id", book.AssetID),
					slog.String("error", err.Error()),
				)
				continue
			}
			seeded++
		}
		f.logger.InfoContext(ctx, "seeded books", slog.Int("seeded", seeded), slog.Int("requested", len(assetIDs)))
	}

	f.stream.OnBookUpdate(func(snap domain.OrderbookSnapshot) {
		if err := f.writer.SetSnapshot(ctx, snap); err != nil {
			f.errs.Add(1)
			f.logger.WarnContext(ctx, "book write failed",
				slog.String("token_id", snap.AssetID),
				slog.String("error", err.Error()),
			)
			return
		}
		f.books.Add(1)
	})
	f.stream.OnLastTradePrice(func(lt domain.LastTradePrice) {
		if err := f.writer.SetLastTrade(ctx, lt.AssetID, lt.Price, lt.Timestamp); err != nil {
			f.errs.Add(1)
			f.logger.WarnContext(ctx, "last trade write failed",
				slog.String("token_id", lt.AssetID),
				slog.String("error", err.Error()),
			)
			return
		}
		f.trades.Add(1)
	})

	err := f.stream.Run(ctx, assetIDs)
	f.logger.InfoContext(ctx, "book feed stopped",
		slog.Int64("books", f.books.Load()),
		slog.Int64("trades", f.trades.Load()),
		slog.Int64("write_errors", f.errs.Load()),
	)
	return err
}

// Stats returns the number of books and trades written so far.
func (f *BookFeed) Stats() (books, trades int64) {
	return f.books.Load(), f.trades.Load()
}

// AssetIDs lists every distinct token referenced by markets, in first-seen
// order.
func AssetIDs(markets []domain.Market) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, m := range markets {
		for _, o := range m.Outcomes {
			add(o.YesTokenID)
			add(o.NoTokenID)
		}
	}
	return out
}
