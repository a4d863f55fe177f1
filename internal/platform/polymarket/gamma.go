package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

const gammaPageSize = 100

// GammaClient is the REST client for the Polymarket Gamma API, which
// provides market discovery and metadata.
type GammaClient struct {
	rest   restClient
	logger *slog.Logger
}

// NewGammaClient creates a new Gamma API client.
//
// baseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string, ratePerSec float64, burst int, logger *slog.Logger) *GammaClient {
	return &GammaClient{
		rest:   newRESTClient(baseURL, ratePerSec, burst),
		logger: logger.With(slog.String("component", "gamma_client")),
	}
}

// ListMarkets implements domain.MarketSource. It pages through open events
// so every market carries its event id, stopping once limit markets are
// collected (limit <= 0 reads every page). Markets that fail boundary
// validation are logged and skipped.
func (g *GammaClient) ListMarkets(ctx context.Context, limit int) ([]domain.Market, error) {
	var out []domain.Market
	for offset := 0; ; offset += gammaPageSize {
		events, err := g.GetEvents(ctx, gammaPageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("polymarket/gamma: list markets: %w", err)
		}
		for i := range events {
			for _, m := range g.eventMarkets(&events[i]) {
				out = append(out, m)
				if limit > 0 && len(out) >= limit {
					return out, nil
				}
			}
		}
		if len(events) < gammaPageSize {
			return out, nil
		}
	}
}

func (g *GammaClient) eventMarkets(e *APIEvent) []domain.Market {
	out := make([]domain.Market, 0, len(e.Markets))
	for i := range e.Markets {
		am := &e.Markets[i]
		if len(am.Events) == 0 {
			am.Events = []APIEventRef{{ID: e.ID, Slug: e.Slug, Title: e.Title}}
		}
		if am.Category == "" {
			am.Category = e.Category
		}
		m, err := am.ToDomainMarket()
		if err != nil {
			g.logger.Debug("skipping market", slog.String("market_id", am.ID), slog.String("error", err.Error()))
			continue
		}
		out = append(out, m)
	}
	return out
}

// GetEvents returns a page of open events with their markets.
func (g *GammaClient) GetEvents(ctx context.Context, limit, offset int) ([]APIEvent, error) {
	params := url.Values{}
	params.Set("active", "true")
	params.Set("closed", "false")
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))

	var events []APIEvent
	if err := g.rest.getJSON(ctx, "/events?"+params.Encode(), &events); err != nil {
		return nil, fmt.Errorf("polymarket/gamma: get events: %w", err)
	}
	return events, nil
}

// GetMarket returns a single market by its ID.
func (g *GammaClient) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	var am APIMarket
	if err := g.rest.getJSON(ctx, "/markets/"+url.PathEscape(id), &am); err != nil {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: get market %s: %w", id, err)
	}
	m, err := am.ToDomainMarket()
	if err != nil {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: get market %s: %w", id, err)
	}
	return m, nil
}

var _ domain.MarketSource = (*GammaClient)(nil)
