package polymarket

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// flexBool unmarshals from a JSON bool or a "true"/"false" string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// flexStrings unmarshals from a JSON array or from a string holding a
// JSON-encoded array, which is how Gamma sends outcomes and token ids.
type flexStrings []string

func (f *flexStrings) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = nil
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*f = list
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		*f = nil
		return nil
	}
	if err := json.Unmarshal([]byte(s), &list); err != nil {
		return fmt.Errorf("decode embedded list %q: %w", s, err)
	}
	*f = list
	return nil
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIEventRef is the event summary nested inside a Gamma market.
type APIEventRef struct {
	ID    string `json:"id"`
	Slug  string `json:"slug"`
	Title string `json:"title"`
}

// APIMarket represents a market as returned by the Polymarket Gamma API.
type APIMarket struct {
	ID              string        `json:"id"`
	Question        string        `json:"question"`
	ConditionID     string        `json:"conditionId"`
	Slug            string        `json:"slug"`
	Description     string        `json:"description"`
	Category        string        `json:"category"`
	Active          flexBool      `json:"active"`
	Closed          flexBool      `json:"closed"`
	Outcomes        flexStrings   `json:"outcomes"`
	OutcomePrices   flexStrings   `json:"outcomePrices"`
	ClobTokenIDs    flexStrings   `json:"clobTokenIds"`
	NegRisk         flexBool      `json:"negRisk"`
	NegRiskMarketID string        `json:"negRiskMarketID"`
	Events          []APIEventRef `json:"events"`
}

// APIEvent represents an event with its markets.
type APIEvent struct {
	ID       string      `json:"id"`
	Title    string      `json:"title"`
	Slug     string      `json:"slug"`
	Category string      `json:"category"`
	Active   flexBool    `json:"active"`
	Closed   flexBool    `json:"closed"`
	NegRisk  flexBool    `json:"negRisk"`
	Markets  []APIMarket `json:"markets"`
}

// ToDomainMarket converts a Gamma market into a validated domain.Market.
// Each outcome owns the token at its index; in binary markets the other
// outcome's token is its NO token.
func (m *APIMarket) ToDomainMarket() (domain.Market, error) {
	dm := domain.Market{
		ID:        m.ID,
		Question:  m.Question,
		Slug:      m.Slug,
		IsNegRisk: bool(m.NegRisk),
		NegRiskID: m.NegRiskMarketID,
		Topic:     m.Category,
		Rules:     m.Description,
		Active:    bool(m.Active) && !bool(m.Closed),
	}
	if len(m.Events) > 0 {
		dm.EventID = m.Events[0].ID
	}

	if len(m.Outcomes) != len(m.ClobTokenIDs) {
		return domain.Market{}, fmt.Errorf("domain: market %s: outcomes/token ids length mismatch (%d vs %d): %w",
			m.ID, len(m.Outcomes), len(m.ClobTokenIDs), domain.ErrInvalidMarket)
	}

	if len(m.Outcomes) == 2 {
		for i, label := range m.Outcomes {
			dm.Outcomes = append(dm.Outcomes, domain.Outcome{
				Label:      label,
				YesTokenID: m.ClobTokenIDs[i],
				NoTokenID:  m.ClobTokenIDs[1-i],
			})
		}
	} else {
		for i, label := range m.Outcomes {
			dm.Outcomes = append(dm.Outcomes, domain.Outcome{Label: label, YesTokenID: m.ClobTokenIDs[i]})
		}
	}

	if err := dm.Validate(); err != nil {
		return domain.Market{}, err
	}
	return dm, nil
}

// --------------------------------------------------------------------------
// CLOB REST DTOs
// --------------------------------------------------------------------------

// APIPriceLevel is a single bid/ask level as sent by the CLOB (REST and WS).
type APIPriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// APIBook is the CLOB orderbook payload, shared by GET /book and the "book"
// websocket event.
type APIBook struct {
	EventType string          `json:"event_type,omitempty"`
	AssetID   string          `json:"asset_id"`
	Market    string          `json:"market"`
	Bids      []APIPriceLevel `json:"bids"`
	Asks      []APIPriceLevel `json:"asks"`
	Timestamp string          `json:"timestamp"`
	Hash      string          `json:"hash"`
}

// APILastTrade is the payload of GET /last-trade-price and the
// "last_trade_price" websocket event.
type APILastTrade struct {
	EventType string `json:"event_type,omitempty"`
	AssetID   string `json:"asset_id"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Timestamp string `json:"timestamp"`
}

// ToDomainSnapshot converts a CLOB book into a snapshot with bids sorted
// best first and asks sorted best first, truncated to depth when depth > 0.
// Levels with unparseable or non-positive prices are dropped.
func (b *APIBook) ToDomainSnapshot(depth int) domain.OrderbookSnapshot {
	snap := domain.OrderbookSnapshot{
		AssetID:   b.AssetID,
		Bids:      parseLevels(b.Bids),
		Asks:      parseLevels(b.Asks),
		Timestamp: parseTimestamp(b.Timestamp),
	}
	sort.SliceStable(snap.Bids, func(i, j int) bool { return snap.Bids[i].Price > snap.Bids[j].Price })
	sort.SliceStable(snap.Asks, func(i, j int) bool { return snap.Asks[i].Price < snap.Asks[j].Price })
	if depth > 0 {
		snap.Bids = snap.Bids[:min(depth, len(snap.Bids))]
		snap.Asks = snap.Asks[:min(depth, len(snap.Asks))]
	}
	if len(snap.Bids) > 0 {
		snap.BestBid = snap.Bids[0].Price
	}
	if len(snap.Asks) > 0 {
		snap.BestAsk = snap.Asks[0].Price
	}
	if snap.BestBid > 0 && snap.BestAsk > 0 {
		snap.MidPrice = (snap.BestBid + snap.BestAsk) / 2
	}
	return snap
}

func parseLevels(in []APIPriceLevel) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(in))
	for _, lvl := range in {
		p, err := strconv.ParseFloat(lvl.Price, 64)
		if err != nil || p <= 0 {
			continue
		}
		s, _ := strconv.ParseFloat(lvl.Size, 64)
		out = append(out, domain.PriceLevel{Price: p, Size: s})
	}
	return out
}

// parseTimestamp accepts unix milliseconds, unix seconds or RFC 3339.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Now().UTC()
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n).UTC()
		}
		return time.Unix(n, 0).UTC()
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC()
	}
	return time.Now().UTC()
}

// --------------------------------------------------------------------------
// WebSocket subscription command
// --------------------------------------------------------------------------

// WSSubscribe is the market channel subscription payload.
type WSSubscribe struct {
	Type     string   `json:"type"`
	AssetIDs []string `json:"assets_ids"`
}
