package scanner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/domain/domaintest"
	"github.com/alanyoungcy/polyarb/internal/pricing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newPrices(books *domaintest.Books) *pricing.Accessor {
	return pricing.NewAccessor(books, discardLogger())
}

func makeBinary(id, question, yesTok, noTok string) domain.Market {
	return domain.Market{
		ID:       id,
		Question: question,
		Outcomes: []domain.Outcome{
			{Label: "Yes", YesTokenID: yesTok, NoTokenID: noTok},
			{Label: "No", YesTokenID: noTok, NoTokenID: yesTok},
		},
	}
}

func TestSingleCondition_DutchBook(t *testing.T) {
	books := domaintest.NewBooks()
	books.SetAsk("y1", 0.45, 100)
	books.SetAsk("n1", 0.50, 100)
	s := NewSingleCondition(newPrices(books), DefaultConfig(), discardLogger())

	m := makeBinary("m1", "Will it rain tomorrow?", "y1", "n1")
	m.EventID = "e1"
	m.Topic = "weather"
	res := s.Scan(context.Background(), Input{Markets: []domain.Market{m}})

	require.Equal(t, 1, res.Count())
	opp := res.Opportunities[0]
	assert.Equal(t, domain.ClassSingleCondition, opp.Class)
	assert.InDelta(t, 0.95, opp.TotalCost, 1e-9)
	assert.InDelta(t, (1-0.95)/0.95*100, opp.ProfitPercentage, 1e-9)
	assert.Equal(t, 1.0, opp.WorstCasePayoff)
	assert.Equal(t, 1.0, opp.BestCasePayoff)
	assert.Equal(t, domain.RiskLow, opp.RiskLevel)
	assert.True(t, opp.IsPureArbitrage)
	assert.Equal(t, []string{"m1"}, opp.MarketIDs)
	assert.Equal(t, []string{"e1"}, opp.EventIDs)
	assert.Equal(t, "weather", opp.Topic)
	assert.Equal(t, "YES/NO Arbitrage: Will it rain tomorrow?", opp.Name)
	assert.Equal(t, []string{"y1", "n1"}, opp.TokenIDs())
	assert.Equal(t, domain.SideYes, opp.Legs[0].Side)
	assert.Equal(t, domain.SideNo, opp.Legs[1].Side)
	assert.Equal(t, 1, res.Scanned)
}

func TestSingleCondition_AtOrAboveThreshold(t *testing.T) {
	books := domaintest.NewBooks()
	books.SetAsk("y1", 0.49, 100)
	books.SetAsk("n1", 0.49, 100)
	s := NewSingleCondition(newPrices(books), DefaultConfig(), discardLogger())

	res := s.Scan(context.Background(), Input{Markets: []domain.Market{makeBinary("m1", "q", "y1", "n1")}})
	assert.Equal(t, 0, res.Count())
}

func TestSingleCondition_SkipsNonBinaryAndMissingPrices(t *testing.T) {
	books := domaintest.NewBooks()
	books.SetAsk("y1", 0.40, 100)
	s := NewSingleCondition(newPrices(books), DefaultConfig(), discardLogger())

	tri := domain.Market{ID: "m2", Outcomes: []domain.Outcome{{Label: "A", YesTokenID: "a"}, {Label: "B", YesTokenID: "b"}, {Label: "C", YesTokenID: "c"}}}
	res := s.Scan(context.Background(), Input{Markets: []domain.Market{makeBinary("m1", "q", "y1", "n1"), tri}})
	assert.Equal(t, 0, res.Count())
	assert.Equal(t, 2, res.Scanned)
}

func TestSingleCondition_TwoSidedBooks(t *testing.T) {
	tests := []struct {
		name           string
		yesBid, yesAsk float64
		noBid, noAsk   float64
		wantCount      int
		wantCost       float64
	}{
		{name: "asks below threshold", yesBid: 0.44, yesAsk: 0.45, noBid: 0.44, noAsk: 0.45, wantCount: 1, wantCost: 0.90},
		{name: "asks above threshold despite cheap bids", yesBid: 0.47, yesAsk: 0.52, noBid: 0.45, noAsk: 0.50},
		{name: "asks at threshold", yesBid: 0.40, yesAsk: 0.49, noBid: 0.40, noAsk: 0.49},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			books := domaintest.NewBooks()
			books.SetBook("y1", tt.yesBid, tt.yesAsk, 300)
			books.SetBook("n1", tt.noBid, tt.noAsk, 300)
			s := NewSingleCondition(newPrices(books), DefaultConfig(), discardLogger())

			res := s.Scan(context.Background(), Input{Markets: []domain.Market{makeBinary("m1", "q", "y1", "n1")}})
			require.Equal(t, tt.wantCount, res.Count())
			if tt.wantCount == 0 {
				return
			}
			opp := res.Opportunities[0]
			assert.InDelta(t, tt.wantCost, opp.TotalCost, 1e-9)
			assert.InDelta(t, (1-tt.wantCost)/tt.wantCost*100, opp.ProfitPercentage, 1e-9)
			for _, leg := range opp.Legs {
				assert.Equal(t, domain.PriceAsk, leg.PriceType)
			}

			// Depth is ask size + bid size per leg.
			require.NotNil(t, opp.MaxSize)
			assert.InDelta(t, 600, *opp.MaxSize, 1e-9)
			require.NotNil(t, opp.LiquidityScore)
			assert.InDelta(t, 0.8, *opp.LiquidityScore, 1e-9)
			require.NotNil(t, opp.AdjustedCost)
			assert.Greater(t, *opp.AdjustedCost, opp.TotalCost)
			assert.Less(t, *opp.AdjustedProfitPercentage, opp.ProfitPercentage)
		})
	}
}

func TestSingleCondition_LabelOrder(t *testing.T) {
	books := domaintest.NewBooks()
	books.SetAsk("y1", 0.30, 10)
	books.SetAsk("n1", 0.60, 10)
	s := NewSingleCondition(newPrices(books), DefaultConfig(), discardLogger())

	m := domain.Market{ID: "m1", Outcomes: []domain.Outcome{
		{Label: "No", YesTokenID: "n1", NoTokenID: "y1"},
		{Label: "TRUE", YesTokenID: "y1", NoTokenID: "n1"},
	}}
	res := s.Scan(context.Background(), Input{Markets: []domain.Market{m}})
	require.Equal(t, 1, res.Count())
	legs := res.Opportunities[0].Legs
	assert.Equal(t, "y1", legs[0].TokenID)
	assert.Equal(t, "TRUE", legs[0].OutcomeLabel)
	assert.Equal(t, "n1", legs[1].TokenID)
	assert.Equal(t, "No", legs[1].OutcomeLabel)
}

func TestSingleCondition_NamedOutcomesKeepTheirTokens(t *testing.T) {
	books := domaintest.NewBooks()
	books.SetAsk("t-trump", 0.40, 10)
	books.SetAsk("t-harris", 0.50, 10)
	s := NewSingleCondition(newPrices(books), DefaultConfig(), discardLogger())

	m := domain.Market{ID: "m1", Outcomes: []domain.Outcome{
		{Label: "Trump", YesTokenID: "t-trump", NoTokenID: "t-harris"},
		{Label: "Harris", YesTokenID: "t-harris", NoTokenID: "t-trump"},
	}}
	res := s.Scan(context.Background(), Input{Markets: []domain.Market{m}})
	require.Equal(t, 1, res.Count())
	for _, leg := range res.Opportunities[0].Legs {
		switch leg.TokenID {
		case "t-trump":
			assert.Equal(t, "Trump", leg.OutcomeLabel)
		case "t-harris":
			assert.Equal(t, "Harris", leg.OutcomeLabel)
		default:
			t.Fatalf("unexpected token %s", leg.TokenID)
		}
	}
}

func TestSingleCondition_SameTokenBothSides(t *testing.T) {
	books := domaintest.NewBooks()
	books.SetAsk("t", 0.30, 10)
	s := NewSingleCondition(newPrices(books), DefaultConfig(), discardLogger())

	res := s.Scan(context.Background(), Input{Markets: []domain.Market{makeBinary("m1", "q", "t", "t")}})
	assert.Equal(t, 0, res.Count())
}

func negRiskMarket(id, group, tok string) domain.Market {
	return domain.Market{
		ID: id, Question: "Will " + id + " win?", IsNegRisk: true, NegRiskID: group, EventID: "ev-" + group,
		Outcomes: []domain.Outcome{{Label: "Yes", YesTokenID: tok, NoTokenID: tok + "-no"}},
	}
}

func TestNegRisk_GroupPayoff(t *testing.T) {
	books := domaintest.NewBooks()
	books.SetAsk("a", 0.30, 100)
	books.SetAsk("b", 0.30, 100)
	books.SetAsk("c", 0.30, 100)
	books.SetAsk("solo", 0.10, 100)
	s := NewNegRisk(newPrices(books), DefaultConfig(), discardLogger())

	markets := []domain.Market{
		negRiskMarket("ma", "g1", "a"),
		negRiskMarket("mb", "g1", "b"),
		negRiskMarket("mc", "g1", "c"),
		negRiskMarket("ms", "g2", "solo"),
		makeBinary("plain", "q", "x", "y"),
	}
	res := s.Scan(context.Background(), Input{Markets: markets})

	require.Equal(t, 1, res.Count())
	opp := res.Opportunities[0]
	assert.Equal(t, domain.ClassNegRiskRebalancing, opp.Class)
	assert.Len(t, opp.Legs, 3)
	assert.InDelta(t, 0.90, opp.TotalCost, 1e-9)
	assert.Equal(t, 1.0, opp.WorstCasePayoff)
	assert.Equal(t, 1.0, opp.BestCasePayoff)
	assert.Equal(t, []string{"ma", "mb", "mc"}, opp.MarketIDs)
	assert.Equal(t, []string{"negrisk", "neg_risk_id:g1"}, opp.Tags)
	assert.Equal(t, "NegRisk Rebalancing: 3 outcomes", opp.Name)
}

func TestNegRisk_SkipsUnpricedMembers(t *testing.T) {
	books := domaintest.NewBooks()
	books.SetAsk("a", 0.40, 100)
	books.SetAsk("b", 0.40, 100)
	s := NewNegRisk(newPrices(books), DefaultConfig(), discardLogger())

	res := s.Scan(context.Background(), Input{Markets: []domain.Market{
		negRiskMarket("ma", "g1", "a"),
		negRiskMarket("mb", "g1", "b"),
		negRiskMarket("mc", "g1", "missing"),
	}})
	require.Equal(t, 1, res.Count())
	assert.Len(t, res.Opportunities[0].Legs, 2)
}

func TestNegRisk_OnePricedLegIsNotEnough(t *testing.T) {
	books := domaintest.NewBooks()
	books.SetAsk("a", 0.40, 100)
	s := NewNegRisk(newPrices(books), DefaultConfig(), discardLogger())

	res := s.Scan(context.Background(), Input{Markets: []domain.Market{
		negRiskMarket("ma", "g1", "a"),
		negRiskMarket("mb", "g1", "missing"),
	}})
	assert.Equal(t, 0, res.Count())
}

func eventMarket(id, event, question, tok string) domain.Market {
	return domain.Market{
		ID: id, Question: question, EventID: event,
		Outcomes: []domain.Outcome{{Label: "Yes", YesTokenID: tok, NoTokenID: tok + "-no"}, {Label: "No", YesTokenID: tok, NoTokenID: tok + "-no"}},
	}
}

func TestMultiMarket_RequiresOtherOption(t *testing.T) {
	books := domaintest.NewBooks()
	for _, tok := range []string{"a", "b", "c"} {
		books.SetAsk(tok, 0.30, 100)
	}
	s := NewMultiMarket(newPrices(books), DefaultConfig(), nil, discardLogger())

	res := s.Scan(context.Background(), Input{Markets: []domain.Market{
		eventMarket("ma", "e1", "Will Alice win?", "a"),
		eventMarket("mb", "e1", "Will Bob win?", "b"),
		eventMarket("mc", "e1", "Will Carol win?", "c"),
	}})
	assert.Equal(t, 0, res.Count())
}

func TestMultiMarket_ExhaustiveEvent(t *testing.T) {
	books := domaintest.NewBooks()
	prices := map[string]float64{"a": 0.30, "b": 0.25, "c": 0.20, "d": 0.15, "o": 0.05}
	for tok, p := range prices {
		books.SetAsk(tok, p, 100)
	}
	s := NewMultiMarket(newPrices(books), DefaultConfig(), nil, discardLogger())

	markets := []domain.Market{
		eventMarket("ma", "e1", "Will Alice win?", "a"),
		eventMarket("mb", "e1", "Will Bob win?", "b"),
		eventMarket("mc", "e1", "Will Carol win?", "c"),
		eventMarket("md", "e1", "Will Dan win?", "d"),
		eventMarket("mo", "e1", "Will anyone else win?", "o"),
	}
	res := s.Scan(context.Background(), Input{Markets: markets})

	require.Equal(t, 1, res.Count())
	opp := res.Opportunities[0]
	assert.Equal(t, domain.ClassSingleEventMultiMarket, opp.Class)
	assert.InDelta(t, 0.95, opp.TotalCost, 1e-9)
	assert.ElementsMatch(t, []string{"ma", "mb", "mc", "md", "mo"}, opp.MarketIDs)
	assert.Equal(t, []string{"e1"}, opp.EventIDs)
	assert.Equal(t, []string{"multi_market_event", "other_option"}, opp.Tags)
}

func TestMultiMarket_IsOtherMarket(t *testing.T) {
	s := NewMultiMarket(newPrices(domaintest.NewBooks()), DefaultConfig(), nil, discardLogger())

	assert.True(t, s.IsOtherMarket(domain.Market{Question: "Another candidate"}))
	assert.True(t, s.IsOtherMarket(domain.Market{Outcomes: []domain.Outcome{{Label: "Someone else"}}}))
	assert.False(t, s.IsOtherMarket(domain.Market{Question: "Will Alice win?"}))

	custom := NewMultiMarket(newPrices(domaintest.NewBooks()), DefaultConfig(), []string{"Field"}, discardLogger())
	assert.True(t, custom.IsOtherMarket(domain.Market{Question: "The field wins"}))
	assert.False(t, custom.IsOtherMarket(domain.Market{Question: "Any other"}))
}

func noPosition(market, tok string) domain.StrategyPosition {
	return domain.StrategyPosition{EventID: "e1", MarketID: market, OutcomeLabel: market, TokenID: tok, Side: domain.SideNo}
}

func TestStrategyScanner_AllNo(t *testing.T) {
	books := domaintest.NewBooks()
	for _, tok := range []string{"na", "nb", "nc"} {
		books.SetAsk(tok, 0.60, 100)
	}
	s := NewStrategyScanner(newPrices(books), DefaultConfig(), discardLogger())

	st := &domain.Strategy{
		ID: "s1", Name: "Three way NO", Method: domain.MethodAllNo, Type: domain.TypePureLogical,
		Positions: []domain.StrategyPosition{noPosition("ma", "na"), noPosition("mb", "nb"), noPosition("mc", "nc")},
		Tags:      []string{"election"}, Topic: "politics",
	}
	res := s.Scan(context.Background(), Input{Strategies: []*domain.Strategy{st}})

	require.Equal(t, 1, res.Count())
	opp := res.Opportunities[0]
	assert.Equal(t, domain.ClassTemplateBased, opp.Class)
	assert.Equal(t, "s1", opp.StrategyID)
	assert.InDelta(t, 1.8, opp.TotalCost, 1e-9)
	assert.Equal(t, 2.0, opp.WorstCasePayoff)
	assert.InDelta(t, 0.2/1.8*100, opp.ProfitPercentage, 1e-9)
	assert.Equal(t, domain.RiskLow, opp.RiskLevel)
	assert.True(t, opp.IsPureArbitrage)
	assert.Equal(t, []string{"election", "all_no"}, opp.Tags)
	assert.Equal(t, "all_no strategy with 3 positions", opp.Desc)
	assert.Equal(t, "politics", opp.Topic)
	assert.Equal(t, []string{"election"}, st.Tags, "strategy tags are not mutated")
}

func TestStrategyScanner_AllNo_MissingPriceAborts(t *testing.T) {
	books := domaintest.NewBooks()
	books.SetAsk("na", 0.50, 100)
	books.SetAsk("nb", 0.50, 100)
	s := NewStrategyScanner(newPrices(books), DefaultConfig(), discardLogger())

	st := &domain.Strategy{
		ID: "s1", Method: domain.MethodAllNo,
		Positions: []domain.StrategyPosition{noPosition("ma", "na"), noPosition("mb", "nb"), noPosition("mc", "nc")},
	}
	assert.Nil(t, s.Evaluate(context.Background(), st))
}

func TestStrategyScanner_Balanced(t *testing.T) {
	books := domaintest.NewBooks()
	books.SetAsk("a1", 0.30, 100)
	books.SetAsk("b1", 0.50, 100)
	s := NewStrategyScanner(newPrices(books), DefaultConfig(), discardLogger())

	st := &domain.Strategy{
		ID: "s2", Name: "Hedge", Subtitle: "A vs B", Method: domain.MethodBalanced, Type: domain.TypeHighProbHedge,
		SideA:   []domain.StrategyPosition{{MarketID: "ma", TokenID: "a1", Side: domain.SideYes}},
		SideB:   []domain.StrategyPosition{{MarketID: "mb", TokenID: "b1", Side: domain.SideYes}},
		Logical: &domain.LogicalSpec{WorstCasePayoff: 1.0, BestCasePayoff: 2.0},
	}
	opp := s.Evaluate(context.Background(), st)
	require.NotNil(t, opp)
	assert.InDelta(t, 0.80, opp.TotalCost, 1e-9)
	assert.Equal(t, 2.0, opp.BestCasePayoff)
	assert.Equal(t, domain.RiskMedium, opp.RiskLevel)
	assert.False(t, opp.IsPureArbitrage)
	assert.Equal(t, "A vs B", opp.Desc)
	assert.Equal(t, []string{"balanced"}, opp.Tags)

	st.Method = domain.MethodCustom
	custom := s.Evaluate(context.Background(), st)
	require.NotNil(t, custom)
	assert.InDelta(t, opp.TotalCost, custom.TotalCost, 1e-9)
}

func TestStrategyScanner_CostSanityCeiling(t *testing.T) {
	books := domaintest.NewBooks()
	var positions []domain.StrategyPosition
	for i := 0; i < 12; i++ {
		tok := fmt.Sprintf("n%d", i)
		books.SetAsk(tok, 0.90, 100)
		positions = append(positions, noPosition(fmt.Sprintf("m%d", i), tok))
	}
	s := NewStrategyScanner(newPrices(books), DefaultConfig(), discardLogger())

	st := &domain.Strategy{ID: "big", Method: domain.MethodAllNo, Type: domain.TypePureLogical, Positions: positions}
	assert.Nil(t, s.Evaluate(context.Background(), st), "cost 10.8 exceeds the per-share ceiling")
}

func TestLiquidityScore(t *testing.T) {
	legsWith := func(depths ...float64) []domain.Leg {
		out := make([]domain.Leg, len(depths))
		for i, d := range depths {
			out[i] = domain.Leg{TokenID: fmt.Sprint(i), Depth: d}
		}
		return out
	}
	tests := []struct {
		name string
		legs []domain.Leg
		want float64
	}{
		{"no legs", nil, 0},
		{"no depth", legsWith(0, 0), 0.5},
		{"deep", legsWith(2000, 1000), 1.0},
		{"500", legsWith(500, 900), 0.8},
		{"100", legsWith(100, 5000), 0.6},
		{"50", legsWith(50), 0.4},
		{"thin", legsWith(10, 0), 0.2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LiquidityScore(tt.legs))
		})
	}
}

func TestAdjustForSpread(t *testing.T) {
	legs := []domain.Leg{{Price: 0.5, SpreadBps: 200}, {Price: 0.4}}
	assert.InDelta(t, 0.91, AdjustForSpread(0.9, legs, 1.0), 1e-9)
	assert.InDelta(t, 0.905, AdjustForSpread(0.9, legs, 0.5), 1e-9)
}

func TestResult_TopAndFilter(t *testing.T) {
	r := Result{Opportunities: []*domain.EnhancedOpportunity{
		{ID: "a", Class: domain.ClassNegRiskRebalancing, ProfitPercentage: 1},
		{ID: "b", Class: domain.ClassSingleCondition, ProfitPercentage: 5},
		{ID: "c", Class: domain.ClassSingleCondition, ProfitPercentage: 3},
	}}
	top := r.Top(2)
	require.Len(t, top, 2)
	assert.Equal(t, "b", top[0].ID)
	assert.Equal(t, "c", top[1].ID)
	assert.Len(t, r.FilterByClass(domain.ClassSingleCondition), 2)
	assert.Equal(t, "a", r.Opportunities[0].ID, "Top does not reorder the result")
}

func TestRegistry_Select(t *testing.T) {
	r := NewDefaultRegistry(newPrices(domaintest.NewBooks()), DefaultConfig(), nil, discardLogger())
	assert.Equal(t, []string{NegRiskName, SingleConditionName, MultiMarketName, StrategyName}, r.List())

	got, err := r.Select([]string{NegRiskName})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, NegRiskName, got[0].Name())

	_, err = r.Select([]string{"nope"})
	assert.Error(t, err)
}

type countingPrices struct {
	*pricing.Accessor
	single, batches int
}

func (c *countingPrices) Price(ctx context.Context, tokenID string, pt domain.PriceType, side domain.OrderSide, userID string) (float64, bool) {
	c.single++
	return c.Accessor.Price(ctx, tokenID, pt, side, userID)
}

func (c *countingPrices) Prices(ctx context.Context, tokenIDs []string, pt domain.PriceType, side domain.OrderSide) map[string]float64 {
	c.batches++
	return c.Accessor.Prices(ctx, tokenIDs, pt, side)
}

func TestNegRisk_PricesGroupInOneBatch(t *testing.T) {
	books := domaintest.NewBooks()
	books.SetAsk("a", 0.30, 100)
	books.SetAsk("b", 0.30, 100)
	books.SetAsk("c", 0.30, 100)
	src := &countingPrices{Accessor: newPrices(books)}
	s := NewNegRisk(src, DefaultConfig(), discardLogger())

	res := s.Scan(context.Background(), Input{Markets: []domain.Market{
		negRiskMarket("ma", "g1", "a"),
		negRiskMarket("mb", "g1", "b"),
		negRiskMarket("mc", "g1", "c"),
	}})
	require.Equal(t, 1, res.Count())
	assert.Equal(t, 1, src.batches)
	assert.Zero(t, src.single)
}
