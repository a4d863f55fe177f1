// Package executor fills multi-leg arbitrage baskets leg by leg and reports
// how far each basket got.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// Config holds the basket execution settings.
type Config struct {
	// Aggressive crosses the spread, paying more slippage for certainty.
	Aggressive     bool
	MaxSlippageBps float64
	MinFillRate    float64
	// LegTimeout bounds every LegFiller call.
	LegTimeout time.Duration
}

// DefaultConfig returns the stock execution settings.
func DefaultConfig() Config {
	return Config{
		MaxSlippageBps: 50,
		MinFillRate:    0.8,
		LegTimeout:     60 * time.Second,
	}
}

// LegFill is what a LegFiller achieved for one leg.
type LegFill struct {
	FilledSize float64
	AvgPrice   float64
	OrderIDs   []string
}

// LegFiller places (or simulates) the orders for one leg. Implementations must
// honour ctx cancellation.
type LegFiller interface {
	Fill(ctx context.Context, leg domain.Leg, size float64, aggressive bool) (LegFill, error)
}

// BasketExecutor executes opportunities sequentially, one leg at a time.
// There is no cross-leg atomicity: legs that filled before an abort stay
// filled.
type BasketExecutor struct {
	filler LegFiller
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// NewBasketExecutor creates a BasketExecutor. Zero config fields take their
// defaults.
func NewBasketExecutor(filler LegFiller, cfg Config, logger *slog.Logger) *BasketExecutor {
	d := DefaultConfig()
	if cfg.MinFillRate <= 0 {
		cfg.MinFillRate = d.MinFillRate
	}
	if cfg.LegTimeout <= 0 {
		cfg.LegTimeout = d.LegTimeout
	}
	if cfg.MaxSlippageBps <= 0 {
		cfg.MaxSlippageBps = d.MaxSlippageBps
	}
	return &BasketExecutor{
		filler: filler,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "executor")),
		now:    time.Now,
	}
}

// Config returns the effective configuration.
func (e *BasketExecutor) Config() Config { return e.cfg }

// Execute fills every leg of opp at targetSize. It always returns a result;
// leg errors are recorded on the legs, never returned.
func (e *BasketExecutor) Execute(ctx context.Context, opp *domain.EnhancedOpportunity, targetSize float64) domain.ExecutionResult {
	log := e.logger.With(
		slog.String("opportunity_id", opp.ID),
		slog.String("class", string(opp.Class)),
		slog.Float64("size", targetSize),
	)

	res := domain.ExecutionResult{
		ID:            uuid.NewString(),
		OpportunityID: opp.ID,
		Status:        domain.ExecPending,
		TargetSize:    targetSize,
		TotalCost:     decimal.NewFromFloat(opp.TotalCost).Mul(decimal.NewFromFloat(targetSize)).InexactFloat64(),
		StartedAt:     e.now().UTC(),
	}

	aborted := false
	for _, leg := range opp.Legs {
		le := e.executeLeg(ctx, leg, targetSize)
		res.Legs = append(res.Legs, le)

		if le.Status != domain.ExecFailed {
			continue
		}
		log.WarnContext(ctx, "leg failed",
			slog.String("token_id", leg.TokenID),
			slog.String("outcome", leg.OutcomeLabel),
			slog.String("error", le.Error),
		)
		if !e.shouldContinue(&res) {
			aborted = true
			res.Notes = append(res.Notes, fmt.Sprintf("Aborted after leg %s failed", leg.OutcomeLabel))
			break
		}
	}

	res.CompletedAt = e.now().UTC()
	res.ActualCost, res.RealizedSlippageBps = aggregate(res.Legs, res.TotalCost)

	switch rate := res.FillRate(); {
	case aborted:
		res.Status = domain.ExecAborted
	case rate >= e.cfg.MinFillRate:
		res.Status = domain.ExecCompleted
	case rate > 0:
		res.Status = domain.ExecPartial
	default:
		res.Status = domain.ExecFailed
	}

	log.InfoContext(ctx, "basket executed",
		slog.String("execution_id", res.ID),
		slog.String("status", string(res.Status)),
		slog.Int("legs_attempted", len(res.Legs)),
		slog.Int("legs_total", len(opp.Legs)),
		slog.Float64("fill_rate", res.FillRate()),
		slog.Float64("actual_cost", res.ActualCost),
		slog.Float64("slippage_bps", res.RealizedSlippageBps),
	)
	return res
}

func (e *BasketExecutor) executeLeg(ctx context.Context, leg domain.Leg, size float64) domain.LegExecution {
	le := domain.LegExecution{
		Leg:        leg,
		TargetSize: size,
		Status:     domain.ExecPending,
		StartedAt:  e.now().UTC(),
	}

	// A fill reported without error stands even if the deadline passed while
	// the filler was returning it.
	legCtx, cancel := context.WithTimeout(ctx, e.cfg.LegTimeout)
	fill, err := e.filler.Fill(legCtx, leg, size, e.cfg.Aggressive)
	cancel()
	le.CompletedAt = e.now().UTC()

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s: %w", domain.ErrLegTimeout, e.cfg.LegTimeout, err)
		}
		le.Status = domain.ExecFailed
		le.Error = err.Error()
		return le
	}

	le.FilledSize = fill.FilledSize
	le.AvgFillPrice = fill.AvgPrice
	le.OrderIDs = fill.OrderIDs
	if leg.Price > 0 && fill.AvgPrice > 0 {
		le.SlippageBps = (fill.AvgPrice - leg.Price) / leg.Price * 10000
	}

	switch {
	case fill.FilledSize <= 0:
		le.Status = domain.ExecFailed
		le.Error = "no fill"
	case fill.FilledSize < size:
		le.Status = domain.ExecPartial
	default:
		le.Status = domain.ExecCompleted
	}

	if le.SlippageBps > e.cfg.MaxSlippageBps {
		e.logger.WarnContext(ctx, "leg slippage above tolerance",
			slog.String("token_id", leg.TokenID),
			slog.Float64("slippage_bps", le.SlippageBps),
			slog.Float64("max_slippage_bps", e.cfg.MaxSlippageBps),
		)
	}
	return le
}

// shouldContinue projects the fill rate with one more unfillable leg and
// stops the basket when it would fall below the minimum.
func (e *BasketExecutor) shouldContinue(res *domain.ExecutionResult) bool {
	attempted := len(res.Legs)
	if attempted == 0 {
		return true
	}
	projected := float64(res.FilledCount()) / float64(attempted+1)
	return projected >= e.cfg.MinFillRate
}

// aggregate returns the actual cost of the filled legs and the realized
// slippage against totalCost in basis points.
func aggregate(legs []domain.LegExecution, totalCost float64) (actual, slippageBps float64) {
	sum := decimal.Zero
	for _, le := range legs {
		if le.AvgFillPrice <= 0 {
			continue
		}
		sum = sum.Add(decimal.NewFromFloat(le.AvgFillPrice).Mul(decimal.NewFromFloat(le.FilledSize)))
	}
	actual = sum.InexactFloat64()

	total := decimal.NewFromFloat(totalCost)
	if total.IsPositive() {
		slippageBps = sum.Sub(total).Div(total).Mul(decimal.NewFromInt(10000)).InexactFloat64()
	}
	return actual, slippageBps
}

// RecomputeEdge re-prices a partly executed basket per share: legs with a
// fill at their average fill price, the rest at their quoted price. It returns the
// remaining profit percentage against the worst-case payoff.
func RecomputeEdge(opp *domain.EnhancedOpportunity, executed []domain.LegExecution) float64 {
	done := make(map[string]struct{}, len(executed))
	cost := decimal.Zero
	for _, le := range executed {
		if le.AvgFillPrice <= 0 {
			continue
		}
		done[le.Leg.TokenID] = struct{}{}
		cost = cost.Add(decimal.NewFromFloat(le.AvgFillPrice))
	}
	for _, leg := range opp.Legs {
		if _, ok := done[leg.TokenID]; ok {
			continue
		}
		cost = cost.Add(decimal.NewFromFloat(leg.Price))
	}
	if !cost.IsPositive() {
		return 0
	}
	profit := decimal.NewFromFloat(opp.WorstCasePayoff).Sub(cost)
	return profit.Div(cost).Mul(decimal.NewFromInt(100)).InexactFloat64()
}
