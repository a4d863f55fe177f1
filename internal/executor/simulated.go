package executor

import (
	"context"

	"github.com/google/uuid"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// Simulated slippage applied to the quoted price.
const (
	aggressiveSlippage = 0.001
	passiveSlippage    = 0.0005
)

// SimulatedFiller fills every leg in full at the quoted price plus a fixed
// slippage. It places no orders.
type SimulatedFiller struct{}

// Fill implements LegFiller.
func (SimulatedFiller) Fill(ctx context.Context, leg domain.Leg, size float64, aggressive bool) (LegFill, error) {
	if err := ctx.Err(); err != nil {
		return LegFill{}, err
	}
	slip := passiveSlippage
	if aggressive {
		slip = aggressiveSlippage
	}
	return LegFill{
		FilledSize: size,
		AvgPrice:   leg.Price * (1 + slip),
		OrderIDs:   []string{"sim-" + uuid.NewString()},
	}, nil
}

var _ LegFiller = SimulatedFiller{}
