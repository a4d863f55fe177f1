package domain

import (
	"fmt"
	"strings"
)

// PriceType selects which price of a token is meant.
type PriceType string

const (
	PriceAsk    PriceType = "ASK"    // best ask
	PriceBid    PriceType = "BID"    // best bid
	PriceMid    PriceType = "MID"    // (bid+ask)/2
	PriceLive   PriceType = "LIVE"   // last trade
	PriceActual PriceType = "ACTUAL" // a user's most recent fill
)

// ParsePriceType parses a case-insensitive price type name.
func ParsePriceType(s string) (PriceType, error) {
	switch t := PriceType(strings.ToUpper(strings.TrimSpace(s))); t {
	case PriceAsk, PriceBid, PriceMid, PriceLive, PriceActual:
		return t, nil
	}
	return "", fmt.Errorf("domain: unknown price type %q", s)
}

// OrderSide is the direction a price is requested for.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)
