package domain

import "time"

// Fill is a persisted execution of one of our orders. The most recent fill
// for a (user, token) pair backs the ACTUAL price type.
type Fill struct {
	ID            string
	UserID        string
	TokenID       string
	MarketID      string
	OpportunityID string
	Side          OrderSide
	Price         float64
	Size          float64
	ExecutedAt    time.Time
}
