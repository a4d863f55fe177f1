package domain

import "time"

// PriceLevel is a single price+size entry in an orderbook.
type PriceLevel struct {
	Price float64
	Size  float64
}

// OrderbookSnapshot is a snapshot of bids and asks for a token. Bids are
// sorted best (highest) first, asks best (lowest) first.
type OrderbookSnapshot struct {
	AssetID   string
	Bids      []PriceLevel
	Asks      []PriceLevel
	BestBid   float64
	BestAsk   float64
	MidPrice  float64
	Timestamp time.Time
}

// TopBid returns the best bid level, if any.
func (s OrderbookSnapshot) TopBid() (PriceLevel, bool) {
	if len(s.Bids) == 0 {
		return PriceLevel{}, false
	}
	return s.Bids[0], true
}

// TopAsk returns the best ask level, if any.
func (s OrderbookSnapshot) TopAsk() (PriceLevel, bool) {
	if len(s.Asks) == 0 {
		return PriceLevel{}, false
	}
	return s.Asks[0], true
}

// LastTradePrice is the most recent trade execution for an asset.
type LastTradePrice struct {
	AssetID   string
	Price     float64
	Size      float64
	Timestamp time.Time
}

// SpreadInfo summarises the top of book for a token.
type SpreadInfo struct {
	BestBid     float64
	BestAsk     float64
	BestBidSize float64
	BestAskSize float64
	Spread      float64
	SpreadBps   float64
	MidPrice    float64
}

// SpreadFromSnapshot derives spread metrics from a book. It returns false when
// either side is empty or a top price is non-positive.
func SpreadFromSnapshot(s OrderbookSnapshot) (SpreadInfo, bool) {
	bid, okBid := s.TopBid()
	ask, okAsk := s.TopAsk()
	if !okBid || !okAsk || bid.Price <= 0 || ask.Price <= 0 {
		return SpreadInfo{}, false
	}
	mid := (bid.Price + ask.Price) / 2
	spread := ask.Price - bid.Price
	var bps float64
	if mid > 0 {
		bps = spread / mid * 10000
	}
	return SpreadInfo{
		BestBid:     bid.Price,
		BestAsk:     ask.Price,
		BestBidSize: bid.Size,
		BestAskSize: ask.Size,
		Spread:      spread,
		SpreadBps:   bps,
		MidPrice:    mid,
	}, true
}
