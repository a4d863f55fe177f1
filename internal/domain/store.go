package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// BookSource is the price-data collaborator.
type BookSource interface {
	GetOrderbook(ctx context.Context, tokenID string, depth int) (OrderbookSnapshot, error)
	GetLastTradePrice(ctx context.Context, tokenID string) (float64, error)
	GetSpread(ctx context.Context, tokenID string) (SpreadInfo, error)
}

// MarketSource lists typed market descriptors.
type MarketSource interface {
	ListMarkets(ctx context.Context, limit int) ([]Market, error)
}

// FillStore persists our own fills. LatestFill backs ACTUAL prices.
type FillStore interface {
	InsertFill(ctx context.Context, f Fill) error
	LatestFill(ctx context.Context, userID, tokenID string) (Fill, error)
}

// OpportunityStore persists discovered opportunities.
type OpportunityStore interface {
	InsertOpportunity(ctx context.Context, opp *EnhancedOpportunity) error
	ListRecentOpportunities(ctx context.Context, opts ListOpts) ([]OpportunityRecord, error)
}

// ExecutionStore persists basket execution results.
type ExecutionStore interface {
	InsertExecution(ctx context.Context, res ExecutionResult) error
	GetExecution(ctx context.Context, id string) (ExecutionResult, error)
}

// OpportunityCache keeps short-lived opportunity snapshots for other readers.
type OpportunityCache interface {
	Put(ctx context.Context, opp *EnhancedOpportunity) error
	Get(ctx context.Context, signature string) (OpportunityRecord, error)
}

// OpportunityPublisher fans results out on a message bus.
type OpportunityPublisher interface {
	PublishOpportunity(ctx context.Context, opp *EnhancedOpportunity) error
	PublishExecution(ctx context.Context, res ExecutionResult) error
}
