package domain

import (
	"context"
	"time"
)

// BookWriter receives live book state from a feed.
type BookWriter interface {
	SetSnapshot(ctx context.Context, snap OrderbookSnapshot) error
	SetLastTrade(ctx context.Context, tokenID string, price float64, ts time.Time) error
}

// Dependency is an advisory relation between two markets.
type Dependency struct {
	MarketA    string
	MarketB    string
	Relation   string // "implies", "excludes" or "independent"
	Confidence float64
	Reason     string
}

// DependencyDetector decides whether two markets are logically related.
type DependencyDetector interface {
	Detect(ctx context.Context, a, b Market) (*Dependency, error)
}

// RuleRiskCategory orders resolution-rule risk.
type RuleRiskCategory string

const (
	RuleRiskLow      RuleRiskCategory = "low"
	RuleRiskMedium   RuleRiskCategory = "medium"
	RuleRiskHigh     RuleRiskCategory = "high"
	RuleRiskCritical RuleRiskCategory = "critical"
)

// Rank orders categories low..critical.
func (c RuleRiskCategory) Rank() int {
	switch c {
	case RuleRiskLow:
		return 0
	case RuleRiskMedium:
		return 1
	case RuleRiskHigh:
		return 2
	case RuleRiskCritical:
		return 3
	}
	return -1
}

// RuleRiskAssessment is the verdict on a market's resolution rules.
type RuleRiskAssessment struct {
	MarketID string
	Category RuleRiskCategory
	Score    float64
	Flags    []string
	Notes    []string
}

// RuleRiskAnalyzer scores how ambiguous a market's resolution is.
type RuleRiskAnalyzer interface {
	Analyze(ctx context.Context, m Market) (RuleRiskAssessment, error)
}
