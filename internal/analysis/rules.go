// Package analysis scores market resolution rules and detects logical
// relations between markets. Every analyzer has a keyword heuristic and an
// LLM-backed variant that falls back to the heuristic.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

var (
	highRiskKeywords   = []string{"replacement", "substitution", "void", "cancel", "discretion", "interpretation", "dispute", "unclear"}
	mediumRiskKeywords = []string{"before", "after", "timing", "announcement", "official", "certification"}
)

const (
	baseRuleRisk   = 0.2
	highKeywordAdd = 0.15
	medKeywordAdd  = 0.05
)

// HeuristicRuleAnalyzer scores rules by counting risky keywords.
type HeuristicRuleAnalyzer struct{}

// Analyze implements domain.RuleRiskAnalyzer.
func (HeuristicRuleAnalyzer) Analyze(_ context.Context, m domain.Market) (domain.RuleRiskAssessment, error) {
	return keywordAssessment(m), nil
}

func keywordAssessment(m domain.Market) domain.RuleRiskAssessment {
	a := domain.RuleRiskAssessment{MarketID: m.ID}
	if strings.TrimSpace(m.Rules) == "" && strings.TrimSpace(m.Question) == "" {
		a.Category = domain.RuleRiskMedium
		a.Score = 0.5
		a.Notes = []string{"No rules provided"}
		return a
	}

	text := strings.ToLower(m.Rules + " " + m.Question)
	score := baseRuleRisk
	for _, k := range highRiskKeywords {
		if strings.Contains(text, k) {
			a.Flags = append(a.Flags, "High-risk keyword: "+k)
			score += highKeywordAdd
		}
	}
	for _, k := range mediumRiskKeywords {
		if strings.Contains(text, k) {
			a.Flags = append(a.Flags, "Medium-risk keyword: "+k)
			score += medKeywordAdd
		}
	}

	switch {
	case score >= 0.7:
		a.Category = domain.RuleRiskHigh
	case score >= 0.4:
		a.Category = domain.RuleRiskMedium
	default:
		a.Category = domain.RuleRiskLow
	}
	if len(a.Flags) == 0 {
		a.Notes = append(a.Notes, "No obvious risk patterns detected")
	}
	a.Score = min(score, 1.0)
	return a
}

const ruleRiskSystemPrompt = `You assess prediction-market resolution rules for arbitrage traders.
Reply with a JSON object: {"category": "low|medium|high|critical", "score": 0.0-1.0, "flags": ["..."], "notes": ["..."]}.
Look for replacement or substitution clauses, void or cancellation conditions, timing ambiguity, discretionary resolution, path dependence, and unclear or contradictory wording.`

type ruleRiskReply struct {
	Category string   `json:"category"`
	Score    float64  `json:"score"`
	Flags    []string `json:"flags"`
	Notes    []string `json:"notes"`
}

// LLMRuleAnalyzer asks a chat model to grade rules. Any model or decoding
// failure falls back to the keyword heuristic.
type LLMRuleAnalyzer struct {
	llm    Completer
	logger *slog.Logger
}

// NewLLMRuleAnalyzer creates an LLMRuleAnalyzer.
func NewLLMRuleAnalyzer(llm Completer, logger *slog.Logger) *LLMRuleAnalyzer {
	return &LLMRuleAnalyzer{llm: llm, logger: logger.With(slog.String("component", "rule_analyzer"))}
}

// Analyze implements domain.RuleRiskAnalyzer.
func (a *LLMRuleAnalyzer) Analyze(ctx context.Context, m domain.Market) (domain.RuleRiskAssessment, error) {
	if strings.TrimSpace(m.Rules) == "" && strings.TrimSpace(m.Question) == "" {
		return keywordAssessment(m), nil
	}

	prompt := fmt.Sprintf("Question: %s\n\nRules: %s", m.Question, m.Rules)
	reply, err := a.llm.CompleteJSON(ctx, ruleRiskSystemPrompt, prompt)
	if err != nil {
		a.logger.WarnContext(ctx, "llm rule analysis failed, using keywords",
			slog.String("market_id", m.ID), slog.String("error", err.Error()))
		return keywordAssessment(m), nil
	}

	var r ruleRiskReply
	if err := decodeJSON(reply, &r); err != nil {
		a.logger.WarnContext(ctx, "llm rule analysis unparseable, using keywords",
			slog.String("market_id", m.ID), slog.String("error", err.Error()))
		return keywordAssessment(m), nil
	}
	cat := domain.RuleRiskCategory(strings.ToLower(strings.TrimSpace(r.Category)))
	if cat.Rank() < 0 {
		a.logger.WarnContext(ctx, "llm rule analysis returned unknown category",
			slog.String("market_id", m.ID), slog.String("category", r.Category))
		return keywordAssessment(m), nil
	}
	return domain.RuleRiskAssessment{
		MarketID: m.ID,
		Category: cat,
		Score:    max(0, min(r.Score, 1)),
		Flags:    r.Flags,
		Notes:    r.Notes,
	}, nil
}

var (
	_ domain.RuleRiskAnalyzer = HeuristicRuleAnalyzer{}
	_ domain.RuleRiskAnalyzer = (*LLMRuleAnalyzer)(nil)
)

// AnalyzeBatch assesses every market with an id. Markets whose analysis
// errors are left out.
func AnalyzeBatch(ctx context.Context, an domain.RuleRiskAnalyzer, markets []domain.Market) map[string]domain.RuleRiskAssessment {
	out := make(map[string]domain.RuleRiskAssessment, len(markets))
	for _, m := range markets {
		if m.ID == "" {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		a, err := an.Analyze(ctx, m)
		if err != nil {
			continue
		}
		out[m.ID] = a
	}
	return out
}

// FilterByRisk keeps the markets whose category does not exceed maxCategory.
func FilterByRisk(ctx context.Context, an domain.RuleRiskAnalyzer, markets []domain.Market, maxCategory domain.RuleRiskCategory) []domain.Market {
	limit := maxCategory.Rank()
	var out []domain.Market
	for _, m := range markets {
		a, err := an.Analyze(ctx, m)
		if err != nil {
			continue
		}
		if a.Category.Rank() <= limit {
			out = append(out, m)
		}
	}
	return out
}

// Annotate raises opp to high risk when any of its markets has high or
// critical rule risk, and records why. It reports whether opp changed.
func Annotate(opp *domain.EnhancedOpportunity, assessments map[string]domain.RuleRiskAssessment) bool {
	changed := false
	for _, id := range opp.MarketIDs {
		a, ok := assessments[id]
		if !ok || a.Category.Rank() < domain.RuleRiskHigh.Rank() {
			continue
		}
		opp.RiskLevel = domain.RiskHigh
		note := fmt.Sprintf("market %s: %s rule risk (%.2f)", id, a.Category, a.Score)
		if len(a.Flags) > 0 {
			note += ": " + strings.Join(a.Flags, "; ")
		}
		opp.RuleRiskNotes = append(opp.RuleRiskNotes, note)
		changed = true
	}
	return changed
}
