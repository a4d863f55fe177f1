package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// Relation values of domain.Dependency.
const (
	RelationImplies     = "implies"
	RelationExcludes    = "excludes"
	RelationIndependent = "independent"
)

// compatible reports whether a pair is worth analysing: distinct markets that
// share an event or, failing that, a topic.
func compatible(a, b domain.Market) bool {
	if a.ID == "" || a.ID == b.ID {
		return false
	}
	if a.EventID != "" && a.EventID == b.EventID {
		return true
	}
	return a.Topic != "" && strings.EqualFold(a.Topic, b.Topic)
}

// HeuristicDependencyDetector only recognises members of one neg-risk group,
// which are mutually exclusive by construction.
type HeuristicDependencyDetector struct{}

// Detect implements domain.DependencyDetector. It returns nil when no relation
// is found.
func (HeuristicDependencyDetector) Detect(_ context.Context, a, b domain.Market) (*domain.Dependency, error) {
	return heuristicDependency(a, b), nil
}

func heuristicDependency(a, b domain.Market) *domain.Dependency {
	if !compatible(a, b) {
		return nil
	}
	if a.IsNegRisk && b.IsNegRisk && a.NegRiskID != "" && a.NegRiskID == b.NegRiskID {
		return &domain.Dependency{
			MarketA:    a.ID,
			MarketB:    b.ID,
			Relation:   RelationExcludes,
			Confidence: 1,
			Reason:     "same neg-risk group " + a.NegRiskID,
		}
	}
	return nil
}

const dependencySystemPrompt = `You find logical relations between two prediction markets.
Reply with a JSON object: {"relation": "implies|excludes|independent", "confidence": 0.0-1.0, "reason": "..."}.
"implies" means YES on market A forces YES on market B. "excludes" means both cannot resolve YES.`

type dependencyReply struct {
	Relation   string  `json:"relation"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// LLMDependencyDetector asks a chat model to classify compatible pairs and
// falls back to the heuristic on failure.
type LLMDependencyDetector struct {
	llm    Completer
	logger *slog.Logger
}

// NewLLMDependencyDetector creates an LLMDependencyDetector.
func NewLLMDependencyDetector(llm Completer, logger *slog.Logger) *LLMDependencyDetector {
	return &LLMDependencyDetector{llm: llm, logger: logger.With(slog.String("component", "dependency_detector"))}
}

// Detect implements domain.DependencyDetector.
func (d *LLMDependencyDetector) Detect(ctx context.Context, a, b domain.Market) (*domain.Dependency, error) {
	if !compatible(a, b) {
		return nil, nil
	}
	if dep := heuristicDependency(a, b); dep != nil {
		return dep, nil
	}

	prompt := fmt.Sprintf("Market A (%s): %s\nOutcomes: %s\n\nMarket B (%s): %s\nOutcomes: %s",
		a.ID, a.Question, outcomeLabels(a), b.ID, b.Question, outcomeLabels(b))
	reply, err := d.llm.CompleteJSON(ctx, dependencySystemPrompt, prompt)
	if err != nil {
		d.logger.WarnContext(ctx, "llm dependency detection failed",
			slog.String("market_a", a.ID), slog.String("market_b", b.ID), slog.String("error", err.Error()))
		return nil, nil
	}
	var r dependencyReply
	if err := decodeJSON(reply, &r); err != nil {
		d.logger.WarnContext(ctx, "llm dependency reply unparseable",
			slog.String("market_a", a.ID), slog.String("market_b", b.ID), slog.String("error", err.Error()))
		return nil, nil
	}
	switch rel := strings.ToLower(strings.TrimSpace(r.Relation)); rel {
	case RelationImplies, RelationExcludes:
		return &domain.Dependency{
			MarketA:    a.ID,
			MarketB:    b.ID,
			Relation:   rel,
			Confidence: max(0, min(r.Confidence, 1)),
			Reason:     r.Reason,
		}, nil
	}
	return nil, nil
}

var (
	_ domain.DependencyDetector = HeuristicDependencyDetector{}
	_ domain.DependencyDetector = (*LLMDependencyDetector)(nil)
)

// DetectAll checks every compatible pair of markets, stopping after
// maxPairs detector calls (0 means no limit).
func DetectAll(ctx context.Context, det domain.DependencyDetector, markets []domain.Market, maxPairs int) ([]domain.Dependency, error) {
	var out []domain.Dependency
	calls := 0
	for i := range markets {
		for j := i + 1; j < len(markets); j++ {
			if !compatible(markets[i], markets[j]) {
				continue
			}
			if maxPairs > 0 && calls >= maxPairs {
				return out, nil
			}
			if err := ctx.Err(); err != nil {
				return out, err
			}
			calls++
			dep, err := det.Detect(ctx, markets[i], markets[j])
			if err != nil {
				return out, fmt.Errorf("analysis: detect %s/%s: %w", markets[i].ID, markets[j].ID, err)
			}
			if dep != nil {
				out = append(out, *dep)
			}
		}
	}
	return out, nil
}

func outcomeLabels(m domain.Market) string {
	labels := make([]string, len(m.Outcomes))
	for i, o := range m.Outcomes {
		labels[i] = o.Label
	}
	return strings.Join(labels, ", ")
}
