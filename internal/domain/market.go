package domain

import (
	"fmt"
	"strings"
)

// Outcome is one labelled outcome of a market with the tokens that pay out
// when it resolves true (YesTokenID) or false (NoTokenID). In a binary market
// each outcome's NoTokenID is the other outcome's YesTokenID.
type Outcome struct {
	Label      string
	YesTokenID string
	NoTokenID  string
}

// Market is the typed market descriptor consumed by the scanners.
type Market struct {
	ID        string
	Question  string
	Slug      string
	Outcomes  []Outcome
	IsNegRisk bool
	NegRiskID string
	EventID   string
	Topic     string
	Rules     string
	Active    bool
}

// IsBinary reports whether the market has exactly two outcomes.
func (m Market) IsBinary() bool { return len(m.Outcomes) == 2 }

// IsYesLabel reports whether an outcome label denotes the affirmative side.
func IsYesLabel(label string) bool {
	l := strings.ToLower(strings.TrimSpace(label))
	return l == "yes" || l == "true"
}

// YesOutcome returns the outcome labelled yes/true, falling back to the first.
func (m Market) YesOutcome() (Outcome, bool) {
	if len(m.Outcomes) == 0 {
		return Outcome{}, false
	}
	for _, o := range m.Outcomes {
		if IsYesLabel(o.Label) {
			return o, true
		}
	}
	return m.Outcomes[0], true
}

// Validate checks the descriptor once at the parsing boundary so scanners can
// operate on typed values.
func (m Market) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("domain: market %q: missing id: %w", m.Question, ErrInvalidMarket)
	}
	if len(m.Outcomes) == 0 {
		return fmt.Errorf("domain: market %s: no outcomes: %w", m.ID, ErrInvalidMarket)
	}
	for i, o := range m.Outcomes {
		if o.YesTokenID == "" {
			return fmt.Errorf("domain: market %s: outcome %d (%q) missing yes token: %w", m.ID, i, o.Label, ErrInvalidMarket)
		}
	}
	if m.IsNegRisk && m.NegRiskID == "" {
		return fmt.Errorf("domain: market %s: neg-risk market without neg_risk_id: %w", m.ID, ErrInvalidMarket)
	}
	return nil
}
