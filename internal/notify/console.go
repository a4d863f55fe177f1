package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/risk"
	"github.com/alanyoungcy/polyarb/internal/service"
)

// Console writes alerts and scan reports to a terminal.
type Console struct {
	out io.Writer
	now func() time.Time
}

// NewConsole writes to stdout.
func NewConsole() *Console {
	return NewConsoleWriter(os.Stdout)
}

// NewConsoleWriter writes to w.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w, now: time.Now}
}

// Send implements Sender.
func (c *Console) Send(_ context.Context, title, message string) error {
	_, err := fmt.Fprintf(c.out, "[%s] %s\n%s\n", c.now().Format("15:04:05"), title, message)
	return err
}

// Name implements Sender.
func (c *Console) Name() string { return "console" }

// PrintOpportunities renders opps as a table, one row per opportunity.
func (c *Console) PrintOpportunities(opps []*domain.EnhancedOpportunity) {
	if len(opps) == 0 {
		fmt.Fprintf(c.out, "[%s] no opportunities found\n", c.now().Format("15:04:05"))
		return
	}
	fmt.Fprintf(c.out, "\n[%s] %d opportunities\n", c.now().Format("15:04:05"), len(opps))

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Class", "Name", "Legs", "Cost", "Payoff", "Profit%", "Adj%", "MaxSize", "Liq", "Risk")
	for i, o := range opps {
		_ = table.Append(
			strconv.Itoa(i+1),
			string(o.Class),
			truncate(o.Name, 40),
			strconv.Itoa(len(o.Legs)),
			fmt.Sprintf("%.4f", o.TotalCost),
			fmt.Sprintf("%.2f", o.WorstCasePayoff),
			fmt.Sprintf("%.2f", o.ProfitPercentage),
			optFloat(o.AdjustedProfitPercentage, "%.2f"),
			optFloat(o.MaxSize, "%.0f"),
			optFloat(o.LiquidityScore, "%.2f"),
			string(o.RiskLevel),
		)
	}
	_ = table.Render()

	for _, o := range opps {
		for _, note := range o.RuleRiskNotes {
			fmt.Fprintf(c.out, "  ! %s: %s\n", shortID(o.ID), note)
		}
	}
}

// PrintDependencies lists detected market relations.
func (c *Console) PrintDependencies(deps []domain.Dependency) {
	if len(deps) == 0 {
		return
	}
	fmt.Fprintf(c.out, "\n=== MARKET RELATIONS (%d) ===\n", len(deps))
	table := tablewriter.NewWriter(c.out)
	table.Header("Market A", "Relation", "Market B", "Conf", "Reason")
	for _, d := range deps {
		_ = table.Append(d.MarketA, d.Relation, d.MarketB, fmt.Sprintf("%.2f", d.Confidence), truncate(d.Reason, 50))
	}
	_ = table.Render()
}

// PrintMetrics renders tracker metrics with a per-class breakdown.
func (c *Console) PrintMetrics(m service.Metrics) {
	fmt.Fprintf(c.out, "\n=== PERFORMANCE ===\n")
	fmt.Fprintf(c.out, "  Opportunities:   %d (best %.2f%%, avg profit $%.4f)\n",
		m.Opportunities, m.BestProfitPercentage, m.AvgExpectedProfit)
	fmt.Fprintf(c.out, "  Executions:      %d (completed %d, partial %d, failed %d, aborted %d)\n",
		m.Executions, m.Completed, m.Partial, m.Failed, m.Aborted)
	if m.Executions > 0 {
		fmt.Fprintf(c.out, "  Avg slippage:    %.1fbps\n", m.AvgSlippageBps)
	}
	if len(m.ByClass) == 0 {
		return
	}

	classes := make([]domain.OpportunityClass, 0, len(m.ByClass))
	for cl := range m.ByClass {
		classes = append(classes, cl)
	}
	slices.Sort(classes)

	table := tablewriter.NewWriter(c.out)
	table.Header("Class", "Count", "Total profit")
	for _, cl := range classes {
		s := m.ByClass[cl]
		_ = table.Append(string(cl), strconv.Itoa(s.Count), fmt.Sprintf("$%.4f", s.TotalProfit))
	}
	_ = table.Render()
}

// PrintExposure renders the risk manager's exposure summary.
func (c *Console) PrintExposure(e risk.Exposure) {
	fmt.Fprintf(c.out, "\n=== EXPOSURE ===\n")
	fmt.Fprintf(c.out, "  Notional:  $%.2f (%.0f%% of limit)\n", e.TotalNotional, e.Utilization.TotalNotional*100)
	fmt.Fprintf(c.out, "  Positions: %d (%.0f%% of limit)\n", e.TotalPositions, e.Utilization.Positions*100)
	fmt.Fprintf(c.out, "  Rule risk: $%.2f (%.0f%% of limit)\n", e.RuleRiskExposure, e.Utilization.RuleRisk*100)
}

func optFloat(v *float64, format string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf(format, *v)
}

var _ Sender = (*Console)(nil)
