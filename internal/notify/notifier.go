// Package notify delivers opportunity and execution alerts to operator
// channels (console, Discord, Telegram), filtered by event type.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// Event types accepted by Notify.
const (
	EventOpportunity = "opportunity"
	EventExecution   = "execution"
	EventError       = "error"
)

// maxListed caps how many opportunities one message lists.
const maxListed = 5

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier fans notifications out to every sender. Only event types in the
// allowed set are forwarded; an empty set allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether event would be delivered anywhere.
func (n *Notifier) Enabled(event string) bool {
	if len(n.senders) == 0 {
		return false
	}
	return len(n.events) == 0 || n.events[event]
}

// Notify delivers to all senders. One sender failing does not stop the
// others; the failures are joined into the returned error.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Enabled(event) {
		return nil
	}
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.WarnContext(ctx, "notification failed",
				slog.String("sender", s.Name()),
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

// OpportunitiesFound summarises a scan pass. opps is expected in
// descending profit order.
func (n *Notifier) OpportunitiesFound(ctx context.Context, opps []*domain.EnhancedOpportunity) error {
	if len(opps) == 0 || !n.Enabled(EventOpportunity) {
		return nil
	}
	title := fmt.Sprintf("%d arbitrage opportunit%s", len(opps), plural(len(opps), "y", "ies"))
	var sb strings.Builder
	for i, o := range opps {
		if i == maxListed {
			fmt.Fprintf(&sb, "... and %d more\n", len(opps)-maxListed)
			break
		}
		sb.WriteString(FormatOpportunity(o))
		sb.WriteByte('\n')
	}
	return n.Notify(ctx, EventOpportunity, title, strings.TrimRight(sb.String(), "\n"))
}

// ExecutionFinished reports the outcome of one basket.
func (n *Notifier) ExecutionFinished(ctx context.Context, res domain.ExecutionResult) error {
	title := fmt.Sprintf("Basket %s %s", shortID(res.OpportunityID), strings.ToUpper(string(res.Status)))
	msg := fmt.Sprintf("legs %d/%d filled, cost $%.2f, slippage %.1fbps",
		res.FilledCount(), len(res.Legs), res.ActualCost, res.RealizedSlippageBps)
	if len(res.Notes) > 0 {
		msg += "\n" + strings.Join(res.Notes, "\n")
	}
	return n.Notify(ctx, EventExecution, title, msg)
}

// FormatOpportunity renders a one-line summary.
func FormatOpportunity(o *domain.EnhancedOpportunity) string {
	name := o.Name
	if name == "" {
		name = shortID(o.ID)
	}
	line := fmt.Sprintf("[%s] %s: %d legs, cost %.4f, profit %.2f%%, risk %s",
		o.Class, truncate(name, 60), len(o.Legs), o.TotalCost, o.ProfitPercentage, o.RiskLevel)
	if o.AdjustedProfitPercentage != nil {
		line += fmt.Sprintf(" (adj %.2f%%)", *o.AdjustedProfitPercentage)
	}
	return line
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
