package domain

import "time"

// ExecutionStatus is the state of a leg or of a whole basket.
type ExecutionStatus string

const (
	ExecPending   ExecutionStatus = "pending"
	ExecPartial   ExecutionStatus = "partial"
	ExecCompleted ExecutionStatus = "completed"
	ExecFailed    ExecutionStatus = "failed"
	ExecAborted   ExecutionStatus = "aborted"
)

// LegExecution records the attempt to fill one leg.
type LegExecution struct {
	Leg          Leg
	TargetSize   float64
	Status       ExecutionStatus
	FilledSize   float64
	AvgFillPrice float64 // zero when nothing filled
	SlippageBps  float64
	OrderIDs     []string
	Error        string
	StartedAt    time.Time
	CompletedAt  time.Time
}

// Filled reports whether the leg completed.
func (l LegExecution) Filled() bool { return l.Status == ExecCompleted }

// ExecutionResult is the finalized outcome of one basket attempt.
type ExecutionResult struct {
	ID                  string
	OpportunityID       string
	Status              ExecutionStatus
	Legs                []LegExecution
	TargetSize          float64
	TotalCost           float64
	ActualCost          float64
	RealizedSlippageBps float64
	StartedAt           time.Time
	CompletedAt         time.Time
	Notes               []string
}

// FillRate is the fraction of attempted legs that completed.
func (r *ExecutionResult) FillRate() float64 {
	if len(r.Legs) == 0 {
		return 0
	}
	return float64(r.FilledCount()) / float64(len(r.Legs))
}

// FilledCount returns the number of completed legs.
func (r *ExecutionResult) FilledCount() int {
	n := 0
	for _, l := range r.Legs {
		if l.Filled() {
			n++
		}
	}
	return n
}

// IsComplete reports whether the basket completed.
func (r *ExecutionResult) IsComplete() bool { return r.Status == ExecCompleted }

// FailedLegs returns the legs that did not fill.
func (r *ExecutionResult) FailedLegs() []LegExecution {
	var out []LegExecution
	for _, l := range r.Legs {
		if l.Status == ExecFailed {
			out = append(out, l)
		}
	}
	return out
}

// Duration is the wall time of the attempt.
func (r *ExecutionResult) Duration() time.Duration { return r.CompletedAt.Sub(r.StartedAt) }
