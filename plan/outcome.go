package plan

// ActionStatus is the per-action execution verdict.
type ActionStatus string

const (
	StatusSucceeded ActionStatus = "succeeded"
	StatusSkipped   ActionStatus = "skipped"
	StatusFailed    ActionStatus = "failed"
)

// ActionOutcome records what happened to one action. Stdout, Stderr and
// ExitCode are populated for run_command actions only.
type ActionOutcome struct {
	Index    int          `json:"index"`
	Action   Action       `json:"action"`
	Status   ActionStatus `json:"status"`
	Message  string       `json:"message,omitempty"`
	Stdout   string       `json:"stdout,omitempty"`
	Stderr   string       `json:"stderr,omitempty"`
	ExitCode int          `json:"exit_code,omitempty"`
}

// PlanOutcome aggregates action outcomes for one execution pass, in order.
type PlanOutcome struct {
	Outcomes []ActionOutcome `json:"outcomes"`
	// FirstFailure is the index of the first failed action, or -1.
	FirstFailure int `json:"first_failure"`
}

// NewPlanOutcome returns an empty outcome with no failure recorded.
func NewPlanOutcome() PlanOutcome {
	return PlanOutcome{FirstFailure: -1}
}

// Append records one action outcome, tracking the first failure.
func (p *PlanOutcome) Append(outcome ActionOutcome) {
	if outcome.Status == StatusFailed && p.FirstFailure < 0 {
		p.FirstFailure = len(p.Outcomes)
	}
	p.Outcomes = append(p.Outcomes, outcome)
}

// Failed reports whether the pass hit a failed action.
func (p PlanOutcome) Failed() bool { return p.FirstFailure >= 0 }

// FailedOutcome returns the first failed outcome, if any.
func (p PlanOutcome) FailedOutcome() (ActionOutcome, bool) {
	if !p.Failed() || p.FirstFailure >= len(p.Outcomes) {
		return ActionOutcome{}, false
	}
	return p.Outcomes[p.FirstFailure], true
}
