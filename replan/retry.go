package replan

import (
	"fmt"
	"strings"

	"github.com/lexcodex/replanify/plan"
)

// RetryContext is everything handed back to the model after a failed pass:
// the original request, the action that failed, its captured output, the
// probe results, and which attempt this is.
type RetryContext struct {
	Request     string             `json:"request"`
	FailedAction plan.Action       `json:"failed_action"`
	Outcome     plan.ActionOutcome `json:"outcome"`
	Class       FailureClass       `json:"class"`
	Diagnostics []ProbeResult      `json:"diagnostics,omitempty"`
	Attempt     int                `json:"attempt"`
}

// Output caps keep retry prompts inside a small model's context window.
const (
	maxStreamChars = 4000
	maxProbeChars  = 1500
)

func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "\n... (truncated)"
}

// Prompt renders the retry context as the user message for the fixer role.
// The fixer's system prompt travels separately.
func (r RetryContext) Prompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "The previous plan failed on attempt %d.\n\n", r.Attempt)
	fmt.Fprintf(&b, "Original request:\n%s\n\n", strings.TrimSpace(r.Request))
	fmt.Fprintf(&b, "Failed action (index %d): %s", r.Outcome.Index, r.FailedAction.Kind)
	if r.FailedAction.Path != "" {
		fmt.Fprintf(&b, " %s", r.FailedAction.Path)
	}
	if r.FailedAction.CommandLine != "" {
		fmt.Fprintf(&b, " `%s`", r.FailedAction.CommandLine)
	}
	b.WriteString("\n")
	if r.Outcome.Message != "" {
		fmt.Fprintf(&b, "Failure: %s\n", r.Outcome.Message)
	}
	if r.FailedAction.Kind == plan.KindRunCommand {
		fmt.Fprintf(&b, "Exit code: %d\n", r.Outcome.ExitCode)
	}
	if out := truncate(r.Outcome.Stdout, maxStreamChars); out != "" {
		fmt.Fprintf(&b, "\nStdout:\n%s\n", out)
	}
	if errOut := truncate(r.Outcome.Stderr, maxStreamChars); errOut != "" {
		fmt.Fprintf(&b, "\nStderr:\n%s\n", errOut)
	}
	if r.Class != FailureUnknown {
		fmt.Fprintf(&b, "\nLikely cause: %s\n", strings.ReplaceAll(string(r.Class), "_", " "))
	}
	for _, probe := range r.Diagnostics {
		fmt.Fprintf(&b, "\nDiagnostic `%s`:\n%s\n", probe.CommandLine, truncate(probe.Output, maxProbeChars))
		if probe.Err != "" {
			fmt.Fprintf(&b, "(probe error: %s)\n", probe.Err)
		}
	}
	b.WriteString("\nProduce a corrected plan as a single JSON object. Fix the cause of the failure; do not repeat the same plan.\n")
	return b.String()
}
