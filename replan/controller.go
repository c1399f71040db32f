package replan

import (
	"context"
	"fmt"
	"time"

	"github.com/lexcodex/replanify/executor"
	"github.com/lexcodex/replanify/extract"
	"github.com/lexcodex/replanify/plan"
	"github.com/lexcodex/replanify/roles"
)

// State labels where a run currently is. It is surfaced through the sink so
// operators can follow long runs; the public result is the final Report.
type State string

const (
	StateExtracting State = "extracting"
	StateValidating State = "validating"
	StateExecuting  State = "executing"
	StateReplanning State = "replanning"
	StateDone       State = "done"
	StateHalted     State = "halted"
)

// Status is the terminal outcome of a run.
type Status string

const (
	StatusDone   Status = "done"
	StatusHalted Status = "halted"
)

// HaltReason says why a halted run gave up.
type HaltReason string

const (
	HaltBudgetExhausted HaltReason = "budget_exhausted"
	HaltLoopDetected    HaltReason = "loop_detected"
)

// DefaultMaxAttempts is the retry budget when the caller sets none: the
// number of replanning iterations allowed after the first failed pass.
const DefaultMaxAttempts = 3

// Completer is the single model capability the controller needs.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Journal records runs for later inspection. A nil journal disables
// recording; every method is best-effort from the controller's side.
type Journal interface {
	BeginRun(ctx context.Context, role, request string) (int64, error)
	RecordAttempt(ctx context.Context, runID int64, attempt int, p plan.Plan, outcome plan.PlanOutcome) error
	FinishRun(ctx context.Context, runID int64, status, reason string) error
}

// Request is one piece of work for the controller.
type Request struct {
	Role roles.Config
	// Text is the model output (or, on the serve path, the user request
	// already answered by the model) to turn into a plan.
	Text string
	Root string
	Mode executor.Mode
}

// Report is the full result of a run. Run never panics and reserves its
// error return for collaborator failures (model I/O, canceled context);
// plan-level failures land in the report.
type Report struct {
	Status     Status           `json:"status"`
	HaltReason HaltReason       `json:"halt_reason,omitempty"`
	Plan       plan.Plan        `json:"plan"`
	Strategy   string           `json:"strategy"`
	Degraded   bool             `json:"degraded,omitempty"`
	Rejections []plan.Rejection `json:"rejections,omitempty"`
	Outcome    plan.PlanOutcome `json:"outcome"`
	Attempts   int              `json:"attempts"`
	LastRetry  *RetryContext    `json:"last_retry,omitempty"`
}

// Controller owns one extraction/validation/execution/replanning loop.
type Controller struct {
	Model  Completer
	Runner executor.CommandRunner
	Sink   executor.OutputSink
	// FixerRole supplies the system prompt for retry turns. Zero value
	// falls back to the builtin fixer.
	FixerRole   roles.Config
	MaxAttempts int
	// CommandTimeout bounds each run_command; zero means no limit.
	CommandTimeout time.Duration
	Journal        Journal
}

// New builds a controller around a model with the default runner, sink,
// fixer role, and retry budget.
func New(model Completer) *Controller {
	return &Controller{Model: model}
}

// Run drives one request to a terminal state. The returned report is
// non-nil whenever err is nil; on a model or context error the report
// carries everything observed up to the failure.
func (c *Controller) Run(ctx context.Context, req Request) (*Report, error) {
	report := &Report{Status: StatusHalted}
	sink := c.sink()

	runID, journaled := c.beginRun(ctx, req)

	exec := &executor.Executor{
		Root:           req.Root,
		Runner:         c.runner(),
		Sink:           sink,
		Mode:           req.Mode,
		CommandTimeout: c.CommandTimeout,
	}

	text := req.Text
	var previous string // fingerprint of the last executed plan
	for {
		sink.Logf("[replan] %s (attempt %d)", StateExtracting, report.Attempts+1)
		result := extract.Extract(text)
		report.Strategy = result.Strategy
		report.Degraded = result.Degraded

		sink.Logf("[replan] %s via %s", StateValidating, result.Strategy)
		validated, rejections := plan.Validate(result.Raw, req.Role.Policy())
		report.Plan = validated
		report.Rejections = rejections
		for _, rejection := range rejections {
			sink.Logf("[replan] dropped action %d: %s (%s)", rejection.Index, rejection.Message, rejection.Reason)
		}

		if report.Attempts > 0 && previous == validated.Fingerprint() {
			report.HaltReason = HaltLoopDetected
			sink.Logf("[replan] %s: corrected plan is identical to the failed one", StateHalted)
			c.finishRun(ctx, journaled, runID, report)
			return report, nil
		}

		report.Attempts++
		sink.Logf("[replan] %s %d action(s)", StateExecuting, len(validated.Actions))
		outcome := exec.Execute(ctx, validated)
		report.Outcome = outcome
		if c.Journal != nil && journaled {
			if err := c.Journal.RecordAttempt(ctx, runID, report.Attempts, validated, outcome); err != nil {
				sink.Logf("[replan] journal: %v", err)
			}
		}

		if !outcome.Failed() {
			report.Status = StatusDone
			sink.Logf("[replan] %s", StateDone)
			c.finishRun(ctx, journaled, runID, report)
			return report, nil
		}
		if err := ctx.Err(); err != nil {
			c.finishRun(ctx, journaled, runID, report)
			return report, err
		}
		if report.Attempts > c.maxAttempts() {
			report.HaltReason = HaltBudgetExhausted
			sink.Logf("[replan] %s: retry budget of %d exhausted", StateHalted, c.maxAttempts())
			c.finishRun(ctx, journaled, runID, report)
			return report, nil
		}

		failed, _ := outcome.FailedOutcome()
		class := Classify(failed.Message + "\n" + failed.Stdout + "\n" + failed.Stderr)
		sink.Logf("[replan] %s: action %d failed, classified as %s", StateReplanning, failed.Index, class)
		retry := &RetryContext{
			Request:      req.Text,
			FailedAction: failed.Action,
			Outcome:      failed,
			Class:        class,
			Diagnostics:  gatherDiagnostics(ctx, c.runner(), req.Root, class),
			Attempt:      report.Attempts,
		}
		report.LastRetry = retry

		response, err := c.Model.Complete(ctx, c.fixerRole().SystemPrompt, retry.Prompt())
		if err != nil {
			c.finishRun(ctx, journaled, runID, report)
			return report, fmt.Errorf("replan attempt %d: %w", report.Attempts, err)
		}
		previous = validated.Fingerprint()
		text = response
	}
}

func (c *Controller) beginRun(ctx context.Context, req Request) (int64, bool) {
	if c.Journal == nil {
		return 0, false
	}
	runID, err := c.Journal.BeginRun(ctx, req.Role.Name, req.Text)
	if err != nil {
		c.sink().Logf("[replan] journal: %v", err)
		return 0, false
	}
	return runID, true
}

func (c *Controller) finishRun(ctx context.Context, journaled bool, runID int64, report *Report) {
	if c.Journal == nil || !journaled {
		return
	}
	if err := c.Journal.FinishRun(ctx, runID, string(report.Status), string(report.HaltReason)); err != nil {
		c.sink().Logf("[replan] journal: %v", err)
	}
}

func (c *Controller) maxAttempts() int {
	if c.MaxAttempts > 0 {
		return c.MaxAttempts
	}
	return DefaultMaxAttempts
}

func (c *Controller) fixerRole() roles.Config {
	if c.FixerRole.Name != "" {
		return c.FixerRole
	}
	cfg, _ := roles.DefaultRegistry().Get("fixer")
	return cfg
}

func (c *Controller) runner() executor.CommandRunner {
	if c.Runner != nil {
		return c.Runner
	}
	return executor.ShellCommandRunner{}
}

func (c *Controller) sink() executor.OutputSink {
	if c.Sink != nil {
		return c.Sink
	}
	return executor.DiscardSink
}
