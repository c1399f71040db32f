package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lexcodex/replanify/plan"
)

// Mode selects how run_command output is delivered.
type Mode string

const (
	// ModeStreaming forwards each stdout/stderr line to the sink as it
	// arrives, then reports the exit status.
	ModeStreaming Mode = "streaming"
	// ModeCaptured buffers both streams and returns them in the outcome.
	ModeCaptured Mode = "captured"
)

// Executor applies plans to a project root. One executor owns the root for
// the duration of a pass; callers serialize concurrent invocations.
type Executor struct {
	Root   string
	Runner CommandRunner
	Sink   OutputSink
	Mode   Mode
	// CommandTimeout bounds each run_command invocation; zero means no limit.
	CommandTimeout time.Duration
}

// New builds an executor with a shell runner and a discard sink.
func New(root string) *Executor {
	return &Executor{
		Root:   root,
		Runner: ShellCommandRunner{},
		Sink:   DiscardSink,
		Mode:   ModeCaptured,
	}
}

// Execute runs the plan strictly in order. The first failed action stops
// the pass; the returned outcome covers everything up to and including the
// failure. The plan itself is never mutated.
func (e *Executor) Execute(ctx context.Context, p plan.Plan) plan.PlanOutcome {
	outcome := plan.NewPlanOutcome()
	sink := e.sink()
	for i, action := range p.Actions {
		if err := ctx.Err(); err != nil {
			outcome.Append(plan.ActionOutcome{
				Index:   i,
				Action:  action,
				Status:  plan.StatusFailed,
				Message: fmt.Sprintf("canceled before action: %v", err),
			})
			return outcome
		}
		result := e.executeOne(ctx, i, action)
		outcome.Append(result)
		switch result.Status {
		case plan.StatusFailed:
			sink.Logf("action %d failed: %s", i, result.Message)
			return outcome
		case plan.StatusSkipped:
			sink.Logf("action %d skipped: %s", i, result.Message)
		default:
			sink.Logf("action %d done: %s", i, action.String())
		}
	}
	return outcome
}

func (e *Executor) executeOne(ctx context.Context, index int, action plan.Action) plan.ActionOutcome {
	outcome := plan.ActionOutcome{Index: index, Action: action}
	switch action.Kind {
	case plan.KindCreateFile, plan.KindEditFile:
		e.writeFile(action, &outcome)
	case plan.KindDeleteFile:
		e.deleteFile(action, &outcome)
	case plan.KindCreateDirectory:
		e.createDirectory(action, &outcome)
	case plan.KindRunCommand:
		e.runCommand(ctx, action, &outcome)
	default:
		// Validation excludes unknown kinds; reaching this means the plan
		// bypassed the validator.
		outcome.Status = plan.StatusFailed
		outcome.Message = fmt.Sprintf("unknown action kind %q", action.Kind)
	}
	return outcome
}

func (e *Executor) writeFile(action plan.Action, outcome *plan.ActionOutcome) {
	target, err := e.resolve(action.Path)
	if err != nil {
		outcome.Status = plan.StatusFailed
		outcome.Message = err.Error()
		return
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		outcome.Status = plan.StatusFailed
		outcome.Message = fmt.Sprintf("create parent directories: %v", err)
		return
	}
	if err := os.WriteFile(target, []byte(action.Content), 0o644); err != nil {
		outcome.Status = plan.StatusFailed
		outcome.Message = fmt.Sprintf("write %s: %v", action.Path, err)
		return
	}
	outcome.Status = plan.StatusSucceeded
}

func (e *Executor) deleteFile(action plan.Action, outcome *plan.ActionOutcome) {
	target, err := e.resolve(action.Path)
	if err != nil {
		outcome.Status = plan.StatusFailed
		outcome.Message = err.Error()
		return
	}
	if _, err := os.Stat(target); os.IsNotExist(err) {
		outcome.Status = plan.StatusSkipped
		outcome.Message = fmt.Sprintf("delete target %s does not exist", action.Path)
		return
	}
	if err := os.Remove(target); err != nil {
		outcome.Status = plan.StatusFailed
		outcome.Message = fmt.Sprintf("delete %s: %v", action.Path, err)
		return
	}
	outcome.Status = plan.StatusSucceeded
}

func (e *Executor) createDirectory(action plan.Action, outcome *plan.ActionOutcome) {
	target, err := e.resolve(action.Path)
	if err != nil {
		outcome.Status = plan.StatusFailed
		outcome.Message = err.Error()
		return
	}
	if err := os.MkdirAll(target, 0o755); err != nil {
		outcome.Status = plan.StatusFailed
		outcome.Message = fmt.Sprintf("create directory %s: %v", action.Path, err)
		return
	}
	outcome.Status = plan.StatusSucceeded
}

func (e *Executor) runCommand(ctx context.Context, action plan.Action, outcome *plan.ActionOutcome) {
	workdir := e.Root
	if action.WorkingDir != "" {
		resolved, err := e.resolve(action.WorkingDir)
		if err != nil {
			outcome.Status = plan.StatusFailed
			outcome.Message = fmt.Sprintf("working dir: %v", err)
			return
		}
		workdir = resolved
	}
	sink := e.sink()
	req := CommandRequest{
		CommandLine: action.CommandLine,
		Workdir:     workdir,
		Timeout:     e.CommandTimeout,
	}
	if e.Mode == ModeStreaming {
		req.Sink = sink
	}
	sink.Logf("running: %s (cwd=%s)", action.CommandLine, workdir)
	result, err := e.runner().Run(ctx, req)
	outcome.Stdout = result.Stdout
	outcome.Stderr = result.Stderr
	outcome.ExitCode = result.ExitCode
	if err != nil {
		outcome.Status = plan.StatusFailed
		outcome.Message = fmt.Sprintf("spawn %q: %v", action.CommandLine, err)
		return
	}
	if e.Mode == ModeStreaming {
		sink.Logf("command exited with code %d", result.ExitCode)
	}
	if result.ExitCode != 0 {
		outcome.Status = plan.StatusFailed
		outcome.Message = fmt.Sprintf("command exited with code %d", result.ExitCode)
		return
	}
	outcome.Status = plan.StatusSucceeded
}

// resolve joins a relative action path onto the project root and verifies
// the result stays inside it. Escaping paths fail the action; nothing is
// ever written outside the root.
func (e *Executor) resolve(rel string) (string, error) {
	if err := plan.CheckRelPath(rel); err != nil {
		return "", err
	}
	absRoot, err := filepath.Abs(e.Root)
	if err != nil {
		return "", fmt.Errorf("resolve project root: %w", err)
	}
	absRoot = filepath.Clean(absRoot)
	target := filepath.Clean(filepath.Join(absRoot, rel))
	rootSlash := filepath.ToSlash(absRoot)
	targetSlash := filepath.ToSlash(target)
	if targetSlash != rootSlash && !strings.HasPrefix(targetSlash, rootSlash+"/") {
		return "", fmt.Errorf("path %q escapes project root", rel)
	}
	return target, nil
}

func (e *Executor) sink() OutputSink {
	if e.Sink == nil {
		return DiscardSink
	}
	return e.Sink
}

func (e *Executor) runner() CommandRunner {
	if e.Runner == nil {
		return ShellCommandRunner{}
	}
	return e.Runner
}
