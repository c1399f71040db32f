// Package replan drives the failure-recovery loop: it classifies execution
// failures, gathers diagnostic context, asks the model for a corrected plan,
// and re-enters extraction, bounded by a retry budget and a loop guard.
package replan

import (
	"context"
	"strings"
	"time"

	"github.com/lexcodex/replanify/executor"
)

// FailureClass is a best-effort label for an execution failure, derived by
// substring matching against the diagnostic text. Classification guides
// which probes run; it is never required for the retry loop's correctness.
type FailureClass string

const (
	FailureMissingExtension  FailureClass = "missing_extension"
	FailureVersionConflict   FailureClass = "version_conflict"
	FailurePackageNotFound   FailureClass = "package_not_found"
	FailureCommandNotFound   FailureClass = "command_not_found"
	FailureInteractivePrompt FailureClass = "interactive_prompt"
	FailureUnknown           FailureClass = "unknown"
)

// signatures maps failure classes to the markers that select them. First
// match wins, in declaration order.
var signatures = []struct {
	class   FailureClass
	markers []string
}{
	{FailureMissingExtension, []string{
		"requires ext-",
		"extension not found",
		"missing extension",
		"undefined symbol",
	}},
	{FailureVersionConflict, []string{
		"version conflict",
		"requires python",
		"requires php",
		"incompatible version",
		"does not satisfy",
		"unsupported engine",
	}},
	{FailurePackageNotFound, []string{
		"package not found",
		"could not find package",
		"no matching distribution found",
		"could not find a version that satisfies",
		"404 not found",
		"unable to locate package",
	}},
	{FailureCommandNotFound, []string{
		"command not found",
		"not recognized as an internal or external command",
		"no such file or directory",
	}},
	{FailureInteractivePrompt, []string{
		"do you want to continue",
		"[y/n]",
		"(yes/no)",
		"waiting for input",
	}},
}

// Classify inspects the combined diagnostic text of a failed action.
func Classify(diagnostic string) FailureClass {
	lowered := strings.ToLower(diagnostic)
	for _, sig := range signatures {
		for _, marker := range sig.markers {
			if strings.Contains(lowered, marker) {
				return sig.class
			}
		}
	}
	return FailureUnknown
}

// ProbeResult captures one read-only diagnostic command's output.
type ProbeResult struct {
	CommandLine string `json:"command_line"`
	Output      string `json:"output,omitempty"`
	Err         string `json:"err,omitempty"`
}

// defaultProbes returns the read-only commands worth running for a class.
// All of them only query toolchain configuration; none mutates the project.
func defaultProbes(class FailureClass) []string {
	switch class {
	case FailureMissingExtension:
		return []string{"php -m", "php --ini"}
	case FailureVersionConflict:
		return []string{"php --version", "python --version", "node --version"}
	case FailurePackageNotFound:
		return []string{"pip config list", "npm config get registry"}
	case FailureCommandNotFound:
		return []string{"echo $PATH"}
	default:
		return nil
	}
}

const probeTimeout = 15 * time.Second

// gatherDiagnostics runs the class's probes through the runner in captured
// mode. Probe failures are recorded, never fatal.
func gatherDiagnostics(ctx context.Context, runner executor.CommandRunner, root string, class FailureClass) []ProbeResult {
	var results []ProbeResult
	for _, commandLine := range defaultProbes(class) {
		result, err := runner.Run(ctx, executor.CommandRequest{
			CommandLine: commandLine,
			Workdir:     root,
			Timeout:     probeTimeout,
		})
		probe := ProbeResult{CommandLine: commandLine}
		combined := strings.TrimSpace(result.Stdout + "\n" + result.Stderr)
		probe.Output = combined
		if err != nil {
			probe.Err = err.Error()
		}
		results = append(results, probe)
	}
	return results
}
