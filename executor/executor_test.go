package executor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexcodex/replanify/plan"
)

type recordingSink struct {
	mu    sync.Mutex
	logs  []string
	lines []string
}

func (s *recordingSink) Logf(format string, args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, format)
}

func (s *recordingSink) Line(stream Stream, line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, string(stream)+":"+line)
}

func (s *recordingSink) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

func TestExecuteCreatesNestedFile(t *testing.T) {
	root := t.TempDir()
	exec := New(root)
	outcome := exec.Execute(context.Background(), plan.Plan{Actions: []plan.Action{
		{Kind: plan.KindCreateFile, Path: "a/b/c.txt", Content: "hi"},
	}})

	assert.False(t, outcome.Failed())
	data, err := os.ReadFile(filepath.Join(root, "a", "b", "c.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))

	for _, dir := range []string{"a", filepath.Join("a", "b")} {
		info, err := os.Stat(filepath.Join(root, dir))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestExecuteEditOverwrites(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "f.txt"), []byte("old"), 0o644))

	exec := New(root)
	outcome := exec.Execute(context.Background(), plan.Plan{Actions: []plan.Action{
		{Kind: plan.KindEditFile, Path: "f.txt", Content: "new"},
	}})
	assert.False(t, outcome.Failed())

	data, _ := os.ReadFile(filepath.Join(root, "f.txt"))
	assert.Equal(t, "new", string(data))
}

func TestExecuteRejectsEscapingPath(t *testing.T) {
	root := t.TempDir()
	outside := filepath.Join(filepath.Dir(root), "escaped.txt")
	defer os.Remove(outside)

	exec := New(root)
	outcome := exec.Execute(context.Background(), plan.Plan{Actions: []plan.Action{
		{Kind: plan.KindCreateFile, Path: "../escaped.txt", Content: "nope"},
		{Kind: plan.KindCreateDirectory, Path: "never"},
	}})

	require.True(t, outcome.Failed())
	assert.Equal(t, 0, outcome.FirstFailure)
	// Nothing was written outside the root and the pass stopped.
	_, err := os.Stat(outside)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(root, "never"))
	assert.True(t, os.IsNotExist(err))
}

func TestExecuteDeleteMissingIsSkipped(t *testing.T) {
	root := t.TempDir()
	exec := New(root)
	outcome := exec.Execute(context.Background(), plan.Plan{Actions: []plan.Action{
		{Kind: plan.KindDeleteFile, Path: "ghost.txt"},
		{Kind: plan.KindCreateFile, Path: "after.txt", Content: ""},
	}})

	assert.False(t, outcome.Failed())
	require.Len(t, outcome.Outcomes, 2)
	assert.Equal(t, plan.StatusSkipped, outcome.Outcomes[0].Status)
	assert.Equal(t, plan.StatusSucceeded, outcome.Outcomes[1].Status)
}

func TestExecuteDeleteRemovesFile(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "gone.txt")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	exec := New(root)
	outcome := exec.Execute(context.Background(), plan.Plan{Actions: []plan.Action{
		{Kind: plan.KindDeleteFile, Path: "gone.txt"},
	}})
	assert.False(t, outcome.Failed())
	_, err := os.Stat(target)
	assert.True(t, os.IsNotExist(err))
}

func TestRunCommandCaptured(t *testing.T) {
	root := t.TempDir()
	exec := New(root)
	outcome := exec.Execute(context.Background(), plan.Plan{Actions: []plan.Action{
		{Kind: plan.KindRunCommand, CommandLine: "echo out && echo err 1>&2"},
	}})

	assert.False(t, outcome.Failed())
	require.Len(t, outcome.Outcomes, 1)
	assert.Contains(t, outcome.Outcomes[0].Stdout, "out")
	assert.Contains(t, outcome.Outcomes[0].Stderr, "err")
	assert.Equal(t, 0, outcome.Outcomes[0].ExitCode)
}

func TestRunCommandFailureStopsPlan(t *testing.T) {
	root := t.TempDir()
	exec := New(root)
	outcome := exec.Execute(context.Background(), plan.Plan{Actions: []plan.Action{
		{Kind: plan.KindRunCommand, CommandLine: "echo before && exit 3"},
		{Kind: plan.KindCreateFile, Path: "unreached.txt", Content: "x"},
	}})

	require.True(t, outcome.Failed())
	assert.Equal(t, 0, outcome.FirstFailure)
	failed, _ := outcome.FailedOutcome()
	assert.Equal(t, 3, failed.ExitCode)
	assert.Contains(t, failed.Stdout, "before")
	require.Len(t, outcome.Outcomes, 1)
	_, err := os.Stat(filepath.Join(root, "unreached.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunCommandStreamingForwardsLines(t *testing.T) {
	root := t.TempDir()
	sink := &recordingSink{}
	exec := New(root)
	exec.Mode = ModeStreaming
	exec.Sink = sink

	outcome := exec.Execute(context.Background(), plan.Plan{Actions: []plan.Action{
		{Kind: plan.KindRunCommand, CommandLine: "echo one; echo two; echo oops 1>&2"},
	}})
	assert.False(t, outcome.Failed())

	lines := sink.snapshot()
	var stdoutLines, stderrLines []string
	for _, line := range lines {
		if strings.HasPrefix(line, "stdout:") {
			stdoutLines = append(stdoutLines, line)
		} else {
			stderrLines = append(stderrLines, line)
		}
	}
	assert.Equal(t, []string{"stdout:one", "stdout:two"}, stdoutLines)
	assert.Equal(t, []string{"stderr:oops"}, stderrLines)
	// Streaming mode still captures for diagnostics.
	assert.Contains(t, outcome.Outcomes[0].Stdout, "one")
}

func TestRunCommandWorkingDirConfined(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))

	exec := New(root)
	outcome := exec.Execute(context.Background(), plan.Plan{Actions: []plan.Action{
		{Kind: plan.KindRunCommand, CommandLine: "pwd", WorkingDir: "sub"},
	}})
	assert.False(t, outcome.Failed())
	assert.Contains(t, outcome.Outcomes[0].Stdout, "sub")

	outcome = exec.Execute(context.Background(), plan.Plan{Actions: []plan.Action{
		{Kind: plan.KindRunCommand, CommandLine: "pwd", WorkingDir: "../elsewhere"},
	}})
	assert.True(t, outcome.Failed())
}

func TestExecuteCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := New(t.TempDir())
	outcome := exec.Execute(ctx, plan.Plan{Actions: []plan.Action{
		{Kind: plan.KindCreateFile, Path: "a.txt", Content: "x"},
	}})
	require.True(t, outcome.Failed())
	assert.Contains(t, outcome.Outcomes[0].Message, "canceled")
}
