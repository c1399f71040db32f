package runtime

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexcodex/replanify/executor"
	"github.com/lexcodex/replanify/replan"
)

func TestNormalizeFillsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Workspace: dir}
	require.NoError(t, cfg.Normalize())

	assert.Equal(t, filepath.Join(dir, ".replanify", "config.yaml"), cfg.ConfigPath)
	assert.Equal(t, filepath.Join(dir, ".replanify", "roles"), cfg.RolesDir)
	assert.Equal(t, "http://localhost:11434", cfg.OllamaEndpoint)
	assert.Equal(t, "coder", cfg.RoleName)
	assert.Equal(t, executor.ModeCaptured, cfg.ExecutionMode())
	assert.Equal(t, 3, cfg.MaxAttempts)
}

func TestNormalizeRejectsUnknownMode(t *testing.T) {
	cfg := Config{Workspace: t.TempDir(), Mode: "interactive"}
	err := cfg.Normalize()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestNormalizeRequiresWorkspace(t *testing.T) {
	cfg := Config{}
	require.Error(t, cfg.Normalize())
}

func TestNormalizeJoinsRelativePaths(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Workspace: dir, JournalPath: "journal.db", RolesDir: "roles"}
	require.NoError(t, cfg.Normalize())
	assert.Equal(t, filepath.Join(dir, "journal.db"), cfg.JournalPath)
	assert.Equal(t, filepath.Join(dir, "roles"), cfg.RolesDir)
}

func TestFileConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	in := FileConfig{Model: "qwen2.5-coder", Role: "planner", MaxAttempts: 5}
	require.NoError(t, SaveFileConfig(path, in))

	out, err := LoadFileConfig(path)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestApplyFileConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.apply(FileConfig{Model: "codellama", Mode: string(executor.ModeStreaming), MaxAttempts: 7})
	assert.Equal(t, "codellama", cfg.OllamaModel)
	assert.Equal(t, string(executor.ModeStreaming), cfg.Mode)
	assert.Equal(t, 7, cfg.MaxAttempts)
}

func TestNewBuildsRuntime(t *testing.T) {
	dir := t.TempDir()
	rt, err := New(Config{Workspace: dir, JournalPath: "journal.db"})
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close() })

	assert.NotNil(t, rt.Model)
	assert.NotNil(t, rt.Journal)
	names := rt.Roles.Names()
	assert.Contains(t, names, "coder")
	assert.Contains(t, names, "fixer")
}

func TestRunOncePlanOnlyFirstPass(t *testing.T) {
	dir := t.TempDir()
	rt, err := New(Config{Workspace: dir})
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close() })

	var out bytes.Buffer
	report, err := rt.RunOnce(context.Background(), "coder",
		`{"actions":[{"action":"create_file","path":"hello.txt","content":"hi\n"}]}`, &out)
	require.NoError(t, err)
	assert.Equal(t, replan.StatusDone, report.Status)

	data, err := os.ReadFile(filepath.Join(dir, "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi\n", string(data))
}

func TestRunOnceUnknownRole(t *testing.T) {
	rt, err := New(Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close() })

	_, err = rt.RunOnce(context.Background(), "wizard", "{}", &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown role")
}
