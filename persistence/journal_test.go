package persistence

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexcodex/replanify/plan"
)

func openJournal(t *testing.T) *RunJournal {
	t.Helper()
	journal, err := NewRunJournal(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })
	return journal
}

func TestJournalRoundTrip(t *testing.T) {
	ctx := context.Background()
	journal := openJournal(t)

	runID, err := journal.BeginRun(ctx, "coder", "add a makefile")
	require.NoError(t, err)

	p := plan.Plan{Role: "coder", Actions: []plan.Action{
		{Kind: plan.KindCreateFile, Path: "Makefile", Content: "all:\n"},
	}}
	outcome := plan.NewPlanOutcome()
	outcome.Append(plan.ActionOutcome{Index: 0, Action: p.Actions[0], Status: plan.StatusSucceeded})
	require.NoError(t, journal.RecordAttempt(ctx, runID, 1, p, outcome))
	require.NoError(t, journal.FinishRun(ctx, runID, "done", ""))

	record, ok, err := journal.Run(ctx, runID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "coder", record.Role)
	assert.Equal(t, "done", record.Status)
	assert.Empty(t, record.HaltReason)
	require.NotNil(t, record.FinishedAt)

	attempts, err := journal.Attempts(ctx, runID)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, 1, attempts[0].Attempt)
	assert.False(t, attempts[0].Failed)
	require.Len(t, attempts[0].Plan.Actions, 1)
	assert.Equal(t, plan.KindCreateFile, attempts[0].Plan.Actions[0].Kind)
}

func TestJournalRecentOrdersNewestFirst(t *testing.T) {
	ctx := context.Background()
	journal := openJournal(t)

	first, err := journal.BeginRun(ctx, "manager", "one")
	require.NoError(t, err)
	second, err := journal.BeginRun(ctx, "coder", "two")
	require.NoError(t, err)

	recent, err := journal.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, second, recent[0].ID)
	assert.Equal(t, first, recent[1].ID)
}

func TestJournalRunMissing(t *testing.T) {
	ctx := context.Background()
	journal := openJournal(t)

	_, ok, err := journal.Run(ctx, 999)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestJournalFailedAttempt(t *testing.T) {
	ctx := context.Background()
	journal := openJournal(t)

	runID, err := journal.BeginRun(ctx, "coder", "build it")
	require.NoError(t, err)

	p := plan.Plan{Role: "coder", Actions: []plan.Action{
		{Kind: plan.KindRunCommand, CommandLine: "make"},
	}}
	outcome := plan.NewPlanOutcome()
	outcome.Append(plan.ActionOutcome{
		Index:    0,
		Action:   p.Actions[0],
		Status:   plan.StatusFailed,
		Message:  "command exited with code 2",
		ExitCode: 2,
	})
	require.NoError(t, journal.RecordAttempt(ctx, runID, 1, p, outcome))
	require.NoError(t, journal.FinishRun(ctx, runID, "halted", "budget_exhausted"))

	record, ok, err := journal.Run(ctx, runID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "halted", record.Status)
	assert.Equal(t, "budget_exhausted", record.HaltReason)

	attempts, err := journal.Attempts(ctx, runID)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.True(t, attempts[0].Failed)
	assert.Equal(t, 2, attempts[0].Outcome.Outcomes[0].ExitCode)
}
