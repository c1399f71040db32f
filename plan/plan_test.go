package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlanEqualIsOrderSensitive(t *testing.T) {
	a := Plan{Actions: []Action{
		{Kind: KindCreateDirectory, Path: "src"},
		{Kind: KindCreateFile, Path: "src/a.txt", Content: "x"},
	}}
	b := Plan{Actions: []Action{
		{Kind: KindCreateFile, Path: "src/a.txt", Content: "x"},
		{Kind: KindCreateDirectory, Path: "src"},
	}}
	assert.True(t, a.Equal(a))
	assert.False(t, a.Equal(b))
	assert.False(t, a.Equal(Plan{}))
}

func TestFingerprintStableAcrossInputFieldOrder(t *testing.T) {
	// Two raw payloads differing only in field order must validate into
	// plans with identical fingerprints.
	first, _ := DecodeRaw([]byte(`{"actions":[{"action":"create_file","path":"a.txt","content":"hi"}]}`))
	second, _ := DecodeRaw([]byte(`{"actions":[{"content":"hi","path":"a.txt","action":"create_file"}]}`))

	planA, _ := Validate(first, coderPolicy())
	planB, _ := Validate(second, coderPolicy())
	assert.Equal(t, planA.Fingerprint(), planB.Fingerprint())
}

func TestFingerprintDistinguishesContent(t *testing.T) {
	a := Plan{Actions: []Action{{Kind: KindCreateFile, Path: "a.txt", Content: "one"}}}
	b := Plan{Actions: []Action{{Kind: KindCreateFile, Path: "a.txt", Content: "two"}}}
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestPlanOutcomeFirstFailure(t *testing.T) {
	outcome := NewPlanOutcome()
	assert.False(t, outcome.Failed())

	outcome.Append(ActionOutcome{Index: 0, Status: StatusSucceeded})
	outcome.Append(ActionOutcome{Index: 1, Status: StatusSkipped, Message: "missing target"})
	outcome.Append(ActionOutcome{Index: 2, Status: StatusFailed, Stderr: "boom", ExitCode: 2})

	assert.True(t, outcome.Failed())
	assert.Equal(t, 2, outcome.FirstFailure)
	failed, ok := outcome.FailedOutcome()
	assert.True(t, ok)
	assert.Equal(t, "boom", failed.Stderr)
}
