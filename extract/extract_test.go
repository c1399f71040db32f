package extract

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexcodex/replanify/plan"
)

func TestExtractDirectParse(t *testing.T) {
	result := Extract(`  {"actions":[{"action":"create_file","path":"a.txt","content":"hi"}]}  `)
	assert.Equal(t, "direct", result.Strategy)
	assert.False(t, result.Degraded)
	require.Len(t, result.Raw.Actions, 1)
	assert.Equal(t, "a.txt", result.Raw.Actions[0].Path)
}

func TestExtractFencedBlock(t *testing.T) {
	text := "Here is the plan:\n```json\n{\"actions\":[{\"action\":\"create_file\",\"path\":\"a.txt\",\"content\":\"hi\"}]}\n```\nLet me know."
	result := Extract(text)
	assert.Equal(t, "fenced_block", result.Strategy)
	require.Len(t, result.Raw.Actions, 1)
	assert.Equal(t, "hi", *result.Raw.Actions[0].Content)
}

func TestExtractFencedBlockWithoutTag(t *testing.T) {
	text := "```\n{\"actions\":[{\"action\":\"delete_file\",\"path\":\"old.txt\"}]}\n```"
	result := Extract(text)
	assert.Equal(t, "fenced_block", result.Strategy)
	require.Len(t, result.Raw.Actions, 1)
}

func TestExtractSkipsNonPlanFences(t *testing.T) {
	text := "```python\nprint('hello')\n```\nand then\n```json\n{\"actions\":[{\"action\":\"create_directory\",\"path\":\"src\"}]}\n```"
	result := Extract(text)
	assert.Equal(t, "fenced_block", result.Strategy)
	require.Len(t, result.Raw.Actions, 1)
	assert.Equal(t, "create_directory", result.Raw.Actions[0].Action)
}

func TestExtractBalancedSpanInsideProse(t *testing.T) {
	text := `Sure! The plan is {"actions":[{"action":"create_file","path":"a.txt","content":"nested {braces} ok"}]} as requested.`
	result := Extract(text)
	assert.Equal(t, "balanced_span", result.Strategy)
	require.Len(t, result.Raw.Actions, 1)
	assert.Equal(t, "nested {braces} ok", *result.Raw.Actions[0].Content)
}

func TestExtractRepairsUnescapedNewline(t *testing.T) {
	// Raw newline inside the content string makes this invalid JSON until
	// the repair pass escapes it.
	text := "{\"actions\":[{\"action\":\"create_file\",\"path\":\"a.txt\",\"content\":\"line one\nline two\"}]}"
	result := Extract(text)
	assert.Equal(t, "repaired_span", result.Strategy)
	require.Len(t, result.Raw.Actions, 1)
	assert.Equal(t, "line one\nline two", *result.Raw.Actions[0].Content)
}

func TestExtractRepairsMissingClosers(t *testing.T) {
	text := `{"actions":[{"action":"create_directory","path":"src"}`
	result := Extract(text)
	assert.Equal(t, "repaired_span", result.Strategy)
	require.Len(t, result.Raw.Actions, 1)
	assert.Equal(t, "src", result.Raw.Actions[0].Path)
}

func TestExtractStepEnumerationFallback(t *testing.T) {
	result := Extract("Step 1: do X. Step 2: do Y.")
	assert.Equal(t, "natural_language", result.Strategy)
	assert.True(t, result.Degraded)
	require.Len(t, result.Raw.Actions, 2)
	assert.Contains(t, *result.Raw.Actions[0].Content, "do X")
	assert.Contains(t, *result.Raw.Actions[1].Content, "do Y")
}

func TestExtractFileOpPhraseFallback(t *testing.T) {
	result := Extract("First create file `src/app.py`, then create a new file named README.md for docs.")
	assert.Equal(t, "natural_language", result.Strategy)
	require.Len(t, result.Raw.Actions, 2)
	assert.Equal(t, "src/app.py", result.Raw.Actions[0].Path)
	assert.Equal(t, "README.md", result.Raw.Actions[1].Path)
	assert.Contains(t, *result.Raw.Actions[0].Content, "TODO")
}

func TestExtractVerbatimWrapLastResort(t *testing.T) {
	input := "no structure here, just musings"
	result := Extract(input)
	assert.Equal(t, "verbatim_wrap", result.Strategy)
	assert.True(t, result.Degraded)
	require.Len(t, result.Raw.Actions, 1)
	assert.Equal(t, FallbackArtifact, result.Raw.Actions[0].Path)
	assert.Equal(t, input, *result.Raw.Actions[0].Content)
}

func TestExtractTotality(t *testing.T) {
	inputs := []string{
		"",
		"   \n\t  ",
		"{",
		"}{",
		"```",
		"```json",
		"\x00\x01\x02 binary garbage \xff",
		strings.Repeat("{\"a\":[", 50),
		`{"actions": "not a list"}`,
	}
	for _, input := range inputs {
		result := Extract(input)
		assert.NotEmpty(t, result.Strategy, "input %q", input)
		assert.NotEmpty(t, result.Raw.Actions, "input %q", input)
	}
}

func TestRepairIdempotentOnValidJSON(t *testing.T) {
	valid := `{"actions":[{"action":"create_file","path":"a.txt","content":"already\nescaped"}]}`
	repaired := Repair(valid, nil)
	assert.Equal(t, valid, repaired)

	var before, after plan.RawPlan
	require.NoError(t, json.Unmarshal([]byte(valid), &before))
	require.NoError(t, json.Unmarshal([]byte(repaired), &after))
	assert.Equal(t, before, after)
}

func TestRoundTripThroughFence(t *testing.T) {
	original := plan.Plan{Actions: []plan.Action{
		{Kind: plan.KindCreateDirectory, Path: "src"},
		{Kind: plan.KindCreateFile, Path: "src/main.py", Content: "print('hi')\n"},
		{Kind: plan.KindRunCommand, CommandLine: "python src/main.py", WorkingDir: "."},
	}}
	payload, err := json.Marshal(original)
	require.NoError(t, err)

	result := Extract("```json\n" + string(payload) + "\n```")
	require.Len(t, result.Raw.Actions, len(original.Actions))

	validated, rejections := plan.Validate(result.Raw, plan.Policy{Role: "coder", AllowedKinds: plan.AllKinds()})
	assert.Empty(t, rejections)
	assert.True(t, original.Equal(plan.Plan{Actions: validated.Actions}))
}
