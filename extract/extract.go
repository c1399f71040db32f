// Package extract turns free-form model output into a best-effort
// plan-shaped value. Extraction is total: every input, including empty or
// binary garbage, yields a usable result.
package extract

import (
	"strings"

	"github.com/lexcodex/replanify/plan"
)

// Result carries the extracted candidate plan plus provenance. Degraded
// marks low-confidence output from the natural-language and verbatim-wrap
// fallbacks; it is a flag, never an error.
type Result struct {
	Raw      plan.RawPlan
	Strategy string
	Degraded bool
}

// strategy attempts one extraction technique. Returning ok=false hands the
// input to the next strategy in the cascade.
type strategy interface {
	name() string
	apply(text string) (plan.RawPlan, bool)
}

// cascade is the ordered strategy list; first success wins. The verbatim
// wrapper at the end always succeeds.
var cascade = []strategy{
	directStrategy{},
	fencedStrategy{},
	balancedSpanStrategy{},
	repairStrategy{},
	naturalLanguageStrategy{},
	verbatimStrategy{},
}

// Extract runs the cascade over the input. It never fails and never panics;
// callers downstream depend on totality.
func Extract(text string) Result {
	for _, s := range cascade {
		if raw, ok := s.apply(text); ok {
			name := s.name()
			return Result{
				Raw:      raw,
				Strategy: name,
				Degraded: name == "natural_language" || name == "verbatim_wrap",
			}
		}
	}
	// Unreachable: verbatimStrategy always succeeds. Kept as a hard
	// guarantee of totality should the cascade ever be reordered.
	raw, _ := verbatimStrategy{}.apply(text)
	return Result{Raw: raw, Strategy: "verbatim_wrap", Degraded: true}
}

// tryDecode parses a candidate span as a plan payload.
func tryDecode(candidate string) (plan.RawPlan, bool) {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return plan.RawPlan{}, false
	}
	raw, err := plan.DecodeRaw([]byte(trimmed))
	if err != nil {
		return plan.RawPlan{}, false
	}
	return raw, true
}

// directStrategy parses the whole trimmed input as the target grammar.
type directStrategy struct{}

func (directStrategy) name() string { return "direct" }

func (directStrategy) apply(text string) (plan.RawPlan, bool) {
	return tryDecode(text)
}

// fencedStrategy scans fenced code blocks in document order and attempts a
// direct parse of each block's inner text. The language tag is optional and
// ignored; models label plan payloads inconsistently.
type fencedStrategy struct{}

func (fencedStrategy) name() string { return "fenced_block" }

func (fencedStrategy) apply(text string) (plan.RawPlan, bool) {
	for _, block := range fencedBlocks(text) {
		if raw, ok := tryDecode(block); ok {
			return raw, true
		}
	}
	return plan.RawPlan{}, false
}

// fencedBlocks returns the inner text of every triple-backtick block, in
// document order.
func fencedBlocks(text string) []string {
	var blocks []string
	rest := text
	for {
		start := strings.Index(rest, "```")
		if start < 0 {
			return blocks
		}
		rest = rest[start+3:]
		// Skip the optional language tag up to the first newline.
		newline := strings.IndexByte(rest, '\n')
		if newline < 0 {
			return blocks
		}
		rest = rest[newline+1:]
		end := strings.Index(rest, "```")
		if end < 0 {
			// An unterminated fence still yields its tail as a candidate.
			blocks = append(blocks, rest)
			return blocks
		}
		blocks = append(blocks, rest[:end])
		rest = rest[end+3:]
	}
}

// balancedSpanStrategy locates the first balanced bracket span in the raw
// text, tracking nesting and string literals, and parses it directly.
type balancedSpanStrategy struct{}

func (balancedSpanStrategy) name() string { return "balanced_span" }

func (balancedSpanStrategy) apply(text string) (plan.RawPlan, bool) {
	span, missing := candidateSpan(text)
	if span == "" || len(missing) > 0 {
		return plan.RawPlan{}, false
	}
	return tryDecode(span)
}

// repairStrategy runs the heuristic repair pass over the best candidate
// span and retries the parse.
type repairStrategy struct{}

func (repairStrategy) name() string { return "repaired_span" }

func (repairStrategy) apply(text string) (plan.RawPlan, bool) {
	span, missing := candidateSpan(text)
	if span == "" {
		// No bracket at all; nothing to repair.
		return plan.RawPlan{}, false
	}
	return tryDecode(Repair(span, missing))
}

// verbatimStrategy wraps the entire raw input as the content of a single
// create_file action so no information is ever silently dropped.
type verbatimStrategy struct{}

func (verbatimStrategy) name() string { return "verbatim_wrap" }

// FallbackArtifact is the conventional target for wrapped raw output.
const FallbackArtifact = "recovered_output.md"

func (verbatimStrategy) apply(text string) (plan.RawPlan, bool) {
	content := text
	return plan.RawPlan{Actions: []plan.RawAction{{
		Action:  string(plan.KindCreateFile),
		Path:    FallbackArtifact,
		Content: &content,
		Note:    "model output did not contain a structured plan; wrapped verbatim",
	}}}, true
}
