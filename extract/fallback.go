package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lexcodex/replanify/plan"
)

var (
	stepPattern     = regexp.MustCompile(`(?is)(?:step|phase)\s+(\d+)\s*[:.)]\s*`)
	fileOpPattern   = regexp.MustCompile("(?i)create\\s+(?:a\\s+)?(?:new\\s+)?file\\s+(?:named\\s+|called\\s+)?`?([\\w./\\\\-]+)`?")
	placeholderBody = "TODO: the model described this file but did not provide its content.\n"
)

// naturalLanguageStrategy synthesizes actions from prose when the text
// contains no parseable structure: one action per enumerated step, or one
// create_file per file-operation phrase, with placeholder content flagged
// for user attention.
type naturalLanguageStrategy struct{}

func (naturalLanguageStrategy) name() string { return "natural_language" }

func (naturalLanguageStrategy) apply(text string) (plan.RawPlan, bool) {
	if actions := stepsFromProse(text); len(actions) > 1 {
		return plan.RawPlan{Actions: actions}, true
	}
	if actions := fileOpsFromProse(text); len(actions) > 0 {
		return plan.RawPlan{Actions: actions}, true
	}
	return plan.RawPlan{}, false
}

// stepsFromProse splits the text on a repeated "Step N:"/"Phase N:" pattern
// and synthesizes one descriptive action per step. A single occurrence is
// not treated as an enumeration.
func stepsFromProse(text string) []plan.RawAction {
	locs := stepPattern.FindAllStringSubmatchIndex(text, -1)
	if len(locs) < 2 {
		return nil
	}
	actions := make([]plan.RawAction, 0, len(locs))
	for i, loc := range locs {
		number := text[loc[2]:loc[3]]
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		body := strings.TrimSpace(text[loc[1]:end])
		content := body + "\n"
		actions = append(actions, plan.RawAction{
			Action:  string(plan.KindCreateFile),
			Path:    fmt.Sprintf("steps/step-%s.md", number),
			Content: &content,
			Note:    "synthesized from a step enumeration in prose",
		})
	}
	return actions
}

// fileOpsFromProse synthesizes one create_file per "create file `X`" phrase.
func fileOpsFromProse(text string) []plan.RawAction {
	matches := fileOpPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	var actions []plan.RawAction
	for _, m := range matches {
		path := strings.TrimSpace(m[1])
		if path == "" || seen[path] {
			continue
		}
		seen[path] = true
		content := placeholderBody
		actions = append(actions, plan.RawAction{
			Action:  string(plan.KindCreateFile),
			Path:    path,
			Content: &content,
			Note:    "synthesized from a file-operation phrase; placeholder content needs review",
		})
	}
	return actions
}
