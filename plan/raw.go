package plan

import (
	"encoding/json"
	"fmt"
)

// RawAction is the loosely-typed candidate shape produced by extraction,
// before schema and policy checks. Content stays a pointer so a missing
// field can be told apart from an explicit empty string.
type RawAction struct {
	Action      string  `json:"action"`
	Path        string  `json:"path,omitempty"`
	Content     *string `json:"content,omitempty"`
	CommandLine string  `json:"command_line,omitempty"`
	WorkingDir  string  `json:"cwd,omitempty"`
	// Note carries extractor-synthesized context (fallback strategies only).
	Note string `json:"note,omitempty"`
}

// RawPlan is the decode target for any plan-shaped payload.
type RawPlan struct {
	Actions []RawAction `json:"actions"`
}

// DecodeRaw parses a candidate JSON payload into a RawPlan. It accepts the
// canonical object form, a bare top-level action array, and a nested
// {"plan": {...}} wrapper, since models produce all three.
func DecodeRaw(data []byte) (RawPlan, error) {
	var direct RawPlan
	if err := json.Unmarshal(data, &direct); err == nil && direct.Actions != nil {
		return direct, nil
	}
	var list []RawAction
	if err := json.Unmarshal(data, &list); err == nil && len(list) > 0 {
		return RawPlan{Actions: list}, nil
	}
	var wrapped struct {
		Plan RawPlan `json:"plan"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Plan.Actions != nil {
		return wrapped.Plan, nil
	}
	// Re-run the direct decode to surface the original error, or flag the
	// structural mismatch when the JSON was valid but not plan-shaped.
	if err := json.Unmarshal(data, &direct); err != nil {
		return RawPlan{}, err
	}
	return RawPlan{}, fmt.Errorf("payload is valid JSON but contains no actions list")
}
