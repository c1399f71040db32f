package plan

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ReasonCode classifies why a candidate action was rejected.
type ReasonCode string

const (
	// SchemaViolation: required field missing or unknown action kind.
	SchemaViolation ReasonCode = "schema_violation"
	// PolicyViolation: action kind not in the role's allow-list.
	PolicyViolation ReasonCode = "policy_violation"
	// PathViolation: target path outside the role's path restriction.
	PathViolation ReasonCode = "path_violation"
)

// Rejection records one dropped candidate with its reason, for
// caller-visible diagnostics. Rejections are never fatal.
type Rejection struct {
	Index     int        `json:"index"`
	Reason    ReasonCode `json:"reason"`
	Message   string     `json:"message"`
	Candidate RawAction  `json:"candidate"`
}

// Policy is the per-role filter applied during validation: which action
// kinds are permitted and, optionally, the single target path the role may
// touch. Policies are passed by value, never looked up globally.
type Policy struct {
	Role         string
	AllowedKinds []Kind
	// RestrictPath, when set, requires every path-bearing action to target
	// exactly this path.
	RestrictPath string
}

// Allows reports whether the policy permits the given kind.
func (p Policy) Allows(kind Kind) bool {
	for _, k := range p.AllowedKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Validate checks every candidate action against the schema and the role
// policy. Rejected candidates are dropped and recorded; the surviving
// actions form the returned plan in their original order. An empty plan is
// a valid (if unproductive) result.
func Validate(raw RawPlan, policy Policy) (Plan, []Rejection) {
	validated := Plan{Role: policy.Role}
	var rejections []Rejection
	for i, candidate := range raw.Actions {
		action, err := checkSchema(candidate)
		if err != nil {
			rejections = append(rejections, Rejection{
				Index:     i,
				Reason:    SchemaViolation,
				Message:   err.Error(),
				Candidate: candidate,
			})
			continue
		}
		if !policy.Allows(action.Kind) {
			rejections = append(rejections, Rejection{
				Index:     i,
				Reason:    PolicyViolation,
				Message:   fmt.Sprintf("role %q does not permit %s actions", policy.Role, action.Kind),
				Candidate: candidate,
			})
			continue
		}
		if policy.RestrictPath != "" && action.Kind != KindRunCommand && !samePath(action.Path, policy.RestrictPath) {
			rejections = append(rejections, Rejection{
				Index:     i,
				Reason:    PathViolation,
				Message:   fmt.Sprintf("role %q may only target %q, got %q", policy.Role, policy.RestrictPath, action.Path),
				Candidate: candidate,
			})
			continue
		}
		validated.Actions = append(validated.Actions, action)
	}
	return validated, rejections
}

// checkSchema verifies the per-kind required fields and maps the candidate
// into a typed Action. Unknown kinds are a schema violation, not a runtime
// failure further down the pipeline.
func checkSchema(raw RawAction) (Action, error) {
	kind := Kind(strings.TrimSpace(raw.Action))
	if kind == "" {
		return Action{}, fmt.Errorf("missing action kind")
	}
	if !kind.Known() {
		return Action{}, fmt.Errorf("unknown action kind %q", raw.Action)
	}
	action := Action{Kind: kind}
	switch kind {
	case KindCreateFile, KindEditFile:
		if err := CheckRelPath(raw.Path); err != nil {
			return Action{}, err
		}
		if raw.Content == nil {
			return Action{}, fmt.Errorf("%s requires content", kind)
		}
		action.Path = raw.Path
		action.Content = *raw.Content
	case KindDeleteFile, KindCreateDirectory:
		if err := CheckRelPath(raw.Path); err != nil {
			return Action{}, err
		}
		action.Path = raw.Path
	case KindRunCommand:
		if strings.TrimSpace(raw.CommandLine) == "" {
			return Action{}, fmt.Errorf("run_command requires command_line")
		}
		action.CommandLine = raw.CommandLine
		if raw.WorkingDir != "" {
			if err := CheckRelPath(raw.WorkingDir); err != nil {
				return Action{}, fmt.Errorf("working dir: %w", err)
			}
			action.WorkingDir = raw.WorkingDir
		}
	}
	return action, nil
}

func samePath(a, b string) bool {
	return filepath.ToSlash(filepath.Clean(a)) == filepath.ToSlash(filepath.Clean(b))
}
