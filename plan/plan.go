package plan

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Plan is an ordered, validated sequence of actions. Order is significant:
// later actions may depend on files or directories created by earlier ones.
// A plan is never mutated after validation produces it.
type Plan struct {
	Role    string   `json:"role,omitempty"`
	Actions []Action `json:"actions"`
}

// Empty reports whether the plan carries no actions. An empty plan is a
// valid no-op result, not an error.
func (p Plan) Empty() bool { return len(p.Actions) == 0 }

// Equal compares two plans structurally: element-wise, order-sensitive,
// field by field. Role identity does not participate.
func (p Plan) Equal(other Plan) bool {
	if len(p.Actions) != len(other.Actions) {
		return false
	}
	for i := range p.Actions {
		if !p.Actions[i].Equal(other.Actions[i]) {
			return false
		}
	}
	return true
}

// Fingerprint returns a digest of the canonical serialized form. Action
// marshalling emits fields in a fixed order per kind, so two plans that
// differ only in incidental input field ordering fingerprint identically.
// The replanning loop guard compares these digests.
func (p Plan) Fingerprint() string {
	data, err := json.Marshal(p.Actions)
	if err != nil {
		// Only reachable with an unknown kind, which validation excludes.
		data = []byte(err.Error())
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
