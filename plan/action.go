// Package plan defines the action-plan data model shared by the extractor,
// validator, executor, and replanning controller.
package plan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

// Kind identifies one action variant. The string values are the serialized
// wire contract for any plan representation.
type Kind string

const (
	KindCreateFile      Kind = "create_file"
	KindEditFile        Kind = "edit_file"
	KindDeleteFile      Kind = "delete_file"
	KindCreateDirectory Kind = "create_directory"
	KindRunCommand      Kind = "run_command"
)

// AllKinds lists every known action kind in a stable order.
func AllKinds() []Kind {
	return []Kind{KindCreateFile, KindEditFile, KindDeleteFile, KindCreateDirectory, KindRunCommand}
}

// Known reports whether the kind is part of the action vocabulary.
func (k Kind) Known() bool {
	switch k {
	case KindCreateFile, KindEditFile, KindDeleteFile, KindCreateDirectory, KindRunCommand:
		return true
	}
	return false
}

// Action is one validated file or command operation. Instances are produced
// by Validate and treated as immutable afterwards.
type Action struct {
	Kind        Kind
	Path        string
	Content     string
	CommandLine string
	WorkingDir  string
}

// MarshalJSON emits only the fields relevant to the action kind, so a
// round-tripped plan carries no stray empty fields and field order stays
// canonical for fingerprinting.
func (a Action) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"action":`)
	writeJSONString(&buf, string(a.Kind))
	switch a.Kind {
	case KindCreateFile, KindEditFile:
		buf.WriteString(`,"path":`)
		writeJSONString(&buf, a.Path)
		buf.WriteString(`,"content":`)
		writeJSONString(&buf, a.Content)
	case KindDeleteFile, KindCreateDirectory:
		buf.WriteString(`,"path":`)
		writeJSONString(&buf, a.Path)
	case KindRunCommand:
		buf.WriteString(`,"command_line":`)
		writeJSONString(&buf, a.CommandLine)
		if a.WorkingDir != "" {
			buf.WriteString(`,"cwd":`)
			writeJSONString(&buf, a.WorkingDir)
		}
	default:
		return nil, fmt.Errorf("marshal action: unknown kind %q", a.Kind)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts the serialized wire shape.
func (a *Action) UnmarshalJSON(data []byte) error {
	var raw RawAction
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	a.Kind = Kind(raw.Action)
	a.Path = raw.Path
	if raw.Content != nil {
		a.Content = *raw.Content
	} else {
		a.Content = ""
	}
	a.CommandLine = raw.CommandLine
	a.WorkingDir = raw.WorkingDir
	return nil
}

func writeJSONString(buf *bytes.Buffer, s string) {
	encoded, _ := json.Marshal(s)
	buf.Write(encoded)
}

// String renders a short human-readable description for logs and prompts.
func (a Action) String() string {
	if a.Kind == KindRunCommand {
		if a.WorkingDir != "" {
			return fmt.Sprintf("%s %q (cwd=%s)", a.Kind, a.CommandLine, a.WorkingDir)
		}
		return fmt.Sprintf("%s %q", a.Kind, a.CommandLine)
	}
	return fmt.Sprintf("%s %s", a.Kind, a.Path)
}

// Equal compares two actions field by field.
func (a Action) Equal(other Action) bool {
	return a.Kind == other.Kind &&
		a.Path == other.Path &&
		a.Content == other.Content &&
		a.CommandLine == other.CommandLine &&
		a.WorkingDir == other.WorkingDir
}

// CheckRelPath rejects paths that are empty, absolute, or escape above the
// directory they are resolved against. The executor re-checks against the
// concrete project root before touching the filesystem.
func CheckRelPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("path required")
	}
	if filepath.IsAbs(path) || strings.HasPrefix(path, "/") || strings.HasPrefix(path, "\\") {
		return fmt.Errorf("path %q must be relative to the project root", path)
	}
	if len(path) > 1 && path[1] == ':' {
		return fmt.Errorf("path %q must be relative to the project root", path)
	}
	clean := filepath.ToSlash(filepath.Clean(path))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("path %q escapes the project root", path)
	}
	return nil
}
