package roles

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lexcodex/replanify/plan"
)

// definition is the on-disk YAML shape for a role override.
type definition struct {
	Name         string   `yaml:"name"`
	DisplayName  string   `yaml:"display_name"`
	Allowed      []string `yaml:"allowed_actions"`
	RestrictPath string   `yaml:"restrict_path"`
	SystemPrompt string   `yaml:"system_prompt"`
}

func (d definition) toConfig() (Config, error) {
	cfg := Config{
		Name:         strings.TrimSpace(d.Name),
		DisplayName:  d.DisplayName,
		RestrictPath: d.RestrictPath,
		SystemPrompt: d.SystemPrompt,
	}
	for _, name := range d.Allowed {
		kind := plan.Kind(strings.TrimSpace(name))
		if !kind.Known() {
			return Config{}, fmt.Errorf("role %q: unknown action kind %q", d.Name, name)
		}
		cfg.AllowedKinds = append(cfg.AllowedKinds, kind)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile parses a single YAML role definition.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("roles: read %s: %w", path, err)
	}
	var def definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Config{}, fmt.Errorf("roles: decode %s: %w", path, err)
	}
	cfg, err := def.toConfig()
	if err != nil {
		return Config{}, fmt.Errorf("roles: %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDir scans a directory for *.yaml/*.yml role definitions and registers
// them over the registry's existing entries. A missing directory means "no
// overrides" and is not an error.
func LoadDir(registry *Registry, dir string) error {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil
	}
	entries, err := os.ReadDir(trimmed)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("roles: read %s: %w", trimmed, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		cfg, err := LoadFile(filepath.Join(trimmed, entry.Name()))
		if err != nil {
			return err
		}
		if err := registry.Register(cfg); err != nil {
			return err
		}
	}
	return nil
}
