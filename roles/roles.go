// Package roles defines the per-role policy and prompt configuration the
// pipeline is parameterized with. Roles are explicit values passed into
// every call; there is no global lookup table.
package roles

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lexcodex/replanify/plan"
)

// Config binds a role identity to its permitted action kinds, an optional
// fixed target path, and the instructions sent to the model.
type Config struct {
	Name         string
	DisplayName  string
	AllowedKinds []plan.Kind
	// RestrictPath, when set, is the only path this role may write.
	RestrictPath string
	SystemPrompt string
}

// Policy converts the role into the validator's filter value.
func (c Config) Policy() plan.Policy {
	return plan.Policy{
		Role:         c.Name,
		AllowedKinds: append([]plan.Kind(nil), c.AllowedKinds...),
		RestrictPath: c.RestrictPath,
	}
}

// Validate checks the role definition itself.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("role name required")
	}
	if len(c.AllowedKinds) == 0 {
		return fmt.Errorf("role %q permits no action kinds", c.Name)
	}
	for _, kind := range c.AllowedKinds {
		if !kind.Known() {
			return fmt.Errorf("role %q references unknown action kind %q", c.Name, kind)
		}
	}
	return nil
}

// Registry holds the effective role set: built-ins plus any overrides.
type Registry struct {
	byName map[string]Config
}

// NewRegistry builds a registry seeded with the provided roles.
func NewRegistry(configs ...Config) (*Registry, error) {
	r := &Registry{byName: make(map[string]Config, len(configs))}
	for _, cfg := range configs {
		if err := r.Register(cfg); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds or replaces a role definition.
func (r *Registry) Register(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.byName[cfg.Name] = cfg
	return nil
}

// Get looks up a role by name.
func (r *Registry) Get(name string) (Config, bool) {
	cfg, ok := r.byName[name]
	return cfg, ok
}

// Names returns the registered role names sorted for stable listings.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
