// Package runtime wires the pipeline's pieces together for the CLI and
// server entry points: config, role registry, model client, journal, and
// the replanning controller.
package runtime

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lexcodex/replanify/executor"
)

// Config captures every knob shared across the replanify CLI and server
// entry points. Keeping it a lightweight struct makes it trivial to reuse
// in tests.
type Config struct {
	Workspace      string
	ConfigPath     string
	RolesDir       string
	LogPath        string
	JournalPath    string
	OllamaEndpoint string
	OllamaModel    string
	RoleName       string
	Mode           string
	MaxAttempts    int
	ServerAddr     string
	RPCAddr        string
	CommandTimeout time.Duration
	Debug          bool
}

// DefaultConfig infers sensible defaults based on the current working
// directory. Errors from os.Getwd are ignored so callers can override
// manually.
func DefaultConfig() Config {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	return Config{
		Workspace:      cwd,
		ConfigPath:     filepath.Join(cwd, ".replanify", "config.yaml"),
		RolesDir:       filepath.Join(cwd, ".replanify", "roles"),
		LogPath:        filepath.Join(cwd, ".replanify", "replanify.log"),
		JournalPath:    filepath.Join(cwd, ".replanify", "journal.db"),
		OllamaModel:    "deepseek-r1:7b",
		RoleName:       "coder",
		Mode:           string(executor.ModeCaptured),
		MaxAttempts:    3,
		ServerAddr:     ":8080",
		RPCAddr:        ":8081",
		CommandTimeout: 10 * time.Minute,
	}
}

// Normalize ensures every filesystem path is absolute and fills missing
// defaults so runtime initialization never has to re-check the same
// invariants.
func (c *Config) Normalize() error {
	if c.Workspace == "" {
		return fmt.Errorf("workspace path required")
	}
	absWorkspace, err := filepath.Abs(c.Workspace)
	if err != nil {
		return fmt.Errorf("resolve workspace: %w", err)
	}
	c.Workspace = absWorkspace
	if c.ConfigPath == "" {
		c.ConfigPath = filepath.Join(c.Workspace, ".replanify", "config.yaml")
	}
	if !filepath.IsAbs(c.ConfigPath) {
		c.ConfigPath = filepath.Join(c.Workspace, c.ConfigPath)
	}
	if c.RolesDir == "" {
		c.RolesDir = filepath.Join(c.Workspace, ".replanify", "roles")
	}
	if !filepath.IsAbs(c.RolesDir) {
		c.RolesDir = filepath.Join(c.Workspace, c.RolesDir)
	}
	if c.LogPath == "" {
		c.LogPath = filepath.Join(c.Workspace, ".replanify", "replanify.log")
	}
	if !filepath.IsAbs(c.LogPath) {
		c.LogPath = filepath.Join(c.Workspace, c.LogPath)
	}
	if c.JournalPath != "" && !filepath.IsAbs(c.JournalPath) {
		c.JournalPath = filepath.Join(c.Workspace, c.JournalPath)
	}
	if c.OllamaEndpoint == "" {
		c.OllamaEndpoint = "http://localhost:11434"
	}
	if c.OllamaModel == "" {
		c.OllamaModel = "deepseek-r1:7b"
	}
	if c.RoleName == "" {
		c.RoleName = "coder"
	}
	switch c.Mode {
	case "":
		c.Mode = string(executor.ModeCaptured)
	case string(executor.ModeCaptured), string(executor.ModeStreaming):
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.ServerAddr == "" {
		c.ServerAddr = ":8080"
	}
	if c.RPCAddr == "" {
		c.RPCAddr = ":8081"
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 10 * time.Minute
	}
	return nil
}

// ExecutionMode converts the string knob to the executor's type. Normalize
// has already rejected unknown values.
func (c Config) ExecutionMode() executor.Mode {
	if c.Mode == string(executor.ModeStreaming) {
		return executor.ModeStreaming
	}
	return executor.ModeCaptured
}

// FileConfig captures persisted selections reused across runs.
type FileConfig struct {
	Model       string `yaml:"model"`
	Endpoint    string `yaml:"endpoint"`
	Role        string `yaml:"role"`
	Mode        string `yaml:"mode"`
	MaxAttempts int    `yaml:"max_attempts"`
	Journal     string `yaml:"journal"`
	RolesDir    string `yaml:"roles_dir"`
}

// LoadFileConfig loads the persisted configuration from disk.
func LoadFileConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, err
	}
	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return FileConfig{}, err
	}
	return cfg, nil
}

// SaveFileConfig persists selections for future sessions.
func SaveFileConfig(path string, cfg FileConfig) error {
	if path == "" {
		return fmt.Errorf("config path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// apply folds persisted selections over the base config. Explicit flags
// win because callers apply the file before parsing flags.
func (c *Config) apply(file FileConfig) {
	if file.Model != "" {
		c.OllamaModel = file.Model
	}
	if file.Endpoint != "" {
		c.OllamaEndpoint = file.Endpoint
	}
	if file.Role != "" {
		c.RoleName = file.Role
	}
	if file.Mode != "" {
		c.Mode = file.Mode
	}
	if file.MaxAttempts > 0 {
		c.MaxAttempts = file.MaxAttempts
	}
	if file.Journal != "" {
		c.JournalPath = file.Journal
	}
	if file.RolesDir != "" {
		c.RolesDir = file.RolesDir
	}
}
