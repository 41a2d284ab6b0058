// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/vinayprograms/crew/internal/tools"
)

// DefaultFile is the config file looked up in the current directory.
const DefaultFile = "crew.toml"

// Config represents the crew configuration.
type Config struct {
	LLM        LLMConfig        `toml:"llm"`       // Worker model
	SmallLLM   LLMConfig        `toml:"small_llm"` // Planner and decision model
	Limits     LimitsConfig     `toml:"limits"`
	Workspace  WorkspaceConfig  `toml:"workspace"`
	Storage    StorageConfig    `toml:"storage"`
	Escalation EscalationConfig `toml:"escalation"`
	Personas   PersonasConfig   `toml:"personas"`
	Teams      []TeamConfig     `toml:"teams"`
}

// LLMConfig contains LLM provider settings.
type LLMConfig struct {
	Provider     string `toml:"provider"`
	Model        string `toml:"model"`
	APIKeyEnv    string `toml:"api_key_env"`
	MaxTokens    int    `toml:"max_tokens"`
	BaseURL      string `toml:"base_url"`      // Custom API endpoint (OpenRouter, LiteLLM, Ollama, LMStudio)
	Thinking     string `toml:"thinking"`      // auto|off|low|medium|high
	MaxRetries   int    `toml:"max_retries"`   // backend retry attempts
	RetryBackoff string `toml:"retry_backoff"` // max backoff duration, e.g. "60s"
}

// LimitsConfig bounds the engine's loops.
type LimitsConfig struct {
	ToolIterations int `toml:"tool_iterations"` // completions per worker attempt
	TaskAttempts   int `toml:"task_attempts"`   // attempts per task (at most 3)
	TeamIterations int `toml:"team_iterations"` // execute/verify/fix cycles per project
}

// WorkspaceConfig configures the built-in tools.
type WorkspaceConfig struct {
	Root           string `toml:"root"`
	CommandTimeout string   `toml:"command_timeout"` // run_command timeout, e.g. "2m"
	DeniedCommands []string `toml:"denied_commands"` // blocked on top of the built-in bash denylist
}

// StorageConfig contains persistent storage settings.
type StorageConfig struct {
	Path    string `toml:"path"`    // Base directory for run journals
	Journal bool   `toml:"journal"` // record a JSONL journal per run
}

// EscalationConfig configures escalation delivery.
type EscalationConfig struct {
	NATSURL string `toml:"nats_url"` // empty disables NATS publishing
	Subject string `toml:"subject"`
	Buffer  int    `toml:"buffer"`
}

// PersonasConfig lists directories searched for PERSONA.md files.
type PersonasConfig struct {
	Paths []string `toml:"paths"`
}

// TeamConfig declares a team and the roles of its workers.
type TeamConfig struct {
	Name        string   `toml:"name"`
	Description string   `toml:"description"`
	Workers     []string `toml:"workers"`
}

// New creates a new config with defaults.
func New() *Config {
	return &Config{
		LLM: LLMConfig{
			MaxTokens: 4096,
		},
		SmallLLM: LLMConfig{
			MaxTokens: 2048,
		},
		Limits: LimitsConfig{
			ToolIterations: 10,
			TaskAttempts:   3,
			TeamIterations: 5,
		},
		Workspace: WorkspaceConfig{
			Root:           ".",
			CommandTimeout: "2m",
		},
		Storage: StorageConfig{
			Path:    "~/.local/crew",
			Journal: true,
		},
		Escalation: EscalationConfig{
			Subject: "crew.escalations",
			Buffer:  64,
		},
	}
}

// Default returns a default configuration with one general-purpose team.
func Default() *Config {
	cfg := New()
	cfg.Teams = []TeamConfig{DefaultTeam()}
	return cfg
}

// DefaultTeam is the team used when none is configured.
func DefaultTeam() TeamConfig {
	return TeamConfig{
		Name:    "core",
		Workers: []string{"frontend", "backend", "general", "qa"},
	}
}

// LoadFile loads configuration from a TOML file.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if len(cfg.Teams) == 0 {
		cfg.Teams = []TeamConfig{DefaultTeam()}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads configuration from crew.toml in the current directory.
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}

	return LoadFile(filepath.Join(cwd, DefaultFile))
}

// Validate checks team declarations and limits.
func (c *Config) Validate() error {
	if c.Limits.TaskAttempts > 3 {
		return fmt.Errorf("limits.task_attempts must be at most 3, got %d", c.Limits.TaskAttempts)
	}
	seen := make(map[string]bool, len(c.Teams))
	for i, t := range c.Teams {
		if t.Name == "" {
			return fmt.Errorf("teams[%d]: name is required", i)
		}
		key := strings.ToLower(t.Name)
		if seen[key] {
			return fmt.Errorf("teams[%d]: duplicate team %q", i, t.Name)
		}
		seen[key] = true
		if len(t.Workers) == 0 {
			return fmt.Errorf("team %s: at least one worker is required", t.Name)
		}
		for _, w := range t.Workers {
			if _, ok := tools.ParseRole(strings.ToLower(strings.TrimSpace(w))); !ok {
				return fmt.Errorf("team %s: unknown worker role %q", t.Name, w)
			}
		}
	}
	if c.Workspace.CommandTimeout != "" {
		if _, err := time.ParseDuration(c.Workspace.CommandTimeout); err != nil {
			return fmt.Errorf("workspace.command_timeout: %w", err)
		}
	}
	return nil
}

// Team returns the named team, matching case-insensitively.
func (c *Config) Team(name string) (TeamConfig, bool) {
	for _, t := range c.Teams {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return TeamConfig{}, false
}

// Roles returns the parsed worker roles of a team.
func (t TeamConfig) Roles() []tools.Role {
	var out []tools.Role
	for _, w := range t.Workers {
		if r, ok := tools.ParseRole(strings.ToLower(strings.TrimSpace(w))); ok {
			out = append(out, r)
		}
	}
	return out
}

// CommandTimeout returns the parsed run_command timeout, zero when unset.
func (c *Config) CommandTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Workspace.CommandTimeout)
	return d
}

// StoragePath returns the storage path with a leading ~ expanded.
func (c *Config) StoragePath() string {
	return ExpandPath(c.Storage.Path)
}

// ExpandPath expands a leading ~ to the home directory.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// GetAPIKey returns the API key from the configured environment variable.
// If api_key_env is not set, uses the default env var for the provider.
func (l LLMConfig) GetAPIKey() string {
	envVar := l.APIKeyEnv
	if envVar == "" {
		envVar = DefaultAPIKeyEnv(l.Provider)
	}
	if envVar == "" {
		return ""
	}
	return os.Getenv(envVar)
}

// Small returns the planner model config, falling back to the worker model
// for unset fields.
func (c *Config) Small() LLMConfig {
	s := c.SmallLLM
	if s.Model == "" {
		return c.LLM
	}
	if s.Provider == "" && s.APIKeyEnv == "" {
		s.APIKeyEnv = c.LLM.APIKeyEnv
	}
	if s.MaxTokens == 0 {
		s.MaxTokens = c.LLM.MaxTokens
	}
	return s
}

// DefaultAPIKeyEnv returns the default environment variable name for a provider.
func DefaultAPIKeyEnv(provider string) string {
	switch provider {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	case "google":
		return "GOOGLE_API_KEY"
	case "mistral":
		return "MISTRAL_API_KEY"
	case "groq":
		return "GROQ_API_KEY"
	default:
		return ""
	}
}
