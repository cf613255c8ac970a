// Package config handles ollie configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./ollie.yaml, ~/.config/ollie/config.yaml, /etc/ollie/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"ollie.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "ollie", "config.yaml"))
	}

	paths = append(paths, "/etc/ollie/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all ollie configuration.
type Config struct {
	Ollama      OllamaConfig      `yaml:"ollama"`
	Agent       AgentConfig       `yaml:"agent"`
	Workspace   WorkspaceConfig   `yaml:"workspace"`
	ShellExec   ShellExecConfig   `yaml:"shell_exec"`
	Permissions PermissionsConfig `yaml:"permissions"`
	Search      SearchConfig      `yaml:"search"`
	History     HistoryConfig     `yaml:"history"`
	LogLevel    string            `yaml:"log_level"`
}

// OllamaConfig defines the Ollama connection and sampling settings.
type OllamaConfig struct {
	BaseURL string `yaml:"base_url"` // Default: http://localhost:11434
	Model   string `yaml:"model"`    // Default model; auto-discovered if empty
	// Sampling parameters passed through to the model.
	Temperature float64 `yaml:"temperature"`
	TopP        float64 `yaml:"top_p"`
	NumPredict  int     `yaml:"num_predict"` // Max output tokens; 0 = model default
}

// AgentConfig defines the orchestration loop settings.
type AgentConfig struct {
	// Enabled toggles the tool round. When false every turn is a plain
	// chat completion.
	Enabled bool `yaml:"enabled"`
	// LLMTimeoutSec bounds each model call. On expiry the turn falls back
	// to a completion without tools.
	LLMTimeoutSec int `yaml:"llm_timeout_sec"`
	// ToolTimeoutSec bounds a single tool execution.
	ToolTimeoutSec int `yaml:"tool_timeout_sec"`
	// MaxMessages is the conversation context ceiling (message count).
	MaxMessages int `yaml:"max_messages"`
	// ToolOutputMaxChars is the size ceiling for tool output fed back to
	// the model. Oversized output is head/tail truncated.
	ToolOutputMaxChars int `yaml:"tool_output_max_chars"`
	// ToolOutputHeadFraction is the share of the ceiling kept from the
	// start of oversized output; the rest comes from the end.
	ToolOutputHeadFraction float64 `yaml:"tool_output_head_fraction"`
	// SystemPrompt overrides the built-in system prompt when set.
	SystemPrompt string `yaml:"system_prompt"`
}

// WorkspaceConfig defines the agent's workspace for file operations.
type WorkspaceConfig struct {
	// Path is the root directory for file tools. All file tool paths are
	// resolved relative to it. If empty, file tools are disabled.
	Path string `yaml:"path"`
}

// ShellExecConfig defines shell execution capabilities.
type ShellExecConfig struct {
	// Enabled allows shell command execution. Disabled by default.
	Enabled bool `yaml:"enabled"`
	// WorkingDir sets the default working directory for commands.
	WorkingDir string `yaml:"working_dir"`
	// DeniedPatterns are command substrings to block (e.g., "rm -rf /").
	DeniedPatterns []string `yaml:"denied_patterns"`
	// AllowedPrefixes limits commands to those starting with these
	// prefixes. Empty means all commands are allowed (subject to
	// denied patterns).
	AllowedPrefixes []string `yaml:"allowed_prefixes"`
	// DefaultTimeoutSec is the per-command timeout (default 30).
	DefaultTimeoutSec int `yaml:"default_timeout_sec"`
	// MaxOutputBytes caps captured stdout/stderr (default 100KB).
	MaxOutputBytes int `yaml:"max_output_bytes"`
}

// PermissionsConfig defines the permission policy for tool targets.
type PermissionsConfig struct {
	// Mode is one of strict, moderate, permissive (default moderate).
	Mode string `yaml:"mode"`
	// AllowedPaths are path patterns tools may touch. ${CWD} and ${HOME}
	// are expanded. Empty means the workspace only.
	AllowedPaths []string `yaml:"allowed_paths"`
	// DeniedPaths are path patterns that are always refused.
	DeniedPaths []string `yaml:"denied_paths"`
	// DeniedCommands are command substrings that are always refused.
	DeniedCommands []string `yaml:"denied_commands"`
	// AllowedHosts restricts web fetches. Empty means any host.
	AllowedHosts []string `yaml:"allowed_hosts"`
}

// SearchConfig defines the web search provider.
type SearchConfig struct {
	// Provider selects the backend ("searxng" or "brave"). Empty
	// disables web_search.
	Provider string `yaml:"provider"`
	// BaseURL is the SearXNG instance root URL.
	BaseURL string `yaml:"base_url"`
	// APIKey is the Brave Search subscription token.
	APIKey string `yaml:"api_key"`
}

// HistoryConfig defines transcript persistence.
type HistoryConfig struct {
	// DBPath is the SQLite transcript database. Empty disables it.
	DBPath string `yaml:"db_path"`
	// SaveDir is where /save writes conversation JSON files.
	SaveDir string `yaml:"save_dir"`
}

// Load reads configuration from a YAML file, expands environment
// variables, and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	return &Config{
		Ollama: OllamaConfig{
			BaseURL:     "http://localhost:11434",
			Temperature: 0.7,
			TopP:        0.9,
		},
		Agent: AgentConfig{
			Enabled:                true,
			LLMTimeoutSec:          15,
			ToolTimeoutSec:         30,
			MaxMessages:            100,
			ToolOutputMaxChars:     8000,
			ToolOutputHeadFraction: 0.6,
		},
		Workspace: WorkspaceConfig{
			Path: ".",
		},
		ShellExec: ShellExecConfig{
			DefaultTimeoutSec: 30,
			MaxOutputBytes:    100 * 1024,
		},
		Permissions: PermissionsConfig{
			Mode: "moderate",
		},
	}
}

// Validate checks ranges that would break the orchestration loop.
func (c *Config) Validate() error {
	if c.Agent.LLMTimeoutSec <= 0 {
		return fmt.Errorf("agent.llm_timeout_sec must be positive, got %d", c.Agent.LLMTimeoutSec)
	}
	if c.Agent.ToolTimeoutSec <= 0 {
		return fmt.Errorf("agent.tool_timeout_sec must be positive, got %d", c.Agent.ToolTimeoutSec)
	}
	if c.Agent.MaxMessages < 2 {
		return fmt.Errorf("agent.max_messages must be at least 2, got %d", c.Agent.MaxMessages)
	}
	if f := c.Agent.ToolOutputHeadFraction; f <= 0 || f >= 1 {
		return fmt.Errorf("agent.tool_output_head_fraction must be in (0,1), got %g", f)
	}
	switch c.Permissions.Mode {
	case "", "strict", "moderate", "permissive":
	default:
		return fmt.Errorf("unknown permissions.mode %q (valid: strict, moderate, permissive)", c.Permissions.Mode)
	}
	return nil
}
