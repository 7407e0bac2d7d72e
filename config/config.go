// Package config loads the Convoke configuration surface from YAML with
// environment variable fallbacks for credentials.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ProviderConfig holds the connection settings for one model backend.
type ProviderConfig struct {
	APIKey       string        `yaml:"api_key"`
	BaseURL      string        `yaml:"base_url"`
	DefaultModel string        `yaml:"default_model"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
}

// GuardConfig configures the security guard.
type GuardConfig struct {
	PromptGuardEnabled   bool     `yaml:"prompt_guard_enabled"`
	BlockedPatterns      []string `yaml:"blocked_patterns"`
	SymbolRatioThreshold float64  `yaml:"symbol_ratio_threshold"`
	AllowedTools         []string `yaml:"allowed_tools"`
	DeniedTools          []string `yaml:"denied_tools"`
}

// MemoryConfig bounds conversation and session memory defaults.
type MemoryConfig struct {
	ConversationMaxMessages int `yaml:"conversation_max_messages"`
	ConversationTTLHours    int `yaml:"conversation_ttl_hours"`
	SessionTTLHours         int `yaml:"session_ttl_hours"`
	VectorKResults          int `yaml:"vector_k_results"`
}

// Config is the root configuration object.
type Config struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
	Guard     GuardConfig               `yaml:"guard"`
	Memory    MemoryConfig              `yaml:"memory"`

	RateLimitRequestsPerMinute int `yaml:"rate_limit_requests_per_minute"`

	// ToolFanOutLimit bounds concurrent tool dispatch within one step.
	ToolFanOutLimit int `yaml:"tool_fan_out_limit"`
	// ToolTimeout is the default per-call execution bound.
	ToolTimeout time.Duration `yaml:"tool_timeout"`
}

// Default returns the baseline configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Providers: map[string]ProviderConfig{},
		Guard: GuardConfig{
			PromptGuardEnabled: true,
			BlockedPatterns: []string{
				`ignore\s+(all\s+)?previous\s+instructions`,
				`disregard\s+(all\s+)?prior\s+instructions`,
				`you\s+are\s+now\s+(in\s+)?developer\s+mode`,
				`system\s*prompt\s*[:=]`,
				`<\s*/?\s*system\s*>`,
			},
			SymbolRatioThreshold: 0.5,
		},
		Memory: MemoryConfig{
			ConversationMaxMessages: 50,
			ConversationTTLHours:    24,
			SessionTTLHours:         1,
			VectorKResults:          4,
		},
		RateLimitRequestsPerMinute: 30,
		ToolFanOutLimit:            4,
		ToolTimeout:                30 * time.Second,
	}
}

// Load reads a YAML config file, layers it over defaults and applies
// environment overrides for credentials.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds a configuration purely from defaults plus environment
// variables, the common path for tests and small deployments.
func FromEnv() *Config {
	cfg := Default()
	cfg.applyEnv()
	return cfg
}

// applyEnv fills provider credentials from <PROVIDER>_API_KEY style variables
// without overwriting values set in the file.
func (c *Config) applyEnv() {
	for _, name := range []string{"openai", "anthropic", "google"} {
		pc := c.Providers[name]
		if pc.APIKey == "" {
			pc.APIKey = os.Getenv(strings.ToUpper(name) + "_API_KEY")
		}
		if pc.BaseURL == "" {
			pc.BaseURL = os.Getenv(strings.ToUpper(name) + "_BASE_URL")
		}
		if pc.APIKey != "" || pc.BaseURL != "" {
			c.Providers[name] = pc
		}
	}
}

func (c *Config) validate() error {
	if c.Memory.ConversationMaxMessages < 1 {
		return fmt.Errorf("config: conversation_max_messages must be >= 1")
	}
	if c.RateLimitRequestsPerMinute < 0 {
		return fmt.Errorf("config: rate_limit_requests_per_minute must not be negative")
	}
	if c.Guard.SymbolRatioThreshold <= 0 || c.Guard.SymbolRatioThreshold > 1 {
		return fmt.Errorf("config: symbol_ratio_threshold must be in (0, 1]")
	}
	return nil
}

// ConversationTTL returns the configured conversation TTL as a duration.
func (c *Config) ConversationTTL() time.Duration {
	return time.Duration(c.Memory.ConversationTTLHours) * time.Hour
}

// SessionTTL returns the configured session TTL as a duration.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Memory.SessionTTLHours) * time.Hour
}
