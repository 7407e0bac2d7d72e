package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "convoke.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.True(t, cfg.Guard.PromptGuardEnabled)
	assert.NotEmpty(t, cfg.Guard.BlockedPatterns)
	assert.Equal(t, 50, cfg.Memory.ConversationMaxMessages)
	assert.Equal(t, 30, cfg.RateLimitRequestsPerMinute)
	assert.Equal(t, 4, cfg.ToolFanOutLimit)
	assert.Equal(t, 30*time.Second, cfg.ToolTimeout)
	assert.Equal(t, 24*time.Hour, cfg.ConversationTTL())
	assert.Equal(t, time.Hour, cfg.SessionTTL())
}

func TestLoad_LayersOverDefaults(t *testing.T) {
	path := writeConfig(t, `
providers:
  openai:
    api_key: sk-from-file
    default_model: gpt-4o
    max_retries: 5
memory:
  conversation_max_messages: 10
rate_limit_requests_per_minute: 5
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sk-from-file", cfg.Providers["openai"].APIKey)
	assert.Equal(t, "gpt-4o", cfg.Providers["openai"].DefaultModel)
	assert.Equal(t, 5, cfg.Providers["openai"].MaxRetries)
	assert.Equal(t, 10, cfg.Memory.ConversationMaxMessages)
	assert.Equal(t, 5, cfg.RateLimitRequestsPerMinute)
	assert.Equal(t, 30*time.Second, cfg.ToolTimeout)

	// Untouched sections keep their defaults.
	assert.True(t, cfg.Guard.PromptGuardEnabled)
	assert.Equal(t, 1, cfg.Memory.SessionTTLHours)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "providers: [not a map")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"zero max messages", "memory:\n  conversation_max_messages: 0\n", "conversation_max_messages"},
		{"negative rate limit", "rate_limit_requests_per_minute: -1\n", "rate_limit_requests_per_minute"},
		{"bad symbol ratio", "guard:\n  symbol_ratio_threshold: 1.5\n", "symbol_ratio_threshold"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-from-env")
	t.Setenv("ANTHROPIC_BASE_URL", "http://localhost:8080")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("GOOGLE_BASE_URL", "")

	cfg := FromEnv()
	assert.Equal(t, "sk-from-env", cfg.Providers["openai"].APIKey)
	assert.Equal(t, "http://localhost:8080", cfg.Providers["anthropic"].BaseURL)
	assert.NotContains(t, cfg.Providers, "google")
}

func TestEnvDoesNotOverwriteFile(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-from-env")

	path := writeConfig(t, "providers:\n  openai:\n    api_key: sk-from-file\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-from-file", cfg.Providers["openai"].APIKey)
}
