package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LLM_API_KEY", "test-key")
	t.Setenv("PORT", "")
	t.Setenv("DATA_DIR", "")
	t.Setenv("LLM_BASE_URL", "")
	t.Setenv("LLM_MODEL", "")
	t.Setenv("LLM_TEMPERATURE", "")
	t.Setenv("LLM_MAX_TOKENS", "")
	t.Setenv("CONTEXT_BUDGET", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, ".", cfg.DataDir)
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.LLMBaseURL)
	assert.Equal(t, "openai/gpt-3.5-turbo", cfg.LLMModel)
	assert.InDelta(t, 0.7, cfg.LLMTemperature, 1e-9)
	assert.Equal(t, 2000, cfg.LLMMaxTokens)
	assert.Equal(t, 4000, cfg.ContextBudget)
}

func TestLoadRequiresAPIKey(t *testing.T) {
	t.Setenv("LLM_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LLM_API_KEY")
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LLM_API_KEY", "test-key")
	t.Setenv("PORT", "9999")
	t.Setenv("LLM_MODEL", "openai/gpt-4o")
	t.Setenv("LLM_TEMPERATURE", "0.2")
	t.Setenv("CONTEXT_BUDGET", "8000")
	t.Setenv("SYSTEM_PROMPT", "be helpful")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, "openai/gpt-4o", cfg.LLMModel)
	assert.InDelta(t, 0.2, cfg.LLMTemperature, 1e-9)
	assert.Equal(t, 8000, cfg.ContextBudget)
	assert.Equal(t, "be helpful", cfg.SystemPrompt)
}

func TestLoadRejectsNonPositiveBudget(t *testing.T) {
	t.Setenv("LLM_API_KEY", "test-key")
	t.Setenv("CONTEXT_BUDGET", "-1")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CONTEXT_BUDGET")
}

func TestMalformedNumbersFallBack(t *testing.T) {
	t.Setenv("LLM_API_KEY", "test-key")
	t.Setenv("LLM_MAX_TOKENS", "not-a-number")
	t.Setenv("LLM_TEMPERATURE", "warm")
	t.Setenv("CONTEXT_BUDGET", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2000, cfg.LLMMaxTokens)
	assert.InDelta(t, 0.7, cfg.LLMTemperature, 1e-9)
}
