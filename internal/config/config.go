package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port    string
	DataDir string

	LLMBaseURL     string
	LLMAPIKey      string
	LLMModel       string
	LLMTemperature float64
	LLMMaxTokens   int
	ContextBudget  int
	SystemPrompt   string

	// Optional OpenRouter attribution headers.
	SiteURL  string
	SiteName string
}

func Load() (*Config, error) {
	// .env is optional — env vars may already be set (e.g. in production)
	_ = godotenv.Load()

	cfg := &Config{
		Port:           os.Getenv("PORT"),
		DataDir:        os.Getenv("DATA_DIR"),
		LLMBaseURL:     os.Getenv("LLM_BASE_URL"),
		LLMAPIKey:      os.Getenv("LLM_API_KEY"),
		LLMModel:       os.Getenv("LLM_MODEL"),
		LLMTemperature: parseFloatEnv("LLM_TEMPERATURE", 0.7),
		LLMMaxTokens:   parseIntEnv("LLM_MAX_TOKENS", 2000),
		ContextBudget:  parseIntEnv("CONTEXT_BUDGET", 4000),
		SystemPrompt:   os.Getenv("SYSTEM_PROMPT"),
		SiteURL:        os.Getenv("SITE_URL"),
		SiteName:       os.Getenv("SITE_NAME"),
	}

	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "."
	}
	if cfg.LLMBaseURL == "" {
		cfg.LLMBaseURL = "https://openrouter.ai/api/v1"
	}
	if cfg.LLMModel == "" {
		cfg.LLMModel = "openai/gpt-3.5-turbo"
	}

	if cfg.LLMAPIKey == "" {
		return nil, fmt.Errorf("required env var LLM_API_KEY is not set")
	}
	if cfg.ContextBudget <= 0 {
		return nil, fmt.Errorf("CONTEXT_BUDGET must be positive, got %d", cfg.ContextBudget)
	}

	return cfg, nil
}

func parseIntEnv(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func parseFloatEnv(key string, def float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return v
}
