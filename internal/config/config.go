// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrMissingCredential is returned when a required API credential is absent.
var ErrMissingCredential = errors.New("missing required credential")

// LLM providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	GRPCHealthPort string
	FrontendURL    string
	DBPath         string
	LLM            LLMConfig
	WeatherAPIKey  string
	Agent          AgentConfig
	Tools          ToolsConfig
	Session        SessionConfig
}

// LLMConfig selects and authenticates the language model backend.
type LLMConfig struct {
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
}

// AgentConfig bounds the reasoning loop.
type AgentConfig struct {
	MaxIterations      int
	MaxParseRetries    int
	PromptTemplatePath string
}

// ToolsConfig controls the external lookup adapters.
type ToolsConfig struct {
	HTTPTimeout time.Duration
	MaxResults  int
}

// SessionConfig controls chat session lifetime.
type SessionConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

// Load reads configuration from environment variables.
//
// Missing credentials do not fail Load; call CheckCredentials to report them.
func Load() (*Config, error) {
	provider := strings.ToLower(getEnv("LLM_PROVIDER", ProviderOpenAI))

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		GRPCHealthPort: getEnv("GRPC_HEALTH_PORT", ""),
		FrontendURL:    getEnv("FRONTEND_URL", ""),
		DBPath:         getEnv("DB_PATH", "./data/assistant.db"),
		LLM: LLMConfig{
			Provider: provider,
			Model:    getEnv("LLM_MODEL", defaultModel(provider)),
			BaseURL:  getEnv("LLM_BASE_URL", ""),
			APIKey:   strings.TrimSpace(getEnv(apiKeyEnv(provider), "")),
		},
		WeatherAPIKey: strings.TrimSpace(getEnv("OPENWEATHERMAP_API_KEY", "")),
		Agent: AgentConfig{
			MaxIterations:      getEnvInt("AGENT_MAX_ITERATIONS", 10),
			MaxParseRetries:    getEnvInt("AGENT_MAX_PARSE_RETRIES", 3),
			PromptTemplatePath: getEnv("PROMPT_TEMPLATE_PATH", ""),
		},
		Tools: ToolsConfig{
			HTTPTimeout: getEnvDuration("TOOL_HTTP_TIMEOUT", 15*time.Second),
			MaxResults:  getEnvInt("TOOL_MAX_RESULTS", 5),
		},
		Session: SessionConfig{
			TTL:           getEnvDuration("SESSION_TTL", 60*time.Minute),
			SweepInterval: getEnvDuration("SESSION_SWEEP_INTERVAL", 5*time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required server settings are usable.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("LLM_PROVIDER %q is not supported", c.LLM.Provider)
	}
	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("AGENT_MAX_ITERATIONS must be > 0")
	}
	if c.Agent.MaxParseRetries < 0 {
		return fmt.Errorf("AGENT_MAX_PARSE_RETRIES must be >= 0")
	}
	if c.Tools.HTTPTimeout <= 0 {
		return fmt.Errorf("TOOL_HTTP_TIMEOUT must be > 0")
	}
	if c.Session.TTL <= 0 || c.Session.SweepInterval <= 0 {
		return fmt.Errorf("SESSION_TTL and SESSION_SWEEP_INTERVAL must be > 0")
	}
	return nil
}

// CheckCredentials reports every required credential that is absent.
// The returned error wraps ErrMissingCredential once per missing value.
func (c *Config) CheckCredentials() error {
	var errs []error
	if err := c.RequireLLMKey(); err != nil {
		errs = append(errs, err)
	}
	if err := c.RequireWeatherKey(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// RequireLLMKey returns an error when the language model credential is absent.
func (c *Config) RequireLLMKey() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("%w: %s", ErrMissingCredential, apiKeyEnv(c.LLM.Provider))
	}
	return nil
}

// RequireWeatherKey returns an error when the weather provider credential is absent.
func (c *Config) RequireWeatherKey() error {
	if c.WeatherAPIKey == "" {
		return fmt.Errorf("%w: OPENWEATHERMAP_API_KEY", ErrMissingCredential)
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func apiKeyEnv(provider string) string {
	if provider == ProviderAnthropic {
		return "ANTHROPIC_API_KEY"
	}
	return "OPENAI_API_KEY"
}

func defaultModel(provider string) string {
	if provider == ProviderAnthropic {
		return "claude-3-5-haiku-latest"
	}
	return "gpt-3.5-turbo"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
