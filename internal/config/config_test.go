package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENWEATHERMAP_API_KEY", "owm-test")

	// Empty LLM_PROVIDER is not a supported provider.
	if _, err := Load(); err == nil {
		t.Fatal("expected error for empty LLM_PROVIDER")
	}

	t.Setenv("LLM_PROVIDER", "openai")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LLM.Model != "gpt-3.5-turbo" {
		t.Errorf("expected default model gpt-3.5-turbo, got %q", cfg.LLM.Model)
	}
	if cfg.Agent.MaxIterations != 10 {
		t.Errorf("expected MaxIterations 10, got %d", cfg.Agent.MaxIterations)
	}
	if cfg.Session.TTL != time.Hour {
		t.Errorf("expected SessionTTL 1h, got %s", cfg.Session.TTL)
	}
	if err := cfg.CheckCredentials(); err != nil {
		t.Errorf("expected credentials to be present, got %v", err)
	}
}

func TestCheckCredentialsReportsEachMissingKey(t *testing.T) {
	cfg := &Config{LLM: LLMConfig{Provider: ProviderAnthropic}}

	err := cfg.CheckCredentials()
	if !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
	msg := err.Error()
	for _, want := range []string{"ANTHROPIC_API_KEY", "OPENWEATHERMAP_API_KEY"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected %q in %q", want, msg)
		}
	}

	cfg.WeatherAPIKey = "owm"
	if err := cfg.RequireWeatherKey(); err != nil {
		t.Errorf("unexpected weather key error: %v", err)
	}
	if err := cfg.RequireLLMKey(); !errors.Is(err, ErrMissingCredential) {
		t.Errorf("expected missing LLM key, got %v", err)
	}
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "llamas")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("AGENT_MAX_ITERATIONS", "ten")
	t.Setenv("TOOL_HTTP_TIMEOUT", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Agent.MaxIterations != 10 {
		t.Errorf("expected fallback MaxIterations 10, got %d", cfg.Agent.MaxIterations)
	}
	if cfg.Tools.HTTPTimeout != 15*time.Second {
		t.Errorf("expected fallback timeout 15s, got %s", cfg.Tools.HTTPTimeout)
	}
}
