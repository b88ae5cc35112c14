// Package llm provides language model clients for the agent.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/ashureev/multitool-assistant/internal/config"
)

var errEmptyCompletion = errors.New("model returned no completion")

// Request is a single-prompt completion request.
type Request struct {
	Prompt      string
	Stop        []string
	Temperature float64
	MaxTokens   int
}

// Client completes prompts. Implementations are stateless per call and safe
// for concurrent use by independent sessions.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
	// Provider returns the backend name.
	Provider() string
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, req Request) (string, error)

// Complete calls f.
func (f ClientFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Provider returns "func".
func (f ClientFunc) Provider() string { return "func" }

// New creates the client selected by cfg. A missing credential is an error.
func New(cfg *config.Config) (Client, error) {
	if err := cfg.RequireLLMKey(); err != nil {
		return nil, err
	}

	switch cfg.LLM.Provider {
	case config.ProviderOpenAI:
		return NewOpenAI(cfg.LLM), nil
	case config.ProviderAnthropic:
		return NewAnthropic(cfg.LLM), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.LLM.Provider)
	}
}
