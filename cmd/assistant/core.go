package main

import (
	"errors"
	"log/slog"

	"github.com/ashureev/multitool-assistant/internal/agent"
	"github.com/ashureev/multitool-assistant/internal/api"
	"github.com/ashureev/multitool-assistant/internal/config"
	"github.com/ashureev/multitool-assistant/internal/llm"
	"github.com/ashureev/multitool-assistant/internal/session"
	"github.com/ashureev/multitool-assistant/internal/tools"
)

// core is everything needed to answer queries. A missing credential or a
// broken prompt leaves agent nil; the process still starts.
type core struct {
	agent  *agent.Agent
	tools  *tools.Set
	status api.Status
}

func buildCore(cfg *config.Config, logger *slog.Logger) core {
	status := api.Status{Provider: cfg.LLM.Provider, Model: cfg.LLM.Model}

	if err := cfg.CheckCredentials(); err != nil {
		for _, e := range unwrapJoined(err) {
			logger.Warn("Configuration incomplete", "error", e)
			status.Issues = append(status.Issues, e.Error())
		}
	}

	client := tools.NewHTTPClient(cfg.Tools.HTTPTimeout)
	set, omitted := tools.Build(logger, tools.DefaultFactories(cfg, client)...)
	for _, o := range omitted {
		// Credential problems are already reported above.
		if !errors.Is(o.Err, config.ErrMissingCredential) {
			status.Issues = append(status.Issues, "tool "+o.Name+" unavailable: "+o.Err.Error())
		}
	}
	status.Tools = set.Names()

	c := core{tools: set, status: status}

	model, err := llm.New(cfg)
	if err != nil {
		logger.Error("Agent unavailable, queries will fail", "error", err)
		return c
	}

	tmpl, err := agent.LoadTemplate(cfg.Agent.PromptTemplatePath)
	if err != nil {
		logger.Error("Agent unavailable, prompt template unusable", "error", err)
		c.status.Issues = append(c.status.Issues, err.Error())
		return c
	}

	a, err := agent.New(model, set, tmpl)
	if err != nil {
		logger.Error("Agent unavailable", "error", err)
		c.status.Issues = append(c.status.Issues, err.Error())
		return c
	}

	c.agent = a
	c.status.AgentReady = true
	logger.Info("Agent ready", "provider", model.Provider(), "model", cfg.LLM.Model, "tools", set.Names())
	return c
}

func (c core) runnerFactory(cfg *config.Config, logger *slog.Logger, recorder agent.Recorder) func() session.Runner {
	return session.NewExecutorFactory(c.agent, agent.ExecutorConfigFrom(cfg.Agent, logger, recorder))
}

func unwrapJoined(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}
