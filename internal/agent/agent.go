package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/ashureev/multitool-assistant/internal/llm"
	"github.com/ashureev/multitool-assistant/internal/tools"
)

// StopSequence ends a model turn before it invents a tool observation.
const StopSequence = "\nObservation:"

var (
	errNilClient      = errors.New("agent requires a model client")
	errNilToolSet     = errors.New("agent requires a tool set")
	errUnusablePrompt = errors.New("agent requires a parsed prompt template")
)

// Agent binds a model, a tool set and a prompt template. It holds no
// per-query state and is shared by every session.
type Agent struct {
	client llm.Client
	tools  *tools.Set
	prompt Template
}

// New creates an Agent.
func New(client llm.Client, set *tools.Set, tmpl Template) (*Agent, error) {
	if client == nil {
		return nil, errNilClient
	}
	if set == nil {
		return nil, errNilToolSet
	}
	if !tmpl.usable() {
		return nil, errUnusablePrompt
	}
	return &Agent{client: client, tools: set, prompt: tmpl}, nil
}

// Tools returns the agent's tool set.
func (a *Agent) Tools() *tools.Set {
	return a.tools
}

// Plan asks the model for the next decision given the steps taken so far.
// Malformed output is returned as *ParseError.
func (a *Agent) Plan(ctx context.Context, input string, scratchpad []Step) (Decision, error) {
	prompt, err := a.prompt.render(a.tools, input, scratchpad)
	if err != nil {
		return Decision{}, err
	}

	text, err := a.client.Complete(ctx, llm.Request{
		Prompt:      prompt,
		Stop:        []string{StopSequence},
		Temperature: 0,
	})
	if err != nil {
		return Decision{}, fmt.Errorf("model completion (%s): %w", a.client.Provider(), err)
	}

	return ParseOutput(text)
}
