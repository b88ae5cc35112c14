// Package tools provides the external lookup tools the agent may call.
package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrUnknownTool is wrapped by UnknownToolError.
var ErrUnknownTool = errors.New("unknown tool")

// ErrDuplicateTool is returned when a tool name is already registered.
var ErrDuplicateTool = errors.New("duplicate tool name")

// Tool is a named external capability: text in, text or failure out.
type Tool interface {
	// Name is unique within a Set and is what the model addresses.
	Name() string
	// Description tells the model when the tool applies.
	Description() string
	// Invoke runs the tool for a single text query.
	Invoke(ctx context.Context, query string) (string, error)
}

// Func adapts a plain function to the Tool interface.
type Func struct {
	ToolName        string
	ToolDescription string
	Fn              func(ctx context.Context, query string) (string, error)
}

// Name returns the tool name.
func (f Func) Name() string { return f.ToolName }

// Description returns the tool description.
func (f Func) Description() string { return f.ToolDescription }

// Invoke calls the wrapped function.
func (f Func) Invoke(ctx context.Context, query string) (string, error) {
	return f.Fn(ctx, query)
}

// UnknownToolError reports a lookup for a name that is not registered.
type UnknownToolError struct {
	Name      string
	Available []string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("%s is not a valid tool, try one of [%s].", e.Name, strings.Join(e.Available, ", "))
}

func (e *UnknownToolError) Unwrap() error {
	return ErrUnknownTool
}

// Set is an ordered, read-only collection of uniquely named tools.
// It is safe for concurrent use once built.
type Set struct {
	ordered []Tool
	byName  map[string]Tool
}

// Len returns the number of registered tools.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.ordered)
}

// Tools returns the registered tools in registration order.
func (s *Set) Tools() []Tool {
	if s == nil {
		return nil
	}
	out := make([]Tool, len(s.ordered))
	copy(out, s.ordered)
	return out
}

// Names returns the tool names in registration order.
func (s *Set) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.ordered))
	for _, t := range s.ordered {
		names = append(names, t.Name())
	}
	return names
}

// Lookup returns the tool registered under exactly name.
// Matching is case-sensitive.
func (s *Set) Lookup(name string) (Tool, error) {
	if s != nil {
		if t, ok := s.byName[name]; ok {
			return t, nil
		}
	}
	return nil, &UnknownToolError{Name: name, Available: s.Names()}
}

func (s *Set) add(t Tool) error {
	if _, exists := s.byName[t.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, t.Name())
	}
	s.ordered = append(s.ordered, t)
	s.byName[t.Name()] = t
	return nil
}

// Factory constructs one tool. Name is used for reporting when New fails.
type Factory struct {
	Name string
	New  func() (Tool, error)
}

// Omission records a tool that could not be registered.
type Omission struct {
	Name string
	Err  error
}

// Build constructs every factory independently. Tools whose construction
// fails, or whose name is already taken, are left out and reported.
func Build(logger *slog.Logger, factories ...Factory) (*Set, []Omission) {
	if logger == nil {
		logger = slog.Default()
	}

	set := &Set{byName: make(map[string]Tool, len(factories))}
	var omitted []Omission

	for _, f := range factories {
		t, err := construct(f)
		if err == nil {
			err = set.add(t)
		}
		if err != nil {
			logger.Warn("Tool omitted", "tool", f.Name, "error", err)
			omitted = append(omitted, Omission{Name: f.Name, Err: err})
			continue
		}
		logger.Info("Tool registered", "tool", t.Name())
	}

	return set, omitted
}

// construct isolates a factory so a panicking constructor only loses its own tool.
func construct(f Factory) (t Tool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("construct tool %s: panic: %v", f.Name, r)
		}
	}()
	if f.New == nil {
		return nil, fmt.Errorf("construct tool %s: no constructor", f.Name)
	}
	t, err = f.New()
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("construct tool %s: constructor returned nil", f.Name)
	}
	return t, nil
}
