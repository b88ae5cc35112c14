package agent

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/ashureev/multitool-assistant/internal/tools"
)

//go:embed prompts/react.tmpl
var promptFS embed.FS

const defaultTemplatePath = "prompts/react.tmpl"

var errEmptyTemplate = errors.New("prompt template is empty")

// Template renders the instruction prompt for one reasoning step.
type Template struct {
	tmpl *template.Template
}

// promptData is what a template sees.
type promptData struct {
	Tools      string
	ToolNames  string
	Input      string
	Scratchpad string
}

// DefaultTemplate returns the embedded ReAct template.
func DefaultTemplate() (Template, error) {
	raw, err := promptFS.ReadFile(defaultTemplatePath)
	if err != nil {
		return Template{}, fmt.Errorf("read embedded template: %w", err)
	}
	return ParseTemplate(string(raw))
}

// LoadTemplate reads a template from path, or the embedded default when path is empty.
func LoadTemplate(path string) (Template, error) {
	if path == "" {
		return DefaultTemplate()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Template{}, fmt.Errorf("read prompt template %s: %w", path, err)
	}
	return ParseTemplate(string(raw))
}

// ParseTemplate parses template text. The text must reference .Input and
// .Scratchpad or the loop could never make progress.
func ParseTemplate(text string) (Template, error) {
	if strings.TrimSpace(text) == "" {
		return Template{}, errEmptyTemplate
	}
	for _, field := range []string{".Input", ".Scratchpad"} {
		if !strings.Contains(text, field) {
			return Template{}, fmt.Errorf("prompt template must reference %s", field)
		}
	}
	t, err := template.New("react").Option("missingkey=error").Parse(text)
	if err != nil {
		return Template{}, fmt.Errorf("parse prompt template: %w", err)
	}
	return Template{tmpl: t}, nil
}

func (t Template) usable() bool {
	return t.tmpl != nil
}

func (t Template) render(set *tools.Set, input string, scratchpad []Step) (string, error) {
	var descriptions strings.Builder
	for i, tool := range set.Tools() {
		if i > 0 {
			descriptions.WriteByte('\n')
		}
		fmt.Fprintf(&descriptions, "%s: %s", tool.Name(), tool.Description())
	}

	var buf bytes.Buffer
	err := t.tmpl.Execute(&buf, promptData{
		Tools:      descriptions.String(),
		ToolNames:  strings.Join(set.Names(), ", "),
		Input:      input,
		Scratchpad: formatScratchpad(scratchpad),
	})
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return buf.String(), nil
}

// formatScratchpad replays previous steps in the template grammar so the
// model continues from its own last thought.
func formatScratchpad(steps []Step) string {
	var b strings.Builder
	for _, s := range steps {
		b.WriteString(s.Action.Log)
		b.WriteString("\nObservation: ")
		b.WriteString(s.Observation)
		b.WriteString("\nThought: ")
	}
	return b.String()
}
