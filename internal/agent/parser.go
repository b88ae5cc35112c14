package agent

import (
	"errors"
	"regexp"
	"strings"
)

const finalAnswerMarker = "Final Answer:"

var (
	actionPattern      = regexp.MustCompile(`(?s)Action\s*\d*\s*:[\s]*(.*?)[\s]*Action\s*\d*\s*Input\s*\d*\s*:[\s]*(.*)`)
	actionOnlyPattern  = regexp.MustCompile(`(?s)Action\s*\d*\s*:[\s]*(.*?)`)
	actionInputPattern = regexp.MustCompile(`(?s)[\s]*Action\s*\d*\s*Input\s*\d*\s*:[\s]*(.*)`)
)

// Parse error messages fed back to the model as corrective observations.
const (
	msgMissingAction      = "Invalid Format: Missing 'Action:' after 'Thought:'"
	msgMissingActionInput = "Invalid Format: Missing 'Action Input:' after 'Action:'"
	msgBothFinalAndAction = "Parsing LLM output produced both a final answer and a parse-able action"
	msgUnparseable        = "Could not parse LLM output"
)

// ErrParse is wrapped by every ParseError.
var ErrParse = errors.New("could not parse model output")

// ParseError is a malformed model reply. Observation is what the model is
// told so it can correct itself on the next step.
type ParseError struct {
	Raw         string
	Message     string
	Observation string
}

func (e *ParseError) Error() string {
	return e.Message
}

func (e *ParseError) Unwrap() error {
	return ErrParse
}

func newParseError(raw, message string) *ParseError {
	return &ParseError{
		Raw:         raw,
		Message:     message,
		Observation: message + "\nReply with either 'Action:' and 'Action Input:' lines, or a 'Final Answer:' line.",
	}
}

// Action is a request to call one tool.
type Action struct {
	Tool  string `json:"tool"`
	Input string `json:"input"`
	// Log is the model text that produced the action.
	Log string `json:"log"`
}

// Finish is a final answer.
type Finish struct {
	Output string `json:"output"`
	Log    string `json:"log"`
}

// Decision is exactly one of Action or Finish.
type Decision struct {
	Action *Action
	Finish *Finish
}

// ParseOutput turns raw model text into a Decision.
func ParseOutput(text string) (Decision, error) {
	hasFinal := strings.Contains(text, finalAnswerMarker)
	match := actionPattern.FindStringSubmatch(text)

	if match != nil {
		if hasFinal {
			return Decision{}, newParseError(text, msgBothFinalAndAction)
		}
		tool := strings.TrimSpace(match[1])
		input := strings.TrimSpace(match[2])
		input = strings.Trim(input, " ")
		input = strings.Trim(input, `"`)
		return Decision{Action: &Action{Tool: tool, Input: input, Log: text}}, nil
	}

	if hasFinal {
		idx := strings.LastIndex(text, finalAnswerMarker)
		output := strings.TrimSpace(text[idx+len(finalAnswerMarker):])
		return Decision{Finish: &Finish{Output: output, Log: text}}, nil
	}

	if !actionOnlyPattern.MatchString(text) {
		return Decision{}, newParseError(text, msgMissingAction)
	}
	if !actionInputPattern.MatchString(text) {
		return Decision{}, newParseError(text, msgMissingActionInput)
	}
	return Decision{}, newParseError(text, msgUnparseable)
}
