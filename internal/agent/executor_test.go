package agent

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/multitool-assistant/internal/config"
	"github.com/ashureev/multitool-assistant/internal/llm"
	"github.com/ashureev/multitool-assistant/internal/tools"
)

// scriptedModel replies with the next canned completion and records prompts.
// The last reply repeats once the script runs out.
type scriptedModel struct {
	mu       sync.Mutex
	replies  []string
	requests []llm.Request
	err      error
}

func (m *scriptedModel) Complete(_ context.Context, req llm.Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return "", m.err
	}
	i := len(m.requests) - 1
	if i >= len(m.replies) {
		i = len(m.replies) - 1
	}
	return m.replies[i], nil
}

func (m *scriptedModel) Provider() string { return "scripted" }

func (m *scriptedModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *scriptedModel) prompt(i int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[i].Prompt
}

// countingTool records every input it is invoked with.
type countingTool struct {
	name   string
	mu     sync.Mutex
	inputs []string
	err    error
}

func (c *countingTool) Name() string        { return c.name }
func (c *countingTool) Description() string { return "test tool " + c.name }
func (c *countingTool) Invoke(_ context.Context, q string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inputs = append(c.inputs, q)
	if c.err != nil {
		return "", c.err
	}
	return c.name + " result " + q, nil
}

func newTestExecutor(t *testing.T, model llm.Client, cfg ExecutorConfig, ts ...tools.Tool) *Executor {
	t.Helper()
	factories := make([]tools.Factory, 0, len(ts))
	for _, tool := range ts {
		factories = append(factories, tools.Factory{Name: tool.Name(), New: func() (tools.Tool, error) { return tool, nil }})
	}
	set, omitted := tools.Build(nil, factories...)
	require.Empty(t, omitted)

	tmpl, err := DefaultTemplate()
	require.NoError(t, err)

	a, err := New(model, set, tmpl)
	require.NoError(t, err)
	return NewExecutor(a, cfg)
}

const parisWeather = `{
  "name": "Paris",
  "sys": {"country": "FR"},
  "weather": [{"main": "Clouds", "description": "cloudy"}],
  "main": {"temp": 15, "feels_like": 14.2, "temp_min": 13.1, "temp_max": 16.4, "humidity": 81},
  "wind": {"speed": 3.6, "deg": 210},
  "clouds": {"all": 90}
}`

func TestExecutorAnswersWeatherQuestion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Paris", r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(parisWeather))
	}))
	defer srv.Close()

	weather, err := tools.NewWeather("owm-key", tools.Options{Client: srv.Client(), BaseURL: srv.URL})
	require.NoError(t, err)

	model := &scriptedModel{replies: []string{
		" I should check the current weather in Paris.\nAction: openweathermap-api\nAction Input: Paris",
		" I now know the final answer\nFinal Answer: It is currently 15°C, cloudy in Paris.",
	}}
	exec := newTestExecutor(t, model, ExecutorConfig{}, weather)

	res := exec.Run(context.Background(), "What's the weather in Paris?")

	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, StateDone, res.State)
	assert.Contains(t, res.Output, "15°C")
	assert.Contains(t, res.Output, "cloudy")
	assert.Equal(t, []State{StateThinking, StateActing, StateThinking, StateDone}, res.Transitions)
	assert.Equal(t, 2, res.Iterations)
	assert.NotEmpty(t, res.QueryID)

	require.Len(t, res.Steps, 1)
	assert.Equal(t, tools.WeatherToolName, res.Steps[0].Action.Tool)
	assert.Contains(t, res.Steps[0].Observation, "Current: 15.0°C")
	assert.Contains(t, model.prompt(1), "Observation: In Paris, FR, the current weather is as follows:")
}

func TestExecutorAnswersFinanceQuestion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "AAPL", r.URL.Query().Get("s"))
		_, _ = w.Write([]byte(`<rss version="2.0"><channel>
  <item><title>Apple unveils new iPhone lineup</title><description>Four new models.</description></item>
</channel></rss>`))
	}))
	defer srv.Close()

	news, err := tools.NewFinanceNews(tools.Options{Client: srv.Client(), BaseURL: srv.URL})
	require.NoError(t, err)

	model := &scriptedModel{replies: []string{
		" I need recent Apple news.\nAction: yahoo_finance_news\nAction Input: AAPL",
		" I now know the final answer\nFinal Answer: Apple unveils new iPhone lineup.",
	}}
	exec := newTestExecutor(t, model, ExecutorConfig{}, news)

	res := exec.Run(context.Background(), "Latest news on AAPL?")

	assert.Equal(t, StatusOK, res.Status)
	assert.Contains(t, res.Output, "Apple unveils new iPhone lineup")
	require.Len(t, res.Steps, 1)
	assert.Equal(t, "Apple unveils new iPhone lineup\nFour new models.", res.Steps[0].Observation)
}

func TestExecutorAnswersWithoutTools(t *testing.T) {
	model := &scriptedModel{replies: []string{" I know this.\nFinal Answer: 4"}}
	tool := &countingTool{name: "duckduckgo_search"}
	exec := newTestExecutor(t, model, ExecutorConfig{}, tool)

	res := exec.Run(context.Background(), "What is 2+2?")

	assert.Equal(t, "4", res.Output)
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, []State{StateThinking, StateDone}, res.Transitions)
	assert.Empty(t, tool.inputs)

	model.mu.Lock()
	req := model.requests[0]
	model.mu.Unlock()
	assert.Equal(t, 0.0, req.Temperature)
	assert.Equal(t, []string{StopSequence}, req.Stop)
}

func TestExecutorCorrectsUnknownToolName(t *testing.T) {
	weather := &countingTool{name: tools.WeatherToolName}
	model := &scriptedModel{replies: []string{
		" Check weather.\nAction: Weather\nAction Input: Paris",
		" Use the right name.\nAction: openweathermap-api\nAction Input: Paris",
		" Done.\nFinal Answer: mild",
	}}
	exec := newTestExecutor(t, model, ExecutorConfig{}, weather)

	res := exec.Run(context.Background(), "weather in Paris")

	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "mild", res.Output)
	assert.Equal(t, []string{"Paris"}, weather.inputs)
	assert.Contains(t, model.prompt(1), "Weather is not a valid tool, try one of [openweathermap-api].")

	require.Len(t, res.Steps, 2)
	assert.Equal(t, exceptionTool, res.Steps[0].Action.Tool)
	assert.Equal(t, tools.WeatherToolName, res.Steps[1].Action.Tool)
}

func TestExecutorStopsAtIterationCap(t *testing.T) {
	tool := &countingTool{name: "duckduckgo_search"}
	model := &scriptedModel{replies: []string{" Keep searching.\nAction: duckduckgo_search\nAction Input: more"}}
	exec := newTestExecutor(t, model, ExecutorConfig{}, tool)

	res := exec.Run(context.Background(), "loop forever")

	assert.Equal(t, DefaultMaxIterations, model.calls())
	assert.Equal(t, DefaultMaxIterations, res.Iterations)
	assert.Len(t, tool.inputs, DefaultMaxIterations)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "duckduckgo_search result more", res.Output)
}

func TestExecutorCapWithoutObservationUsesStoppedMessage(t *testing.T) {
	model := &scriptedModel{replies: []string{"no idea"}}
	exec := newTestExecutor(t, model, ExecutorConfig{MaxIterations: 4, MaxParseRetries: 100}, &countingTool{name: "t"})

	res := exec.Run(context.Background(), "?")

	assert.Equal(t, 4, model.calls())
	assert.Equal(t, StoppedMessage, res.Output)
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, StateFailed, res.State)
}

func TestExecutorBoundsParseRetries(t *testing.T) {
	model := &scriptedModel{replies: []string{"I will just ramble."}}
	exec := newTestExecutor(t, model, ExecutorConfig{}, &countingTool{name: "t"})

	res := exec.Run(context.Background(), "?")

	assert.Equal(t, DefaultMaxParseRetries+1, model.calls())
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, StoppedMessage, res.Output)
	require.Len(t, res.Steps, DefaultMaxParseRetries)
	assert.Contains(t, model.prompt(1), msgMissingAction)
}

func TestExecutorParseRetryKeepsPartialObservation(t *testing.T) {
	tool := &countingTool{name: "duckduckgo_search"}
	model := &scriptedModel{replies: []string{
		" Search.\nAction: duckduckgo_search\nAction Input: go",
		"rambling",
	}}
	exec := newTestExecutor(t, model, ExecutorConfig{MaxParseRetries: 1}, tool)

	res := exec.Run(context.Background(), "go?")

	assert.Equal(t, 3, model.calls())
	assert.Equal(t, "duckduckgo_search result go", res.Output)
	assert.Equal(t, StatusOK, res.Status)
}

func TestExecutorModelFailureReturnsFixedMessage(t *testing.T) {
	model := &scriptedModel{err: errors.New("401 invalid api key sk-secret")}
	exec := newTestExecutor(t, model, ExecutorConfig{}, &countingTool{name: "t"})

	res := exec.Run(context.Background(), "hello")

	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, ErrorMessage, res.Output)
	assert.NotContains(t, res.Output, "sk-secret")
}

func TestExecutorToolFailureReturnsFixedMessage(t *testing.T) {
	tool := &countingTool{name: "duckduckgo_search", err: errors.New("connection reset")}
	model := &scriptedModel{replies: []string{"Action: duckduckgo_search\nAction Input: x"}}
	exec := newTestExecutor(t, model, ExecutorConfig{}, tool)

	res := exec.Run(context.Background(), "x")

	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, ErrorMessage, res.Output)
	assert.Equal(t, []State{StateThinking, StateActing, StateFailed}, res.Transitions)
	assert.Equal(t, 1, model.calls())
}

func TestExecutorWithoutAgent(t *testing.T) {
	set, _ := tools.Build(nil)
	tmpl, err := DefaultTemplate()
	require.NoError(t, err)

	a, err := New(nil, set, tmpl)
	require.Error(t, err)
	require.Nil(t, a)

	exec := NewExecutor(a, ExecutorConfig{})
	assert.False(t, exec.Ready())

	res := exec.Run(context.Background(), "anything")
	assert.Equal(t, "Sorry, I encountered an error processing your request.", res.Output)
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, 0, res.Iterations)
}

func TestNewRejectsMissingParts(t *testing.T) {
	model := &scriptedModel{replies: []string{"Final Answer: x"}}
	set, _ := tools.Build(nil)
	tmpl, err := DefaultTemplate()
	require.NoError(t, err)

	_, err = New(model, nil, tmpl)
	assert.ErrorIs(t, err, errNilToolSet)

	_, err = New(model, set, Template{})
	assert.ErrorIs(t, err, errUnusablePrompt)
}

func TestExecutorNotifiesObservers(t *testing.T) {
	tool := &countingTool{name: "duckduckgo_search"}
	model := &scriptedModel{replies: []string{
		"Action: duckduckgo_search\nAction Input: one",
		"Action: duckduckgo_search\nAction Input: two",
		"Final Answer: both",
	}}
	exec := newTestExecutor(t, model, ExecutorConfig{}, tool)

	var seen []string
	res := exec.Run(context.Background(), "q", func(s Step) {
		seen = append(seen, s.Action.Input)
	})

	assert.Equal(t, "both", res.Output)
	assert.Equal(t, []string{"one", "two"}, seen)
	assert.True(t, strings.HasPrefix(model.prompt(2), "Answer the following question"))
}

type recordingRecorder struct {
	queries []Status
	tools   []string
	parse   []string
}

func (r *recordingRecorder) ObserveQuery(s Status, _ State, _ time.Duration) {
	r.queries = append(r.queries, s)
}

func (r *recordingRecorder) ObserveTool(name string, _ error, _ time.Duration) {
	r.tools = append(r.tools, name)
}

func (r *recordingRecorder) ObserveParseFailure(reason string) {
	r.parse = append(r.parse, reason)
}

func TestExecutorReportsToRecorder(t *testing.T) {
	rec := &recordingRecorder{}
	tool := &countingTool{name: "duckduckgo_search"}
	model := &scriptedModel{replies: []string{
		"Action: Search\nAction Input: x",
		"Action: duckduckgo_search\nAction Input: x",
		"Final Answer: y",
	}}
	exec := newTestExecutor(t, model, ExecutorConfig{Recorder: rec}, tool)

	exec.Run(context.Background(), "x")

	assert.Equal(t, []Status{StatusOK}, rec.queries)
	assert.Equal(t, []string{"duckduckgo_search"}, rec.tools)
	assert.Equal(t, []string{"unknown_tool"}, rec.parse)
}

func TestExecutorConfigFromEnvironmentSettings(t *testing.T) {
	cfg := ExecutorConfigFrom(config.AgentConfig{MaxIterations: 5, MaxParseRetries: 0}, nil, nil)
	model := &scriptedModel{replies: []string{"ramble"}}
	exec := newTestExecutor(t, model, cfg, &countingTool{name: "t"})

	res := exec.Run(context.Background(), "?")

	assert.Equal(t, 1, model.calls())
	assert.Equal(t, StoppedMessage, res.Output)
}
