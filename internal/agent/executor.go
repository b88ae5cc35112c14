package agent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/multitool-assistant/internal/config"
)

// State is the executor's position in the reasoning loop.
type State string

// Executor states.
const (
	StateThinking State = "thinking"
	StateActing   State = "acting"
	StateDone     State = "done"
	StateFailed   State = "failed"
)

// Status is the outcome reported to the caller.
type Status string

// Result statuses.
const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

const (
	// ErrorMessage is the only text a caller sees when a query fails.
	ErrorMessage = "Sorry, I encountered an error processing your request."
	// StoppedMessage is the forced-stop answer when no tool produced output.
	StoppedMessage = "Agent stopped due to iteration limit or time limit."

	// DefaultMaxIterations bounds model calls per query.
	DefaultMaxIterations = 10
	// DefaultMaxParseRetries bounds corrective retries per query.
	DefaultMaxParseRetries = 3

	exceptionTool = "_Exception"
)

// Step is one completed action and what it produced.
type Step struct {
	Action      Action `json:"action"`
	Observation string `json:"observation"`
}

// StepObserver is called with each step as it is recorded.
type StepObserver func(Step)

// Result is the outcome of one query.
type Result struct {
	QueryID     string  `json:"query_id"`
	Output      string  `json:"output"`
	Status      Status  `json:"status"`
	State       State   `json:"state"`
	Transitions []State `json:"transitions"`
	Steps       []Step  `json:"steps"`
	Iterations  int     `json:"iterations"`
}

// Recorder receives executor measurements. *metrics.Metrics implements it.
type Recorder interface {
	ObserveQuery(status Status, state State, elapsed time.Duration)
	ObserveTool(tool string, err error, elapsed time.Duration)
	ObserveParseFailure(reason string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveQuery(Status, State, time.Duration) {}
func (nopRecorder) ObserveTool(string, error, time.Duration)  {}
func (nopRecorder) ObserveParseFailure(string)                {}

// ExecutorConfig bounds an Executor. Zero values select the defaults; a
// negative MaxParseRetries disables corrective retries.
type ExecutorConfig struct {
	MaxIterations   int
	MaxParseRetries int
	Logger          *slog.Logger
	Recorder        Recorder
}

// ExecutorConfigFrom maps loaded settings onto an ExecutorConfig. An explicit
// zero retry budget from the environment means no retries.
func ExecutorConfigFrom(c config.AgentConfig, logger *slog.Logger, recorder Recorder) ExecutorConfig {
	retries := c.MaxParseRetries
	if retries == 0 {
		retries = -1
	}
	return ExecutorConfig{
		MaxIterations:   c.MaxIterations,
		MaxParseRetries: retries,
		Logger:          logger,
		Recorder:        recorder,
	}
}

// Executor runs the bounded reasoning loop for one session.
type Executor struct {
	agent    *Agent
	cfg      ExecutorConfig
	logger   *slog.Logger
	recorder Recorder
}

// NewExecutor creates an Executor. A nil agent is allowed: every query then
// fails immediately with ErrorMessage.
func NewExecutor(a *Agent, cfg ExecutorConfig) *Executor {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	switch {
	case cfg.MaxParseRetries == 0:
		cfg.MaxParseRetries = DefaultMaxParseRetries
	case cfg.MaxParseRetries < 0:
		cfg.MaxParseRetries = 0
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Executor{agent: a, cfg: cfg, logger: logger, recorder: recorder}
}

// Ready reports whether the executor has an agent.
func (e *Executor) Ready() bool {
	return e.agent != nil
}

// runState is the transient per-query state.
type runState struct {
	input         string
	steps         []Step
	iterations    int
	parseFailures int
	state         State
	transitions   []State
	observers     []StepObserver
}

func (rs *runState) enter(s State) {
	rs.state = s
	rs.transitions = append(rs.transitions, s)
}

func (rs *runState) record(step Step) {
	rs.steps = append(rs.steps, step)
	for _, obs := range rs.observers {
		obs(step)
	}
}

// lastObservation returns the most recent real tool output.
func (rs *runState) lastObservation() (string, bool) {
	for i := len(rs.steps) - 1; i >= 0; i-- {
		if rs.steps[i].Action.Tool != exceptionTool {
			return rs.steps[i].Observation, true
		}
	}
	return "", false
}

// Run answers input. It never returns an error: failures are reported
// through Result.Status with ErrorMessage as the output.
func (e *Executor) Run(ctx context.Context, input string, observers ...StepObserver) Result {
	start := time.Now()
	queryID := uuid.NewString()
	logger := e.logger.With("query_id", queryID)

	rs := &runState{input: input, observers: observers}
	rs.enter(StateThinking)

	res := e.loop(ctx, logger, rs)
	res.QueryID = queryID
	res.State = rs.state
	res.Transitions = rs.transitions
	res.Steps = rs.steps
	res.Iterations = rs.iterations

	e.recorder.ObserveQuery(res.Status, res.State, time.Since(start))
	logger.Info("query finished",
		"status", res.Status,
		"state", res.State,
		"iterations", res.Iterations,
		"steps", len(res.Steps),
		"duration", time.Since(start),
	)
	return res
}

func (e *Executor) loop(ctx context.Context, logger *slog.Logger, rs *runState) Result {
	if e.agent == nil {
		logger.Error("query rejected, agent unavailable")
		rs.enter(StateFailed)
		return Result{Output: ErrorMessage, Status: StatusError}
	}

	for rs.iterations < e.cfg.MaxIterations {
		rs.iterations++

		decision, err := e.agent.Plan(ctx, rs.input, rs.steps)
		if err != nil {
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				logger.Error("model call failed", "iteration", rs.iterations, "error", err)
				rs.enter(StateFailed)
				return Result{Output: ErrorMessage, Status: StatusError}
			}
			e.recorder.ObserveParseFailure("format")
			if stop := e.correct(logger, rs, parseErr.Raw, parseErr.Message, parseErr.Observation); stop {
				return e.forceStop(logger, rs, "parse retries exhausted")
			}
			continue
		}

		if decision.Finish != nil {
			rs.enter(StateDone)
			return Result{Output: decision.Finish.Output, Status: StatusOK}
		}

		action := *decision.Action
		tool, err := e.agent.Tools().Lookup(action.Tool)
		if err != nil {
			e.recorder.ObserveParseFailure("unknown_tool")
			if stop := e.correct(logger, rs, action.Log, err.Error(), err.Error()); stop {
				return e.forceStop(logger, rs, "parse retries exhausted")
			}
			continue
		}

		rs.enter(StateActing)
		toolStart := time.Now()
		observation, err := tool.Invoke(ctx, action.Input)
		e.recorder.ObserveTool(action.Tool, err, time.Since(toolStart))
		if err != nil {
			logger.Error("tool call failed", "tool", action.Tool, "iteration", rs.iterations, "error", err)
			rs.enter(StateFailed)
			return Result{Output: ErrorMessage, Status: StatusError}
		}
		logger.Debug("tool call", "tool", action.Tool, "iteration", rs.iterations)

		rs.record(Step{Action: action, Observation: observation})
		rs.enter(StateThinking)
	}

	return e.forceStop(logger, rs, "iteration limit reached")
}

// correct feeds a format or tool-name failure back to the model. It reports
// whether the retry budget is exhausted.
func (e *Executor) correct(logger *slog.Logger, rs *runState, raw, reason, observation string) bool {
	rs.parseFailures++
	logger.Warn("unusable model output",
		"iteration", rs.iterations,
		"parse_failures", rs.parseFailures,
		"reason", reason,
	)
	if rs.parseFailures > e.cfg.MaxParseRetries {
		return true
	}
	rs.record(Step{
		Action:      Action{Tool: exceptionTool, Input: reason, Log: raw},
		Observation: observation,
	})
	return false
}

func (e *Executor) forceStop(logger *slog.Logger, rs *runState, reason string) Result {
	rs.enter(StateFailed)
	output, ok := rs.lastObservation()
	if !ok {
		output = StoppedMessage
	}
	logger.Warn("agent stopped early", "reason", reason, "iterations", rs.iterations)
	return Result{Output: output, Status: StatusOK}
}

// ToolNames lists the tools available to the executor's agent.
func (e *Executor) ToolNames() []string {
	if e.agent == nil {
		return nil
	}
	return e.agent.Tools().Names()
}
