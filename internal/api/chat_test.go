//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/multitool-assistant/internal/agent"
	"github.com/ashureev/multitool-assistant/internal/domain"
	"github.com/ashureev/multitool-assistant/internal/identity"
	"github.com/ashureev/multitool-assistant/internal/session"
	"github.com/ashureev/multitool-assistant/internal/store"
)

type stubRunner struct {
	output string
	status agent.Status
}

func (s stubRunner) Run(_ context.Context, input string, observers ...agent.StepObserver) agent.Result {
	step := agent.Step{Action: agent.Action{Tool: "openweathermap-api", Input: input}, Observation: "15°C, cloudy"}
	for _, obs := range observers {
		obs(step)
	}
	return agent.Result{Output: s.output, Status: s.status, QueryID: "query-1"}
}

type pingRepo struct {
	store.Repository
	err error
}

func (p pingRepo) Ping(context.Context) error { return p.err }

func newTestRouter(runner session.Runner, repo store.Repository, status Status) (http.Handler, *session.Manager) {
	mgr := session.NewManager(func() session.Runner { return runner }, session.Options{})
	base := NewHandler(repo, mgr, status)

	r := chi.NewRouter()
	r.Use(identity.Middleware(nil, true))
	NewHealthHandler(base).RegisterHealth(r)
	NewChatHandler(base).RegisterRoutes(r)
	return r, mgr
}

type sseEvent struct {
	name string
	data string
}

func parseSSE(t *testing.T, body string) []sseEvent {
	t.Helper()
	var events []sseEvent
	var cur sseEvent
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		case line == "" && cur.name != "":
			events = append(events, cur)
			cur = sseEvent{}
		}
	}
	require.NoError(t, sc.Err())
	return events
}

func postChat(router http.Handler, sessionID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set(identity.SessionHeaderName, sessionID)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestPostChatStreamsStepsAndReply(t *testing.T) {
	router, mgr := newTestRouter(stubRunner{output: "It is 15°C and cloudy in Paris.", status: agent.StatusOK}, nil, Status{AgentReady: true})

	rec := postChat(router, "tab-1", `{"message":"What's the weather in Paris?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := parseSSE(t, rec.Body.String())
	require.Len(t, events, 3)
	assert.Equal(t, "pending", events[0].name)
	assert.Equal(t, "step", events[1].name)
	assert.Equal(t, "message", events[2].name)

	var step agent.Step
	require.NoError(t, json.Unmarshal([]byte(events[1].data), &step))
	assert.Equal(t, "15°C, cloudy", step.Observation)

	var reply ChatReply
	require.NoError(t, json.Unmarshal([]byte(events[2].data), &reply))
	assert.Equal(t, domain.RoleAssistant, reply.Message.Role)
	assert.Equal(t, "It is 15°C and cloudy in Paris.", reply.Message.Content)
	assert.Equal(t, agent.StatusOK, reply.Status)
	assert.Equal(t, "query-1", reply.QueryID)

	assert.Equal(t, 1, mgr.Len())
}

func TestPostChatReportsFixedErrorMessage(t *testing.T) {
	router, _ := newTestRouter(stubRunner{output: agent.ErrorMessage, status: agent.StatusError}, nil, Status{})

	rec := postChat(router, "tab-1", `{"message":"hello"}`)
	events := parseSSE(t, rec.Body.String())
	require.NotEmpty(t, events)

	var reply ChatReply
	require.NoError(t, json.Unmarshal([]byte(events[len(events)-1].data), &reply))
	assert.Equal(t, agent.StatusError, reply.Status)
	assert.Equal(t, "Sorry, I encountered an error processing your request.", reply.Message.Content)
}

func TestPostChatValidatesBody(t *testing.T) {
	router, mgr := newTestRouter(stubRunner{output: "x"}, nil, Status{})

	rec := postChat(router, "tab-1", `{"message":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postChat(router, "tab-1", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postChat(router, "tab-1", `{"message":"`+strings.Repeat("a", maxRequestBodySize)+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	assert.Equal(t, 0, mgr.Len())
}

func TestHistoryAndDeleteFollowSessionHeader(t *testing.T) {
	router, mgr := newTestRouter(stubRunner{output: "4", status: agent.StatusOK}, nil, Status{AgentReady: true})

	// Cookies carry the browser identity between requests.
	first := postChat(router, "tab-1", `{"message":"2+2?"}`)
	cookies := first.Result().Cookies()
	require.NotEmpty(t, cookies)

	get := func(sessionID string) map[string]json.RawMessage {
		req := httptest.NewRequest(http.MethodGet, "/api/chat/history", nil)
		req.Header.Set(identity.SessionHeaderName, sessionID)
		for _, c := range cookies {
			req.AddCookie(c)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return body
	}

	var messages []domain.ChatMessage
	require.NoError(t, json.Unmarshal(get("tab-1")["messages"], &messages))
	require.Len(t, messages, 2)
	assert.Equal(t, "2+2?", messages[0].Content)
	assert.Equal(t, "4", messages[1].Content)

	require.NoError(t, json.Unmarshal(get("tab-2")["messages"], &messages))
	assert.Empty(t, messages)

	del := httptest.NewRequest(http.MethodDelete, "/api/chat", nil)
	del.Header.Set(identity.SessionHeaderName, "tab-1")
	for _, c := range cookies {
		del.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, del)
	assert.Contains(t, rec.Body.String(), "destroyed")
	assert.Equal(t, 0, mgr.Len())

	require.NoError(t, json.Unmarshal(get("tab-1")["messages"], &messages))
	assert.Empty(t, messages)
}

func TestConfigAndNewSession(t *testing.T) {
	router, _ := newTestRouter(stubRunner{}, nil, Status{
		AgentReady: true,
		Provider:   "openai",
		Model:      "gpt-3.5-turbo",
		Tools:      []string{"duckduckgo_search", "yahoo_finance_news"},
		Issues:     []string{"missing required credential: OPENWEATHERMAP_API_KEY"},
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/config", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var cfg map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, PageTitle, cfg["title"])
	assert.Equal(t, InputPlaceholder, cfg["placeholder"])
	assert.Equal(t, true, cfg["agent_ready"])
	assert.Len(t, cfg["tools"], 2)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat/session", nil))
	require.Equal(t, http.StatusCreated, rec.Code)
	var sess map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	assert.Len(t, sess["session_id"], 36)
}

func TestHealthReportsDatabaseAndAgent(t *testing.T) {
	router, _ := newTestRouter(stubRunner{}, pingRepo{}, Status{AgentReady: false})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"degraded"`)

	router, _ = newTestRouter(stubRunner{}, pingRepo{err: errors.New("disk I/O error")}, Status{AgentReady: true})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "unreachable")
}

