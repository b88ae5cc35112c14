// Package session owns chat sessions: one conversation history and one
// executor per browser tab, with queries in a session run one at a time.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/multitool-assistant/internal/agent"
	"github.com/ashureev/multitool-assistant/internal/domain"
)

// NoResponseMessage is recorded when a query produced no text.
const NoResponseMessage = "No response generated."

var (
	// ErrEmptyQuery is returned for blank submissions.
	ErrEmptyQuery = errors.New("query is empty")
	// ErrSessionClosed is returned when submitting to a destroyed session.
	ErrSessionClosed = errors.New("session closed")
)

// Runner answers one query. *agent.Executor implements it.
type Runner interface {
	Run(ctx context.Context, input string, observers ...agent.StepObserver) agent.Result
}

// Session is one conversation. Submit may be called concurrently; queries
// are served in arrival order of slot acquisition and never overlap.
type Session struct {
	key       string
	userID    string
	sessionID string
	runner    Runner
	logger    *slog.Logger

	// slot holds a token while a query is running.
	slot   chan struct{}
	closed chan struct{}
	once   sync.Once

	mu         sync.RWMutex
	history    []domain.ChatMessage
	pending    bool
	queries    int
	createdAt  time.Time
	lastActive time.Time

	onQuery func(s *Session, res agent.Result)
}

func newSession(userID, sessionID string, runner Runner, logger *slog.Logger, now time.Time) *Session {
	key := userID + ":" + sessionID
	return &Session{
		key:        key,
		userID:     userID,
		sessionID:  sessionID,
		runner:     runner,
		logger:     logger.With("session_key", key),
		slot:       make(chan struct{}, 1),
		closed:     make(chan struct{}),
		createdAt:  now,
		lastActive: now,
	}
}

// Key returns the session key.
func (s *Session) Key() string { return s.key }

// UserID returns the owning browser identity.
func (s *Session) UserID() string { return s.userID }

// SessionID returns the tab identifier.
func (s *Session) SessionID() string { return s.sessionID }

// Submit runs text through the executor and records both sides of the
// exchange. It blocks while another query in this session is running.
// The returned message is the assistant reply that was appended.
func (s *Session) Submit(ctx context.Context, text string, observers ...agent.StepObserver) (domain.ChatMessage, agent.Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.ChatMessage{}, agent.Result{}, ErrEmptyQuery
	}

	select {
	case s.slot <- struct{}{}:
	case <-ctx.Done():
		return domain.ChatMessage{}, agent.Result{}, ctx.Err()
	case <-s.closed:
		return domain.ChatMessage{}, agent.Result{}, ErrSessionClosed
	}
	defer func() { <-s.slot }()

	// Checked under mu so expire cannot close the session once the query starts.
	s.mu.Lock()
	if s.isClosed() {
		s.mu.Unlock()
		return domain.ChatMessage{}, agent.Result{}, ErrSessionClosed
	}
	s.history = append(s.history, domain.NewUserMessage(text))
	s.pending = true
	s.mu.Unlock()

	res := s.runner.Run(ctx, text, observers...)

	content := res.Output
	if strings.TrimSpace(content) == "" {
		content = NoResponseMessage
	}
	reply := domain.NewAssistantMessage(content)

	s.mu.Lock()
	s.history = append(s.history, reply)
	s.pending = false
	s.queries++
	s.lastActive = reply.CreatedAt
	s.mu.Unlock()

	s.logger.Info("Query answered", "query_id", res.QueryID, "status", res.Status, "iterations", res.Iterations)
	if s.onQuery != nil {
		s.onQuery(s, res)
	}
	return reply, res, nil
}

// History returns a copy of the conversation so far.
func (s *Session) History() []domain.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ChatMessage, len(s.history))
	copy(out, s.history)
	return out
}

// Pending reports whether a query is running.
func (s *Session) Pending() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending
}

// QueryCount returns the number of answered queries.
func (s *Session) QueryCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queries
}

// expire closes the session if it has no running query and has been idle
// for at least ttl. It reports whether the session was closed.
func (s *Session) expire(now time.Time, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending || s.isClosed() {
		return false
	}
	meta := domain.ChatSession{CreatedAt: s.createdAt, LastActiveAt: s.lastActive}
	if !meta.Expired(now, ttl) {
		return false
	}
	s.close()
	return true
}

func (s *Session) snapshot() *domain.ChatSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &domain.ChatSession{
		SessionKey:   s.key,
		UserID:       s.userID,
		SessionID:    s.sessionID,
		QueryCount:   s.queries,
		LastActiveAt: s.lastActive,
		CreatedAt:    s.createdAt,
	}
}

func (s *Session) close() {
	s.once.Do(func() { close(s.closed) })
}

func (s *Session) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}
