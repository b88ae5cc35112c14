package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/multitool-assistant/internal/agent"
	"github.com/ashureev/multitool-assistant/internal/store"
)

// ErrSessionExists is returned by Create when the key is already live.
var ErrSessionExists = errors.New("session already exists")

// CleanupFunc runs when a session is destroyed.
type CleanupFunc func(s *Session)

// Recorder receives session lifecycle events. *metrics.Metrics implements it.
type Recorder interface {
	SessionOpened()
	SessionClosed(reason string)
}

// Destroy reasons.
const (
	ReasonClosed  = "closed"
	ReasonExpired = "expired"
)

// Options configures a Manager. Every field is optional.
type Options struct {
	Repository store.Repository
	Recorder   Recorder
	Logger     *slog.Logger
	Clock      func() time.Time
}

// Manager owns the live sessions.
type Manager struct {
	newRunner func() Runner
	repo      store.Repository
	recorder  Recorder
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	cleanups []CleanupFunc
}

// NewManager creates a Manager. newRunner is called once per session so
// every session gets its own executor.
func NewManager(newRunner func() Runner, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Manager{
		newRunner: newRunner,
		repo:      opts.Repository,
		recorder:  opts.Recorder,
		logger:    logger,
		now:       now,
		sessions:  make(map[string]*Session),
	}
}

// NewExecutorFactory returns a runner constructor sharing a read-only agent.
// A nil agent yields executors that fail every query.
func NewExecutorFactory(a *agent.Agent, cfg agent.ExecutorConfig) func() Runner {
	return func() Runner {
		return agent.NewExecutor(a, cfg)
	}
}

// OnDestroy registers a cleanup callback.
func (m *Manager) OnDestroy(fn CleanupFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanups = append(m.cleanups, fn)
}

// Create starts a new session for userID and sessionID.
func (m *Manager) Create(ctx context.Context, userID, sessionID string) (*Session, error) {
	m.mu.Lock()
	s, err := m.createLocked(userID, sessionID)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	m.persist(ctx, s)
	return s, nil
}

// Get returns the live session for key.
func (m *Manager) Get(key string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	return s, ok
}

// GetOrCreate returns the live session, creating it on first use.
func (m *Manager) GetOrCreate(ctx context.Context, userID, sessionID string) (*Session, error) {
	m.mu.Lock()
	if s, ok := m.sessions[userID+":"+sessionID]; ok {
		m.mu.Unlock()
		return s, nil
	}
	s, err := m.createLocked(userID, sessionID)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	m.persist(ctx, s)
	return s, nil
}

func (m *Manager) createLocked(userID, sessionID string) (*Session, error) {
	if userID == "" || sessionID == "" {
		return nil, fmt.Errorf("create session: user and session id are required")
	}
	key := userID + ":" + sessionID
	if _, exists := m.sessions[key]; exists {
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, key)
	}

	s := newSession(userID, sessionID, m.newRunner(), m.logger, m.now())
	s.onQuery = m.recordQuery
	m.sessions[key] = s

	if m.recorder != nil {
		m.recorder.SessionOpened()
	}
	m.logger.Info("Chat session created", "session_key", key)
	return s, nil
}

// Destroy ends the session: history is dropped, cleanup callbacks run and
// the stored metadata is removed. It reports whether the session existed.
func (m *Manager) Destroy(ctx context.Context, key string) bool {
	return m.destroy(ctx, key, ReasonClosed)
}

func (m *Manager) destroy(ctx context.Context, key, reason string) bool {
	m.mu.Lock()
	s, ok := m.sessions[key]
	if ok {
		delete(m.sessions, key)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	s.close()
	m.finish(ctx, s, reason)
	return true
}

// finish runs the cleanup of a session already removed from the map.
func (m *Manager) finish(ctx context.Context, s *Session, reason string) {
	m.mu.Lock()
	cleanups := append([]CleanupFunc(nil), m.cleanups...)
	m.mu.Unlock()

	for _, fn := range cleanups {
		fn(s)
	}

	if m.repo != nil {
		if err := m.repo.DeleteChatSession(ctx, s.key); err != nil {
			m.logger.Warn("Failed to delete chat session row", "session_key", s.key, "error", err)
		}
	}
	if m.recorder != nil {
		m.recorder.SessionClosed(reason)
	}
	m.logger.Info("Chat session destroyed", "session_key", s.key, "reason", reason)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// SweepIdle destroys sessions idle for at least ttl and returns how many.
// Sessions with a running query are skipped. The idle check and removal
// happen under one lock, so a query that has started is never expired.
func (m *Manager) SweepIdle(ctx context.Context, ttl time.Duration) int {
	now := m.now()

	m.mu.Lock()
	var expired []*Session
	for key, s := range m.sessions {
		if s.expire(now, ttl) {
			delete(m.sessions, key)
			expired = append(expired, s)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		m.finish(ctx, s, ReasonExpired)
	}
	return len(expired)
}

// DestroyAll ends every live session.
func (m *Manager) DestroyAll(ctx context.Context) {
	m.mu.Lock()
	keys := make([]string, 0, len(m.sessions))
	for key := range m.sessions {
		keys = append(keys, key)
	}
	m.mu.Unlock()

	for _, key := range keys {
		m.destroy(ctx, key, ReasonClosed)
	}
}

func (m *Manager) persist(ctx context.Context, s *Session) {
	if m.repo == nil {
		return
	}
	if err := m.repo.UpsertChatSession(ctx, s.snapshot()); err != nil {
		m.logger.Warn("Failed to store chat session", "session_key", s.key, "error", err)
	}
}

func (m *Manager) recordQuery(s *Session, _ agent.Result) {
	if m.repo == nil {
		return
	}
	// Request contexts may already be cancelled once the reply is written.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.repo.RecordQuery(ctx, s.key, m.now()); err != nil {
		m.logger.Warn("Failed to record query", "session_key", s.key, "error", err)
	}
}
