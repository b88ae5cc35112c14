package chatws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/ashureev/multitool-assistant/internal/agent"
	"github.com/ashureev/multitool-assistant/internal/domain"
	"github.com/ashureev/multitool-assistant/internal/identity"
	"github.com/ashureev/multitool-assistant/internal/session"
)

const (
	writeTimeout = 10 * time.Second
	// maxQueued bounds the submissions a connection may have waiting.
	maxQueued = 16
)

// Gauge counts open connections. prometheus.Gauge satisfies it.
type Gauge interface {
	Inc()
	Dec()
}

// Handler upgrades /ws/chat requests and serves chat frames.
type Handler struct {
	sessions      *session.Manager
	registry      *Registry
	allowedOrigin string
	isDev         bool
	gauge         Gauge
}

// NewHandler creates a chat WebSocket handler. It registers a cleanup hook
// so destroying a session closes its connection.
func NewHandler(sessions *session.Manager, registry *Registry, allowedOrigin string, isDev bool) *Handler {
	sessions.OnDestroy(func(s *session.Session) {
		registry.Close(s.Key())
	})
	return &Handler{
		sessions:      sessions,
		registry:      registry,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// SetGauge sets the open-connection gauge.
func (h *Handler) SetGauge(g Gauge) {
	h.gauge = g
}

// inbound is a frame sent by the browser.
type inbound struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// outbound is a frame sent to the browser.
type outbound struct {
	Type     string               `json:"type"`
	Content  string               `json:"content,omitempty"`
	Messages []domain.ChatMessage `json:"messages,omitempty"`
	Message  *domain.ChatMessage  `json:"message,omitempty"`
	Step     *agent.Step          `json:"step,omitempty"`
	Pending  bool                 `json:"pending,omitempty"`
	Status   agent.Status         `json:"status,omitempty"`
	QueryID  string               `json:"query_id,omitempty"`
	Error    string               `json:"error,omitempty"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	slog.Info("Chat WebSocket request", "user_id", userID, "session_id", sessionID)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	sess, err := h.sessions.GetOrCreate(r.Context(), userID, sessionID)
	if err != nil {
		slog.Error("Failed to open chat session", "error", err, "user_id", userID)
		http.Error(w, `{"error":"failed to open session"}`, http.StatusInternalServerError)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		_ = ws.Close(websocket.StatusNormalClosure, "session ended")
	}()

	h.registry.Register(sess.Key(), ws)
	defer h.registry.Unregister(sess.Key(), ws)
	if h.gauge != nil {
		h.gauge.Inc()
		defer h.gauge.Dec()
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := writeFrame(ctx, ws, outbound{Type: "history", Messages: sess.History(), Pending: sess.Pending()}); err != nil {
		slog.Debug("Failed to send history", "error", err)
		return
	}

	queue := make(chan string, maxQueued)
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.work(ctx, ws, sess, queue)
	}()

	h.readLoop(ctx, ws, sess, queue)
	cancel()
	<-done
	slog.Info("Chat WebSocket ended", "session_key", sess.Key())
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

// readLoop only enqueues submissions so pings are answered while a query runs.
func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, sess *session.Session, queue chan<- string) {
	for {
		var msg inbound
		if err := wsjson.Read(ctx, ws, &msg); err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				slog.Debug("WebSocket closed", "session_key", sess.Key())
			} else {
				slog.Warn("WebSocket read error", "error", err, "session_key", sess.Key())
			}
			return
		}

		switch msg.Type {
		case "submit":
			select {
			case queue <- msg.Content:
			default:
				_ = writeFrame(ctx, ws, outbound{Type: "error", Error: "too many queued messages"})
			}
		case "ping":
			if err := writeFrame(ctx, ws, outbound{Type: "pong"}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
			}
		default:
			_ = writeFrame(ctx, ws, outbound{Type: "error", Error: "unknown frame type"})
		}
	}
}

// work runs queued submissions one at a time in arrival order.
func (h *Handler) work(ctx context.Context, ws *websocket.Conn, sess *session.Session, queue <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-queue:
			h.submit(ctx, ws, sess, text)
		}
	}
}

func (h *Handler) submit(ctx context.Context, ws *websocket.Conn, sess *session.Session, text string) {
	if err := writeFrame(ctx, ws, outbound{Type: "pending", Content: text, Pending: true}); err != nil {
		return
	}

	reply, res, err := sess.Submit(ctx, text, func(step agent.Step) {
		if err := writeFrame(ctx, ws, outbound{Type: "step", Step: &step}); err != nil {
			slog.Debug("Failed to send step", "error", err)
		}
	})
	if err != nil {
		msg := "failed to process message"
		switch {
		case errors.Is(err, session.ErrEmptyQuery):
			msg = "message is required"
		case errors.Is(err, session.ErrSessionClosed):
			msg = "session closed"
		case ctx.Err() != nil:
			return
		}
		_ = writeFrame(ctx, ws, outbound{Type: "error", Error: msg})
		return
	}

	if err := writeFrame(ctx, ws, outbound{
		Type:    "message",
		Message: &reply,
		Status:  res.Status,
		QueryID: res.QueryID,
	}); err != nil {
		slog.Debug("Failed to send reply", "error", err, "session_key", sess.Key())
	}
}

func writeFrame(ctx context.Context, ws *websocket.Conn, frame outbound) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, ws, frame)
}
