package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/ashureev/multitool-assistant/internal/agent"
	"github.com/ashureev/multitool-assistant/internal/domain"
	"github.com/ashureev/multitool-assistant/internal/identity"
	"github.com/ashureev/multitool-assistant/internal/session"
)

const (
	maxRequestBodySize = 64 << 10
	keepAliveInterval  = 10 * time.Second
)

// ChatHandler handles chat endpoints.
type ChatHandler struct {
	*Handler
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(base *Handler) *ChatHandler {
	return &ChatHandler{Handler: base}
}

// RegisterRoutes registers chat routes.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/config", h.GetConfig)
		r.Get("/chat/history", h.GetHistory)
		r.Post("/chat", h.PostChat)
		r.Delete("/chat", h.DeleteChat)
		r.Post("/chat/session", h.NewSession)
	})
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatReply is the final event of a chat stream.
type ChatReply struct {
	Message domain.ChatMessage `json:"message"`
	Status  agent.Status       `json:"status"`
	QueryID string             `json:"query_id"`
}

// GetConfig returns the page configuration for the frontend.
func (h *ChatHandler) GetConfig(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"title":       PageTitle,
		"description": PageDescription,
		"placeholder": InputPlaceholder,
		"agent_ready": h.status.AgentReady,
		"provider":    h.status.Provider,
		"model":       h.status.Model,
		"tools":       h.status.Tools,
		"issues":      h.status.Issues,
	})
}

// GetHistory returns the current session's messages. An unknown session
// has an empty history.
func (h *ChatHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := identity.SessionIDFromContext(r.Context())
	resp := map[string]interface{}{
		"session_id": sessionID,
		"messages":   []domain.ChatMessage{},
		"pending":    false,
	}
	if sess, ok := h.sessions.Get(identity.SessionKeyFromContext(r.Context())); ok {
		resp["messages"] = sess.History()
		resp["pending"] = sess.Pending()
	}
	JSON(w, http.StatusOK, resp)
}

// PostChat runs one query and streams progress as server-sent events:
// "pending", then zero or more "step", then "message" (or "error").
func (h *ChatHandler) PostChat(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		Error(w, http.StatusBadRequest, "message is required")
		return
	}

	sess, err := h.sessions.GetOrCreate(r.Context(), userID, sessionID)
	if err != nil {
		slog.Error("Failed to open chat session", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to open session")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	slog.Info("Chat request",
		"session_key", sess.Key(),
		"message_length", len(req.Message),
		"request_id", chiMiddleware.GetReqID(r.Context()),
	)

	if err := writeSSEJSON(w, "pending", map[string]interface{}{"pending": true, "content": req.Message}); err != nil {
		return
	}
	flusher.Flush()

	type outcome struct {
		reply domain.ChatMessage
		res   agent.Result
		err   error
	}
	ctx := r.Context()
	steps := make(chan agent.Step, 16)
	done := make(chan outcome, 1)

	go func() {
		reply, res, err := sess.Submit(ctx, req.Message, func(step agent.Step) {
			select {
			case steps <- step:
			case <-ctx.Done():
			}
		})
		done <- outcome{reply: reply, res: res, err: err}
	}()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case step := <-steps:
			if err := writeSSEJSON(w, "step", step); err != nil {
				slog.Warn("failed to write SSE step event", "error", err)
				return
			}
			flusher.Flush()

		case <-ticker.C:
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case out := <-done:
			for drained := false; !drained; {
				select {
				case step := <-steps:
					_ = writeSSEJSON(w, "step", step)
				default:
					drained = true
				}
			}

			if out.err != nil {
				if ctx.Err() == nil {
					slog.Warn("Chat submit failed", "error", out.err, "session_key", sess.Key())
					_ = writeSSE(w, "error", submitErrorMessage(out.err))
					flusher.Flush()
				}
				return
			}

			if err := writeSSEJSON(w, "message", ChatReply{
				Message: out.reply,
				Status:  out.res.Status,
				QueryID: out.res.QueryID,
			}); err != nil {
				slog.Warn("failed to write SSE message event", "error", err)
				return
			}
			flusher.Flush()
			return

		case <-ctx.Done():
			return
		}
	}
}

// DeleteChat destroys the current session and its history.
func (h *ChatHandler) DeleteChat(w http.ResponseWriter, r *http.Request) {
	key := identity.SessionKeyFromContext(r.Context())
	if !h.sessions.Destroy(r.Context(), key) {
		JSON(w, http.StatusOK, map[string]string{"status": "not_found"})
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "destroyed"})
}

// NewSession issues a fresh tab session id.
func (h *ChatHandler) NewSession(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusCreated, map[string]string{"session_id": uuid.NewString()})
}

func submitErrorMessage(err error) string {
	switch {
	case errors.Is(err, session.ErrEmptyQuery):
		return "message is required"
	case errors.Is(err, session.ErrSessionClosed):
		return "session closed"
	default:
		return "failed to process message"
	}
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

func writeSSEJSON(w io.Writer, event string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event, err)
	}
	return writeSSE(w, event, string(data))
}
