// Package api provides HTTP handlers for the assistant API.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/ashureev/multitool-assistant/internal/session"
	"github.com/ashureev/multitool-assistant/internal/store"
)

// Page copy served to the UI.
const (
	PageTitle        = "Multi-Tool AI Assistant"
	PageDescription  = "Ask about anything on the web, the weather anywhere, or the latest news on a stock ticker."
	InputPlaceholder = "What would you like to know?"
)

// Status describes what the running process can do. Missing credentials
// and omitted tools leave the server up in a degraded state.
type Status struct {
	Provider   string
	Model      string
	AgentReady bool
	Tools      []string
	Issues     []string
}

// Degraded reports whether any capability is missing.
func (s Status) Degraded() bool {
	return !s.AgentReady || len(s.Issues) > 0
}

// Handler provides common handler utilities.
type Handler struct {
	repo     store.Repository
	sessions *session.Manager
	status   Status
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, sessions *session.Manager, status Status) *Handler {
	return &Handler{
		repo:     repo,
		sessions: sessions,
		status:   status,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
