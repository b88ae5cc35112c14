// Package chatws serves the chat over WebSocket.
package chatws

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// Registry tracks the open connection of each chat session. A session has at
// most one connection; a newer one replaces the older.
type Registry struct {
	mu     sync.RWMutex
	active map[string]*websocket.Conn
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{active: make(map[string]*websocket.Conn)}
}

// Register records conn as the session's connection.
func (r *Registry) Register(sessionKey string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.active[sessionKey]; ok && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "session replaced")
	}
	r.active[sessionKey] = conn
	slog.Info("Chat connection registered", "session_key", sessionKey)
}

// Unregister removes conn if it is still the session's connection.
func (r *Registry) Unregister(sessionKey string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.active[sessionKey]; ok && current == conn {
		delete(r.active, sessionKey)
		slog.Info("Chat connection unregistered", "session_key", sessionKey)
	}
}

// Close terminates the session's connection, if any.
func (r *Registry) Close(sessionKey string) {
	r.mu.Lock()
	conn, ok := r.active[sessionKey]
	delete(r.active, sessionKey)
	r.mu.Unlock()

	if !ok {
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "session closed")
	slog.Info("Chat connection closed", "session_key", sessionKey)
}

// Len returns the number of open connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}
