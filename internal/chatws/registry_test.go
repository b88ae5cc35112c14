package chatws

import (
	"testing"

	"github.com/coder/websocket"
)

func connFor(r *Registry, key string) *websocket.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active[key]
}

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()
	conn := &websocket.Conn{}

	r.Register("anon_1:tab-1", conn)

	if got := connFor(r, "anon_1:tab-1"); got != conn {
		t.Errorf("Expected connection %v, got %v", conn, got)
	}
	if r.Len() != 1 {
		t.Errorf("Expected 1 connection, got %d", r.Len())
	}
}

func TestRegistryUnregisterIgnoresStaleConn(t *testing.T) {
	r := NewRegistry()
	current := &websocket.Conn{}
	stale := &websocket.Conn{}

	r.Register("anon_1:tab-1", current)
	r.Unregister("anon_1:tab-1", stale)

	if got := connFor(r, "anon_1:tab-1"); got != current {
		t.Errorf("Expected current connection to survive, got %v", got)
	}

	r.Unregister("anon_1:tab-1", current)
	if got := connFor(r, "anon_1:tab-1"); got != nil {
		t.Errorf("Expected nil connection, got %v", got)
	}
}

func TestRegistryCloseUnknownKey(t *testing.T) {
	r := NewRegistry()
	r.Close("missing")
	if r.Len() != 0 {
		t.Errorf("Expected empty registry, got %d", r.Len())
	}
}
