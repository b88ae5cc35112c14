// Package store provides data persistence interfaces and implementations.
//
// Only identities and session metadata are stored. Chat messages live in
// memory and are gone when the session or the process ends.
package store

import (
	"context"
	"time"

	"github.com/ashureev/multitool-assistant/internal/domain"
)

// Repository persists anonymous users and chat session metadata.
type Repository interface {
	// TouchUser records an anonymous browser id, creating it on first sight
	// and bumping its last seen time otherwise.
	TouchUser(ctx context.Context, userID string, at time.Time) error

	// UpsertChatSession records a live session.
	UpsertChatSession(ctx context.Context, session *domain.ChatSession) error

	// RecordQuery bumps the query count and activity time of a session.
	RecordQuery(ctx context.Context, sessionKey string, at time.Time) error

	// DeleteChatSession removes session metadata.
	DeleteChatSession(ctx context.Context, sessionKey string) error

	// DeleteStaleChatSessions removes rows idle longer than ttl, such as
	// those left behind by a previous process.
	DeleteStaleChatSessions(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
