package domain

import (
	"time"
)

// ChatSession is the persisted metadata of one live chat session.
// Message content is never stored.
type ChatSession struct {
	SessionKey   string
	UserID       string
	SessionID    string
	QueryCount   int
	LastActiveAt time.Time
	CreatedAt    time.Time
}

// Idle returns how long the session has been inactive at now.
func (s *ChatSession) Idle(now time.Time) time.Duration {
	if s.LastActiveAt.IsZero() {
		return now.Sub(s.CreatedAt)
	}
	return now.Sub(s.LastActiveAt)
}

// Expired reports whether the session has been idle for at least ttl.
func (s *ChatSession) Expired(now time.Time, ttl time.Duration) bool {
	return s.Idle(now) >= ttl
}
