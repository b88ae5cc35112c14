package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/multitool-assistant/internal/domain"
	"github.com/ashureev/multitool-assistant/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		first_seen_at INTEGER NOT NULL,
		last_seen_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chat_sessions (
		session_key TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		query_count INTEGER NOT NULL DEFAULT 0,
		last_active_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_sessions_active ON chat_sessions(last_active_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// TouchUser inserts the user or bumps last_seen_at.
func (s *SQLiteStore) TouchUser(ctx context.Context, userID string, at time.Time) error {
	query := `
	INSERT INTO users (user_id, first_seen_at, last_seen_at) VALUES (?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET last_seen_at = excluded.last_seen_at`

	return shared.RetryOnConflict(ctx, "touch user", shared.DefaultRetryPolicy, func() error {
		if _, err := s.db.ExecContext(ctx, query, userID, at.Unix(), at.Unix()); err != nil {
			return fmt.Errorf("touch user: %w", err)
		}
		return nil
	})
}

// UpsertChatSession records a live session.
func (s *SQLiteStore) UpsertChatSession(ctx context.Context, session *domain.ChatSession) error {
	query := `
	INSERT INTO chat_sessions (session_key, user_id, session_id, query_count, last_active_at, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_key) DO UPDATE SET
		query_count = excluded.query_count,
		last_active_at = excluded.last_active_at`

	lastActive := session.LastActiveAt
	if lastActive.IsZero() {
		lastActive = session.CreatedAt
	}

	return shared.RetryOnConflict(ctx, "upsert chat session", shared.DefaultRetryPolicy, func() error {
		_, err := s.db.ExecContext(ctx, query,
			session.SessionKey, session.UserID, session.SessionID,
			session.QueryCount, lastActive.Unix(), session.CreatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("upsert chat session: %w", err)
		}
		return nil
	})
}

// RecordQuery bumps the query count and activity time of a session.
func (s *SQLiteStore) RecordQuery(ctx context.Context, sessionKey string, at time.Time) error {
	query := `UPDATE chat_sessions SET query_count = query_count + 1, last_active_at = ? WHERE session_key = ?`

	return shared.RetryOnConflict(ctx, "record query", shared.DefaultRetryPolicy, func() error {
		if _, err := s.db.ExecContext(ctx, query, at.Unix(), sessionKey); err != nil {
			return fmt.Errorf("record query: %w", err)
		}
		return nil
	})
}

// DeleteChatSession removes session metadata.
func (s *SQLiteStore) DeleteChatSession(ctx context.Context, sessionKey string) error {
	err := shared.RetryOnConflict(ctx, "delete chat session", shared.DefaultRetryPolicy, func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE session_key = ?`, sessionKey)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete chat session %s: %w", sessionKey, err)
	}
	return nil
}

// DeleteStaleChatSessions removes rows idle longer than ttl.
func (s *SQLiteStore) DeleteStaleChatSessions(ctx context.Context, ttl time.Duration) (int64, error) {
	threshold := time.Now().Add(-ttl).Unix()

	var deleted int64
	err := shared.RetryOnConflict(ctx, "delete stale chat sessions", shared.DefaultRetryPolicy, func() error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE last_active_at < ?`, threshold)
		if err != nil {
			return err
		}
		deleted, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("delete stale chat sessions: %w", err)
	}
	return deleted, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
