// Package identity resolves who is chatting: an anonymous browser id kept in
// a cookie, plus a tab id so each tab gets its own chat session.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/ashureev/multitool-assistant/internal/store"
)

// Identity transport names.
const (
	AnonCookieName        = "assistant_anon_id"
	SessionHeaderName     = "X-Assistant-Session-ID"
	SessionQueryParam     = "session_id"
	DefaultSessionIDValue = "default"
	cookieMaxAge          = 30 * 24 * time.Hour
)

// Identity is the caller of one request.
type Identity struct {
	UserID    string
	SessionID string
}

// Key identifies the chat session of this browser tab.
func (id Identity) Key() string {
	return SessionKey(id.UserID, id.SessionID)
}

type contextKey struct{}

var (
	anonIDPattern = regexp.MustCompile(`^anon_[a-f0-9]{32}$`)
	tabIDPattern  = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)
)

// SessionKey identifies one chat session: a browser identity plus a tab.
func SessionKey(userID, sessionID string) string {
	return userID + ":" + sessionID
}

// FromContext returns the identity stored by Middleware. Without one the
// user id is empty and the session id is the default.
func FromContext(ctx context.Context) Identity {
	if id, ok := ctx.Value(contextKey{}).(Identity); ok {
		return id
	}
	return Identity{SessionID: DefaultSessionIDValue}
}

// UserIDFromContext returns the anonymous browser id of the request.
func UserIDFromContext(ctx context.Context) string { return FromContext(ctx).UserID }

// SessionIDFromContext returns the tab id of the request.
func SessionIDFromContext(ctx context.Context) string { return FromContext(ctx).SessionID }

// SessionKeyFromContext returns the chat session key for the request.
func SessionKeyFromContext(ctx context.Context) string { return FromContext(ctx).Key() }

// Middleware attaches an Identity to every request. The browser id cookie is
// issued when absent or malformed and refreshed otherwise. A nil repo skips
// recording users.
func Middleware(repo store.Repository, isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := browserID(r)
			if err != nil {
				slog.Error("Failed to generate anonymous id", "error", err)
				http.Error(w, `{"error":"failed to establish anonymous identity"}`, http.StatusInternalServerError)
				return
			}
			setCookie(w, userID, isDev)

			if repo != nil {
				if err := repo.TouchUser(r.Context(), userID, time.Now()); err != nil {
					slog.Warn("Failed to record anonymous user", "user_id", userID, "error", err)
				}
			}

			id := Identity{UserID: userID, SessionID: tabID(r)}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, id)))
		})
	}
}

func browserID(r *http.Request) (string, error) {
	if c, err := r.Cookie(AnonCookieName); err == nil && anonIDPattern.MatchString(c.Value) {
		return c.Value, nil
	}
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate anonymous id: %w", err)
	}
	return "anon_" + hex.EncodeToString(buf), nil
}

func setCookie(w http.ResponseWriter, userID string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     AnonCookieName,
		Value:    userID,
		Path:     "/",
		MaxAge:   int(cookieMaxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

// tabID reads the tab id from the header, falling back to the query string
// since browsers cannot set headers on WebSocket upgrades.
func tabID(r *http.Request) string {
	sid := r.Header.Get(SessionHeaderName)
	if sid == "" {
		sid = r.URL.Query().Get(SessionQueryParam)
	}
	sid = strings.TrimSpace(sid)
	if !tabIDPattern.MatchString(sid) {
		return DefaultSessionIDValue
	}
	return sid
}
