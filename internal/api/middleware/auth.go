package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"
	"time"
)

type contextKey string

const userIDKey contextKey = "userID"

const tokenTTL = 24 * time.Hour

// TokenStore issues and validates bearer tokens for signed-in users.
// Tokens live in memory, so a restart signs everyone out; clients are
// expected to re-authenticate from their local session cache.
type TokenStore struct {
	mu     sync.Mutex
	tokens map[string]tokenEntry
}

type tokenEntry struct {
	userID    string
	expiresAt time.Time
}

// NewTokenStore creates an empty token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{tokens: make(map[string]tokenEntry)}
}

// Issue creates a token for userID, valid for 24 hours.
func (s *TokenStore) Issue(userID string) string {
	buf := make([]byte, 24)
	_, _ = rand.Read(buf)
	token := hex.EncodeToString(buf)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = tokenEntry{userID: userID, expiresAt: time.Now().Add(tokenTTL)}
	return token
}

// Lookup returns the user a token belongs to.
func (s *TokenStore) Lookup(token string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.tokens[token]
	if !ok {
		return "", false
	}
	if time.Now().After(entry.expiresAt) {
		delete(s.tokens, token)
		return "", false
	}
	return entry.userID, true
}

// Revoke invalidates a token.
func (s *TokenStore) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
}

// RequireAuth rejects requests without a valid bearer token and puts
// the user id on the request context. The websocket endpoint passes the
// token as a query parameter because browsers cannot set headers there.
func (s *TokenStore) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		userID, ok := s.Lookup(token)
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"missing or expired token"}`))
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		setLoggedUser(ctx, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserID returns the authenticated user id from the request context.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}
