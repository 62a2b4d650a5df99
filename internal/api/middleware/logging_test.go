package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoggerIncludesAuthenticatedUser(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	tokens := NewTokenStore()
	token := tokens.Issue("user-1")

	handler := Logger(logger)(tokens.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	req := httptest.NewRequest(http.MethodGet, "/profile", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !strings.Contains(buf.String(), `"user":"user-1"`) {
		t.Fatalf("expected request log to carry the user id, got %s", buf.String())
	}
}

func TestLoggerOmitsUserWhenUnauthenticated(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	tokens := NewTokenStore()
	handler := Logger(logger)(tokens.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/profile", nil))

	out := buf.String()
	if strings.Contains(out, `"user":`) {
		t.Fatalf("expected no user field on a rejected request, got %s", out)
	}
	if !strings.Contains(out, `"status":401`) {
		t.Fatalf("expected 401 in the request log, got %s", out)
	}
}
