package session

import (
	"path/filepath"
	"testing"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	cache, err := Open(filepath.Join(t.TempDir(), "session.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { cache.Close() })
	return cache
}

func TestRememberAndRecallUser(t *testing.T) {
	cache := newTestCache(t)

	if err := cache.RememberUser("u1", "alice@example.com", "tok-a"); err != nil {
		t.Fatalf("RememberUser failed: %v", err)
	}

	entry, err := cache.LastUser()
	if err != nil {
		t.Fatalf("LastUser failed: %v", err)
	}
	if entry == nil {
		t.Fatal("expected a remembered user")
	}
	if entry.UserID != "u1" || entry.Email != "alice@example.com" || entry.Token != "tok-a" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if entry.RememberedAt.IsZero() {
		t.Fatal("expected RememberedAt to be set")
	}
}

func TestLastUserEmptyCache(t *testing.T) {
	cache := newTestCache(t)

	entry, err := cache.LastUser()
	if err != nil {
		t.Fatalf("LastUser failed: %v", err)
	}
	if entry != nil {
		t.Fatalf("expected no remembered user, got %+v", entry)
	}
}

func TestForget(t *testing.T) {
	cache := newTestCache(t)

	if err := cache.RememberUser("u2", "bob@example.com", "tok-b"); err != nil {
		t.Fatalf("RememberUser failed: %v", err)
	}
	if err := cache.Forget(); err != nil {
		t.Fatalf("Forget failed: %v", err)
	}

	entry, err := cache.LastUser()
	if err != nil {
		t.Fatalf("LastUser failed: %v", err)
	}
	if entry != nil {
		t.Fatalf("expected cache to be empty after Forget, got %+v", entry)
	}
}

func TestRememberOverwrites(t *testing.T) {
	cache := newTestCache(t)

	if err := cache.RememberUser("u1", "alice@example.com", "tok-a"); err != nil {
		t.Fatalf("RememberUser failed: %v", err)
	}
	if err := cache.RememberUser("u2", "bob@example.com", "tok-b"); err != nil {
		t.Fatalf("RememberUser failed: %v", err)
	}

	entry, err := cache.LastUser()
	if err != nil {
		t.Fatalf("LastUser failed: %v", err)
	}
	if entry.UserID != "u2" {
		t.Fatalf("expected latest sign-in, got %+v", entry)
	}
}
