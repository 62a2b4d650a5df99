package blob

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
)

func TestUploadReturnsPublicURL(t *testing.T) {
	var gotPath, gotType string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := NewHTTPStore(srv.URL, "media", "test-key", zerolog.Nop())
	url, err := store.Upload(context.Background(), "img/photo.jpg", "image/jpeg", strings.NewReader("jpegdata"))
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	if gotPath != "/object/media/img/photo.jpg" {
		t.Fatalf("unexpected upload path %s", gotPath)
	}
	if gotType != "image/jpeg" {
		t.Fatalf("unexpected content type %s", gotType)
	}
	if string(gotBody) != "jpegdata" {
		t.Fatalf("unexpected body %q", gotBody)
	}
	if want := srv.URL + "/object/public/media/img/photo.jpg"; url != want {
		t.Fatalf("expected url %s, got %s", want, url)
	}
}

func TestUploadRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := NewHTTPStore(srv.URL, "media", "k", zerolog.Nop())
	if _, err := store.Upload(context.Background(), "a/b", "text/plain", strings.NewReader("x")); err != nil {
		t.Fatalf("expected upload to succeed on third attempt: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestUploadGivesUpAsUploadError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	store := NewHTTPStore(srv.URL, "media", "k", zerolog.Nop())
	_, err := store.Upload(context.Background(), "a/b", "text/plain", strings.NewReader("x"))
	if !IsUpload(err) {
		t.Fatalf("expected upload error, got %v", err)
	}
}

func TestRemoveDeletesObject(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := NewHTTPStore(srv.URL, "media", "k", zerolog.Nop())
	if err := store.Remove(context.Background(), "img/photo.jpg"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if gotMethod != http.MethodDelete {
		t.Fatalf("expected DELETE, got %s", gotMethod)
	}
	if gotPath != "/object/media/img/photo.jpg" {
		t.Fatalf("unexpected remove path %s", gotPath)
	}
}

func TestRemoveMissingObjectIsNotAnError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	store := NewHTTPStore(srv.URL, "media", "k", zerolog.Nop())
	if err := store.Remove(context.Background(), "gone"); err != nil {
		t.Fatalf("expected missing object to be treated as removed: %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("404 should not be retried, got %d attempts", got)
	}
}

func TestRemovePermissionDenied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	store := NewHTTPStore(srv.URL, "media", "k", zerolog.Nop())
	if err := store.Remove(context.Background(), "a/b"); !IsPermission(err) {
		t.Fatalf("expected permission error, got %v", err)
	}
}

func TestUploadPermissionDeniedNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	store := NewHTTPStore(srv.URL, "media", "k", zerolog.Nop())
	_, err := store.Upload(context.Background(), "a/b", "text/plain", strings.NewReader("x"))
	if !IsPermission(err) {
		t.Fatalf("expected permission error, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("permission rejection should not be retried, got %d attempts", got)
	}
}
