// Package rtstore provides the hierarchical realtime store every
// synchronization component is built on. The store is an injected
// capability: production sessions speak to Redis while tests run against
// the in-memory backend, and the conversation logic cannot tell them
// apart.
package rtstore

import (
	"context"
	"strings"
)

// Store is a single client session against the shared realtime tree.
// Paths are slash-separated ("conversations/<id>/messages"). Writes are
// unconditional; ordering within one path's subscription stream follows
// write order, but consumers re-derive any domain ordering themselves.
type Store interface {
	// Set replaces the value at path. A nil value deletes the subtree.
	Set(ctx context.Context, path string, value any) error

	// Update merges the given fields into the object at path, creating
	// it if absent. Fields outside the map are left untouched.
	Update(ctx context.Context, path string, fields map[string]any) error

	// Push returns a fresh child key for path. The key is unique and
	// lexicographically ordered by creation time. Nothing is written.
	Push(path string) string

	// Once returns a point-in-time snapshot of the subtree at path.
	Once(ctx context.Context, path string) (Snapshot, error)

	// Subscribe delivers the current snapshot of path immediately and a
	// fresh full snapshot after every mutation at, above or below path.
	// The returned function cancels the subscription.
	Subscribe(path string, fn func(Snapshot)) (func(), error)

	// OnDisconnect returns a handle for registering a deferred fallback
	// write at path: a write the store itself performs once it detects
	// this session's connection has been severed, whether or not any
	// client code is still running.
	OnDisconnect(path string) DeferredWrite
}

// DeferredWrite is a pre-registered write tied to the session's liveness.
type DeferredWrite interface {
	// Set registers value to be written when the session is lost.
	// ServerTimestamp placeholders inside value resolve at fire time.
	Set(ctx context.Context, value any) error

	// Cancel withdraws the registration so it cannot fire later.
	Cancel(ctx context.Context) error
}

// serverTimestamp marshals to the store's timestamp placeholder, which
// both backends replace with the current Unix ms when the write lands.
type serverTimestamp struct{}

// ServerTimestamp is the placeholder value for "the time this write is
// actually applied". It is the only way a deferred fallback write can
// record an accurate last-seen time, since the registering client may be
// long gone when the write fires.
var ServerTimestamp = serverTimestamp{}

func (serverTimestamp) MarshalJSON() ([]byte, error) {
	return []byte(`{".sv":"timestamp"}`), nil
}

// splitPath breaks a path into segments, rejecting empties.
func splitPath(path string) []string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ancestors returns path and every ancestor of path, shortest first.
func ancestors(path string) []string {
	segs := splitPath(path)
	out := make([]string, 0, len(segs))
	for i := 1; i <= len(segs); i++ {
		out = append(out, strings.Join(segs[:i], "/"))
	}
	return out
}
