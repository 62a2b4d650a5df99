package chat

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/palaver-chat/palaver/internal/metrics"
	"github.com/palaver-chat/palaver/internal/models"
	"github.com/palaver-chat/palaver/internal/retry"
	"github.com/palaver-chat/palaver/internal/rtstore"
)

// PresenceTracker maintains the single presence record per user. Only
// the user's own session may write a record; everyone else observes.
// Ungraceful termination is covered exclusively by the deferred fallback
// write registered in GoOnline: once the store notices the session is
// gone it flips the record offline on its own, with no client code
// involved.
type PresenceTracker struct {
	store  rtstore.Store
	logger zerolog.Logger
	now    func() time.Time

	mu        sync.Mutex
	fallbacks map[string]rtstore.DeferredWrite
}

// NewPresenceTracker creates a tracker over the given store session.
func NewPresenceTracker(store rtstore.Store, logger zerolog.Logger) *PresenceTracker {
	return &PresenceTracker{
		store:     store,
		logger:    logger,
		now:       time.Now,
		fallbacks: make(map[string]rtstore.DeferredWrite),
	}
}

// GoOnline marks the user online and registers the offline fallback.
// The fallback is registered first: a session that dies between the two
// writes must still end up offline.
func (t *PresenceTracker) GoOnline(ctx context.Context, userID string) error {
	path := presencePath(userID)

	d := t.store.OnDisconnect(path)
	if err := d.Set(ctx, map[string]any{
		"online":     false,
		"lastSeenAt": rtstore.ServerTimestamp,
	}); err != nil {
		return &WriteError{Path: path, Err: err}
	}

	if err := retry.Do(ctx, func() error {
		return t.store.Update(ctx, path, map[string]any{"online": true})
	}); err != nil {
		return &WriteError{Path: path, Err: err}
	}

	t.mu.Lock()
	t.fallbacks[userID] = d
	t.mu.Unlock()

	metrics.PresenceTransitions.WithLabelValues("online").Inc()
	t.logger.Debug().Str("user", userID).Msg("went online")
	return nil
}

// GoOffline is the explicit logout path: write the offline record
// synchronously, then cancel the pending fallback so it cannot fire a
// second, later offline write.
func (t *PresenceTracker) GoOffline(ctx context.Context, userID string) error {
	path := presencePath(userID)
	rec := models.PresenceRecord{Online: false, LastSeenAt: t.now().UnixMilli()}

	if err := retry.Do(ctx, func() error {
		return t.store.Set(ctx, path, rec)
	}); err != nil {
		return &WriteError{Path: path, Err: err}
	}

	t.mu.Lock()
	d := t.fallbacks[userID]
	delete(t.fallbacks, userID)
	t.mu.Unlock()
	if d != nil {
		if err := d.Cancel(ctx); err != nil {
			t.logger.Warn().Err(err).Str("user", userID).Msg("fallback cancel failed")
		}
	}

	metrics.PresenceTransitions.WithLabelValues("offline").Inc()
	t.logger.Debug().Str("user", userID).Msg("went offline")
	return nil
}

// Watch observes a user's presence record. Any client may watch any
// user.
func (t *PresenceTracker) Watch(userID string, fn func(models.PresenceRecord)) (func(), error) {
	return t.store.Subscribe(presencePath(userID), func(snap rtstore.Snapshot) {
		var rec models.PresenceRecord
		if err := snap.Decode(&rec); err != nil {
			t.logger.Warn().Err(err).Str("user", userID).Msg("bad presence record")
			return
		}
		rec.UserID = userID
		fn(rec)
	})
}

// Presence returns the current record.
func (t *PresenceTracker) Presence(ctx context.Context, userID string) (models.PresenceRecord, error) {
	snap, err := t.store.Once(ctx, presencePath(userID))
	if err != nil {
		return models.PresenceRecord{}, err
	}
	var rec models.PresenceRecord
	if err := snap.Decode(&rec); err != nil {
		return models.PresenceRecord{}, err
	}
	rec.UserID = userID
	return rec, nil
}
