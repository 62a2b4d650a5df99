package chat

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/palaver-chat/palaver/internal/metrics"
	"github.com/palaver-chat/palaver/internal/retry"
	"github.com/palaver-chat/palaver/internal/rtstore"
)

// DefaultTypingStale is how long a remote typing flag stays displayed
// without a refresh before the watcher clears it locally. A peer that
// crashes while flagged typing would otherwise stick forever.
const DefaultTypingStale = 6 * time.Second

// TypingChannel carries the ephemeral per-conversation typing flags.
// Each slot has exactly one legitimate writer: the participant it names.
type TypingChannel struct {
	store      rtstore.Store
	logger     zerolog.Logger
	staleAfter time.Duration
}

// NewTypingChannel creates a typing channel over the given store session.
func NewTypingChannel(store rtstore.Store, logger zerolog.Logger) *TypingChannel {
	return &TypingChannel{store: store, logger: logger, staleAfter: DefaultTypingStale}
}

// SetTyping writes the flag for one slot. Callers invoke it on the
// transition between empty and non-empty input, not per keystroke, and
// clear it on send-success and on input blur.
func (t *TypingChannel) SetTyping(ctx context.Context, convID, slot string, typing bool) error {
	path := typingPath(convID, slot)
	if err := retry.Do(ctx, func() error {
		return t.store.Set(ctx, path, typing)
	}); err != nil {
		return &WriteError{Path: path, Err: err}
	}
	metrics.TypingWrites.Inc()
	return nil
}

// ClearOnDisconnect registers a deferred write that drops the slot's
// flag to false when this session's connection is lost, so a crashed
// writer does not leave the flag raised.
func (t *TypingChannel) ClearOnDisconnect(ctx context.Context, convID, slot string) (rtstore.DeferredWrite, error) {
	d := t.store.OnDisconnect(typingPath(convID, slot))
	if err := d.Set(ctx, false); err != nil {
		return nil, &WriteError{Path: typingPath(convID, slot), Err: err}
	}
	return d, nil
}

// Watch observes one slot's flag. On top of the store's events it keeps
// a staleness timer: when a raised flag is not refreshed within the
// staleness window, fn is called with false even though the store still
// says true.
func (t *TypingChannel) Watch(convID, slot string, fn func(bool)) (func(), error) {
	var mu sync.Mutex
	var timer *time.Timer

	cancel, err := t.store.Subscribe(typingPath(convID, slot), func(snap rtstore.Snapshot) {
		typing := snap.Bool()

		mu.Lock()
		if timer != nil {
			timer.Stop()
			timer = nil
		}
		if typing {
			timer = time.AfterFunc(t.staleAfter, func() { fn(false) })
		}
		mu.Unlock()

		fn(typing)
	})
	if err != nil {
		return nil, err
	}

	return func() {
		cancel()
		mu.Lock()
		if timer != nil {
			timer.Stop()
			timer = nil
		}
		mu.Unlock()
	}, nil
}
