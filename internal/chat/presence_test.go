package chat

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/palaver-chat/palaver/internal/models"
	"github.com/palaver-chat/palaver/internal/rtstore"
)

func TestGoOnlineVisibleToOthers(t *testing.T) {
	mem := rtstore.NewMemory()
	alice := NewPresenceTracker(mem.Connect("a"), zerolog.Nop())
	bob := NewPresenceTracker(mem.Connect("b"), zerolog.Nop())
	ctx := context.Background()

	if err := alice.GoOnline(ctx, "alice"); err != nil {
		t.Fatal(err)
	}

	rec, err := bob.Presence(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if !rec.Online {
		t.Fatal("bob does not see alice online")
	}
}

func TestUngracefulDropFlipsOffline(t *testing.T) {
	mem := rtstore.NewMemory()
	aliceSess := mem.Connect("a")
	alice := NewPresenceTracker(aliceSess, zerolog.Nop())
	bob := NewPresenceTracker(mem.Connect("b"), zerolog.Nop())
	ctx := context.Background()

	if err := alice.GoOnline(ctx, "alice"); err != nil {
		t.Fatal(err)
	}

	var last models.PresenceRecord
	cancel, err := bob.Watch("alice", func(rec models.PresenceRecord) { last = rec })
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()

	// Connection lost without logout: no client code runs, the store's
	// deferred fallback write does all the work.
	before := time.Now().UnixMilli()
	aliceSess.Sever()

	if last.Online {
		t.Fatal("alice still shows online after drop")
	}
	if last.LastSeenAt < before {
		t.Fatalf("lastSeenAt %d predates the drop at %d", last.LastSeenAt, before)
	}
}

func TestExplicitLogoutCancelsFallback(t *testing.T) {
	mem := rtstore.NewMemory()
	aliceSess := mem.Connect("a")
	alice := NewPresenceTracker(aliceSess, zerolog.Nop())
	ctx := context.Background()

	if err := alice.GoOnline(ctx, "alice"); err != nil {
		t.Fatal(err)
	}
	if err := alice.GoOffline(ctx, "alice"); err != nil {
		t.Fatal(err)
	}

	rec, _ := alice.Presence(ctx, "alice")
	logoutSeenAt := rec.LastSeenAt
	if rec.Online || logoutSeenAt == 0 {
		t.Fatalf("logout did not record offline state: %+v", rec)
	}

	// A later sever must not double-fire the canceled fallback and move
	// lastSeenAt.
	time.Sleep(2 * time.Millisecond)
	aliceSess.Sever()

	rec, _ = alice.Presence(ctx, "alice")
	if rec.LastSeenAt != logoutSeenAt {
		t.Fatalf("canceled fallback fired: lastSeenAt %d -> %d", logoutSeenAt, rec.LastSeenAt)
	}
}

func TestGoOnlinePreservesLastSeen(t *testing.T) {
	mem := rtstore.NewMemory()
	alice := NewPresenceTracker(mem.Connect("a"), zerolog.Nop())
	ctx := context.Background()

	if err := alice.GoOnline(ctx, "alice"); err != nil {
		t.Fatal(err)
	}
	if err := alice.GoOffline(ctx, "alice"); err != nil {
		t.Fatal(err)
	}
	rec, _ := alice.Presence(ctx, "alice")
	seenAt := rec.LastSeenAt

	// Coming back online keeps the historical lastSeenAt; only the
	// online flag changes.
	if err := alice.GoOnline(ctx, "alice"); err != nil {
		t.Fatal(err)
	}
	rec, _ = alice.Presence(ctx, "alice")
	if !rec.Online {
		t.Fatal("not online after GoOnline")
	}
	if rec.LastSeenAt != seenAt {
		t.Fatalf("GoOnline clobbered lastSeenAt: %d -> %d", seenAt, rec.LastSeenAt)
	}
}
