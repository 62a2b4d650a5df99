package chat

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/palaver-chat/palaver/internal/models"
	"github.com/palaver-chat/palaver/internal/rtstore"
)

func newTestLog(t *testing.T) (*MessageLog, *rtstore.MemorySession) {
	t.Helper()
	sess := rtstore.NewMemory().Connect("test")
	return NewMessageLog(sess, zerolog.Nop()), sess
}

// stampedNow returns a now func that hands out the given Unix ms values
// in order, then falls back to real time.
func stampedNow(stamps ...int64) func() time.Time {
	i := 0
	return func() time.Time {
		if i < len(stamps) {
			ms := stamps[i]
			i++
			return time.UnixMilli(ms)
		}
		return time.Now()
	}
}

func TestAppendAssignsIDAndTimestamp(t *testing.T) {
	log, _ := newTestLog(t)
	ctx := context.Background()

	id, err := log.Append(ctx, "c1", models.Message{SenderID: "alice", Text: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("expected assigned message id")
	}

	msgs, err := log.Messages(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].ID != id || msgs[0].CreatedAt == 0 || msgs[0].ConversationID != "c1" {
		t.Fatalf("message not fully stamped: %+v", msgs[0])
	}
}

func TestAppendRejectsMissingSender(t *testing.T) {
	log, _ := newTestLog(t)
	if _, err := log.Append(context.Background(), "c1", models.Message{Text: "hi"}); err == nil {
		t.Fatal("expected error for message without sender")
	}
}

func TestAppendUpdatesConversationMeta(t *testing.T) {
	log, sess := newTestLog(t)
	ctx := context.Background()

	if _, err := log.Append(ctx, "c1", models.Message{SenderID: "alice", Text: "latest words"}); err != nil {
		t.Fatal(err)
	}

	snap, err := sess.Once(ctx, "conversations/c1/meta")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Child("lastMessage").String() != "latest words" {
		t.Fatalf("lastMessage = %q", snap.Child("lastMessage").String())
	}
	if snap.Child("lastMessageAt").Int64() == 0 {
		t.Fatal("lastMessageAt not set")
	}
}

func TestSnapshotOrderedByTimestamp(t *testing.T) {
	log, _ := newTestLog(t)
	ctx := context.Background()

	// Write order 100, 300, 200.
	log.now = stampedNow(100, 300, 200)

	for _, text := range []string{"first", "third", "second"} {
		if _, err := log.Append(ctx, "c1", models.Message{SenderID: "alice", Text: text}); err != nil {
			t.Fatal(err)
		}
	}

	msgs, err := log.Messages(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	want := []int64{100, 200, 300}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	for i, w := range want {
		if msgs[i].CreatedAt != w {
			t.Fatalf("position %d: createdAt %d, want %d", i, msgs[i].CreatedAt, w)
		}
	}
}

func TestSnapshotTieBrokenByID(t *testing.T) {
	log, _ := newTestLog(t)
	ctx := context.Background()

	log.now = stampedNow(500, 500, 500)
	var ids []string
	for i := 0; i < 3; i++ {
		id, err := log.Append(ctx, "c1", models.Message{SenderID: "alice", Text: "x"})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}

	msgs, _ := log.Messages(ctx, "c1")
	for i := range ids {
		if msgs[i].ID != ids[i] {
			t.Fatalf("tie-break order wrong at %d: got %s want %s", i, msgs[i].ID, ids[i])
		}
	}
}

func TestSubscribeEmitsFullOrderedList(t *testing.T) {
	log, _ := newTestLog(t)
	ctx := context.Background()

	var emissions [][]models.Message
	cancel, err := log.Subscribe("c1", func(msgs []models.Message) {
		emissions = append(emissions, msgs)
	})
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()

	if _, err := log.Append(ctx, "c1", models.Message{SenderID: "alice", Text: "one"}); err != nil {
		t.Fatal(err)
	}
	if _, err := log.Append(ctx, "c1", models.Message{SenderID: "alice", Text: "two"}); err != nil {
		t.Fatal(err)
	}

	final := emissions[len(emissions)-1]
	if len(final) != 2 {
		t.Fatalf("expected full list of 2, got %d", len(final))
	}
	if final[0].Text != "one" || final[1].Text != "two" {
		t.Fatalf("unexpected order: %q, %q", final[0].Text, final[1].Text)
	}
}

func TestMarkSeenIdempotent(t *testing.T) {
	log, _ := newTestLog(t)
	ctx := context.Background()

	id, err := log.Append(ctx, "c1", models.Message{SenderID: "alice", Text: "hi"})
	if err != nil {
		t.Fatal(err)
	}

	if err := log.MarkSeen(ctx, "c1", id, "bob"); err != nil {
		t.Fatal(err)
	}
	msgs, _ := log.Messages(ctx, "c1")
	firstSeenAt := msgs[0].SeenAt
	if firstSeenAt == 0 || msgs[0].SeenBy != "bob" {
		t.Fatalf("receipt not recorded: %+v", msgs[0])
	}

	// Second call must leave seenAt untouched, even for another reader.
	if err := log.MarkSeen(ctx, "c1", id, "carol"); err != nil {
		t.Fatal(err)
	}
	msgs, _ = log.Messages(ctx, "c1")
	if msgs[0].SeenAt != firstSeenAt || msgs[0].SeenBy != "bob" {
		t.Fatalf("receipt mutated on second call: %+v", msgs[0])
	}
}

func TestMarkSeenMissingMessage(t *testing.T) {
	log, _ := newTestLog(t)
	err := log.MarkSeen(context.Background(), "c1", "nope", "bob")
	if !IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}
