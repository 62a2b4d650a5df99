package chat

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/palaver-chat/palaver/internal/rtstore"
)

func TestContactsAddAndList(t *testing.T) {
	list := NewContactList(rtstore.NewMemory().Connect("test"), zerolog.Nop())
	ctx := context.Background()

	if err := list.Add(ctx, "alice", "bob"); err != nil {
		t.Fatal(err)
	}
	if err := list.Add(ctx, "alice", "carol"); err != nil {
		t.Fatal(err)
	}
	// Re-adding is harmless.
	if err := list.Add(ctx, "alice", "bob"); err != nil {
		t.Fatal(err)
	}

	got, err := list.Contacts(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != "bob" || got[1] != "carol" {
		t.Fatalf("unexpected contacts: %v", got)
	}

	// Contact sets are per owner.
	got, _ = list.Contacts(ctx, "bob")
	if len(got) != 0 {
		t.Fatalf("bob should have no contacts, got %v", got)
	}
}

func TestContactsWatch(t *testing.T) {
	list := NewContactList(rtstore.NewMemory().Connect("test"), zerolog.Nop())
	ctx := context.Background()

	var last []string
	cancel, err := list.Watch("alice", func(ids []string) { last = ids })
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()

	if err := list.Add(ctx, "alice", "bob"); err != nil {
		t.Fatal(err)
	}
	if len(last) != 1 || last[0] != "bob" {
		t.Fatalf("watcher missed the add: %v", last)
	}
}
