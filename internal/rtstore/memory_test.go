package rtstore

import (
	"context"
	"sync"
	"testing"
	"time"
)

func connect(t *testing.T) *MemorySession {
	t.Helper()
	return NewMemory().Connect("test-session")
}

func TestSetAndOnce(t *testing.T) {
	s := connect(t)
	ctx := context.Background()

	if err := s.Set(ctx, "presence/alice", map[string]any{"online": true}); err != nil {
		t.Fatal(err)
	}

	snap, err := s.Once(ctx, "presence/alice")
	if err != nil {
		t.Fatal(err)
	}
	if !snap.Exists() {
		t.Fatal("expected value at presence/alice")
	}
	if !snap.Child("online").Bool() {
		t.Fatal("expected online=true")
	}
}

func TestOnceMissingPath(t *testing.T) {
	s := connect(t)

	snap, err := s.Once(context.Background(), "presence/nobody")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Exists() {
		t.Fatal("expected empty snapshot")
	}
}

func TestUpdateMergesFields(t *testing.T) {
	s := connect(t)
	ctx := context.Background()

	if err := s.Set(ctx, "conversations/c1/meta", map[string]any{"name": "trip", "kind": "group"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Update(ctx, "conversations/c1/meta", map[string]any{"lastMessage": "hi"}); err != nil {
		t.Fatal(err)
	}

	snap, _ := s.Once(ctx, "conversations/c1/meta")
	if snap.Child("name").String() != "trip" {
		t.Fatalf("update clobbered sibling field, name=%q", snap.Child("name").String())
	}
	if snap.Child("lastMessage").String() != "hi" {
		t.Fatal("updated field missing")
	}
}

func TestSetNilDeletes(t *testing.T) {
	s := connect(t)
	ctx := context.Background()

	if err := s.Set(ctx, "typing/c1/alice", true); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, "typing/c1/alice", nil); err != nil {
		t.Fatal(err)
	}

	snap, _ := s.Once(ctx, "typing/c1/alice")
	if snap.Exists() {
		t.Fatal("expected deleted value")
	}
}

func TestSubscribeDeliversInitialThenChanges(t *testing.T) {
	s := connect(t)
	ctx := context.Background()

	var got []Snapshot
	cancel, err := s.Subscribe("typing/c1/bob", func(snap Snapshot) {
		got = append(got, snap)
	})
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()

	if len(got) != 1 || got[0].Exists() {
		t.Fatalf("expected one empty initial snapshot, got %d", len(got))
	}

	if err := s.Set(ctx, "typing/c1/bob", true); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || !got[1].Bool() {
		t.Fatalf("expected typing=true after write, got %d snapshots", len(got))
	}
}

func TestSubscribeAncestorSeesChildWrites(t *testing.T) {
	s := connect(t)
	ctx := context.Background()

	var last Snapshot
	cancel, err := s.Subscribe("conversations/c1/messages", func(snap Snapshot) {
		last = snap
	})
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()

	if err := s.Set(ctx, "conversations/c1/messages/m1", map[string]any{"text": "hello"}); err != nil {
		t.Fatal(err)
	}
	if last.Child("m1").Child("text").String() != "hello" {
		t.Fatal("ancestor subscriber did not receive child write")
	}
}

func TestConcurrentWritersDeliverInWriteOrder(t *testing.T) {
	s := connect(t)
	ctx := context.Background()

	var mu sync.Mutex
	var seen []int64
	cancel, err := s.Subscribe("rooms/r1", func(snap Snapshot) {
		mu.Lock()
		seen = append(seen, snap.Child("n").Int64())
		mu.Unlock()
	})
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()

	// One writer advances a counter while another churns a sibling key
	// under the same watch. The counter values the subscriber observes
	// must never go backwards, whatever the interleaving.
	const writes = 200
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 1; i <= writes; i++ {
			_ = s.Set(ctx, "rooms/r1/n", i)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 1; i <= writes; i++ {
			_ = s.Set(ctx, "rooms/r1/other", i)
		}
	}()
	wg.Wait()

	// A drain started by one writer can still be running after both
	// Set loops return.
	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(seen)
		settled := n > 0 && seen[n-1] == writes
		mu.Unlock()
		if settled {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("subscriber never observed the final counter value")
		}
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(seen); i++ {
		if seen[i] < seen[i-1] {
			t.Fatalf("snapshot delivered out of order: %d after %d", seen[i], seen[i-1])
		}
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	s := connect(t)
	ctx := context.Background()

	count := 0
	cancel, err := s.Subscribe("typing/c1/bob", func(Snapshot) { count++ })
	if err != nil {
		t.Fatal(err)
	}
	cancel()

	if err := s.Set(ctx, "typing/c1/bob", true); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("expected only the initial delivery, got %d", count)
	}
}

func TestDeferredWriteFiresOnSever(t *testing.T) {
	mem := NewMemory()
	a := mem.Connect("a")
	b := mem.Connect("b")
	ctx := context.Background()

	if err := a.Set(ctx, "presence/alice", map[string]any{"online": true}); err != nil {
		t.Fatal(err)
	}
	d := a.OnDisconnect("presence/alice")
	if err := d.Set(ctx, map[string]any{"online": false, "lastSeenAt": ServerTimestamp}); err != nil {
		t.Fatal(err)
	}

	before := time.Now().UnixMilli()
	a.Sever()

	snap, err := b.Once(ctx, "presence/alice")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Child("online").Bool() {
		t.Fatal("expected online=false after sever")
	}
	lastSeen := snap.Child("lastSeenAt").Int64()
	if lastSeen < before {
		t.Fatalf("lastSeenAt %d predates the sever at %d", lastSeen, before)
	}
}

func TestDeferredWriteCanceled(t *testing.T) {
	mem := NewMemory()
	a := mem.Connect("a")
	ctx := context.Background()

	if err := a.Set(ctx, "presence/alice", map[string]any{"online": true}); err != nil {
		t.Fatal(err)
	}
	d := a.OnDisconnect("presence/alice")
	if err := d.Set(ctx, map[string]any{"online": false}); err != nil {
		t.Fatal(err)
	}
	if err := d.Cancel(ctx); err != nil {
		t.Fatal(err)
	}
	a.Sever()

	snap, _ := a.Once(ctx, "presence/alice")
	if !snap.Child("online").Bool() {
		t.Fatal("canceled deferred write still fired")
	}
}

func TestCloseDiscardsDeferred(t *testing.T) {
	mem := NewMemory()
	a := mem.Connect("a")
	ctx := context.Background()

	if err := a.Set(ctx, "presence/alice", map[string]any{"online": true}); err != nil {
		t.Fatal(err)
	}
	if err := a.OnDisconnect("presence/alice").Set(ctx, map[string]any{"online": false}); err != nil {
		t.Fatal(err)
	}
	a.Close()
	a.Sever()

	snap, _ := a.Once(ctx, "presence/alice")
	if !snap.Child("online").Bool() {
		t.Fatal("deferred write fired after graceful close")
	}
}

func TestPushKeysOrdered(t *testing.T) {
	s := connect(t)
	k1 := s.Push("conversations/c1/messages")
	k2 := s.Push("conversations/c1/messages")
	if k1 == k2 {
		t.Fatal("push returned duplicate keys")
	}
	if k1 > k2 {
		t.Fatalf("push keys not ordered: %s then %s", k1, k2)
	}
}

func TestSnapshotDecode(t *testing.T) {
	s := connect(t)
	ctx := context.Background()

	type record struct {
		Online     bool  `json:"online"`
		LastSeenAt int64 `json:"lastSeenAt"`
	}
	if err := s.Set(ctx, "presence/alice", record{Online: true, LastSeenAt: 42}); err != nil {
		t.Fatal(err)
	}

	snap, _ := s.Once(ctx, "presence/alice")
	var got record
	if err := snap.Decode(&got); err != nil {
		t.Fatal(err)
	}
	if !got.Online || got.LastSeenAt != 42 {
		t.Fatalf("decode mismatch: %+v", got)
	}
}
