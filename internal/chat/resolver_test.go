package chat

import "testing"

func TestDirectIDCommutative(t *testing.T) {
	pairs := [][2]string{
		{"alice", "bob"},
		{"u1", "u2"},
		{"9", "10"},
		{"same", "same"},
	}
	for _, p := range pairs {
		ab := DirectConversationID(p[0], p[1])
		ba := DirectConversationID(p[1], p[0])
		if ab != ba {
			t.Fatalf("DirectConversationID(%q,%q)=%q but reversed=%q", p[0], p[1], ab, ba)
		}
	}
}

func TestDirectIDGreaterFirst(t *testing.T) {
	if got := DirectConversationID("alice", "bob"); got != "bobalice" {
		t.Fatalf("expected bobalice, got %q", got)
	}
	if got := DirectConversationID("bob", "alice"); got != "bobalice" {
		t.Fatalf("expected bobalice, got %q", got)
	}
}

func TestDirectIDStringOrder(t *testing.T) {
	// Lexicographic, not numeric: "9" > "10".
	if got := DirectConversationID("9", "10"); got != "910" {
		t.Fatalf("expected 910, got %q", got)
	}
}
