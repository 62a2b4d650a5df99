package models

// ConversationKind distinguishes direct threads from groups.
type ConversationKind string

const (
	ConversationDirect ConversationKind = "direct"
	ConversationGroup  ConversationKind = "group"
)

// Conversation is the denormalized metadata of a thread. Direct
// conversations are never explicitly created; their id is derived from the
// two participant ids and the metadata record appears on first append.
// Group conversations are created once and carry a members set that only
// grows.
type Conversation struct {
	ID              string           `json:"id"`
	Kind            ConversationKind `json:"kind"`
	Name            string           `json:"name,omitempty"`
	CreatedBy       string           `json:"createdBy,omitempty"`
	CreatedAt       int64            `json:"createdAt,omitempty"` // Unix ms
	Members         map[string]bool  `json:"members,omitempty"`   // group only
	BackgroundImage string           `json:"backgroundImage,omitempty"`
	LastMessage     string           `json:"lastMessage,omitempty"`
	LastMessageAt   int64            `json:"lastMessageAt,omitempty"` // Unix ms
}

// HasMember reports whether userID belongs to a group conversation.
func (c *Conversation) HasMember(userID string) bool {
	return c.Members[userID]
}
