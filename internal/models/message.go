package models

// SystemSender is the sender id recorded on system messages.
const SystemSender = "SYSTEM"

// Kind identifies the payload type of a message.
type Kind string

const (
	KindText     Kind = "text"
	KindImage    Kind = "image"
	KindLocation Kind = "location"
	KindFile     Kind = "file"
	KindSystem   Kind = "system"
)

// GeoPoint is a shared location payload.
type GeoPoint struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// FileRef points at an uploaded document.
type FileRef struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Mime string `json:"mime,omitempty"`
}

// Message is a single entry in a conversation's log. A message belongs to
// exactly one conversation for its entire life and is never mutated after
// append, except for the seen fields which are set at most once.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	SenderName     string    `json:"senderName,omitempty"`
	Kind           Kind      `json:"kind"`
	Text           string    `json:"text,omitempty"`
	ImageURL       string    `json:"imageUrl,omitempty"`
	File           *FileRef  `json:"file,omitempty"`
	Location       *GeoPoint `json:"location,omitempty"`
	CreatedAt      int64     `json:"createdAt"` // Unix ms
	SeenBy         string    `json:"seenBy,omitempty"`
	SeenAt         int64     `json:"seenAt,omitempty"` // Unix ms, 0 = unseen
}

// Seen reports whether a read receipt has been recorded.
func (m *Message) Seen() bool {
	return m.SeenAt != 0
}

// IsSystem reports whether the message records an administrative event
// rather than a human sender.
func (m *Message) IsSystem() bool {
	return m.SenderID == SystemSender
}
