package models

// PresenceRecord is a user's online state, independent of any conversation.
// There is exactly one record per user and only that user's own active
// session may write it; everyone else is a read-only observer.
type PresenceRecord struct {
	UserID     string `json:"userId,omitempty"`
	Online     bool   `json:"online"`
	LastSeenAt int64  `json:"lastSeenAt,omitempty"` // Unix ms
}
