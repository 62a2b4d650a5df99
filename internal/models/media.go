package models

// MediaReference is a derived pointer into a conversation's message log.
// It is computed by filtering the log and is never itself persisted.
type MediaReference struct {
	MessageID string    `json:"messageId"`
	Kind      Kind      `json:"kind"`
	URL       string    `json:"url,omitempty"`
	Name      string    `json:"name,omitempty"`
	Location  *GeoPoint `json:"location,omitempty"`
	SenderID  string    `json:"senderId,omitempty"`
	CreatedAt int64     `json:"createdAt"`
}
