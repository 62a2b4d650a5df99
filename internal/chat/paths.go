// Package chat implements the conversation synchronization core: the
// message log, presence, typing indicators, read receipts and group
// membership, all coordinated through the shared realtime store.
package chat

import "fmt"

// Store layout. One consolidated presence record per user; typing flags
// keyed by conversation and writer.
func metaPath(convID string) string {
	return fmt.Sprintf("conversations/%s/meta", convID)
}

func messagesPath(convID string) string {
	return fmt.Sprintf("conversations/%s/messages", convID)
}

func messagePath(convID, msgID string) string {
	return fmt.Sprintf("conversations/%s/messages/%s", convID, msgID)
}

func memberPath(convID, userID string) string {
	return fmt.Sprintf("conversations/%s/meta/members/%s", convID, userID)
}

func typingPath(convID, slot string) string {
	return fmt.Sprintf("typing/%s/%s", convID, slot)
}

func presencePath(userID string) string {
	return fmt.Sprintf("presence/%s", userID)
}

func contactPath(owner, contact string) string {
	return fmt.Sprintf("contacts/%s/%s", owner, contact)
}

const conversationsRoot = "conversations"

func contactsPath(owner string) string {
	return fmt.Sprintf("contacts/%s", owner)
}
