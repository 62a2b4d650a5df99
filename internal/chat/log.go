package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/palaver-chat/palaver/internal/metrics"
	"github.com/palaver-chat/palaver/internal/models"
	"github.com/palaver-chat/palaver/internal/retry"
	"github.com/palaver-chat/palaver/internal/rtstore"
)

// MessageLog is the append-only per-conversation message store. Writes
// may land out of order relative to wall-clock time, so every snapshot
// surfaced to a consumer is re-sorted by createdAt with the message id
// as tie-break.
type MessageLog struct {
	store  rtstore.Store
	logger zerolog.Logger
	now    func() time.Time
}

// NewMessageLog creates a message log over the given store session.
func NewMessageLog(store rtstore.Store, logger zerolog.Logger) *MessageLog {
	return &MessageLog{store: store, logger: logger, now: time.Now}
}

// Append assigns an id and timestamp to msg, writes it under the
// conversation and refreshes the conversation's denormalized lastMessage
// fields. Append never retries beyond the bounded transient-write
// policy; on failure the message is simply not sent.
func (l *MessageLog) Append(ctx context.Context, convID string, msg models.Message) (string, error) {
	if msg.SenderID == "" {
		return "", errors.New("message has no sender")
	}
	if msg.Kind == "" {
		msg.Kind = models.KindText
	}

	id := l.store.Push(messagesPath(convID))
	msg.ID = id
	msg.ConversationID = convID
	msg.CreatedAt = l.now().UnixMilli()

	path := messagePath(convID, id)
	if err := retry.Do(ctx, func() error {
		return l.store.Set(ctx, path, msg)
	}); err != nil {
		return "", &WriteError{Path: path, Err: err}
	}

	if err := retry.Do(ctx, func() error {
		return l.store.Update(ctx, metaPath(convID), map[string]any{
			"lastMessage":   preview(msg),
			"lastMessageAt": msg.CreatedAt,
		})
	}); err != nil {
		return "", &WriteError{Path: metaPath(convID), Err: err}
	}

	metrics.MessagesAppended.WithLabelValues(string(msg.Kind)).Inc()
	l.logger.Debug().
		Str("conversation", convID).
		Str("message", id).
		Str("kind", string(msg.Kind)).
		Msg("message appended")
	return id, nil
}

// Subscribe delivers the full ordered message list of the conversation
// on every mutation under it. Consumers re-render from scratch each
// emission; there are no incremental diffs.
func (l *MessageLog) Subscribe(convID string, fn func([]models.Message)) (func(), error) {
	return l.store.Subscribe(messagesPath(convID), func(snap rtstore.Snapshot) {
		fn(decodeMessages(convID, snap))
	})
}

// Messages returns the current ordered message list.
func (l *MessageLog) Messages(ctx context.Context, convID string) ([]models.Message, error) {
	snap, err := l.store.Once(ctx, messagesPath(convID))
	if err != nil {
		return nil, err
	}
	return decodeMessages(convID, snap), nil
}

// MarkSeen records a read receipt on the message, once. A message whose
// seenAt is already set is left untouched: re-marking would re-trigger
// every subscriber for nothing and can feed back into the caller.
func (l *MessageLog) MarkSeen(ctx context.Context, convID, msgID, readerID string) error {
	path := messagePath(convID, msgID)
	snap, err := l.store.Once(ctx, path)
	if err != nil {
		return err
	}
	if !snap.Exists() {
		return &NotFoundError{Resource: "message", ID: msgID}
	}
	if snap.Child("seenAt").Int64() != 0 {
		return nil
	}

	if err := retry.Do(ctx, func() error {
		return l.store.Update(ctx, path, map[string]any{
			"seenBy": readerID,
			"seenAt": l.now().UnixMilli(),
		})
	}); err != nil {
		return &WriteError{Path: path, Err: err}
	}
	metrics.ReceiptsMarked.Inc()
	return nil
}

func decodeMessages(convID string, snap rtstore.Snapshot) []models.Message {
	var msgs []models.Message
	snap.Each(func(key string, child rtstore.Snapshot) bool {
		var m models.Message
		if err := child.Decode(&m); err != nil {
			return true
		}
		if m.ID == "" {
			m.ID = key
		}
		m.ConversationID = convID
		msgs = append(msgs, m)
		return true
	})
	sortMessages(msgs)
	return msgs
}

// sortMessages orders ascending by createdAt, ties broken by id. Arrival
// order is never trusted.
func sortMessages(msgs []models.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt != msgs[j].CreatedAt {
			return msgs[i].CreatedAt < msgs[j].CreatedAt
		}
		return msgs[i].ID < msgs[j].ID
	})
}

// preview is the one-line summary denormalized onto the conversation.
func preview(msg models.Message) string {
	switch msg.Kind {
	case models.KindText, models.KindSystem:
		return msg.Text
	default:
		name := msg.SenderName
		if name == "" {
			name = "Someone"
		}
		return fmt.Sprintf("%s sent a %s", name, msg.Kind)
	}
}
