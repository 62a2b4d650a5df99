package chat

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/palaver-chat/palaver/internal/metrics"
	"github.com/palaver-chat/palaver/internal/models"
	"github.com/palaver-chat/palaver/internal/retry"
	"github.com/palaver-chat/palaver/internal/rtstore"
)

// System message texts recorded on membership events.
const (
	msgGroupCreated = "Group created"
	msgMemberAdded  = "Added a new member!"
)

// GroupManager owns group conversation lifecycles. Membership sets only
// grow; there is no removal and no role distinction.
type GroupManager struct {
	store  rtstore.Store
	log    *MessageLog
	logger zerolog.Logger
	now    func() time.Time
	newID  func() string
}

// NewGroupManager creates a manager over the given store session.
func NewGroupManager(store rtstore.Store, log *MessageLog, logger zerolog.Logger) *GroupManager {
	return &GroupManager{
		store:  store,
		log:    log,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// CreateGroup creates a group conversation whose members are the creator
// plus memberIDs, and appends the creation system message.
func (g *GroupManager) CreateGroup(ctx context.Context, name, creatorID string, memberIDs []string) (string, error) {
	id := g.newID()

	members := map[string]bool{creatorID: true}
	for _, m := range memberIDs {
		members[m] = true
	}

	meta := models.Conversation{
		ID:        id,
		Kind:      models.ConversationGroup,
		Name:      name,
		CreatedBy: creatorID,
		CreatedAt: g.now().UnixMilli(),
		Members:   members,
	}

	if err := retry.Do(ctx, func() error {
		return g.store.Set(ctx, metaPath(id), meta)
	}); err != nil {
		return "", &WriteError{Path: metaPath(id), Err: err}
	}

	if _, err := g.log.Append(ctx, id, systemMessage(msgGroupCreated)); err != nil {
		return "", err
	}

	g.logger.Info().
		Str("conversation", id).
		Str("creator", creatorID).
		Int("members", len(members)).
		Msg("group created")
	return id, nil
}

// AddMember unions userID into the group. Re-adding an existing member
// is a no-op: the membership check happens before the union, so no
// duplicate system message is appended.
func (g *GroupManager) AddMember(ctx context.Context, convID, userID string) error {
	snap, err := g.store.Once(ctx, metaPath(convID))
	if err != nil {
		return err
	}
	if !snap.Exists() {
		return &NotFoundError{Resource: "conversation", ID: convID}
	}
	if snap.Child("members").Child(userID).Bool() {
		return nil
	}

	if err := retry.Do(ctx, func() error {
		return g.store.Set(ctx, memberPath(convID, userID), true)
	}); err != nil {
		return &WriteError{Path: memberPath(convID, userID), Err: err}
	}

	if _, err := g.log.Append(ctx, convID, systemMessage(msgMemberAdded)); err != nil {
		return err
	}

	metrics.GroupMembersAdded.Inc()
	g.logger.Info().Str("conversation", convID).Str("user", userID).Msg("member added")
	return nil
}

// GroupsOf returns the group conversations userID belongs to, most
// recently active first. The list is a derived view over all group
// metadata, not separately stored.
func (g *GroupManager) GroupsOf(ctx context.Context, userID string) ([]models.Conversation, error) {
	snap, err := g.store.Once(ctx, conversationsRoot)
	if err != nil {
		return nil, err
	}

	var groups []models.Conversation
	snap.Each(func(key string, child rtstore.Snapshot) bool {
		var conv models.Conversation
		if err := child.Child("meta").Decode(&conv); err != nil {
			return true
		}
		if conv.Kind != models.ConversationGroup || !conv.HasMember(userID) {
			return true
		}
		conv.ID = key
		groups = append(groups, conv)
		return true
	})

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].LastMessageAt > groups[j].LastMessageAt
	})
	return groups, nil
}

// SetBackground stores the conversation's background image URL.
func (g *GroupManager) SetBackground(ctx context.Context, convID, url string) error {
	snap, err := g.store.Once(ctx, metaPath(convID))
	if err != nil {
		return err
	}
	if !snap.Exists() {
		return &NotFoundError{Resource: "conversation", ID: convID}
	}
	if err := retry.Do(ctx, func() error {
		return g.store.Update(ctx, metaPath(convID), map[string]any{"backgroundImage": url})
	}); err != nil {
		return &WriteError{Path: metaPath(convID), Err: err}
	}
	return nil
}

// WatchMeta observes a conversation's metadata, including background
// image and lastMessage changes.
func (g *GroupManager) WatchMeta(convID string, fn func(models.Conversation)) (func(), error) {
	return g.store.Subscribe(metaPath(convID), func(snap rtstore.Snapshot) {
		var conv models.Conversation
		if err := snap.Decode(&conv); err != nil {
			g.logger.Warn().Err(err).Str("conversation", convID).Msg("bad conversation meta")
			return
		}
		conv.ID = convID
		fn(conv)
	})
}

func systemMessage(text string) models.Message {
	return models.Message{
		SenderID:   models.SystemSender,
		SenderName: "System",
		Kind:       models.KindSystem,
		Text:       text,
	}
}
