package chat

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/palaver-chat/palaver/internal/models"
)

// ReceiptPropagator marks inbound messages as seen on behalf of one
// reader. Because MarkSeen itself re-triggers the subscription, the
// propagator must skip already-seen messages or the loop never ends;
// the skip plus MarkSeen's set-only-if-null rule make the whole cycle
// idempotent.
type ReceiptPropagator struct {
	log    *MessageLog
	userID string
	logger zerolog.Logger
}

// NewReceiptPropagator creates a propagator reading as userID.
func NewReceiptPropagator(log *MessageLog, userID string, logger zerolog.Logger) *ReceiptPropagator {
	return &ReceiptPropagator{log: log, userID: userID, logger: logger}
}

// Run watches the conversation and records receipts until the returned
// function is called. Failed receipt writes are logged and dropped; the
// next snapshot gets another chance.
func (p *ReceiptPropagator) Run(ctx context.Context, convID string) (func(), error) {
	return p.log.Subscribe(convID, func(msgs []models.Message) {
		for _, m := range msgs {
			if m.SenderID == p.userID || m.IsSystem() || m.Seen() {
				continue
			}
			if err := p.log.MarkSeen(ctx, convID, m.ID, p.userID); err != nil {
				p.logger.Warn().
					Err(err).
					Str("conversation", convID).
					Str("message", m.ID).
					Msg("mark seen failed")
			}
		}
	})
}
