// Package gateway bridges websocket clients onto the synchronization
// core. Each connection fans live snapshots out as JSON frames and
// accepts commands for the conversations the client has joined.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/palaver-chat/palaver/internal/api/middleware"
	"github.com/palaver-chat/palaver/internal/chat"
	"github.com/palaver-chat/palaver/internal/metrics"
	"github.com/palaver-chat/palaver/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Token auth happens before the upgrade; origin is not load-bearing.
		return true
	},
}

// Gateway owns the websocket endpoint.
type Gateway struct {
	log      *chat.MessageLog
	typing   *chat.TypingChannel
	presence *chat.PresenceTracker
	logger   zerolog.Logger
}

// New creates a gateway over the shared chat services.
func New(log *chat.MessageLog, typing *chat.TypingChannel, presence *chat.PresenceTracker, logger zerolog.Logger) *Gateway {
	return &Gateway{log: log, typing: typing, presence: presence, logger: logger}
}

// inboundFrame is a client command.
type inboundFrame struct {
	Type           string           `json:"type"`
	ConversationID string           `json:"conversationId,omitempty"`
	MessageID      string           `json:"messageId,omitempty"`
	Slot           string           `json:"slot,omitempty"`
	UserID         string           `json:"userId,omitempty"`
	Typing         bool             `json:"typing,omitempty"`
	Kind           models.Kind      `json:"kind,omitempty"`
	Text           string           `json:"text,omitempty"`
	ImageURL       string           `json:"imageUrl,omitempty"`
	File           *models.FileRef  `json:"file,omitempty"`
	Location       *models.GeoPoint `json:"location,omitempty"`
	SenderName     string           `json:"senderName,omitempty"`
}

type messagesFrame struct {
	Type           string           `json:"type"`
	ConversationID string           `json:"conversationId"`
	Messages       []models.Message `json:"messages"`
}

type typingFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	Slot           string `json:"slot"`
	Typing         bool   `json:"typing"`
}

type presenceFrame struct {
	Type       string `json:"type"`
	UserID     string `json:"userId"`
	Online     bool   `json:"online"`
	LastSeenAt int64  `json:"lastSeenAt,omitempty"`
}

type errorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// session is the per-connection state, owned by the read loop.
type session struct {
	gw   *Gateway
	conn *Connection

	// unsubscribe funcs keyed by conversation id
	joined map[string]func()
	// receipt propagators keyed by conversation id
	receipts map[string]func()
	// watches without a conversation lifecycle of their own
	watches []func()
	// conversations with an active typing flag to clear on exit
	typingIn map[string]bool
}

// Handle upgrades the request and runs the connection until the socket
// closes. The caller must have authenticated the request already.
func (g *Gateway) Handle(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := NewConnection(userID, ws)
	conn.Start()
	metrics.GatewayConnections.Inc()
	defer metrics.GatewayConnections.Dec()

	s := &session{
		gw:       g,
		conn:     conn,
		joined:   make(map[string]func()),
		receipts: make(map[string]func()),
		typingIn: make(map[string]bool),
	}

	ctx := r.Context()

	// The user is online for exactly as long as this socket lives. The
	// fallback registered inside GoOnline covers the server itself dying;
	// a plain client drop is handled in teardown below.
	if err := g.presence.GoOnline(ctx, userID); err != nil {
		g.logger.Error().Err(err).Str("user", userID).Msg("presence online failed")
	}

	g.logger.Info().Str("user", userID).Str("conn", conn.ID).Msg("gateway connected")

	// Pings from the write loop keep the deadline moving as long as the
	// client answers them.
	readWait := 2 * pingPeriod
	_ = ws.SetReadDeadline(time.Now().Add(readWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readWait))
	})

	for {
		_, payload, err := ws.ReadMessage()
		if err != nil {
			break
		}
		_ = ws.SetReadDeadline(time.Now().Add(readWait))

		var frame inboundFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			s.sendError("malformed frame")
			continue
		}
		s.dispatch(ctx, frame)
	}

	s.teardown(ctx)
	conn.Close(websocket.CloseNormalClosure, "bye")
	g.logger.Info().Str("user", userID).Str("conn", conn.ID).Msg("gateway disconnected")
}

func (s *session) dispatch(ctx context.Context, frame inboundFrame) {
	switch frame.Type {
	case "join":
		s.join(ctx, frame.ConversationID)
	case "leave":
		s.leave(ctx, frame.ConversationID)
	case "send":
		s.sendMessage(ctx, frame)
	case "typing":
		s.setTyping(ctx, frame.ConversationID, frame.Typing)
	case "watchTyping":
		s.watchTyping(frame.ConversationID, frame.Slot)
	case "watchPresence":
		s.watchPresence(frame.UserID)
	case "seen":
		s.markSeen(ctx, frame.ConversationID, frame.MessageID)
	default:
		s.sendError("unknown frame type " + frame.Type)
	}
}

// join subscribes the connection to a conversation's full ordered log.
// Every later change re-delivers the whole snapshot; the client replaces
// its local copy wholesale. An open conversation also marks its inbound
// messages seen, the way a chat screen does.
func (s *session) join(ctx context.Context, convID string) {
	if convID == "" || s.joined[convID] != nil {
		return
	}

	cancel, err := s.gw.log.Subscribe(convID, func(msgs []models.Message) {
		s.push(messagesFrame{
			Type:           "messages",
			ConversationID: convID,
			Messages:       msgs,
		})
	})
	if err != nil {
		s.sendError("join failed")
		return
	}
	s.joined[convID] = cancel

	prop := chat.NewReceiptPropagator(s.gw.log, s.conn.UserID, s.gw.logger)
	if stop, err := prop.Run(ctx, convID); err == nil {
		s.receipts[convID] = stop
	}
}

func (s *session) leave(ctx context.Context, convID string) {
	if cancel := s.joined[convID]; cancel != nil {
		cancel()
		delete(s.joined, convID)
	}
	if stop := s.receipts[convID]; stop != nil {
		stop()
		delete(s.receipts, convID)
	}
	if s.typingIn[convID] {
		_ = s.gw.typing.SetTyping(ctx, convID, s.conn.UserID, false)
		delete(s.typingIn, convID)
	}
}

func (s *session) sendMessage(ctx context.Context, frame inboundFrame) {
	if frame.Kind == "" {
		frame.Kind = models.KindText
	}
	_, err := s.gw.log.Append(ctx, frame.ConversationID, models.Message{
		SenderID:   s.conn.UserID,
		SenderName: frame.SenderName,
		Kind:       frame.Kind,
		Text:       frame.Text,
		ImageURL:   frame.ImageURL,
		File:       frame.File,
		Location:   frame.Location,
	})
	if err != nil {
		s.gw.logger.Error().Err(err).Str("conversation", frame.ConversationID).Msg("append failed")
		s.sendError("send failed")
		return
	}

	// A delivered message supersedes the indicator that announced it, so
	// the flag comes down only after the append has landed.
	if s.typingIn[frame.ConversationID] {
		if err := s.gw.typing.SetTyping(ctx, frame.ConversationID, s.conn.UserID, false); err != nil {
			s.gw.logger.Warn().Err(err).Str("conversation", frame.ConversationID).Msg("typing clear after send failed")
		}
		delete(s.typingIn, frame.ConversationID)
	}
}

func (s *session) setTyping(ctx context.Context, convID string, typing bool) {
	if err := s.gw.typing.SetTyping(ctx, convID, s.conn.UserID, typing); err != nil {
		s.sendError("typing update failed")
		return
	}
	if typing {
		// First time this connection types here, arm the disconnect
		// fallback so a dead socket cannot leave a stuck indicator.
		if !s.typingIn[convID] {
			_, _ = s.gw.typing.ClearOnDisconnect(ctx, convID, s.conn.UserID)
		}
		s.typingIn[convID] = true
	} else {
		delete(s.typingIn, convID)
	}
}

func (s *session) watchTyping(convID, slot string) {
	if convID == "" || slot == "" || slot == s.conn.UserID {
		return
	}
	cancel, err := s.gw.typing.Watch(convID, slot, func(typing bool) {
		s.push(typingFrame{
			Type:           "typing",
			ConversationID: convID,
			Slot:           slot,
			Typing:         typing,
		})
	})
	if err != nil {
		s.sendError("typing watch failed")
		return
	}
	s.watches = append(s.watches, cancel)
}

func (s *session) watchPresence(userID string) {
	if userID == "" {
		return
	}
	cancel, err := s.gw.presence.Watch(userID, func(rec models.PresenceRecord) {
		s.push(presenceFrame{
			Type:       "presence",
			UserID:     userID,
			Online:     rec.Online,
			LastSeenAt: rec.LastSeenAt,
		})
	})
	if err != nil {
		s.sendError("presence watch failed")
		return
	}
	s.watches = append(s.watches, cancel)
}

func (s *session) markSeen(ctx context.Context, convID, msgID string) {
	if err := s.gw.log.MarkSeen(ctx, convID, msgID, s.conn.UserID); err != nil && !chat.IsNotFound(err) {
		s.sendError("seen update failed")
	}
}

// teardown runs once the socket is gone, graceful or not: drop every
// subscription, clear any typing flags the client left behind and flip
// the user offline with an accurate last-seen time.
func (s *session) teardown(ctx context.Context) {
	for convID, cancel := range s.joined {
		cancel()
		delete(s.joined, convID)
	}
	for convID, stop := range s.receipts {
		stop()
		delete(s.receipts, convID)
	}
	for _, cancel := range s.watches {
		cancel()
	}
	s.watches = nil

	for convID := range s.typingIn {
		if err := s.gw.typing.SetTyping(ctx, convID, s.conn.UserID, false); err != nil {
			s.gw.logger.Warn().Err(err).Str("conversation", convID).Msg("typing clear on teardown failed")
		}
	}

	if err := s.gw.presence.GoOffline(ctx, s.conn.UserID); err != nil {
		s.gw.logger.Error().Err(err).Str("user", s.conn.UserID).Msg("presence offline failed")
	}
}

func (s *session) push(frame any) {
	payload, err := json.Marshal(frame)
	if err != nil {
		return
	}
	_ = s.conn.Send(payload)
}

func (s *session) sendError(msg string) {
	s.push(errorFrame{Type: "error", Error: msg})
}
