package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/palaver-chat/palaver/internal/api/middleware"
	"github.com/palaver-chat/palaver/internal/chat"
	"github.com/palaver-chat/palaver/internal/models"
)

// PostMessageRequest represents the message append body.
type PostMessageRequest struct {
	Kind       models.Kind      `json:"kind"`
	Text       string           `json:"text,omitempty"`
	ImageURL   string           `json:"imageUrl,omitempty"`
	File       *models.FileRef  `json:"file,omitempty"`
	Location   *models.GeoPoint `json:"location,omitempty"`
	SenderName string           `json:"senderName,omitempty"`
}

// PostMessage appends a message to a conversation.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	convID := chi.URLParam(r, "id")

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.Kind == "" {
		req.Kind = models.KindText
	}
	switch req.Kind {
	case models.KindText:
		if req.Text == "" {
			h.Error(w, http.StatusBadRequest, "text is required")
			return
		}
	case models.KindImage:
		if req.ImageURL == "" {
			h.Error(w, http.StatusBadRequest, "imageUrl is required")
			return
		}
	case models.KindFile:
		if req.File == nil || req.File.URL == "" {
			h.Error(w, http.StatusBadRequest, "file is required")
			return
		}
	case models.KindLocation:
		if req.Location == nil {
			h.Error(w, http.StatusBadRequest, "location is required")
			return
		}
	default:
		h.Error(w, http.StatusBadRequest, "unknown message kind")
		return
	}

	id, err := h.Log.Append(r.Context(), convID, models.Message{
		SenderID:   userID,
		SenderName: sanitizeName(req.SenderName),
		Kind:       req.Kind,
		Text:       req.Text,
		ImageURL:   req.ImageURL,
		File:       req.File,
		Location:   req.Location,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	h.JSON(w, http.StatusCreated, map[string]string{"id": id})
}

// GetMessages returns a conversation's full ordered log.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "id")

	msgs, err := h.Log.Messages(r.Context(), convID)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.JSON(w, http.StatusOK, msgs)
}

// MarkSeen records a read receipt on a message. Repeats are no-ops.
func (h *Handler) MarkSeen(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	convID := chi.URLParam(r, "id")
	msgID := chi.URLParam(r, "msgID")

	if err := h.Log.MarkSeen(r.Context(), convID, msgID, userID); err != nil {
		h.fail(w, err)
		return
	}
	h.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetMedia returns the conversation's shared media, grouped by kind.
func (h *Handler) GetMedia(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "id")

	msgs, err := h.Log.Messages(r.Context(), convID)
	if err != nil {
		h.fail(w, err)
		return
	}

	set := chat.PartitionMedia(msgs)
	h.JSON(w, http.StatusOK, map[string][]models.MediaReference{
		"images":    set.Images,
		"files":     set.Files,
		"locations": set.Locations,
	})
}
