package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/palaver-chat/palaver/internal/api/middleware"
	"github.com/palaver-chat/palaver/internal/chat"
)

// CreateGroupRequest represents the group creation body.
type CreateGroupRequest struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

// CreateGroup creates a group conversation with the caller and the
// listed members.
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	var req CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	name := sanitizeName(req.Name)
	if name == "" {
		h.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	id, err := h.Groups.CreateGroup(r.Context(), name, userID, req.Members)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.JSON(w, http.StatusCreated, map[string]string{"id": id})
}

// ListGroups returns the caller's groups, most recently active first.
func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	groups, err := h.Groups.GroupsOf(r.Context(), userID)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.JSON(w, http.StatusOK, groups)
}

// AddMemberRequest represents the member addition body.
type AddMemberRequest struct {
	UserID string `json:"userId"`
}

// AddMember adds a user to a group. Adding an existing member is a
// no-op, so retried requests are harmless.
func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "id")

	var req AddMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		h.Error(w, http.StatusBadRequest, "userId is required")
		return
	}

	if err := h.Groups.AddMember(r.Context(), convID, req.UserID); err != nil {
		h.fail(w, err)
		return
	}
	h.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SetBackgroundRequest represents the background change body.
type SetBackgroundRequest struct {
	URL string `json:"url"`
}

// SetBackground changes a group's background image.
func (h *Handler) SetBackground(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "id")

	var req SetBackgroundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.Groups.SetBackground(r.Context(), convID, req.URL); err != nil {
		h.fail(w, err)
		return
	}
	h.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ResolveDirect returns the conversation id shared with another user.
// The id is derived from the two participant ids, so both sides resolve
// to the same thread without any registry.
func (h *Handler) ResolveDirect(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	other := chi.URLParam(r, "userId")

	if other == "" || other == userID {
		h.Error(w, http.StatusBadRequest, "a distinct peer user id is required")
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{
		"id": chat.DirectConversationID(userID, other),
	})
}
