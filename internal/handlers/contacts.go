package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/palaver-chat/palaver/internal/api/middleware"
)

// AddContactRequest represents the contact addition body.
type AddContactRequest struct {
	UserID string `json:"userId"`
}

// AddContact saves another user into the caller's contact list.
func (h *Handler) AddContact(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	var req AddContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" || req.UserID == userID {
		h.Error(w, http.StatusBadRequest, "a distinct contact user id is required")
		return
	}

	if err := h.Contacts.Add(r.Context(), userID, req.UserID); err != nil {
		h.fail(w, err)
		return
	}
	h.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListContacts returns the caller's saved contacts.
func (h *Handler) ListContacts(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	contacts, err := h.Contacts.Contacts(r.Context(), userID)
	if err != nil {
		h.fail(w, err)
		return
	}
	if contacts == nil {
		contacts = []string{}
	}
	h.JSON(w, http.StatusOK, contacts)
}

// GetPresence returns a user's current presence record.
func (h *Handler) GetPresence(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	record, err := h.Presence.Presence(r.Context(), userID)
	if err != nil {
		h.fail(w, err)
		return
	}
	record.UserID = userID
	h.JSON(w, http.StatusOK, record)
}
