package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/palaver-chat/palaver/internal/api/middleware"
	"github.com/palaver-chat/palaver/internal/blob"
	"github.com/palaver-chat/palaver/internal/chat"
	"github.com/palaver-chat/palaver/internal/identity"
	"github.com/palaver-chat/palaver/internal/rtstore"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	Identity *identity.Service
	Accounts identity.Store
	Store    rtstore.Store
	Log      *chat.MessageLog
	Groups   *chat.GroupManager
	Presence *chat.PresenceTracker
	Contacts *chat.ContactList
	Blobs    blob.Store
	Tokens   *middleware.TokenStore
	Logger   zerolog.Logger
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// fail maps domain errors onto HTTP statuses.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case identity.IsAuth(err):
		h.Error(w, http.StatusUnauthorized, err.Error())
	case chat.IsNotFound(err):
		h.Error(w, http.StatusNotFound, err.Error())
	case blob.IsPermission(err):
		h.Error(w, http.StatusForbidden, err.Error())
	case blob.IsUpload(err), chat.IsWrite(err):
		h.Error(w, http.StatusBadGateway, err.Error())
	default:
		h.Logger.Error().Err(err).Msg("request failed")
		h.Error(w, http.StatusInternalServerError, "internal error")
	}
}

// sanitizeName trims and limits name to 100 characters, removing control characters.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)

	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	if len(name) > 100 {
		name = name[:100]
	}

	return name
}
