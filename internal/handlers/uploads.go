package handlers

import (
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/palaver-chat/palaver/internal/api/middleware"
)

// maxUploadBytes bounds a single media payload.
const maxUploadBytes = 25 << 20 // 25MB

// Upload receives a multipart media payload, stores it in the blob
// store and returns the public URL to embed in a message.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		h.Error(w, http.StatusRequestEntityTooLarge, "payload too large or malformed")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.Error(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	// Keys are namespaced per uploader; the original extension is kept
	// so the serving side can infer the type.
	key := fmt.Sprintf("%s/%s%s", userID, uuid.New().String(), path.Ext(header.Filename))

	url, err := h.Blobs.Upload(r.Context(), key, contentType, file)
	if err != nil {
		h.fail(w, err)
		return
	}

	h.JSON(w, http.StatusCreated, map[string]string{
		"url":  url,
		"key":  key,
		"name": header.Filename,
		"mime": contentType,
	})
}

// DeleteUpload removes a previously uploaded object. Clients call this
// when replacing a profile image so the old blob does not linger.
// Callers can only delete objects inside their own key namespace.
func (h *Handler) DeleteUpload(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	key := chi.URLParam(r, "*")
	if key == "" {
		h.Error(w, http.StatusBadRequest, "object key is required")
		return
	}
	if !strings.HasPrefix(key, userID+"/") {
		h.Error(w, http.StatusForbidden, "cannot delete another user's upload")
		return
	}

	if err := h.Blobs.Remove(r.Context(), key); err != nil {
		h.fail(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
