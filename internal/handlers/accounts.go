package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/palaver-chat/palaver/internal/api/middleware"
	"github.com/palaver-chat/palaver/internal/identity"
)

// PublicAccount is the directory view of an account.
type PublicAccount struct {
	ID      string           `json:"id"`
	Email   string           `json:"email"`
	Profile identity.Profile `json:"profile"`
}

func publicAccount(acct *identity.Account) PublicAccount {
	return PublicAccount{ID: acct.ID, Email: acct.Email, Profile: acct.Profile}
}

// ListAccounts returns the account directory, the pool users pick new
// contacts and group members from.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Accounts.ListAccounts(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}

	out := make([]PublicAccount, 0, len(accounts))
	for i := range accounts {
		out = append(out, publicAccount(&accounts[i]))
	}
	h.JSON(w, http.StatusOK, out)
}

// GetAccount returns one account's public profile.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	acct, err := h.Accounts.GetAccountByID(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	if acct == nil {
		h.Error(w, http.StatusNotFound, "account not found")
		return
	}
	h.JSON(w, http.StatusOK, publicAccount(acct))
}

// UpdateProfile replaces the caller's own profile.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	var profile identity.Profile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	profile.FullName = sanitizeName(profile.FullName)
	profile.Pseudo = sanitizeName(profile.Pseudo)

	if err := h.Accounts.UpdateProfile(r.Context(), userID, profile); err != nil {
		h.fail(w, err)
		return
	}
	h.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// FindByPhone looks up an account by phone number, used when starting a
// direct conversation from a device contact.
func (h *Handler) FindByPhone(w http.ResponseWriter, r *http.Request) {
	phone := r.URL.Query().Get("phone")
	if phone == "" {
		h.Error(w, http.StatusBadRequest, "phone query parameter is required")
		return
	}

	acct, err := h.Accounts.FindAccountByPhone(r.Context(), phone)
	if err != nil {
		h.fail(w, err)
		return
	}
	if acct == nil {
		h.Error(w, http.StatusNotFound, "no account with that phone number")
		return
	}
	h.JSON(w, http.StatusOK, publicAccount(acct))
}
