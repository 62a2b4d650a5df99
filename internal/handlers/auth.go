package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/palaver-chat/palaver/internal/identity"
)

// RegisterRequest represents the registration request body.
type RegisterRequest struct {
	Email    string           `json:"email"`
	Password string           `json:"password"`
	Profile  identity.Profile `json:"profile"`
}

// RegisterResponse represents the registration response.
type RegisterResponse struct {
	ID string `json:"id"`
}

// Register handles account creation.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Profile.FullName = sanitizeName(req.Profile.FullName)
	req.Profile.Pseudo = sanitizeName(req.Profile.Pseudo)

	id, err := h.Identity.CreateAccount(r.Context(), req.Email, req.Password, req.Profile)
	if err != nil {
		if identity.IsAuth(err) {
			h.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		h.fail(w, err)
		return
	}

	h.JSON(w, http.StatusCreated, RegisterResponse{ID: id})
}

// LoginRequest represents the login request body.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse represents the login response.
type LoginResponse struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

// Login verifies credentials and issues a bearer token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	userID, err := h.Identity.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, err)
		return
	}

	h.JSON(w, http.StatusOK, LoginResponse{
		UserID: userID,
		Token:  h.Tokens.Issue(userID),
	})
}

// ResetRequest represents the password reset request body.
type ResetRequest struct {
	Email string `json:"email"`
}

// ResetPassword issues a reset token. Delivery happens out of band, so
// the token is only returned directly in development setups.
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	token, err := h.Identity.ResetPassword(r.Context(), req.Email)
	if err != nil {
		h.fail(w, err)
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"resetToken": token})
}

// RedeemRequest represents the reset redemption body.
type RedeemRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

// RedeemReset consumes a reset token and installs the new password.
func (h *Handler) RedeemReset(w http.ResponseWriter, r *http.Request) {
	var req RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.Identity.RedeemReset(r.Context(), req.Token, req.NewPassword); err != nil {
		if identity.IsAuth(err) {
			h.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		h.fail(w, err)
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
