// Package identity is the account system the sync core delegates to.
// The core itself only ever consumes the userID strings produced here.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// emailRegex validates email addresses per RFC 5322 (simplified).
var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

const resetTokenTTL = time.Hour

// Profile is the mutable, user-editable part of an account.
type Profile struct {
	FullName        string `json:"fullName"`
	Pseudo          string `json:"pseudo"`
	Phone           string `json:"phone"`
	ProfileImageURL string `json:"profileImageUrl,omitempty"`
}

// Account is a registered user.
type Account struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Profile   Profile   `json:"profile"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// PasswordHash never leaves the package.
	PasswordHash string `json:"-"`
}

// AuthError covers bad credentials, unknown accounts and expired
// sessions. Always terminal and always surfaced to the user.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth: %s", e.Reason)
}

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// Store persists accounts and reset tokens. Both PostgresStore and
// SQLiteStore implement this interface.
type Store interface {
	Close()
	Ping(ctx context.Context) error

	CreateAccount(ctx context.Context, email, passwordHash string, profile Profile) (*Account, error)
	GetAccountByID(ctx context.Context, id string) (*Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)
	FindAccountByPhone(ctx context.Context, phone string) (*Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)
	UpdateProfile(ctx context.Context, id string, profile Profile) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error

	CreateResetToken(ctx context.Context, accountID, token string, expiresAt time.Time) error
	ConsumeResetToken(ctx context.Context, token string) (string, error)
}

// Service implements authentication on top of a Store.
type Service struct {
	store  Store
	logger zerolog.Logger
	now    func() time.Time
}

// NewService creates an identity service.
func NewService(store Store, logger zerolog.Logger) *Service {
	return &Service{store: store, logger: logger, now: time.Now}
}

// Authenticate verifies email and password and returns the user id.
func (s *Service) Authenticate(ctx context.Context, email, password string) (string, error) {
	acct, err := s.store.GetAccountByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if acct == nil {
		return "", &AuthError{Reason: "unknown email or wrong password"}
	}
	if bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)) != nil {
		return "", &AuthError{Reason: "unknown email or wrong password"}
	}
	return acct.ID, nil
}

// CreateAccount registers a new user and returns its id.
func (s *Service) CreateAccount(ctx context.Context, email, password string, profile Profile) (string, error) {
	if !emailRegex.MatchString(email) || len(email) > 254 {
		return "", &AuthError{Reason: "invalid email address"}
	}
	if len(password) < 6 {
		return "", &AuthError{Reason: "password too short (min 6 characters)"}
	}

	existing, err := s.store.GetAccountByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return "", &AuthError{Reason: "email already registered"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	acct, err := s.store.CreateAccount(ctx, email, string(hash), profile)
	if err != nil {
		return "", err
	}
	s.logger.Info().Str("user", acct.ID).Msg("account created")
	return acct.ID, nil
}

// Reauthenticate re-verifies the password of an already-identified user.
func (s *Service) Reauthenticate(ctx context.Context, userID, password string) error {
	acct, err := s.store.GetAccountByID(ctx, userID)
	if err != nil {
		return err
	}
	if acct == nil {
		return &AuthError{Reason: "unknown user"}
	}
	if bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)) != nil {
		return &AuthError{Reason: "wrong password"}
	}
	return nil
}

// ResetPassword issues a one-hour reset token for the account. Token
// delivery (mail, SMS) happens outside this package.
func (s *Service) ResetPassword(ctx context.Context, email string) (string, error) {
	acct, err := s.store.GetAccountByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if acct == nil {
		return "", &AuthError{Reason: "unknown email"}
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := hex.EncodeToString(buf)

	if err := s.store.CreateResetToken(ctx, acct.ID, token, s.now().Add(resetTokenTTL)); err != nil {
		return "", err
	}
	return token, nil
}

// RedeemReset consumes a reset token and installs the new password.
func (s *Service) RedeemReset(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < 6 {
		return &AuthError{Reason: "password too short (min 6 characters)"}
	}

	accountID, err := s.store.ConsumeResetToken(ctx, token)
	if err != nil {
		return err
	}
	if accountID == "" {
		return &AuthError{Reason: "invalid or expired reset token"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.store.UpdatePasswordHash(ctx, accountID, string(hash))
}
