package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore handles PostgreSQL account storage.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	store := &PostgresStore{pool: pool}
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// initSchema creates tables if they don't exist. Statements run one at
// a time: pgx's extended protocol rejects multi-statement commands.
func (s *PostgresStore) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id UUID PRIMARY KEY,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			full_name TEXT NOT NULL DEFAULT '',
			pseudo TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			profile_image_url TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS reset_tokens (
			token TEXT PRIMARY KEY,
			account_id UUID NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			expires_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_accounts_phone ON accounts(phone)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateAccount creates a new account record.
func (s *PostgresStore) CreateAccount(ctx context.Context, email, passwordHash string, profile Profile) (*Account, error) {
	acct := &Account{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO accounts (id, email, password_hash, full_name, pseudo, phone, profile_image_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, email, password_hash, full_name, pseudo, phone, profile_image_url, created_at, updated_at
	`, uuid.NewString(), email, passwordHash, profile.FullName, profile.Pseudo, profile.Phone, profile.ProfileImageURL).Scan(
		&acct.ID,
		&acct.Email,
		&acct.PasswordHash,
		&acct.Profile.FullName,
		&acct.Profile.Pseudo,
		&acct.Profile.Phone,
		&acct.Profile.ProfileImageURL,
		&acct.CreatedAt,
		&acct.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return acct, nil
}

const accountColumns = `id, email, password_hash, full_name, pseudo, phone, profile_image_url, created_at, updated_at`

func (s *PostgresStore) scanAccount(row pgx.Row) (*Account, error) {
	acct := &Account{}
	err := row.Scan(
		&acct.ID,
		&acct.Email,
		&acct.PasswordHash,
		&acct.Profile.FullName,
		&acct.Profile.Pseudo,
		&acct.Profile.Phone,
		&acct.Profile.ProfileImageURL,
		&acct.CreatedAt,
		&acct.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return acct, nil
}

// GetAccountByID retrieves an account by id.
func (s *PostgresStore) GetAccountByID(ctx context.Context, id string) (*Account, error) {
	return s.scanAccount(s.pool.QueryRow(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE id = $1
	`, id))
}

// GetAccountByEmail retrieves an account by email.
func (s *PostgresStore) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	return s.scanAccount(s.pool.QueryRow(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE email = $1
	`, email))
}

// FindAccountByPhone retrieves an account by phone number.
func (s *PostgresStore) FindAccountByPhone(ctx context.Context, phone string) (*Account, error) {
	return s.scanAccount(s.pool.QueryRow(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE phone = $1
	`, phone))
}

// ListAccounts returns every account, oldest first.
func (s *PostgresStore) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+accountColumns+` FROM accounts ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		acct, err := s.scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *acct)
	}
	return accounts, rows.Err()
}

// UpdateProfile replaces the account's profile fields.
func (s *PostgresStore) UpdateProfile(ctx context.Context, id string, profile Profile) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE accounts
		SET full_name = $2, pseudo = $3, phone = $4, profile_image_url = $5, updated_at = NOW()
		WHERE id = $1
	`, id, profile.FullName, profile.Pseudo, profile.Phone, profile.ProfileImageURL)
	return err
}

// UpdatePasswordHash replaces the account's password hash.
func (s *PostgresStore) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE accounts SET password_hash = $2, updated_at = NOW() WHERE id = $1
	`, id, hash)
	return err
}

// CreateResetToken stores a password reset token.
func (s *PostgresStore) CreateResetToken(ctx context.Context, accountID, token string, expiresAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO reset_tokens (token, account_id, expires_at) VALUES ($1, $2, $3)
	`, token, accountID, expiresAt)
	return err
}

// ConsumeResetToken deletes the token and returns its account id, or ""
// when the token is unknown or expired.
func (s *PostgresStore) ConsumeResetToken(ctx context.Context, token string) (string, error) {
	var accountID string
	err := s.pool.QueryRow(ctx, `
		DELETE FROM reset_tokens
		WHERE token = $1 AND expires_at > NOW()
		RETURNING account_id
	`, token).Scan(&accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return accountID, nil
}
