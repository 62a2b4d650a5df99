package identity

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore handles SQLite account storage, the development fallback
// when no DATABASE_URL is configured.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/palaver.db".
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/palaver.db"
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		full_name TEXT DEFAULT '',
		pseudo TEXT DEFAULT '',
		phone TEXT DEFAULT '',
		profile_image_url TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS reset_tokens (
		token TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		expires_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_email ON accounts(email);
	CREATE INDEX IF NOT EXISTS idx_accounts_phone ON accounts(phone);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateAccount creates a new account record.
func (s *SQLiteStore) CreateAccount(ctx context.Context, email, passwordHash string, profile Profile) (*Account, error) {
	id := uuid.New().String()
	now := time.Now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, email, password_hash, full_name, pseudo, phone, profile_image_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, email, passwordHash, profile.FullName, profile.Pseudo, profile.Phone, profile.ProfileImageURL, now, now)
	if err != nil {
		return nil, err
	}

	return s.GetAccountByID(ctx, id)
}

const sqliteAccountColumns = `id, email, password_hash, full_name, pseudo, phone, profile_image_url, created_at, updated_at`

func scanSQLiteAccount(row *sql.Row) (*Account, error) {
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
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return acct, nil
}

// GetAccountByID retrieves an account by id.
func (s *SQLiteStore) GetAccountByID(ctx context.Context, id string) (*Account, error) {
	return scanSQLiteAccount(s.db.QueryRowContext(ctx, `
		SELECT `+sqliteAccountColumns+` FROM accounts WHERE id = ?
	`, id))
}

// GetAccountByEmail retrieves an account by email.
func (s *SQLiteStore) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	return scanSQLiteAccount(s.db.QueryRowContext(ctx, `
		SELECT `+sqliteAccountColumns+` FROM accounts WHERE email = ?
	`, email))
}

// FindAccountByPhone retrieves an account by phone number.
func (s *SQLiteStore) FindAccountByPhone(ctx context.Context, phone string) (*Account, error) {
	return scanSQLiteAccount(s.db.QueryRowContext(ctx, `
		SELECT `+sqliteAccountColumns+` FROM accounts WHERE phone = ?
	`, phone))
}

// ListAccounts returns every account, oldest first.
func (s *SQLiteStore) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sqliteAccountColumns+` FROM accounts ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		acct := Account{}
		err := rows.Scan(
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
		accounts = append(accounts, acct)
	}
	return accounts, rows.Err()
}

// UpdateProfile replaces the account's profile fields.
func (s *SQLiteStore) UpdateProfile(ctx context.Context, id string, profile Profile) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE accounts
		SET full_name = ?, pseudo = ?, phone = ?, profile_image_url = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, profile.FullName, profile.Pseudo, profile.Phone, profile.ProfileImageURL, id)
	return err
}

// UpdatePasswordHash replaces the account's password hash.
func (s *SQLiteStore) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET password_hash = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, hash, id)
	return err
}

// CreateResetToken stores a password reset token.
func (s *SQLiteStore) CreateResetToken(ctx context.Context, accountID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reset_tokens (token, account_id, expires_at) VALUES (?, ?, ?)
	`, token, accountID, expiresAt)
	return err
}

// ConsumeResetToken deletes the token and returns its account id, or ""
// when the token is unknown or expired.
func (s *SQLiteStore) ConsumeResetToken(ctx context.Context, token string) (string, error) {
	var accountID string
	err := s.db.QueryRowContext(ctx, `
		SELECT account_id FROM reset_tokens WHERE token = ? AND expires_at > ?
	`, token, time.Now()).Scan(&accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}

	_, err = s.db.ExecContext(ctx, `DELETE FROM reset_tokens WHERE token = ?`, token)
	if err != nil {
		return "", err
	}
	return accountID, nil
}
