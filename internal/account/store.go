// Package account stores subscriber accounts in SQLite: signup with a
// password policy, login verification and optional TOTP enrollment.
package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUsernameTaken      = errors.New("account: username already taken")
	ErrInvalidCredentials = errors.New("account: invalid username or password")
	ErrNotEnrolled        = errors.New("account: totp not enrolled")
	ErrNotFound           = errors.New("account: no such user")
)

// User is a stored account. PasswordHash and TOTPSecret never leave the
// package through the API surface.
type User struct {
	ID        string
	Username  string
	CreatedAt time.Time

	passwordHash string
	totpSecret   string
}

// StoreConfig configures the account store.
type StoreConfig struct {
	DBPath string // e.g. "data/accounts.db"
}

// Store is a SQLite-backed account store. Safe for concurrent use; writes
// are serialized on a single connection.
type Store struct {
	db *sql.DB
}

// New opens the database with WAL mode and creates the schema.
func New(cfg StoreConfig) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT    PRIMARY KEY,
			username      TEXT    NOT NULL UNIQUE,
			password_hash TEXT    NOT NULL,
			totp_secret   TEXT    NOT NULL DEFAULT '',
			created_at    INTEGER NOT NULL
		);
	`)
	return err
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// CreateUser validates the username and password policy, hashes the
// password and inserts the account under a fresh random ID.
func (s *Store) CreateUser(ctx context.Context, username, password string) (*User, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := ValidatePassword(username, password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("account: hash: %w", err)
	}

	// Retry on the vanishingly-rare random ID collision.
	for attempt := 0; attempt < 3; attempt++ {
		id, err := NewAccountID()
		if err != nil {
			return nil, err
		}
		now := time.Now().UTC()
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO users (id, username, password_hash, created_at) VALUES (?, ?, ?, ?)`,
			id, username, string(hash), now.Unix())
		if err == nil {
			return &User{ID: id, Username: username, CreatedAt: now, passwordHash: string(hash)}, nil
		}
		if isUniqueViolation(err, "users.username") {
			return nil, ErrUsernameTaken
		}
		if !isUniqueViolation(err, "users.id") {
			return nil, fmt.Errorf("account: insert: %w", err)
		}
	}
	return nil, errors.New("account: id space exhausted")
}

// Authenticate loads the user and checks the password. Unknown usernames
// and wrong passwords return the same error.
func (s *Store) Authenticate(ctx context.Context, username, password string) (*User, error) {
	u, err := s.byUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.passwordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// GetUser loads an account by ID.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, totp_secret, created_at FROM users WHERE id = ?`, id))
}

func (s *Store) byUsername(ctx context.Context, username string) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, totp_secret, created_at FROM users WHERE username = ?`, username))
}

func (s *Store) scanUser(row *sql.Row) (*User, error) {
	var u User
	var createdAt int64
	err := row.Scan(&u.ID, &u.Username, &u.passwordHash, &u.totpSecret, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("account: scan: %w", err)
	}
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &u, nil
}

func (s *Store) setTOTPSecret(ctx context.Context, id, secret string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET totp_secret = ? WHERE id = ?`, secret, id)
	if err != nil {
		return fmt.Errorf("account: update secret: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// isUniqueViolation matches go-sqlite3's constraint error text for a
// specific column without importing its error types.
func isUniqueViolation(err error, column string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, column)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
