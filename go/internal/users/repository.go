package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mcdev12/backtrack/go/internal/models"
)

// Querier defines what the repository needs from the database layer.
// *pgxpool.Pool and pgx.Tx both satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository implements user and session data access on Postgres
type Repository struct {
	db Querier
}

// NewRepository creates a new users repository
func NewRepository(db Querier) *Repository {
	return &Repository{db: db}
}

const uniqueViolation = "23505"

const createUser = `
INSERT INTO users (id, username, email, password_hash)
VALUES ($1, $2, $3, $4)
RETURNING id, username, email, created_at`

// CreateUser creates a new user
func (r *Repository) CreateUser(ctx context.Context, params CreateUserParams) (*models.User, error) {
	var user models.User
	err := r.db.QueryRow(ctx, createUser, uuid.New(), params.Username, params.Email, params.PasswordHash).
		Scan(&user.ID, &user.Username, &user.Email, &user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return &user, nil
}

const getUserByUsername = `
SELECT id, username, email, created_at
FROM users
WHERE username = $1`

// GetUserByUsername retrieves a user by username
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := r.db.QueryRow(ctx, getUserByUsername, username).
		Scan(&user.ID, &user.Username, &user.Email, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}
	return &user, nil
}

const getCredentials = `
SELECT id, username, email, created_at, password_hash
FROM users
WHERE username = $1`

// GetCredentials retrieves a user together with their password hash
func (r *Repository) GetCredentials(ctx context.Context, username string) (*Credentials, error) {
	var creds Credentials
	err := r.db.QueryRow(ctx, getCredentials, username).
		Scan(&creds.User.ID, &creds.User.Username, &creds.User.Email, &creds.User.CreatedAt, &creds.PasswordHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get credentials: %w", err)
	}
	return &creds, nil
}

const createSession = `
INSERT INTO user_sessions (id, user_id, token_hash, expires_at)
VALUES ($1, $2, $3, $4)`

// CreateSession stores a hashed session token
func (r *Repository) CreateSession(ctx context.Context, params CreateSessionParams) error {
	if _, err := r.db.Exec(ctx, createSession, params.ID, params.UserID, params.TokenHash, params.ExpiresAt); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

const getUserBySessionToken = `
SELECT u.id, u.username, u.email, u.created_at
FROM user_sessions s
JOIN users u ON u.id = s.user_id
WHERE s.token_hash = $1 AND s.expires_at > $2`

// GetUserBySessionToken resolves an unexpired session token hash to its user
func (r *Repository) GetUserBySessionToken(ctx context.Context, tokenHash []byte, now time.Time) (*models.User, error) {
	var user models.User
	err := r.db.QueryRow(ctx, getUserBySessionToken, tokenHash, now).
		Scan(&user.ID, &user.Username, &user.Email, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &user, nil
}

const deleteSession = `DELETE FROM user_sessions WHERE token_hash = $1`

// DeleteSession revokes a session token hash
func (r *Repository) DeleteSession(ctx context.Context, tokenHash []byte) error {
	if _, err := r.db.Exec(ctx, deleteSession, tokenHash); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
