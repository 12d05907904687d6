package users

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/backtrack/go/internal/models"
)

var (
	// ErrInvalidCredentials is returned when a username/password pair does not match
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is returned when no user has the requested username
	ErrUserNotFound = errors.New("user not found")
	// ErrUsernameTaken is returned when registering an existing username or email
	ErrUsernameTaken = errors.New("username or email already registered")
	// ErrInvalidToken is returned for unknown, revoked or expired session tokens
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrInvalidRequest wraps every validation failure
	ErrInvalidRequest = errors.New("invalid request")
)

// RegisterRequest represents the request to create an account
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest represents the request to open a session
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse is returned by register and login
type AuthResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// CreateUserParams is what the repository stores for a new user
type CreateUserParams struct {
	Username     string
	Email        string
	PasswordHash []byte
}

// Credentials pairs a user with their password hash
type Credentials struct {
	User         models.User
	PasswordHash []byte
}

// CreateSessionParams is what the repository stores for a new session token
type CreateSessionParams struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash []byte
	ExpiresAt time.Time
}
