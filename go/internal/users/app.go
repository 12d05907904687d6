package users

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/mcdev12/backtrack/go/internal/models"
)

// UsersRepository defines what the app layer needs from the repository
type UsersRepository interface {
	CreateUser(ctx context.Context, params CreateUserParams) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetCredentials(ctx context.Context, username string) (*Credentials, error)
	CreateSession(ctx context.Context, params CreateSessionParams) error
	GetUserBySessionToken(ctx context.Context, tokenHash []byte, now time.Time) (*models.User, error)
	DeleteSession(ctx context.Context, tokenHash []byte) error
}

// Config holds the account policy
type Config struct {
	TokenTTL   time.Duration `yaml:"token_ttl"`
	BcryptCost int           `yaml:"bcrypt_cost"`
}

// DefaultConfig returns the production account policy
func DefaultConfig() Config {
	return Config{
		TokenTTL:   30 * 24 * time.Hour,
		BcryptCost: bcrypt.DefaultCost,
	}
}

// Usernames double as NATS subject tokens, so dots and wildcards are excluded
var usernamePattern = regexp.MustCompile(`^[a-z0-9_-]{3,32}$`)

const (
	minPasswordLength = 8
	maxPasswordBytes  = 72 // bcrypt input limit
	tokenBytes        = 32
)

// App handles accounts and session tokens
type App struct {
	repo   UsersRepository
	clock  clockwork.Clock
	config Config
}

// NewApp creates a new users App
func NewApp(repo UsersRepository, clock clockwork.Clock, config Config) *App {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &App{
		repo:   repo,
		clock:  clock,
		config: config,
	}
}

// NormalizeUsername is the canonical form stored and compared everywhere
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// Register creates an account and opens a session for it
func (a *App) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	req.Username = NormalizeUsername(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if err := validateRegisterRequest(req); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), a.config.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := a.repo.CreateUser(ctx, CreateUserParams{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	log.Info().Str("username", user.Username).Msg("user registered")
	return a.issueToken(ctx, user)
}

// Login checks a password and opens a new session
func (a *App) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	username := NormalizeUsername(req.Username)
	if username == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: username and password are required", ErrInvalidRequest)
	}

	creds, err := a.repo.GetCredentials(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword(creds.PasswordHash, []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	log.Info().Str("username", creds.User.Username).Msg("user logged in")
	return a.issueToken(ctx, &creds.User)
}

// Authenticate resolves a bearer token to its user
func (a *App) Authenticate(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	user, err := a.repo.GetUserBySessionToken(ctx, hashToken(token), a.clock.Now())
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}
	return user, nil
}

// Logout revokes a session token
func (a *App) Logout(ctx context.Context, token string) error {
	if err := a.repo.DeleteSession(ctx, hashToken(token)); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// GetUserByUsername retrieves a user by username
func (a *App) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user, err := a.repo.GetUserByUsername(ctx, NormalizeUsername(username))
	if err != nil {
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}
	return user, nil
}

func (a *App) issueToken(ctx context.Context, user *models.User) (*AuthResponse, error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)
	expiresAt := a.clock.Now().Add(a.config.TokenTTL).UTC()

	err := a.repo.CreateSession(ctx, CreateSessionParams{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: hashToken(token),
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &AuthResponse{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// Only the SHA-256 of a token is stored
func hashToken(token string) []byte {
	sum := sha256.Sum256([]byte(token))
	return sum[:]
}

func validateRegisterRequest(req RegisterRequest) error {
	if !usernamePattern.MatchString(req.Username) {
		return fmt.Errorf("%w: username must be 3-32 characters of a-z, 0-9, _ or -", ErrInvalidRequest)
	}
	if req.Email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidRequest)
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return fmt.Errorf("%w: email format is invalid", ErrInvalidRequest)
	}
	if len(req.Password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidRequest, minPasswordLength)
	}
	if len(req.Password) > maxPasswordBytes {
		return fmt.Errorf("%w: password must be at most %d bytes", ErrInvalidRequest, maxPasswordBytes)
	}
	return nil
}
