package users

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/bcrypt"

	"github.com/mcdev12/backtrack/go/internal/models"
)

type session struct {
	userID    uuid.UUID
	tokenHash []byte
	expiresAt time.Time
}

type fakeRepository struct {
	mu       sync.Mutex
	users    map[string]*Credentials
	sessions []session
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{users: make(map[string]*Credentials)}
}

func (f *fakeRepository) CreateUser(_ context.Context, params CreateUserParams) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.users[params.Username]; exists {
		return nil, ErrUsernameTaken
	}
	user := models.User{ID: uuid.New(), Username: params.Username, Email: params.Email, CreatedAt: time.Now()}
	f.users[params.Username] = &Credentials{User: user, PasswordHash: params.PasswordHash}
	return &user, nil
}

func (f *fakeRepository) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	creds, ok := f.users[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	user := creds.User
	return &user, nil
}

func (f *fakeRepository) GetCredentials(_ context.Context, username string) (*Credentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	creds, ok := f.users[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	c := *creds
	return &c, nil
}

func (f *fakeRepository) CreateSession(_ context.Context, params CreateSessionParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, session{userID: params.UserID, tokenHash: params.TokenHash, expiresAt: params.ExpiresAt})
	return nil
}

func (f *fakeRepository) GetUserBySessionToken(_ context.Context, tokenHash []byte, now time.Time) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if !bytes.Equal(s.tokenHash, tokenHash) || !s.expiresAt.After(now) {
			continue
		}
		for _, creds := range f.users {
			if creds.User.ID == s.userID {
				user := creds.User
				return &user, nil
			}
		}
	}
	return nil, ErrInvalidToken
}

func (f *fakeRepository) DeleteSession(_ context.Context, tokenHash []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.sessions[:0]
	for _, s := range f.sessions {
		if !bytes.Equal(s.tokenHash, tokenHash) {
			kept = append(kept, s)
		}
	}
	f.sessions = kept
	return nil
}

func newTestApp() (*App, *fakeRepository, *clockwork.FakeClock) {
	repo := newFakeRepository()
	clock := clockwork.NewFakeClock()
	app := NewApp(repo, clock, Config{TokenTTL: time.Hour, BcryptCost: bcrypt.MinCost})
	return app, repo, clock
}

func TestRegister_IssuesWorkingToken(t *testing.T) {
	app, repo, _ := newTestApp()
	ctx := context.Background()

	resp, err := app.Register(ctx, RegisterRequest{Username: "  Alice ", Email: "alice@example.com", Password: "correct horse"})
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if resp.User.Username != "alice" {
		t.Errorf("username = %q, want normalized %q", resp.User.Username, "alice")
	}
	if resp.Token == "" {
		t.Fatal("Register() returned empty token")
	}

	// Only the hash is stored
	for _, s := range repo.sessions {
		if bytes.Equal(s.tokenHash, []byte(resp.Token)) {
			t.Error("raw token stored in repository")
		}
	}

	user, err := app.Authenticate(ctx, resp.Token)
	if err != nil {
		t.Fatalf("Authenticate() error: %v", err)
	}
	if user.ID != resp.User.ID {
		t.Errorf("Authenticate() user = %v, want %v", user.ID, resp.User.ID)
	}
}

func TestRegister_Validation(t *testing.T) {
	app, _, _ := newTestApp()

	tests := []struct {
		name string
		req  RegisterRequest
	}{
		{name: "short username", req: RegisterRequest{Username: "al", Email: "a@example.com", Password: "password1"}},
		{name: "dotted username", req: RegisterRequest{Username: "al.ice", Email: "a@example.com", Password: "password1"}},
		{name: "missing email", req: RegisterRequest{Username: "alice", Password: "password1"}},
		{name: "bad email", req: RegisterRequest{Username: "alice", Email: "not-an-email", Password: "password1"}},
		{name: "short password", req: RegisterRequest{Username: "alice", Email: "a@example.com", Password: "short"}},
		{name: "long password", req: RegisterRequest{Username: "alice", Email: "a@example.com", Password: string(bytes.Repeat([]byte("x"), 73))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := app.Register(context.Background(), tt.req)
			if !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("Register() error = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestRegister_DuplicateUsername(t *testing.T) {
	app, _, _ := newTestApp()
	ctx := context.Background()
	req := RegisterRequest{Username: "alice", Email: "alice@example.com", Password: "password1"}

	if _, err := app.Register(ctx, req); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	req.Username = "ALICE"
	if _, err := app.Register(ctx, req); !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("second Register() error = %v, want ErrUsernameTaken", err)
	}
}

func TestLogin(t *testing.T) {
	app, _, _ := newTestApp()
	ctx := context.Background()
	if _, err := app.Register(ctx, RegisterRequest{Username: "alice", Email: "alice@example.com", Password: "password1"}); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	tests := []struct {
		name    string
		req     LoginRequest
		wantErr error
	}{
		{name: "valid", req: LoginRequest{Username: "Alice", Password: "password1"}},
		{name: "wrong password", req: LoginRequest{Username: "alice", Password: "password2"}, wantErr: ErrInvalidCredentials},
		{name: "unknown user", req: LoginRequest{Username: "mallory", Password: "password1"}, wantErr: ErrInvalidCredentials},
		{name: "missing password", req: LoginRequest{Username: "alice"}, wantErr: ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := app.Login(ctx, tt.req)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Login() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Login() error: %v", err)
			}
			if resp.User.Username != "alice" {
				t.Errorf("Login() user = %q, want %q", resp.User.Username, "alice")
			}
		})
	}
}

func TestAuthenticate_ExpiredAndRevokedTokens(t *testing.T) {
	app, _, clock := newTestApp()
	ctx := context.Background()

	resp, err := app.Register(ctx, RegisterRequest{Username: "alice", Email: "alice@example.com", Password: "password1"})
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	clock.Advance(2 * time.Hour)
	if _, err := app.Authenticate(ctx, resp.Token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Authenticate() after expiry error = %v, want ErrInvalidToken", err)
	}

	login, err := app.Login(ctx, LoginRequest{Username: "alice", Password: "password1"})
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if err := app.Logout(ctx, login.Token); err != nil {
		t.Fatalf("Logout() error: %v", err)
	}
	if _, err := app.Authenticate(ctx, login.Token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Authenticate() after logout error = %v, want ErrInvalidToken", err)
	}
	if _, err := app.Authenticate(ctx, ""); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Authenticate(\"\") error = %v, want ErrInvalidToken", err)
	}
}
