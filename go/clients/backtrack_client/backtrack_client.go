package backtrack_client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/mcdev12/backtrack/go/clients"
	"github.com/mcdev12/backtrack/go/internal/alerts"
	"github.com/mcdev12/backtrack/go/internal/friends"
	"github.com/mcdev12/backtrack/go/internal/users"
)

// BacktrackClient talks to the BackTrack REST API
type BacktrackClient struct {
	*clients.BaseClient
}

func NewBacktrackClient(baseURL string) *BacktrackClient {
	return &BacktrackClient{BaseClient: clients.NewBaseClient(baseURL)}
}

// SetToken authenticates subsequent requests. An empty token clears it.
func (c *BacktrackClient) SetToken(token string) {
	if token == "" {
		c.SetHeader("Authorization", "")
		return
	}
	c.SetHeader("Authorization", "Bearer "+token)
}

// Register creates an account and authenticates the client with its token
func (c *BacktrackClient) Register(ctx context.Context, req users.RegisterRequest) (*users.AuthResponse, error) {
	var resp users.AuthResponse
	if err := c.Post(ctx, EndpointRegister, req, &resp); err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	c.SetToken(resp.Token)
	return &resp, nil
}

// Login authenticates the client with a fresh token
func (c *BacktrackClient) Login(ctx context.Context, username, password string) (*users.AuthResponse, error) {
	var resp users.AuthResponse
	req := users.LoginRequest{Username: username, Password: password}
	if err := c.Post(ctx, EndpointLogin, req, &resp); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	c.SetToken(resp.Token)
	return &resp, nil
}

// Logout revokes the current token
func (c *BacktrackClient) Logout(ctx context.Context) error {
	if err := c.Post(ctx, EndpointLogout, nil, nil); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	c.SetToken("")
	return nil
}

func (c *BacktrackClient) ListFriends(ctx context.Context) ([]friends.FriendView, error) {
	var resp friends.ListFriendsResponse
	if err := c.Get(ctx, EndpointFriends, &resp); err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}
	return resp.Friends, nil
}

func (c *BacktrackClient) AddFriend(ctx context.Context, username string) (*friends.FriendView, error) {
	var resp friends.FriendView
	if err := c.Post(ctx, EndpointFriends, friends.AddFriendRequest{Username: username}, &resp); err != nil {
		return nil, fmt.Errorf("add friend: %w", err)
	}
	return &resp, nil
}

func (c *BacktrackClient) RemoveFriend(ctx context.Context, username string) error {
	if err := c.Delete(ctx, friendPath(username)); err != nil {
		return fmt.Errorf("remove friend: %w", err)
	}
	return nil
}

func (c *BacktrackClient) ToggleFavorite(ctx context.Context, username string) (*friends.FriendView, error) {
	var resp friends.FriendView
	if err := c.Put(ctx, friendPath(username)+"/favorite", nil, &resp); err != nil {
		return nil, fmt.Errorf("toggle favorite: %w", err)
	}
	return &resp, nil
}

// History returns the caller's finished sessions, most recent first. limit <= 0 uses the server default.
func (c *BacktrackClient) History(ctx context.Context, limit int) ([]alerts.AlertView, error) {
	endpoint := EndpointHistory
	if limit > 0 {
		endpoint += "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	}

	var resp alerts.HistoryResponse
	if err := c.Get(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return resp.Alerts, nil
}

func friendPath(username string) string {
	return EndpointFriends + "/" + url.PathEscape(username)
}
