package friends

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/mcdev12/backtrack/go/internal/models"
	"github.com/mcdev12/backtrack/go/internal/users"
)

type directory struct {
	byName map[string]*models.User
}

func newDirectory(names ...string) *directory {
	d := &directory{byName: make(map[string]*models.User)}
	for _, n := range names {
		d.byName[n] = &models.User{ID: uuid.New(), Username: n}
	}
	return d
}

func (d *directory) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	u, ok := d.byName[username]
	if !ok {
		return nil, users.ErrUserNotFound
	}
	return u, nil
}

func (d *directory) Authenticate(_ context.Context, token string) (*models.User, error) {
	// Tokens are "<username>-token"
	u, ok := d.byName[strings.TrimSuffix(token, "-token")]
	if !ok || !strings.HasSuffix(token, "-token") {
		return nil, users.ErrInvalidToken
	}
	return u, nil
}

type fakeRepository struct {
	mu    sync.Mutex
	dir   *directory
	lists map[uuid.UUID][]models.Friend
}

func newFakeRepository(dir *directory) *fakeRepository {
	return &fakeRepository{dir: dir, lists: make(map[uuid.UUID][]models.Friend)}
}

func (f *fakeRepository) ListFriends(_ context.Context, ownerID uuid.UUID) ([]models.Friend, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]models.Friend(nil), f.lists[ownerID]...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Favorite != out[j].Favorite {
			return out[i].Favorite
		}
		return out[i].Username < out[j].Username
	})
	return out, nil
}

func (f *fakeRepository) AddFriend(_ context.Context, ownerID uuid.UUID, friend *models.User) (*models.Friend, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.lists[ownerID] {
		if existing.UserID == friend.ID {
			return nil, ErrAlreadyFriends
		}
	}
	added := models.Friend{ID: uuid.New(), UserID: friend.ID, Username: friend.Username, CreatedAt: time.Now()}
	f.lists[ownerID] = append(f.lists[ownerID], added)
	return &added, nil
}

func (f *fakeRepository) RemoveFriend(_ context.Context, ownerID uuid.UUID, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.lists[ownerID]
	for i, existing := range list {
		if existing.Username == username {
			f.lists[ownerID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return ErrNotFriends
}

func (f *fakeRepository) ToggleFavorite(_ context.Context, ownerID uuid.UUID, username string) (*models.Friend, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.lists[ownerID] {
		if f.lists[ownerID][i].Username == username {
			f.lists[ownerID][i].Favorite = !f.lists[ownerID][i].Favorite
			toggled := f.lists[ownerID][i]
			return &toggled, nil
		}
	}
	return nil, ErrNotFriends
}

func (f *fakeRepository) ListFriendUsernames(_ context.Context, owner string) ([]string, error) {
	u, ok := f.dir.byName[owner]
	if !ok {
		return nil, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for _, fr := range f.lists[u.ID] {
		names = append(names, fr.Username)
	}
	return names, nil
}

func TestAddFriend(t *testing.T) {
	dir := newDirectory("alice", "bob")
	app := NewApp(newFakeRepository(dir), dir)
	alice := dir.byName["alice"]
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		wantErr  error
	}{
		{name: "registered user", username: " Bob "},
		{name: "duplicate", username: "bob", wantErr: ErrAlreadyFriends},
		{name: "self", username: "ALICE", wantErr: ErrSelfFriend},
		{name: "unknown", username: "mallory", wantErr: ErrUnknownUser},
		{name: "empty", username: "  ", wantErr: ErrUnknownUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			friend, err := app.AddFriend(ctx, alice, tt.username)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("AddFriend() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("AddFriend() error: %v", err)
			}
			if friend.Username != "bob" {
				t.Errorf("AddFriend() username = %q, want %q", friend.Username, "bob")
			}
		})
	}
}

func TestValidateWatchers(t *testing.T) {
	dir := newDirectory("alice", "bob", "carol", "dave")
	app := NewApp(newFakeRepository(dir), dir)
	ctx := context.Background()
	alice := dir.byName["alice"]

	for _, name := range []string{"bob", "carol"} {
		if _, err := app.AddFriend(ctx, alice, name); err != nil {
			t.Fatalf("AddFriend(%s) error: %v", name, err)
		}
	}

	if err := app.ValidateWatchers(ctx, "alice", []string{"bob", "Carol"}); err != nil {
		t.Errorf("ValidateWatchers() error: %v", err)
	}

	err := app.ValidateWatchers(ctx, "alice", []string{"bob", "dave"})
	if !errors.Is(err, ErrNotFriends) {
		t.Fatalf("ValidateWatchers() error = %v, want ErrNotFriends", err)
	}
	if !strings.Contains(err.Error(), "dave") {
		t.Errorf("error %q does not name the stranger", err)
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	dir := newDirectory("alice", "bob", "carol")
	mux := http.NewServeMux()
	NewService(NewApp(newFakeRepository(dir), dir), dir).RegisterRoutes(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func do(t *testing.T, method, url, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest() error: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestService_FriendsLifecycle(t *testing.T) {
	server := newTestServer(t)
	const token = "alice-token"

	steps := []struct {
		method, path, body string
		want               int
	}{
		{http.MethodPost, "/friends", `{"username":"bob"}`, http.StatusCreated},
		{http.MethodPost, "/friends", `{"username":"carol"}`, http.StatusCreated},
		{http.MethodPost, "/friends", `{"username":"bob"}`, http.StatusConflict},
		{http.MethodPost, "/friends", `{"username":"alice"}`, http.StatusBadRequest},
		{http.MethodPost, "/friends", `{"username":"nobody"}`, http.StatusNotFound},
		{http.MethodPut, "/friends/carol/favorite", "", http.StatusOK},
		{http.MethodDelete, "/friends/bob", "", http.StatusNoContent},
		{http.MethodDelete, "/friends/bob", "", http.StatusNotFound},
	}
	for _, step := range steps {
		resp := do(t, step.method, server.URL+step.path, token, step.body)
		if resp.StatusCode != step.want {
			t.Errorf("%s %s status = %d, want %d", step.method, step.path, resp.StatusCode, step.want)
		}
	}

	resp := do(t, http.MethodGet, server.URL+"/friends", token, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /friends status = %d", resp.StatusCode)
	}
	var got ListFriendsResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	want := ListFriendsResponse{Friends: []FriendView{{Username: "carol", Favorite: true}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("friends mismatch (-want +got):\n%s", diff)
	}
}

func TestService_RequiresAuth(t *testing.T) {
	server := newTestServer(t)

	if resp := do(t, http.MethodGet, server.URL+"/friends", "", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
	if resp := do(t, http.MethodGet, server.URL+"/friends", "mallory-token", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}
