package friends

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/backtrack/go/internal/models"
)

// FriendsRepository defines what the app layer needs from the repository
type FriendsRepository interface {
	ListFriends(ctx context.Context, ownerID uuid.UUID) ([]models.Friend, error)
	AddFriend(ctx context.Context, ownerID uuid.UUID, friend *models.User) (*models.Friend, error)
	RemoveFriend(ctx context.Context, ownerID uuid.UUID, username string) error
	ToggleFavorite(ctx context.Context, ownerID uuid.UUID, username string) (*models.Friend, error)
	ListFriendUsernames(ctx context.Context, owner string) ([]string, error)
}

// UserLookup resolves usernames to registered users
type UserLookup interface {
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

// App handles friends list business logic
type App struct {
	repo  FriendsRepository
	users UserLookup
}

// NewApp creates a new friends App
func NewApp(repo FriendsRepository, users UserLookup) *App {
	return &App{
		repo:  repo,
		users: users,
	}
}

// List returns the owner's friends, favorites first
func (a *App) List(ctx context.Context, owner *models.User) ([]models.Friend, error) {
	friends, err := a.repo.ListFriends(ctx, owner.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list friends: %w", err)
	}
	return friends, nil
}

// AddFriend puts a registered user on the owner's list
func (a *App) AddFriend(ctx context.Context, owner *models.User, username string) (*models.Friend, error) {
	username = normalize(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrUnknownUser)
	}
	if username == normalize(owner.Username) {
		return nil, ErrSelfFriend
	}

	friend, err := a.users.GetUserByUsername(ctx, username)
	if err != nil {
		log.Debug().Err(err).Str("username", username).Msg("friend lookup failed")
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, username)
	}

	added, err := a.repo.AddFriend(ctx, owner.ID, friend)
	if err != nil {
		if errors.Is(err, ErrAlreadyFriends) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to add friend: %w", err)
	}

	log.Info().
		Str("owner", owner.Username).
		Str("friend", username).
		Msg("friend added")
	return added, nil
}

// RemoveFriend takes a username off the owner's list
func (a *App) RemoveFriend(ctx context.Context, owner *models.User, username string) error {
	if err := a.repo.RemoveFriend(ctx, owner.ID, normalize(username)); err != nil {
		if errors.Is(err, ErrNotFriends) {
			return err
		}
		return fmt.Errorf("failed to remove friend: %w", err)
	}

	log.Info().
		Str("owner", owner.Username).
		Str("friend", normalize(username)).
		Msg("friend removed")
	return nil
}

// ToggleFavorite flips the favorite flag of a friend
func (a *App) ToggleFavorite(ctx context.Context, owner *models.User, username string) (*models.Friend, error) {
	friend, err := a.repo.ToggleFavorite(ctx, owner.ID, normalize(username))
	if err != nil {
		if errors.Is(err, ErrNotFriends) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to toggle favorite: %w", err)
	}
	return friend, nil
}

// ValidateWatchers checks that every watcher is on the owner's friends list
func (a *App) ValidateWatchers(ctx context.Context, owner string, watchers []string) error {
	usernames, err := a.repo.ListFriendUsernames(ctx, normalize(owner))
	if err != nil {
		return fmt.Errorf("failed to load friends: %w", err)
	}

	known := make(map[string]bool, len(usernames))
	for _, u := range usernames {
		known[normalize(u)] = true
	}

	var missing []string
	for _, w := range watchers {
		if !known[normalize(w)] {
			missing = append(missing, w)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrNotFriends, strings.Join(missing, ", "))
	}
	return nil
}

// Usernames are stored lowercased
func normalize(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
