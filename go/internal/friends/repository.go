package friends

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mcdev12/backtrack/go/internal/models"
)

// Querier defines what the repository needs from the database layer
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository implements friends list data access on Postgres
type Repository struct {
	db Querier
}

// NewRepository creates a new friends repository
func NewRepository(db Querier) *Repository {
	return &Repository{db: db}
}

const listFriends = `
SELECT f.id, f.friend_id, u.username, f.favorite, f.created_at
FROM friends f
JOIN users u ON u.id = f.friend_id
WHERE f.user_id = $1
ORDER BY f.favorite DESC, u.username`

// ListFriends returns the owner's friends, favorites first
func (r *Repository) ListFriends(ctx context.Context, ownerID uuid.UUID) ([]models.Friend, error) {
	rows, err := r.db.Query(ctx, listFriends, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list friends: %w", err)
	}

	friends, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Friend, error) {
		var f models.Friend
		err := row.Scan(&f.ID, &f.UserID, &f.Username, &f.Favorite, &f.CreatedAt)
		return f, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan friends: %w", err)
	}
	return friends, nil
}

const addFriend = `
INSERT INTO friends (id, user_id, friend_id)
VALUES ($1, $2, $3)
RETURNING id, friend_id, favorite, created_at`

// AddFriend puts friend on the owner's list
func (r *Repository) AddFriend(ctx context.Context, ownerID uuid.UUID, friend *models.User) (*models.Friend, error) {
	f := models.Friend{Username: friend.Username}
	err := r.db.QueryRow(ctx, addFriend, uuid.New(), ownerID, friend.ID).
		Scan(&f.ID, &f.UserID, &f.Favorite, &f.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrAlreadyFriends
		}
		return nil, fmt.Errorf("failed to add friend: %w", err)
	}
	return &f, nil
}

const removeFriend = `
DELETE FROM friends f
USING users u
WHERE f.friend_id = u.id AND f.user_id = $1 AND u.username = $2`

// RemoveFriend takes a username off the owner's list
func (r *Repository) RemoveFriend(ctx context.Context, ownerID uuid.UUID, username string) error {
	tag, err := r.db.Exec(ctx, removeFriend, ownerID, username)
	if err != nil {
		return fmt.Errorf("failed to remove friend: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFriends
	}
	return nil
}

const toggleFavorite = `
UPDATE friends f
SET favorite = NOT f.favorite
FROM users u
WHERE f.friend_id = u.id AND f.user_id = $1 AND u.username = $2
RETURNING f.id, f.friend_id, u.username, f.favorite, f.created_at`

// ToggleFavorite flips the favorite flag of a friend
func (r *Repository) ToggleFavorite(ctx context.Context, ownerID uuid.UUID, username string) (*models.Friend, error) {
	var f models.Friend
	err := r.db.QueryRow(ctx, toggleFavorite, ownerID, username).
		Scan(&f.ID, &f.UserID, &f.Username, &f.Favorite, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFriends
		}
		return nil, fmt.Errorf("failed to toggle favorite: %w", err)
	}
	return &f, nil
}

const listFriendUsernames = `
SELECT u.username
FROM friends f
JOIN users o ON o.id = f.user_id
JOIN users u ON u.id = f.friend_id
WHERE o.username = $1`

// ListFriendUsernames returns the usernames on owner's list
func (r *Repository) ListFriendUsernames(ctx context.Context, owner string) ([]string, error) {
	rows, err := r.db.Query(ctx, listFriendUsernames, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list friend usernames: %w", err)
	}
	usernames, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan friend usernames: %w", err)
	}
	return usernames, nil
}
