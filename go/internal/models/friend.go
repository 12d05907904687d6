package models

import (
	"time"

	"github.com/google/uuid"
)

// Friend is one edge of a user's friends list, seen from the owner's side
type Friend struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Username  string    `json:"username"`
	Favorite  bool      `json:"favorite"`
	CreatedAt time.Time `json:"created_at"`
}
