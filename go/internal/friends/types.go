package friends

import "errors"

var (
	// ErrAlreadyFriends is returned when adding someone already on the list
	ErrAlreadyFriends = errors.New("already on friends list")
	// ErrNotFriends is returned when the named user is not on the owner's list
	ErrNotFriends = errors.New("not on friends list")
	// ErrSelfFriend is returned when a user tries to add themselves
	ErrSelfFriend = errors.New("cannot add yourself as a friend")
	// ErrUnknownUser is returned when the named user is not registered
	ErrUnknownUser = errors.New("no such user")
)

// AddFriendRequest represents the body of POST /friends
type AddFriendRequest struct {
	Username string `json:"username"`
}

// ListFriendsResponse represents the body of GET /friends
type ListFriendsResponse struct {
	Friends []FriendView `json:"friends"`
}

// FriendView is a friend as the API presents it
type FriendView struct {
	Username string `json:"username"`
	Favorite bool   `json:"favorite"`
}
