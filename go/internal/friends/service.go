package friends

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/backtrack/go/internal/httpjson"
	"github.com/mcdev12/backtrack/go/internal/models"
	"github.com/mcdev12/backtrack/go/internal/users"
)

// Service exposes the friends list over HTTP
type Service struct {
	app  *App
	auth users.Authenticator
}

// NewService creates a new friends service
func NewService(app *App, auth users.Authenticator) *Service {
	return &Service{app: app, auth: auth}
}

// RegisterRoutes registers the friends routes with an HTTP mux
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("GET /friends", users.RequireAuth(s.auth, http.HandlerFunc(s.HandleList)))
	mux.Handle("POST /friends", users.RequireAuth(s.auth, http.HandlerFunc(s.HandleAdd)))
	mux.Handle("DELETE /friends/{name}", users.RequireAuth(s.auth, http.HandlerFunc(s.HandleRemove)))
	mux.Handle("PUT /friends/{name}/favorite", users.RequireAuth(s.auth, http.HandlerFunc(s.HandleToggleFavorite)))
}

// HandleList handles GET /friends
func (s *Service) HandleList(w http.ResponseWriter, r *http.Request) {
	owner, _ := users.UserFromContext(r.Context())

	friends, err := s.app.List(r.Context(), owner)
	if err != nil {
		writeAppError(w, err)
		return
	}

	resp := ListFriendsResponse{Friends: make([]FriendView, 0, len(friends))}
	for _, f := range friends {
		resp.Friends = append(resp.Friends, toView(f))
	}
	httpjson.Write(w, http.StatusOK, resp)
}

// HandleAdd handles POST /friends
func (s *Service) HandleAdd(w http.ResponseWriter, r *http.Request) {
	owner, _ := users.UserFromContext(r.Context())

	var req AddFriendRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	friend, err := s.app.AddFriend(r.Context(), owner, req.Username)
	if err != nil {
		writeAppError(w, err)
		return
	}
	httpjson.Write(w, http.StatusCreated, toView(*friend))
}

// HandleRemove handles DELETE /friends/{name}
func (s *Service) HandleRemove(w http.ResponseWriter, r *http.Request) {
	owner, _ := users.UserFromContext(r.Context())

	if err := s.app.RemoveFriend(r.Context(), owner, r.PathValue("name")); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleToggleFavorite handles PUT /friends/{name}/favorite
func (s *Service) HandleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	owner, _ := users.UserFromContext(r.Context())

	friend, err := s.app.ToggleFavorite(r.Context(), owner, r.PathValue("name"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, toView(*friend))
}

func toView(f models.Friend) FriendView {
	return FriendView{Username: f.Username, Favorite: f.Favorite}
}

func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrSelfFriend):
		httpjson.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrUnknownUser), errors.Is(err, ErrNotFriends):
		httpjson.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrAlreadyFriends):
		httpjson.Error(w, http.StatusConflict, err.Error())
	default:
		log.Error().Err(err).Msg("friends request failed")
		httpjson.Error(w, http.StatusInternalServerError, "internal error")
	}
}
