package users

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/backtrack/go/internal/httpjson"
)

// Service exposes account operations over HTTP
type Service struct {
	app *App
}

// NewService creates a new users service
func NewService(app *App) *Service {
	return &Service{app: app}
}

// RegisterRoutes registers the account routes with an HTTP mux
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/register", s.HandleRegister)
	mux.HandleFunc("POST /api/login", s.HandleLogin)
	mux.Handle("POST /api/logout", RequireAuth(s.app, http.HandlerFunc(s.HandleLogout)))
}

// HandleRegister handles POST /api/register
func (s *Service) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := s.app.Register(r.Context(), req)
	if err != nil {
		writeAppError(w, err)
		return
	}
	httpjson.Write(w, http.StatusCreated, resp)
}

// HandleLogin handles POST /api/login
func (s *Service) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := s.app.Login(r.Context(), req)
	if err != nil {
		writeAppError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, resp)
}

// HandleLogout handles POST /api/logout
func (s *Service) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Logout(r.Context(), BearerToken(r)); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		httpjson.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrUsernameTaken):
		httpjson.Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrInvalidToken):
		httpjson.Error(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrUserNotFound):
		httpjson.Error(w, http.StatusNotFound, err.Error())
	default:
		log.Error().Err(err).Msg("users request failed")
		httpjson.Error(w, http.StatusInternalServerError, "internal error")
	}
}
