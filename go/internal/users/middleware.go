package users

import (
	"context"
	"net/http"
	"strings"

	"github.com/mcdev12/backtrack/go/internal/httpjson"
	"github.com/mcdev12/backtrack/go/internal/models"
)

// Authenticator resolves a bearer token to a user
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

type contextKey struct{}

// WithUser returns a copy of ctx carrying user
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

// UserFromContext returns the user set by RequireAuth
func UserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(contextKey{}).(*models.User)
	return user, ok && user != nil
}

// RequireAuth rejects requests without a valid bearer token and stores the user in the request context
func RequireAuth(auth Authenticator, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := BearerToken(r)
		if token == "" {
			httpjson.Error(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		user, err := auth.Authenticate(r.Context(), token)
		if err != nil {
			httpjson.Error(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// BearerToken extracts the token from "Authorization: Bearer <token>" or the token query parameter.
// The query parameter exists for WebSocket clients that cannot set handshake headers.
func BearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
