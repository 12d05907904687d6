package alerts

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/backtrack/go/internal/httpjson"
	"github.com/mcdev12/backtrack/go/internal/models"
	"github.com/mcdev12/backtrack/go/internal/users"
)

// Service exposes alert history over HTTP
type Service struct {
	app  *App
	auth users.Authenticator
}

// NewService creates a new alerts service
func NewService(app *App, auth users.Authenticator) *Service {
	return &Service{app: app, auth: auth}
}

// RegisterRoutes registers the history route with an HTTP mux
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("GET /api/history", users.RequireAuth(s.auth, http.HandlerFunc(s.HandleHistory)))
}

// HandleHistory handles GET /api/history?limit=N
func (s *Service) HandleHistory(w http.ResponseWriter, r *http.Request) {
	owner, _ := users.UserFromContext(r.Context())

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			httpjson.Error(w, http.StatusBadRequest, ErrInvalidLimit.Error())
			return
		}
		limit = n
	}

	alerts, err := s.app.ListHistory(r.Context(), owner.Username, limit)
	if err != nil {
		if errors.Is(err, ErrInvalidLimit) {
			httpjson.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Error().Err(err).Str("owner", owner.Username).Msg("history request failed")
		httpjson.Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := HistoryResponse{Alerts: make([]AlertView, 0, len(alerts))}
	for _, a := range alerts {
		resp.Alerts = append(resp.Alerts, toView(a))
	}
	httpjson.Write(w, http.StatusOK, resp)
}

func toView(a models.Alert) AlertView {
	view := AlertView{
		ID:           a.ID,
		Destination:  a.Destination,
		StartTime:    a.StartTime,
		EndTime:      a.EndTime,
		TotalSeconds: int(a.TotalTime / time.Second),
		Status:       string(a.Status),
		Message:      a.Message,
		Recipients:   make([]RecipientView, 0, len(a.Recipients)),
	}
	for _, r := range a.Recipients {
		view.Recipients = append(view.Recipients, RecipientView{
			Username: r.FriendUsername,
			Status:   string(r.NotifiedStatus),
		})
	}
	return view
}
