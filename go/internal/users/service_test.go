package users

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	app, _, _ := newTestApp()
	mux := http.NewServeMux()
	NewService(app).RegisterRoutes(mux)
	mux.Handle("GET /me", RequireAuth(app, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok {
			t.Error("UserFromContext() found no user behind RequireAuth")
			return
		}
		w.Write([]byte(user.Username))
	})))
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func postJSON(t *testing.T, url, body, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest() error: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s error: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func getWithToken(t *testing.T, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("NewRequest() error: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s error: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestService_RegisterLoginLogout(t *testing.T) {
	server := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/register", `{"username":"alice","email":"alice@example.com","password":"password1"}`, "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	resp = postJSON(t, server.URL+"/api/register", `{"username":"alice","email":"alice@example.com","password":"password1"}`, "")
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate register status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}

	resp = postJSON(t, server.URL+"/api/login", `{"username":"alice","password":"wrong-password"}`, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad login status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}

	resp = postJSON(t, server.URL+"/api/login", `{"username":"alice","password":"password1"}`, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	var auth AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		t.Fatalf("Decode() error: %v", err)
	}

	if resp := getWithToken(t, server.URL+"/me", auth.Token); resp.StatusCode != http.StatusOK {
		t.Errorf("authenticated GET status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	if resp := postJSON(t, server.URL+"/api/logout", "", auth.Token); resp.StatusCode != http.StatusNoContent {
		t.Errorf("logout status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
	if resp := getWithToken(t, server.URL+"/me", auth.Token); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("GET after logout status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

func TestService_RejectsBadBodies(t *testing.T) {
	server := newTestServer(t)

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{name: "malformed json", path: "/api/register", body: `{`, want: http.StatusBadRequest},
		{name: "unknown field", path: "/api/login", body: `{"username":"a","password":"b","admin":true}`, want: http.StatusBadRequest},
		{name: "invalid username", path: "/api/register", body: `{"username":"a b","email":"a@example.com","password":"password1"}`, want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, server.URL+tt.path, tt.body, "")
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestRequireAuth_MissingToken(t *testing.T) {
	server := newTestServer(t)

	if resp := getWithToken(t, server.URL+"/me", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
	if resp := getWithToken(t, server.URL+"/me", "bogus"); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		query  string
		want   string
	}{
		{name: "header", header: "Bearer abc", want: "abc"},
		{name: "lowercase scheme", header: "bearer abc", want: "abc"},
		{name: "query", query: "abc", want: "abc"},
		{name: "header wins", header: "Bearer abc", query: "xyz", want: "abc"},
		{name: "other scheme", header: "Basic abc", want: ""},
		{name: "nothing", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/ws/checkin"
			if tt.query != "" {
				target += "?token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if got := BearerToken(req); got != tt.want {
				t.Errorf("BearerToken() = %q, want %q", got, tt.want)
			}
		})
	}
}
