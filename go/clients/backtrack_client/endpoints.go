package backtrack_client

import (
	"fmt"
	"net/url"
)

const (
	// Base URL
	DefaultBaseURL = "http://localhost:8080"

	// API Endpoints
	EndpointRegister = "/api/register"
	EndpointLogin    = "/api/login"
	EndpointLogout   = "/api/logout"
	EndpointHistory  = "/api/history"
	EndpointFriends  = "/friends"

	// Push channel
	EndpointCheckIn = "/ws/checkin"
)

// CheckInURL turns the REST base URL into the push channel URL
func CheckInURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = EndpointCheckIn
	u.RawQuery = ""
	return u.String(), nil
}
