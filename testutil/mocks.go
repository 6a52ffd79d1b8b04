package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// MockTwitchServer stands in for both id.twitch.tv and the Helix API. Route
// real clients to it with Client.
type MockTwitchServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockTwitchServer creates a new mock Twitch API server
func NewMockTwitchServer(t *testing.T) *MockTwitchServer {
	t.Helper()
	m := &MockTwitchServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := m.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// Client returns an HTTP client that sends every request to the mock,
// whatever host the caller targets.
func (m *MockTwitchServer) Client() *http.Client {
	return &http.Client{Transport: rewriteTransport{host: strings.TrimPrefix(m.URL, "http://")}}
}

type rewriteTransport struct{ host string }

func (t rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = "http"
	req.URL.Host = t.host
	return http.DefaultTransport.RoundTrip(req)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test mock response
}

// MockUserResponse answers /helix/users with a single user.
func (m *MockTwitchServer) MockUserResponse(userID, login string) {
	m.Handlers["/helix/users"] = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"data": []map[string]string{{"id": userID, "login": login, "display_name": login}},
		})
	}
}

// MockOAuthTokenResponse answers the token endpoint for every grant type.
// code, when set, is the only authorization code accepted.
func (m *MockTwitchServer) MockOAuthTokenResponse(code, accessToken, refreshToken string, expiresIn int, scopes ...string) {
	m.Handlers["/oauth2/token"] = func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("grant_type") == "authorization_code" && code != "" && r.FormValue("code") != code {
			http.Error(w, `{"message":"Invalid authorization code"}`, http.StatusBadRequest)
			return
		}
		resp := map[string]any{
			"access_token": accessToken,
			"expires_in":   expiresIn,
			"token_type":   "bearer",
		}
		if refreshToken != "" {
			resp["refresh_token"] = refreshToken
		}
		if len(scopes) > 0 {
			resp["scope"] = scopes
		}
		writeJSON(w, resp)
	}
}
