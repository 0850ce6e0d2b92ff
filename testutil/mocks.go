// Package testutil holds test doubles shared across package tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// MockTwitchServer creates a test server that mocks the Twitch token endpoint
// and Helix API responses. It records the bearer token of every Helix call.
type MockTwitchServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc

	mu     sync.Mutex
	hits   map[string]int
	bearer []string
}

// NewMockTwitchServer creates a new mock Twitch API server
func NewMockTwitchServer(t *testing.T) *MockTwitchServer {
	t.Helper()
	m := &MockTwitchServer{
		Handlers: make(map[string]http.HandlerFunc),
		hits:     make(map[string]int),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		m.mu.Lock()
		m.hits[key]++
		if strings.HasPrefix(key, "/helix/") {
			m.bearer = append(m.bearer, strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		}
		handler, ok := m.Handlers[key]
		m.mu.Unlock()
		if ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// Handle installs handler for path.
func (m *MockTwitchServer) Handle(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Handlers[path] = handler
}

// Hits returns how many requests reached path.
func (m *MockTwitchServer) Hits(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits[path]
}

// Bearers returns the access tokens presented to Helix, in request order.
func (m *MockTwitchServer) Bearers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.bearer...)
}

// TokenURL is the mock client-credentials endpoint.
func (m *MockTwitchServer) TokenURL() string { return m.URL + "/oauth2/token" }

// HelixURL is the mock Helix root.
func (m *MockTwitchServer) HelixURL() string { return m.URL + "/helix" }

// MockUserResponse adds a handler for /helix/users endpoint
func (m *MockTwitchServer) MockUserResponse(userID, login, profileImage string) {
	m.Handle("/helix/users", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"data": []map[string]string{
				{"id": userID, "login": login, "display_name": login, "profile_image_url": profileImage},
			},
		})
	})
}

// MockStreamsResponse adds a handler for /helix/streams endpoint
func (m *MockTwitchServer) MockStreamsResponse(streams []map[string]interface{}) {
	m.Handle("/helix/streams", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"data": streams})
	})
}

// MockOAuthTokenResponse answers the token endpoint with tokens[0], tokens[1], ...
// repeating the last one once the list is exhausted.
func (m *MockTwitchServer) MockOAuthTokenResponse(tokens ...string) {
	var (
		mu sync.Mutex
		n  int
	)
	m.Handle("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "client_credentials" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
			return
		}
		mu.Lock()
		i := n
		if i >= len(tokens) {
			i = len(tokens) - 1
		}
		n++
		mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"access_token": tokens[i],
			"expires_in":   5000000,
			"token_type":   "bearer",
		})
	})
}

// LiveStream returns a Helix stream payload with sensible defaults.
func LiveStream(id, login, title string) map[string]interface{} {
	return map[string]interface{}{
		"id":            id,
		"user_id":       "1001",
		"user_login":    login,
		"user_name":     strings.ToUpper(login[:1]) + login[1:],
		"game_name":     "Just Chatting",
		"title":         title,
		"viewer_count":  42,
		"started_at":    "2024-10-15T14:30:00Z",
		"thumbnail_url": "https://static-cdn.jtvnw.net/previews-ttv/live_user_" + login + "-{width}x{height}.jpg",
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test mock response
}
