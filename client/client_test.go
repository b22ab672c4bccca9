package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func writeAuthBody(t *testing.T, w http.ResponseWriter, status int, access, refresh, userID string) {
	t.Helper()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"data": map[string]any{
			"user": map[string]string{
				"userId": userID,
				"email":  "ada@example.com",
			},
			"token": map[string]any{
				"token":        access,
				"refreshToken": refresh,
				"expiresAt":    time.Now().Add(15 * time.Minute),
				"userId":       userID,
			},
		},
	})
	if err != nil {
		t.Fatalf("encode auth body: %v", err)
	}
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   http.StatusText(status),
		"message": message,
	})
}

func newManager(t *testing.T, baseURL string, onExpired func()) *SessionManager {
	t.Helper()

	m, err := NewSessionManager(Config{
		BaseURL:          baseURL,
		OnSessionExpired: onExpired,
	})
	if err != nil {
		t.Fatalf("new session manager: %v", err)
	}
	return m
}

func TestLoginStoresSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/login" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		writeAuthBody(t, w, http.StatusOK, "access-1", "refresh-1", "u1")
	}))
	defer srv.Close()

	m := newManager(t, srv.URL, nil)

	user, err := m.Login(context.Background(), "ada@example.com", "Sup3rSecret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if user.UserID != "u1" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if !m.Authenticated() {
		t.Fatal("expected authenticated session")
	}
	if m.UserID() != "u1" {
		t.Fatalf("unexpected stored user id %q", m.UserID())
	}
}

func TestStoredProfileSurvivesStorageRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeAuthBody(t, w, http.StatusOK, "access-1", "refresh-1", "u1")
	}))
	defer srv.Close()

	storage := NewMemoryStorage()
	m, err := NewSessionManager(Config{BaseURL: srv.URL, Storage: storage})
	if err != nil {
		t.Fatalf("new session manager: %v", err)
	}
	if _, err := m.Login(context.Background(), "ada@example.com", "Sup3rSecret"); err != nil {
		t.Fatalf("login: %v", err)
	}

	raw, ok := storage.Get(KeyUserProfile)
	if !ok {
		t.Fatal("profile not persisted under the profile key")
	}
	var stored User
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		t.Fatalf("stored profile is not valid JSON: %v", err)
	}

	// A second manager over the same storage models a client restart with a
	// durable backend.
	restarted, err := NewSessionManager(Config{BaseURL: srv.URL, Storage: storage})
	if err != nil {
		t.Fatalf("new session manager: %v", err)
	}
	if !restarted.Authenticated() {
		t.Fatal("restarted manager lost the session")
	}
	user, ok := restarted.User()
	if !ok {
		t.Fatal("restarted manager lost the profile")
	}
	if user.UserID != "u1" || user.Email != "ada@example.com" {
		t.Fatalf("unexpected restored profile: %+v", user)
	}
}

func TestLoginFailureSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusUnauthorized, "Invalid email or password")
	}))
	defer srv.Close()

	m := newManager(t, srv.URL, nil)

	_, err := m.Login(context.Background(), "ada@example.com", "nope")
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %T (%v)", err, err)
	}
	if apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("unexpected status %d", apiErr.Status)
	}
	if m.Authenticated() {
		t.Fatal("failed login must not store a session")
	}
}

func TestDoAttachesBearer(t *testing.T) {
	var seenAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := newManager(t, srv.URL, nil)
	m.storage.Set(KeyAccessToken, "stored-access")
	m.storage.Set(KeyRefreshToken, "stored-refresh")

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/calendar/events", nil)
	resp, err := m.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()

	if seenAuth != "Bearer stored-access" {
		t.Fatalf("unexpected Authorization header %q", seenAuth)
	}
}

func TestDoWithoutSession(t *testing.T) {
	m := newManager(t, "http://localhost:0", nil)

	req, _ := http.NewRequest(http.MethodGet, "http://localhost:0/x", nil)
	if _, err := m.Do(req); err != ErrNotAuthenticated {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestDoRefreshesAndRetriesOnce(t *testing.T) {
	var refreshCalls atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		writeAuthBody(t, w, http.StatusOK, "access-new", "refresh-new", "u1")
	})
	mux.HandleFunc("/calendar/events", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer access-new" {
			w.WriteHeader(http.StatusOK)
			return
		}
		writeFailure(w, http.StatusUnauthorized, "Invalid token: token expired")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	m := newManager(t, srv.URL, nil)
	m.storage.Set(KeyAccessToken, "access-stale")
	m.storage.Set(KeyRefreshToken, "refresh-1")

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/calendar/events", nil)
	resp, err := m.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected retried 200, got %d", resp.StatusCode)
	}
	if got := refreshCalls.Load(); got != 1 {
		t.Fatalf("expected exactly one refresh call, got %d", got)
	}
	if token, _ := m.storage.Get(KeyAccessToken); token != "access-new" {
		t.Fatalf("storage not updated, got %q", token)
	}
}

func TestDoRetriesWithReplayableBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		writeAuthBody(t, w, http.StatusOK, "access-new", "refresh-new", "u1")
	})

	var bodies []string
	mux.HandleFunc("/calendar/events", func(w http.ResponseWriter, r *http.Request) {
		raw := make([]byte, 64)
		n, _ := r.Body.Read(raw)
		bodies = append(bodies, string(raw[:n]))
		if r.Header.Get("Authorization") == "Bearer access-new" {
			w.WriteHeader(http.StatusCreated)
			return
		}
		writeFailure(w, http.StatusUnauthorized, "Invalid token: token expired")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	m := newManager(t, srv.URL, nil)
	m.storage.Set(KeyAccessToken, "access-stale")
	m.storage.Set(KeyRefreshToken, "refresh-1")

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/calendar/events", strings.NewReader(`{"title":"standup"}`))
	resp, err := m.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if len(bodies) != 2 || bodies[0] != bodies[1] {
		t.Fatalf("body not replayed identically: %q", bodies)
	}
}

func TestDoSecond401IsReturned(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		writeAuthBody(t, w, http.StatusOK, "access-new", "refresh-new", "u1")
	})
	mux.HandleFunc("/calendar/events", func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusUnauthorized, "Invalid token")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	m := newManager(t, srv.URL, nil)
	m.storage.Set(KeyAccessToken, "access-stale")
	m.storage.Set(KeyRefreshToken, "refresh-1")

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/calendar/events", nil)
	resp, err := m.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected the second 401 to be surfaced, got %d", resp.StatusCode)
	}
}

func TestRefreshFailureClearsSessionAndNotifies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusUnauthorized, "Invalid refresh token")
	}))
	defer srv.Close()

	var notified atomic.Bool
	m := newManager(t, srv.URL, func() { notified.Store(true) })
	m.storage.Set(KeyAccessToken, "access-stale")
	m.storage.Set(KeyRefreshToken, "refresh-dead")
	m.storage.Set(KeyUserProfile, `{"userId":"u1"}`)

	_, err := m.Refresh(context.Background())
	if err == nil {
		t.Fatal("expected refresh failure")
	}
	if m.Authenticated() {
		t.Fatal("session must be cleared after failed refresh")
	}
	if _, ok := m.storage.Get(KeyUserProfile); ok {
		t.Fatal("user profile must be cleared after failed refresh")
	}
	if !notified.Load() {
		t.Fatal("expiry callback not invoked")
	}
}

func TestConcurrentRefreshesCoalesce(t *testing.T) {
	var refreshCalls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		time.Sleep(50 * time.Millisecond)
		writeAuthBody(t, w, http.StatusOK, "access-new", "refresh-new", "u1")
	}))
	defer srv.Close()

	m := newManager(t, srv.URL, nil)
	m.storage.Set(KeyAccessToken, "access-stale")
	m.storage.Set(KeyRefreshToken, "refresh-1")

	const workers = 8
	start := make(chan struct{})
	var wg sync.WaitGroup
	tokens := make([]string, workers)
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			tokens[i], errs[i] = m.Refresh(context.Background())
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		if tokens[i] != "access-new" {
			t.Fatalf("worker %d got token %q", i, tokens[i])
		}
	}
	if got := refreshCalls.Load(); got != 1 {
		t.Fatalf("expected one coalesced refresh call, got %d", got)
	}
}

func TestLogoutClearsEvenOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusInternalServerError, "Internal server error")
	}))
	defer srv.Close()

	m := newManager(t, srv.URL, nil)
	m.storage.Set(KeyAccessToken, "access-1")
	m.storage.Set(KeyRefreshToken, "refresh-1")
	m.storage.Set(KeyUserProfile, `{"userId":"u1"}`)

	if err := m.Logout(context.Background()); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if m.Authenticated() {
		t.Fatal("session must be cleared after logout")
	}
}
