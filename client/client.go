package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrNotAuthenticated is an exported constant or variable used by the authentication engine.
var ErrNotAuthenticated = errors.New("not authenticated")

// ErrSessionExpired is an exported constant or variable used by the authentication engine.
var ErrSessionExpired = errors.New("session expired")

// APIError defines a public type used by authkit APIs.
//
// APIError carries the status and message of a failed envelope response.
type APIError struct {
	Status  int
	Message string
}

// Error describes the error operation and its observable behavior.
func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status %d: %s", e.Status, e.Message)
}

// User defines a public type used by authkit APIs.
type User struct {
	UserID    string `json:"userId"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Timezone  string `json:"timezone"`
}

// RegisterPayload defines a public type used by authkit APIs.
type RegisterPayload struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Timezone  string `json:"timezone,omitempty"`
}

type tokenPair struct {
	Token        string    `json:"token"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
	UserID       string    `json:"userId"`
}

type authPayload struct {
	User  User      `json:"user"`
	Token tokenPair `json:"token"`
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

// Config defines a public type used by authkit APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	// BaseURL of the auth server, without trailing slash.
	BaseURL string

	// HTTPClient defaults to one with a 10 second timeout.
	HTTPClient *http.Client

	// Storage defaults to in-memory. Durable implementations keep the
	// session across restarts.
	Storage Storage

	// OnSessionExpired runs after the stored session is cleared because a
	// refresh attempt failed. Useful for redirecting to a login screen.
	OnSessionExpired func()
}

// SessionManager defines a public type used by authkit APIs.
//
// SessionManager owns the client side of the token lifecycle: it attaches
// the access token to outgoing requests, refreshes behind the scenes on 401,
// and retries the original request exactly once. Concurrent 401s share a
// single refresh flight.
type SessionManager struct {
	baseURL    string
	httpClient *http.Client
	storage    Storage
	onExpired  func()

	refreshGroup singleflight.Group
}

// NewSessionManager describes the newsessionmanager operation and its observable behavior.
//
// NewSessionManager may return an error when input validation, dependency calls, or security checks fail.
func NewSessionManager(cfg Config) (*SessionManager, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base URL required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	storage := cfg.Storage
	if storage == nil {
		storage = NewMemoryStorage()
	}

	return &SessionManager{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		storage:    storage,
		onExpired:  cfg.OnSessionExpired,
	}, nil
}

// Authenticated reports whether a session is currently stored. It does not
// verify the token against the server.
func (m *SessionManager) Authenticated() bool {
	_, ok := m.storage.Get(KeyAccessToken)
	return ok
}

// UserID describes the userid operation and its observable behavior.
func (m *SessionManager) UserID() string {
	user, ok := m.User()
	if !ok {
		return ""
	}
	return user.UserID
}

// User returns the profile stored with the session. It reports false when no
// session is stored or the stored profile cannot be decoded.
func (m *SessionManager) User() (*User, bool) {
	raw, ok := m.storage.Get(KeyUserProfile)
	if !ok {
		return nil, false
	}
	var user User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return nil, false
	}
	return &user, true
}

// Register creates an account and stores the returned session.
func (m *SessionManager) Register(ctx context.Context, payload RegisterPayload) (*User, error) {
	return m.authenticate(ctx, "/auth/register", payload, http.StatusCreated)
}

// Login verifies credentials and stores the returned session.
func (m *SessionManager) Login(ctx context.Context, email, password string) (*User, error) {
	return m.authenticate(ctx, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, http.StatusOK)
}

func (m *SessionManager) authenticate(ctx context.Context, path string, body any, wantStatus int) (*User, error) {
	resp, err := m.postJSON(ctx, path, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	env, err := decodeEnvelope(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != wantStatus {
		return nil, &APIError{Status: resp.StatusCode, Message: env.Message}
	}

	var payload authPayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return nil, fmt.Errorf("decode auth payload: %w", err)
	}

	m.storeSession(payload.User, payload.Token)
	return &payload.User, nil
}

// Refresh exchanges the stored refresh token for a new pair and returns the
// new access token. Concurrent callers are coalesced into one server call.
// On failure the stored session is cleared and the expiry callback fires.
func (m *SessionManager) Refresh(ctx context.Context) (string, error) {
	result, err, _ := m.refreshGroup.Do("refresh", func() (any, error) {
		refreshToken, ok := m.storage.Get(KeyRefreshToken)
		if !ok {
			return nil, ErrNotAuthenticated
		}

		resp, err := m.postJSON(ctx, "/auth/refresh", map[string]string{
			"refreshToken": refreshToken,
		})
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		env, err := decodeEnvelope(resp)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			m.Clear()
			if m.onExpired != nil {
				m.onExpired()
			}
			return nil, fmt.Errorf("%w: %s", ErrSessionExpired, env.Message)
		}

		var payload authPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, fmt.Errorf("decode auth payload: %w", err)
		}

		m.storeSession(payload.User, payload.Token)
		return payload.Token.Token, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// Logout tells the server to end the session, then clears local state. Local
// state is cleared even when the server call fails; a dead session on the
// client must not survive a flaky network.
func (m *SessionManager) Logout(ctx context.Context) error {
	accessToken, ok := m.storage.Get(KeyAccessToken)
	defer m.Clear()
	if !ok {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, m.baseURL+"/auth/logout", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}

// Clear drops the stored session without contacting the server.
func (m *SessionManager) Clear() {
	m.storage.Delete(KeyAccessToken)
	m.storage.Delete(KeyRefreshToken)
	m.storage.Delete(KeyUserProfile)
}

// Do sends an authenticated request. On a 401 it refreshes the session and
// retries the original request exactly once with the new token; a second 401
// is returned as-is. Requests with a consumed, non-replayable body are never
// retried.
func (m *SessionManager) Do(req *http.Request) (*http.Response, error) {
	accessToken, ok := m.storage.Get(KeyAccessToken)
	if !ok {
		return nil, ErrNotAuthenticated
	}

	attempt := req.Clone(req.Context())
	attempt.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := m.httpClient.Do(attempt)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	if req.Body != nil && req.GetBody == nil {
		return resp, nil
	}

	newToken, err := m.Refresh(req.Context())
	if err != nil {
		return resp, nil
	}

	resp.Body.Close()

	retry := req.Clone(req.Context())
	retry.Header.Set("Authorization", "Bearer "+newToken)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		retry.Body = body
	}

	return m.httpClient.Do(retry)
}

func (m *SessionManager) storeSession(user User, pair tokenPair) {
	m.storage.Set(KeyAccessToken, pair.Token)
	m.storage.Set(KeyRefreshToken, pair.RefreshToken)
	if raw, err := json.Marshal(user); err == nil {
		m.storage.Set(KeyUserProfile, string(raw))
	}
}

func (m *SessionManager) postJSON(ctx context.Context, path string, body any) (*http.Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	return m.httpClient.Do(req)
}

func decodeEnvelope(resp *http.Response) (envelope, error) {
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}
