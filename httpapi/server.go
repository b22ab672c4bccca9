package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	authkit "github.com/planora/authkit"
	"github.com/planora/authkit/middleware"
)

// maxBodyBytes bounds request bodies; auth payloads are tiny.
const maxBodyBytes = 1 << 16

// Server defines a public type used by authkit APIs.
//
// Server instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Server struct {
	service *authkit.Service
	logger  *slog.Logger
	devMode bool
}

// NewServer describes the newserver operation and its observable behavior.
//
// NewServer does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewServer(service *authkit.Service, logger *slog.Logger, devMode bool) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		service: service,
		logger:  logger,
		devMode: devMode,
	}
}

// Routes builds the auth route tree. Logout and profile reads sit behind the
// bearer guard; register, login, and refresh are open by nature.
func (s *Server) Routes() http.Handler {
	guard := middleware.Require(s.service)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/register", s.handleRegister)
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("POST /auth/refresh", s.handleRefresh)
	mux.Handle("DELETE /auth/logout", guard(http.HandlerFunc(s.handleLogout)))
	mux.Handle("GET /auth/me", guard(http.HandlerFunc(s.handleMe)))

	return mux
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req authkit.RegisterRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	payload, err := s.service.Register(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeData(w, http.StatusCreated, payload)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}

	payload, err := s.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeData(w, http.StatusOK, payload)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		writeError(w, http.StatusBadRequest, "refreshToken is required")
		return
	}

	payload, err := s.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeData(w, http.StatusOK, payload)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	if err := s.service.Logout(r.Context(), token); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Logged out"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Access token required")
		return
	}

	user, err := s.service.User(r.Context(), identity.UserID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeData(w, http.StatusOK, user)
}

// decodeBody parses a JSON request body into dst. On failure it writes a 400
// and reports false; callers return immediately.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer func() {
		_, _ = io.Copy(io.Discard, r.Body)
	}()

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "Request body required")
			return false
		}
		writeError(w, http.StatusBadRequest, "Malformed JSON body")
		return false
	}
	return true
}
