package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	authkit "github.com/planora/authkit"
)

// envelope is the uniform response shape. Success responses carry data;
// failures carry the status text and a human-readable message.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{
		Success: false,
		Error:   http.StatusText(status),
		Message: message,
	})
}

// writeServiceError maps service sentinels onto HTTP statuses. Anything
// unrecognized is treated as internal: logged in full, surfaced as a generic
// 500 unless the server runs in dev mode.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, authkit.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, authkit.ErrDuplicateIdentity):
		writeError(w, http.StatusConflict, "Account already exists")
	case errors.Is(err, authkit.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
	case errors.Is(err, authkit.ErrRefreshReuse):
		writeError(w, http.StatusUnauthorized, "Refresh token already used")
	case errors.Is(err, authkit.ErrRefreshInvalid):
		writeError(w, http.StatusUnauthorized, "Invalid refresh token")
	case errors.Is(err, authkit.ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, "Invalid token: token expired")
	case errors.Is(err, authkit.ErrTokenInvalid):
		writeError(w, http.StatusUnauthorized, "Invalid token")
	case errors.Is(err, authkit.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "User not found")
	default:
		s.logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		message := "Internal server error"
		if s.devMode {
			message = err.Error()
		}
		writeError(w, http.StatusInternalServerError, message)
	}
}
