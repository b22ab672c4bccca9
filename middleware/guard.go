package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	authkit "github.com/planora/authkit"
)

// Authenticator defines a public type used by authkit APIs.
//
// Authenticator is the surface a guard needs from the auth service. It is
// satisfied by [authkit.Service].
type Authenticator interface {
	ValidateToken(ctx context.Context, accessToken string) (*authkit.Identity, error)
}

type identityContextKey struct{}

// IdentityFromContext describes the identityfromcontext operation and its observable behavior.
//
// IdentityFromContext does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func IdentityFromContext(ctx context.Context) (*authkit.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(*authkit.Identity)
	return identity, ok
}

// Require returns middleware that rejects any request without a valid bearer
// access token. A missing or non-Bearer Authorization header and a failed
// validation both produce 401 with a JSON envelope; a revocation registry
// outage produces 500 so callers cannot mistake an infrastructure fault for
// a bad token.
func Require(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth == nil {
				writeGuardError(w, http.StatusInternalServerError, "Authentication unavailable")
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeGuardError(w, http.StatusUnauthorized, "Access token required")
				return
			}

			identity, err := auth.ValidateToken(r.Context(), token)
			if err != nil {
				if errors.Is(err, authkit.ErrRevocationUnavailable) {
					writeGuardError(w, http.StatusInternalServerError, "Authentication unavailable")
					return
				}
				writeGuardError(w, http.StatusUnauthorized, "Invalid token: "+reasonOf(err))
				return
			}

			ctx := context.WithValue(r.Context(), identityContextKey{}, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Optional returns middleware that attaches an identity when a valid bearer
// token is present and passes the request through anonymously otherwise.
// Invalid tokens do not reject; handlers that need a hard guarantee use
// [Require].
func Optional(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth == nil {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			identity, err := auth.ValidateToken(r.Context(), token)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), identityContextKey{}, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

// reasonOf strips the sentinel prefix so the response reads
// "Invalid token: token expired" rather than repeating "invalid token".
func reasonOf(err error) string {
	if errors.Is(err, authkit.ErrTokenExpired) {
		return "token expired"
	}
	msg := err.Error()
	if rest, ok := strings.CutPrefix(msg, authkit.ErrTokenInvalid.Error()+": "); ok {
		return rest
	}
	return msg
}

func writeGuardError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   http.StatusText(status),
		"message": message,
	})
}
