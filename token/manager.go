package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod defines a public type used by authkit APIs.
//
// SigningMethod instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SigningMethod string

const (
	// MethodEd25519 is an exported constant or variable used by the authentication engine.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 is an exported constant or variable used by the authentication engine.
	MethodHS256 SigningMethod = "hs256"
)

// Kind defines a public type used by authkit APIs.
//
// Kind instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Kind string

const (
	// KindAccess is an exported constant or variable used by the authentication engine.
	KindAccess Kind = "access"
	// KindRefresh is an exported constant or variable used by the authentication engine.
	KindRefresh Kind = "refresh"
)

var (
	// ErrMalformed is an exported constant or variable used by the authentication engine.
	ErrMalformed = errors.New("token malformed")
	// ErrSignature is an exported constant or variable used by the authentication engine.
	ErrSignature = errors.New("token signature mismatch")
	// ErrExpired is an exported constant or variable used by the authentication engine.
	ErrExpired = errors.New("token expired")
	// ErrWrongKind is an exported constant or variable used by the authentication engine.
	ErrWrongKind = errors.New("token kind mismatch")
)

// Config defines a public type used by authkit APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration

	// Now supplies the clock for issuance and expiry checks. Defaults to
	// time.Now; tests inject a fixed clock to simulate expiry.
	Now func() time.Time
}

// Manager defines a public type used by authkit APIs.
//
// Manager instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Manager struct {
	config Config
}

// Claims defines a public type used by authkit APIs.
//
// Claims instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Claims struct {
	Kind Kind   `json:"knd"`
	SID  string `json:"sid"`
	jwt.RegisteredClaims
}

// Token is a signed credential together with its identity and expiry.
type Token struct {
	Value     string
	ID        string
	SessionID string
	ExpiresAt time.Time
}

// NewManager describes the newmanager operation and its observable behavior.
//
// NewManager may return an error when input validation, dependency calls, or security checks fail.
// NewManager does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid access TTL configuration")
	}
	if cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid refresh TTL configuration")
	}
	if cfg.RefreshTTL < cfg.AccessTTL {
		return nil, errors.New("refresh TTL must not be shorter than access TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) > 0 {
			if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires public key")
		}
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return &Manager{config: cfg}, nil
}

// Issue mints a signed token of the given kind bound to userID. Access and
// refresh tokens of one pair share a session id so revocation can target the
// pair; the jti is unique per token and drives single-use refresh rotation.
func (m *Manager) Issue(userID, sessionID string, kind Kind) (Token, error) {
	if userID == "" {
		return Token{}, errors.New("empty user id")
	}
	if sessionID == "" {
		return Token{}, errors.New("empty session id")
	}

	ttl := m.config.AccessTTL
	if kind == KindRefresh {
		ttl = m.config.RefreshTTL
	}

	now := m.config.Now()
	jti := uuid.NewString()
	expiresAt := now.Add(ttl)

	claims := Claims{
		Kind: kind,
		SID:  sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        jti,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	tok := jwt.NewWithClaims(m.getMethod(), claims)

	signKey, err := m.getSignKey()
	if err != nil {
		return Token{}, err
	}

	signed, err := tok.SignedString(signKey)
	if err != nil {
		return Token{}, err
	}

	return Token{
		Value:     signed,
		ID:        jti,
		SessionID: sessionID,
		ExpiresAt: expiresAt,
	}, nil
}

// Validate verifies signature and expiry of tokenStr and checks it carries
// the expected kind. Failures are distinguished: [ErrMalformed],
// [ErrSignature], [ErrExpired], [ErrWrongKind]. Validation is pure — no
// external I/O, only the configured keys and clock.
func (m *Manager) Validate(tokenStr string, kind Kind) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.getMethod().Alg()}),
		jwt.WithTimeFunc(m.config.Now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	parser := jwt.NewParser(options...)
	tok, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.getMethod().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.getVerifyKey()
	})
	if err != nil {
		return nil, mapParseError(err)
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, ErrMalformed
	}
	if claims.Kind != kind {
		return nil, ErrWrongKind
	}
	if claims.Subject == "" || claims.SID == "" {
		return nil, ErrMalformed
	}

	return claims, nil
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrSignature
	default:
		return ErrMalformed
	}
}

func (m *Manager) getMethod() jwt.SigningMethod {
	switch m.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (m *Manager) getSignKey() (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return m.config.PrivateKey, nil
	default:
		return parseEdPrivateKey(m.config.PrivateKey)
	}
}

func (m *Manager) getVerifyKey() (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return m.config.PrivateKey, nil
	default:
		return parseEdPublicKey(m.config.PublicKey)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
