package authkit

import (
	"context"
	"errors"
	"time"
)

// Store-level sentinels. UserStore implementations translate their backend
// failures into these; the Service maps them onto the public taxonomy and
// never lets raw store errors cross into the transport layer.
var (
	// ErrStoreDuplicateEmail is an exported constant or variable used by the authentication engine.
	ErrStoreDuplicateEmail = errors.New("store: duplicate email")
	// ErrStoreUserNotFound is an exported constant or variable used by the authentication engine.
	ErrStoreUserNotFound = errors.New("store: user not found")
)

// UserRecord is the persisted shape of an account as seen by the Service.
// The store owns persistence; the Service only reads and creates records and
// updates the password hash. Email is stored normalized (lower-cased,
// trimmed) and is unique case-insensitively.
type UserRecord struct {
	UserID       string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Timezone     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserView is the caller-facing projection of a [UserRecord]. It never
// carries the password hash.
type UserView struct {
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Timezone  string    `json:"timezone"`
	CreatedAt time.Time `json:"createdAt"`
}

// TokenPair defines a public type used by authkit APIs.
//
// TokenPair instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TokenPair struct {
	AccessToken  string    `json:"token"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
	UserID       string    `json:"userId"`
}

// AuthPayload is returned by Register, Authenticate, and Refresh: the user
// view plus a freshly minted token pair.
type AuthPayload struct {
	User  UserView  `json:"user"`
	Token TokenPair `json:"token"`
}

// RegisterRequest defines a public type used by authkit APIs.
//
// RegisterRequest instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Timezone  string `json:"timezone"`
}

// Identity is produced by [Service.ValidateToken] and attached to the
// request context by the middleware.
type Identity struct {
	UserID    string
	SessionID string
}

// UserStore is the external user persistence boundary. Implementations must
// be safe for concurrent use. GetUserByEmail receives the already-normalized
// email and must return [ErrStoreUserNotFound] for absent accounts;
// CreateUser must enforce the uniqueness index and return
// [ErrStoreDuplicateEmail] on conflict.
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (UserRecord, error)
	GetUserByID(ctx context.Context, userID string) (UserRecord, error)
	CreateUser(ctx context.Context, record UserRecord) (UserRecord, error)
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error
}

func viewOf(record UserRecord) UserView {
	return UserView{
		UserID:    record.UserID,
		Email:     record.Email,
		FirstName: record.FirstName,
		LastName:  record.LastName,
		Timezone:  record.Timezone,
		CreatedAt: record.CreatedAt,
	}
}
