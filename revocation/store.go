package revocation

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrReuseDetected is an exported constant or variable used by the authentication engine.
var ErrReuseDetected = errors.New("refresh token reuse detected")

// ErrSessionUnknown is returned when the rotation target session has no registry entry.
var ErrSessionUnknown = errors.New("session unknown to registry")

// ErrSessionRevoked is returned when the session id has been revoked.
var ErrSessionRevoked = errors.New("session revoked")

// ErrUnavailable is an exported constant or variable used by the authentication engine.
var ErrUnavailable = errors.New("revocation backend unavailable")

const minTTL = time.Second

const (
	rotateStatusRevoked  int64 = 0
	rotateStatusUnknown  int64 = 1
	rotateStatusMismatch int64 = 2
	rotateStatusRotated  int64 = 3
)

// Rotation is atomic: compare the registered jti, swap it, and on mismatch
// revoke the whole session so neither half of a forked pair survives.
const rotateScript = `
if redis.call("EXISTS", KEYS[2]) == 1 then
  return 0
end
local current = redis.call("GET", KEYS[1])
if not current then
  return 1
end
if current ~= ARGV[1] then
  redis.call("SET", KEYS[2], "1", "PX", ARGV[3])
  redis.call("DEL", KEYS[1])
  return 2
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 3
`

var rotateLua = redis.NewScript(rotateScript)

// Store defines a public type used by authkit APIs.
//
// Store instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Store struct {
	client *redis.Client
	prefix string
}

// NewStore describes the newstore operation and its observable behavior.
//
// NewStore may return an error when input validation, dependency calls, or security checks fail.
// NewStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewStore(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "ak"
	}
	return &Store{
		client: client,
		prefix: prefix,
	}
}

func (s *Store) currentKey(sessionID string) string {
	return s.prefix + ":cur:" + sessionID
}

func (s *Store) revokedKey(sessionID string) string {
	return s.prefix + ":rev:" + sessionID
}

// Bind registers jti as the currently valid refresh token for sessionID.
// Called once at pair issuance; ttl matches the refresh token lifetime.
func (s *Store) Bind(ctx context.Context, sessionID, jti string, ttl time.Duration) error {
	if ttl < minTTL {
		ttl = minTTL
	}
	if err := s.client.Set(ctx, s.currentKey(sessionID), jti, ttl).Err(); err != nil {
		return errors.Join(ErrUnavailable, err)
	}
	return nil
}

// Rotate atomically replaces the registered refresh jti for sessionID.
// Presenting a jti other than the registered one is treated as reuse of a
// spent token: the session is revoked and [ErrReuseDetected] is returned.
func (s *Store) Rotate(ctx context.Context, sessionID, currentJTI, nextJTI string, ttl time.Duration) error {
	if ttl < minTTL {
		ttl = minTTL
	}

	status, err := rotateLua.Run(
		ctx,
		s.client,
		[]string{s.currentKey(sessionID), s.revokedKey(sessionID)},
		currentJTI,
		nextJTI,
		ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return errors.Join(ErrUnavailable, err)
	}

	switch status {
	case rotateStatusRevoked:
		return ErrSessionRevoked
	case rotateStatusUnknown:
		return ErrSessionUnknown
	case rotateStatusMismatch:
		return ErrReuseDetected
	case rotateStatusRotated:
		return nil
	default:
		return ErrUnavailable
	}
}

// Revoke marks sessionID as revoked until ttl elapses and drops its refresh
// registration. Used by logout; the revocation only needs to outlive the
// longest-lived token bound to the session.
func (s *Store) Revoke(ctx context.Context, sessionID string, ttl time.Duration) error {
	if ttl < minTTL {
		ttl = minTTL
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.revokedKey(sessionID), "1", ttl)
	pipe.Del(ctx, s.currentKey(sessionID))
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Join(ErrUnavailable, err)
	}
	return nil
}

// IsRevoked describes the isrevoked operation and its observable behavior.
//
// IsRevoked may return an error when input validation, dependency calls, or security checks fail.
// IsRevoked does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.revokedKey(sessionID)).Result()
	if err != nil {
		return false, errors.Join(ErrUnavailable, err)
	}
	return n > 0, nil
}
