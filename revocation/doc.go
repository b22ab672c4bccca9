// Package revocation provides the optional Redis-backed registry that upgrades
// stateless token handling to server-side enforcement.
//
// Without a registry, refresh tokens are validated by signature and expiry
// alone and logout is a client-local discard. With a registry wired, each
// session id maps to the single currently valid refresh jti: rotation is
// atomic compare-and-swap, presenting a spent jti revokes the whole session,
// and logout places the session id on a revocation set consulted during
// access-token validation.
//
// # What this package must NOT do
//
//   - Parse or create tokens (the token package owns signing).
//   - Import authkit or token (no upward imports).
//   - Decide policy — callers map registry outcomes to the error taxonomy.
package revocation
