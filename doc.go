// Package authkit provides the authentication and session-lifecycle core for
// the Planora platform: argon2id credential hashing, paired JWT access and
// refresh tokens, refresh rotation with optional Redis-backed reuse
// detection, and an audit/metrics layer.
//
// The package is designed for concurrent server workloads: Service methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authkit is the public surface. It exposes [Service], [Builder], [Config],
// and value types (AuthPayload, TokenPair, UserView, Identity). Hashing,
// token signing, and revocation bookkeeping live in the password, token, and
// revocation sub-packages; the HTTP surface, request middleware, and the
// client-side session manager live in httpapi, middleware, and client.
//
// # What this package must NOT do
//
//   - Expose password hashes, signing keys, or the Redis client in its
//     public API or in any returned value.
//   - Own user persistence. Callers supply a [UserStore]; the bundled
//     [MemoryUserStore] exists for tests and development.
//   - Hold server-side session state by default. Without a revocation
//     registry the service is fully stateless and tokens are bearer-valid
//     until expiry.
//
// # Performance contract
//
// ValidateToken is the hot path. It is pure signature and claims checking
// with no store access; wiring a revocation registry adds exactly one Redis
// round-trip. Register, Authenticate, and Refresh are allowed one store
// lookup plus one registry round-trip per call.
package authkit
