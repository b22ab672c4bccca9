// Package middleware exposes HTTP middleware guards built on top of
// authkit.Service token validation.
//
// # Guards
//
//   - [Require] — rejects requests without a valid bearer access token.
//   - [Optional] — attaches an identity when present, never rejects.
//
// Each guard reads the Authorization header, calls Service.ValidateToken,
// and injects the validated [authkit.Identity] into the request context for
// [IdentityFromContext].
//
// # Architecture boundaries
//
// This package translates HTTP semantics into service calls. It does NOT
// implement authentication logic itself — all decisions are delegated to
// ValidateToken.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to the service).
//   - Access Redis (the service handles I/O).
//   - Make authorization decisions beyond pass/reject from ValidateToken.
package middleware
