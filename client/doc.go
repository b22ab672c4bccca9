// Package client implements the consumer side of the token lifecycle for
// services and tools that call an authkit-backed API.
//
// A [SessionManager] logs in, persists the session through a pluggable
// [Storage], attaches the bearer token to outgoing requests via
// [SessionManager.Do], and handles expiry transparently: a 401 triggers one
// refresh and one retry. Concurrent requests that hit 401 at the same time
// share a single refresh call.
//
// # What this package must NOT do
//
//   - Inspect or decode JWT contents. Tokens are opaque strings here.
//   - Retry more than once per request. A second 401 is surfaced to the
//     caller unchanged.
//   - Keep a session the server has rejected. A failed refresh clears
//     storage and fires the expiry callback.
package client
