// Package httpapi serves the authentication endpoints over HTTP with a
// uniform JSON envelope.
//
// # Endpoints
//
//   - POST /auth/register — create an account, returns 201 with a token pair.
//   - POST /auth/login — verify credentials, returns 200 with a token pair.
//   - POST /auth/refresh — rotate a refresh token, returns 200 with a new pair.
//   - DELETE /auth/logout — end the bearer session, returns 200.
//   - GET /auth/me — profile of the bearer identity, returns 200.
//
// Every response is an envelope: {"success": true, "data": ...} or
// {"success": false, "error": "...", "message": "..."}.
//
// # Architecture boundaries
//
// Handlers translate HTTP into authkit.Service calls and service sentinels
// into status codes. They hold no auth logic and no state beyond the service
// reference. Internal error details are logged, never returned, unless the
// server was built in dev mode.
package httpapi
