// Package token manages access- and refresh-token issuance and verification using
// configured signing keys and strict validation semantics suitable for low-latency
// authentication paths.
//
// Both kinds are self-contained signed assertions: subject (user id), session id,
// jti, issued-at, expiry. Expiry is a strict now > exp check against the injected
// clock; no skew compensation is applied unless Leeway is configured.
package token
