// Package token implements the signed access-token codec, the RSA signing-key
// material it depends on, and anti-CSRF validation.
//
// # Components
//
//   - [AccessClaims] — the claim set embedded in every access token.
//   - [Issue] / [Verify] — RS256 sign and verify against a kid-addressed key list.
//   - [SigningKey] — generated RSA key pair with a stable key ID.
//   - [AntiCsrfMode] — VIA_TOKEN, VIA_CUSTOM_HEADER or NONE.
//
// # Architecture boundaries
//
// This package owns the wire shape of access tokens. It does NOT decide when
// tokens are issued, cached or rotated — that responsibility belongs to the
// recipe and the store.
package token
