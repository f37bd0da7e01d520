// Package jwt issues and verifies short-lived access tokens carrying the identity id,
// session id and role names. HS256, RS256 and Ed25519 are supported; verification
// pins the configured algorithm and optionally selects keys by kid.
package jwt
