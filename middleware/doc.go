// Package middleware adapts authcore access-token validation to net/http.
//
// [Guard] reads the bearer token, calls ValidateAccess and stores the [authcore.AuthResult]
// in the request context. [RequireRole] additionally demands one of a set of roles.
//
// This package does not parse tokens or touch storage. Every decision is delegated to the
// Validator.
package middleware
