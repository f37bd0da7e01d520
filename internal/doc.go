// Package internal contains helpers private to authcore: random token, challenge and
// one-time code generation.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - contact: mobile and email normalisation
//   - flows: session issuance and refresh rotation orchestrators
//   - httpapi: JSON transport over the Engine
//   - migrate: embedded schema migrations
//   - rate: Redis-backed fixed-window limits
//   - stores: Redis challenge store
//
// # What this package must NOT do
//
//   - Export types that appear in the public authcore API.
//   - Be imported by any package outside the authcore module.
package internal
