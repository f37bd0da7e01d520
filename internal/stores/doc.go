// Package stores provides the Redis-backed store for short-lived RSA and passkey
// challenges.
//
// # Design
//
// Each challenge is a versioned, binary-encoded record stored under a key derived from
// its kind and identity, with a TTL. Issuing again overwrites. Mutations (Consume,
// RecordFailure) use WATCH/MULTI optimistic transactions with bounded retry. Consume is
// compare-and-delete, so a challenge is single-use. Comparisons are constant-time.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for challenge records. It does
// not generate challenge values or verify signatures.
//
// # What this package must NOT do
//
//   - Import authcore or any sibling internal package.
//   - Log challenge values.
package stores
