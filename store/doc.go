// Package store defines the persisted record shapes used by authcore and the narrow
// persistence interfaces the Engine depends on.
//
// # Atomicity contract
//
// Implementations must make the following operations atomic with respect to concurrent
// callers, because the Engine relies on them as the single point of truth:
//
//   - CreateIdentity inserts the identity, its detail row and role links in one unit.
//   - RotateRefreshToken removes the presented token and inserts its successor so that
//     exactly one of two concurrent callers observes the old row.
//   - MarkOTPUsed flips used=false to used=true at most once.
//   - DeleteReset removes a pending reset at most once.
//
// Uniqueness of blind-index hashes within a project scope is enforced by the backend and
// surfaces as [ErrDuplicate].
//
// # What this package must NOT do
//
//   - Hold plaintext secrets. Passwords and PINs are adaptive hashes, refresh and reset
//     tokens are keyed hashes, contact values are blind indexes or ciphertext.
//   - Import authcore (no upward imports).
package store
