// Package authcore is an authentication core: identity registration over blind-indexed
// contact data, password, PIN, OTP, RSA and passkey logins, rotating refresh tokens and
// two-phase PIN and contact resets.
//
// An [Engine] is assembled with [Builder] from a [store.Store], a Redis client (challenges
// and rate limits), a [keyring.KeyProvider] and a [notify.Gateway]. Engine methods are safe
// for concurrent use.
//
// # Storage rules
//
//   - Usernames, emails and mobiles are stored as HMAC blind indexes for lookup and as
//     AES-GCM ciphertext for display and delivery.
//   - Passwords and PINs are argon2id hashes. Legacy bcrypt hashes verify and are
//     re-hashed on the next successful password login.
//   - Refresh tokens, reset tokens and OTP codes are stored only as blind indexes.
//
// # One-time state
//
// Refresh tokens, OTP codes, reset tickets and challenges are single use. The store (or
// Redis, for challenges) performs the consuming write atomically, so of two concurrent
// callers presenting the same value exactly one succeeds.
//
// # Errors
//
// Failures are reported with the sentinel errors in errors.go and should be matched with
// errors.Is. Backend failures wrap [ErrStoreUnavailable].
package authcore
