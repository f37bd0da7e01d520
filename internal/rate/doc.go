// Package rate provides Redis-backed fixed-window limiters for login, OTP issuance,
// OTP verification and refresh.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes:
//   - al:  login per identifier (failed attempts only)
//   - ali: login per IP
//   - aos: OTP sends per contact hash
//   - aov: OTP verifications per contact hash
//   - ar:  refresh per presented token hash
//
// Identifiers passed in are already blind-indexed; no plaintext reaches Redis.
//
// # What this package must NOT do
//
//   - Decide authentication outcomes.
//   - Be imported outside the authcore module.
package rate
