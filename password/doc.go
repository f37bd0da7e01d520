// Package password hashes and verifies secrets (passwords and PINs) with Argon2id.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Legacy bcrypt hashes are accepted by [Argon2.Verify], and [Argon2.NeedsUpgrade]
// always reports them as stale so the caller re-hashes on the next successful login.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Length and format policy (minimum
// password length, PIN digits) is enforced by the Engine.
//
// # What this package must NOT do
//
//   - Store or retrieve secrets.
//   - Import any other authcore package.
//   - Log plaintext secrets.
package password
