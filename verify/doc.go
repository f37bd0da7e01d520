// Package verify checks proof-of-possession for registered public-key credentials:
// RSA signatures over a server challenge and WebAuthn assertions.
//
// Keys are stored as base64 X.509 SubjectPublicKeyInfo (PKIX) DER. Signatures and
// WebAuthn fields accept standard or URL-safe base64, padded or not.
//
// # What this package must NOT do
//
//   - Issue or remember challenges; the caller passes the expected value.
//   - Touch storage. Sign-counter persistence belongs to the caller.
package verify
