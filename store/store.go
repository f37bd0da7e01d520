package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("store: record not found")
	// ErrDuplicate is returned when a uniqueness constraint rejects a write.
	ErrDuplicate = errors.New("store: duplicate record")
	// ErrConflict is returned when a conditional write lost a race.
	ErrConflict = errors.New("store: concurrent modification")
	// ErrExpired is returned by RotateRefreshToken for a refresh row past its expiry.
	ErrExpired = errors.New("store: record expired")
	// ErrRevoked is returned by RotateRefreshToken when the bound session is revoked or gone.
	ErrRevoked = errors.New("store: session revoked")
)

// IdentityStore persists identities and their detail rows.
type IdentityStore interface {
	// CreateIdentity inserts identity, detail and role links atomically and returns the
	// new identity id. A uniqueness violation on any blind index yields ErrDuplicate.
	CreateIdentity(ctx context.Context, identity *Identity, detail *IdentityDetail) (int64, error)
	// IdentityExists reports whether any non-empty hash is already taken in projectType.
	IdentityExists(ctx context.Context, projectType, usernameHash, emailHash, mobileHash string) (bool, error)
	GetIdentity(ctx context.Context, id int64) (*Identity, error)
	FindIdentityByUsername(ctx context.Context, projectType, usernameHash string) (*Identity, error)
	FindIdentityByEmail(ctx context.Context, projectType, emailHash string) (*Identity, error)
	FindIdentityByMobile(ctx context.Context, projectType, mobileHash string) (*Identity, error)
	GetIdentityDetail(ctx context.Context, identityID int64) (*IdentityDetail, error)
	// RecordLogin shifts the current login time into last login, sets the current login
	// to at and zeroes the failed-attempt counter.
	RecordLogin(ctx context.Context, identityID int64, at time.Time) error
	RecordFailedLogin(ctx context.Context, identityID int64) error
	UpdatePasswordHash(ctx context.Context, identityID int64, hash string) error
	// UpdateContact replaces the email or mobile blind index and ciphertext.
	UpdateContact(ctx context.Context, identityID int64, kind ResetType, hash, enc string) error
}

// RoleRepository resolves role names.
type RoleRepository interface {
	FindRoleByName(ctx context.Context, name string) (*Role, error)
}

// CredentialStore persists secondary authenticators.
type CredentialStore interface {
	// UpsertPIN creates or replaces the PIN keyed by (identity, PIN, device metadata).
	UpsertPIN(ctx context.Context, cred *Credential) error
	FindPIN(ctx context.Context, identityID int64, deviceMetadata string) (*Credential, error)
	// UpsertCredential creates or replaces an RSA/passkey credential keyed by its
	// credential id. A credential id owned by another identity yields ErrDuplicate.
	UpsertCredential(ctx context.Context, cred *Credential) error
	FindCredential(ctx context.Context, credentialID string) (*Credential, error)
	ListCredentials(ctx context.Context, identityID int64, kind CredentialType) ([]Credential, error)
	// UpdateSignCount moves the counter from prev to next, or returns ErrConflict.
	UpdateSignCount(ctx context.Context, credentialID string, prev, next uint32) error
}

// SessionStore persists sessions and their refresh tokens.
type SessionStore interface {
	// CreateSession inserts the session and its first refresh token atomically.
	CreateSession(ctx context.Context, sess *Session, token *RefreshToken) error
	GetSession(ctx context.Context, id string) (*Session, error)
	// RotateRefreshToken consumes the token with presentedHash and stores next bound to
	// the same session. Errors: ErrNotFound, ErrExpired, ErrRevoked.
	RotateRefreshToken(ctx context.Context, presentedHash string, next *RefreshToken, now time.Time) (*Session, error)
	// RevokeSession marks the session revoked and drops its refresh tokens.
	RevokeSession(ctx context.Context, id string) error
}

// OTPStore persists hashed one-time codes.
type OTPStore interface {
	CreateOTP(ctx context.Context, rec *OTPRecord) (int64, error)
	// LatestOTP returns the most recently created record for the contact hash, used or not.
	LatestOTP(ctx context.Context, contactHash string) (*OTPRecord, error)
	// MarkOTPUsed flips used to true and reports whether this call did it.
	MarkOTPUsed(ctx context.Context, id int64) (bool, error)
}

// ResetStore persists pending two-phase mutations.
type ResetStore interface {
	CreateReset(ctx context.Context, reset *PendingReset) error
	GetReset(ctx context.Context, tokenHash string) (*PendingReset, error)
	// DeleteReset removes the row and reports whether this call removed it.
	DeleteReset(ctx context.Context, tokenHash string) (bool, error)
}

// Store is the full persistence surface the Engine needs.
type Store interface {
	IdentityStore
	RoleRepository
	CredentialStore
	SessionStore
	OTPStore
	ResetStore
}
