package store

import "time"

// Identity is a unique principal. Contact values are only present as blind-index
// hashes; the username is additionally kept as ciphertext for display.
type Identity struct {
	ID           int64
	UsernameHash string
	EmailHash    string
	MobileHash   string
	UsernameEnc  string
	PasswordHash string
	ProjectType  string
	Enabled      bool
	Roles        []string
	CreatedAt    time.Time
}

// IdentityDetail is the one-to-one companion of Identity carrying encrypted contact
// values and login bookkeeping.
type IdentityDetail struct {
	IdentityID     int64
	EmailEnc       string
	MobileEnc      string
	LastLoginAt    *time.Time
	LoginAt        *time.Time
	FailedAttempts int
}

// Role is a named role resolved at registration.
type Role struct {
	ID   int64
	Name string
}

// CredentialType discriminates secondary authenticators.
type CredentialType string

const (
	CredentialPIN     CredentialType = "PIN"
	CredentialRSA     CredentialType = "RSA"
	CredentialPasskey CredentialType = "PASSKEY"
)

// Valid reports whether t is a known credential type.
func (t CredentialType) Valid() bool {
	switch t {
	case CredentialPIN, CredentialRSA, CredentialPasskey:
		return true
	}
	return false
}

// Credential is a secondary authenticator bound to an identity. Secret holds the PIN
// hash for PIN credentials and the base64 PKIX public key otherwise.
type Credential struct {
	ID             int64
	IdentityID     int64
	Type           CredentialType
	CredentialID   string
	Secret         string
	DeviceMetadata string
	SignCount      uint32
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SessionState is the lifecycle state of a session at a given instant.
type SessionState int

const (
	SessionActive SessionState = iota
	SessionExpired
	SessionRevoked
)

func (s SessionState) String() string {
	switch s {
	case SessionActive:
		return "ACTIVE"
	case SessionExpired:
		return "EXPIRED"
	case SessionRevoked:
		return "REVOKED"
	}
	return "UNKNOWN"
}

// Session represents one authenticated device/login.
type Session struct {
	ID         string
	IdentityID int64
	DeviceInfo string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	Revoked    bool
}

// State reports the session state at now. Revocation wins over expiry; both are terminal.
func (s *Session) State(now time.Time) SessionState {
	if s.Revoked {
		return SessionRevoked
	}
	if !now.Before(s.ExpiresAt) {
		return SessionExpired
	}
	return SessionActive
}

// RefreshToken is the persisted form of an opaque refresh token: only its keyed hash.
type RefreshToken struct {
	TokenHash string
	SessionID string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// OTPRecord is a hashed one-time code tied to a contact hash.
type OTPRecord struct {
	ID          int64
	ContactHash string
	CodeHash    string
	Purpose     string
	Channel     string
	ExpiresAt   time.Time
	Used        bool
	CreatedAt   time.Time
}

// ResetType is the mutation a pending reset authorises.
type ResetType string

const (
	ResetPIN    ResetType = "PIN"
	ResetEmail  ResetType = "EMAIL"
	ResetMobile ResetType = "MOBILE"
)

// PendingReset links an identity to a pending mutation. TokenHash is the keyed hash of
// the token handed to the caller.
type PendingReset struct {
	TokenHash  string
	IdentityID int64
	Type       ResetType
	ExpiresAt  time.Time
	CreatedAt  time.Time
}
