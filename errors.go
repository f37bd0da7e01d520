package authcore

import "errors"

var (
	// ErrInvalidCredentials is returned for a wrong password or PIN, or an unknown username.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrDuplicateIdentity is returned when a username, email or mobile is already registered in scope.
	ErrDuplicateIdentity = errors.New("duplicate identity")
	// ErrCredentialNotRegistered is returned when no matching PIN, RSA or passkey credential exists.
	ErrCredentialNotRegistered = errors.New("credential not registered")

	// ErrOTPNotFound is returned when no one-time code was ever issued for the contact.
	ErrOTPNotFound = errors.New("otp not found")
	// ErrOTPExpiredOrUsed is returned for a code past its expiry or already consumed.
	ErrOTPExpiredOrUsed = errors.New("otp expired or already used")
	// ErrInvalidOTP is returned when the candidate code does not match.
	ErrInvalidOTP = errors.New("invalid otp")

	// ErrChallengeMismatch is returned when the presented challenge is not the outstanding one.
	ErrChallengeMismatch = errors.New("challenge mismatch")
	// ErrSignatureVerificationFailed is returned when a signature or assertion does not verify.
	ErrSignatureVerificationFailed = errors.New("signature verification failed")

	// ErrInvalidRefreshToken is returned for an unknown or already consumed refresh token.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrExpiredRefreshToken is returned for a refresh token past its own expiry.
	ErrExpiredRefreshToken = errors.New("expired refresh token")
	// ErrSessionRevoked is returned when the bound session is revoked or missing.
	ErrSessionRevoked = errors.New("session revoked")
	// ErrSessionExpired is returned when Session.EnforceExpiry is set and the session lifetime elapsed.
	ErrSessionExpired = errors.New("session expired")

	// ErrResetTokenNotFound is returned for an unknown, consumed or wrong-type reset token.
	ErrResetTokenNotFound = errors.New("reset token not found")
	// ErrResetTokenExpired is returned for a reset token past its expiry.
	ErrResetTokenExpired = errors.New("reset token expired")

	ErrEngineNotReady      = errors.New("engine not initialized")
	ErrInvalidInput        = errors.New("invalid input")
	ErrIdentityNotFound    = errors.New("identity not found")
	ErrIdentityDisabled    = errors.New("identity disabled")
	ErrRoleNotFound        = errors.New("role not found")
	ErrRateLimited         = errors.New("rate limited")
	ErrStoreUnavailable    = errors.New("store unavailable")
	ErrNotificationFailed  = errors.New("notification delivery failed")
	ErrTokenInvalid        = errors.New("invalid token")
	ErrChallengeNotIssued  = errors.New("no outstanding challenge")
	ErrUnsupportedChannel  = errors.New("unsupported notification channel")
	ErrCredentialConflict  = errors.New("credential id owned by another identity")
	ErrUnsupportedReset    = errors.New("unsupported reset type")
)
