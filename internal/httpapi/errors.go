package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrEthical07/authcore"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

// Order matters: the first errors.Is match wins.
var errorTable = []errorMapping{
	{authcore.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{authcore.ErrUnsupportedChannel, http.StatusBadRequest, "unsupported_channel"},
	{authcore.ErrUnsupportedReset, http.StatusBadRequest, "unsupported_reset"},

	{authcore.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{authcore.ErrCredentialNotRegistered, http.StatusUnauthorized, "credential_not_registered"},
	{authcore.ErrOTPNotFound, http.StatusUnauthorized, "otp_not_found"},
	{authcore.ErrOTPExpiredOrUsed, http.StatusUnauthorized, "otp_expired_or_used"},
	{authcore.ErrInvalidOTP, http.StatusUnauthorized, "invalid_otp"},
	{authcore.ErrChallengeMismatch, http.StatusUnauthorized, "challenge_mismatch"},
	{authcore.ErrSignatureVerificationFailed, http.StatusUnauthorized, "signature_verification_failed"},
	{authcore.ErrInvalidRefreshToken, http.StatusUnauthorized, "invalid_refresh_token"},
	{authcore.ErrExpiredRefreshToken, http.StatusUnauthorized, "expired_refresh_token"},
	{authcore.ErrSessionRevoked, http.StatusUnauthorized, "session_revoked"},
	{authcore.ErrSessionExpired, http.StatusUnauthorized, "session_expired"},
	{authcore.ErrTokenInvalid, http.StatusUnauthorized, "invalid_token"},

	{authcore.ErrIdentityDisabled, http.StatusForbidden, "identity_disabled"},
	{authcore.ErrIdentityNotFound, http.StatusNotFound, "identity_not_found"},
	{authcore.ErrResetTokenNotFound, http.StatusNotFound, "reset_token_not_found"},
	{authcore.ErrResetTokenExpired, http.StatusGone, "reset_token_expired"},
	{authcore.ErrDuplicateIdentity, http.StatusConflict, "duplicate_identity"},
	{authcore.ErrCredentialConflict, http.StatusConflict, "credential_conflict"},
	{authcore.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},

	{authcore.ErrNotificationFailed, http.StatusBadGateway, "notification_failed"},
	{authcore.ErrStoreUnavailable, http.StatusServiceUnavailable, "store_unavailable"},
}

func statusFor(err error) (int, string) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

func writeError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	writeJSON(w, status, map[string]string{"error": code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
