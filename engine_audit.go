package authcore

import (
	"context"
	"errors"
	"strconv"
)

const (
	auditEventRegisterSuccess      = "register_success"
	auditEventRegisterFailure      = "register_failure"
	auditEventCredentialRegistered = "credential_registered"
	auditEventPinRegistered        = "pin_registered"
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventLoginRateLimited     = "login_rate_limited"
	auditEventOTPSent              = "otp_sent"
	auditEventOTPFallbackFailed    = "otp_fallback_failed"
	auditEventOTPValidated         = "otp_validated"
	auditEventOTPRejected          = "otp_rejected"
	auditEventChallengeIssued      = "challenge_issued"
	auditEventSignatureFailure     = "signature_failure"
	auditEventRefreshSuccess       = "refresh_success"
	auditEventRefreshInvalid       = "refresh_invalid"
	auditEventRefreshRateLimited   = "refresh_rate_limited"
	auditEventLogoutSession        = "logout_session"
	auditEventResetRequested       = "reset_requested"
	auditEventResetConfirmed       = "reset_confirmed"
	auditEventResetRejected        = "reset_rejected"
	auditEventRateLimitTriggered   = "rate_limit_triggered"
)

// AuditErrorCode is the stable error label carried by audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrNotRegistered      AuditErrorCode = "credential_not_registered"
	auditErrOTPNotFound        AuditErrorCode = "otp_not_found"
	auditErrOTPExpiredOrUsed   AuditErrorCode = "otp_expired_or_used"
	auditErrInvalidOTP         AuditErrorCode = "invalid_otp"
	auditErrChallengeMismatch  AuditErrorCode = "challenge_mismatch"
	auditErrSignature          AuditErrorCode = "signature_verification_failed"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrExpiredToken       AuditErrorCode = "expired_token"
	auditErrSessionRevoked     AuditErrorCode = "session_revoked"
	auditErrSessionExpired     AuditErrorCode = "session_expired"
	auditErrResetNotFound      AuditErrorCode = "reset_token_not_found"
	auditErrResetExpired       AuditErrorCode = "reset_token_expired"
	auditErrIdentityNotFound   AuditErrorCode = "identity_not_found"
	auditErrIdentityDisabled   AuditErrorCode = "identity_disabled"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrInvalidInput       AuditErrorCode = "invalid_input"
	auditErrNotification       AuditErrorCode = "notification_failed"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	identityID int64,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:   e.now().UTC(),
		EventType:   eventType,
		ProjectType: e.projectFromContext(ctx),
		SessionID:   sessionID,
		IP:          clientIPFromContext(ctx),
		UserAgent:   userAgentFromContext(ctx),
		Success:     success,
		Metadata:    metadata,
	}
	if identityID > 0 {
		event.IdentityID = strconv.FormatInt(identityID, 10)
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, scope string) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, 0, "", ErrRateLimited, func() map[string]string {
		return map[string]string{"scope": scope}
	})
}

// loginFailed records a failed login of any method and returns err unchanged.
func (e *Engine) loginFailed(ctx context.Context, method string, identityID int64, reason string, err error) error {
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, identityID, "", err, func() map[string]string {
		return map[string]string{"method": method, "reason": reason}
	})
	return err
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrDuplicateIdentity), errors.Is(err, ErrCredentialConflict):
		return auditErrDuplicate
	case errors.Is(err, ErrCredentialNotRegistered):
		return auditErrNotRegistered
	case errors.Is(err, ErrOTPNotFound):
		return auditErrOTPNotFound
	case errors.Is(err, ErrOTPExpiredOrUsed):
		return auditErrOTPExpiredOrUsed
	case errors.Is(err, ErrInvalidOTP):
		return auditErrInvalidOTP
	case errors.Is(err, ErrChallengeMismatch), errors.Is(err, ErrChallengeNotIssued):
		return auditErrChallengeMismatch
	case errors.Is(err, ErrSignatureVerificationFailed):
		return auditErrSignature
	case errors.Is(err, ErrInvalidRefreshToken), errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrExpiredRefreshToken):
		return auditErrExpiredToken
	case errors.Is(err, ErrSessionRevoked):
		return auditErrSessionRevoked
	case errors.Is(err, ErrSessionExpired):
		return auditErrSessionExpired
	case errors.Is(err, ErrResetTokenNotFound):
		return auditErrResetNotFound
	case errors.Is(err, ErrResetTokenExpired):
		return auditErrResetExpired
	case errors.Is(err, ErrIdentityNotFound):
		return auditErrIdentityNotFound
	case errors.Is(err, ErrIdentityDisabled):
		return auditErrIdentityDisabled
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrUnsupportedChannel), errors.Is(err, ErrUnsupportedReset):
		return auditErrInvalidInput
	case errors.Is(err, ErrNotificationFailed):
		return auditErrNotification
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
