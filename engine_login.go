package authcore

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/MrEthical07/authcore/internal/contact"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/store"
	"go.uber.org/zap"
)

const (
	loginMethodPassword = "password"
	loginMethodPIN      = "pin"
	loginMethodOTP      = "otp"
	loginMethodRSA      = "rsa"
	loginMethodPasskey  = "passkey"
)

// LoginWithPassword authenticates username and password in the context's project. An
// unknown username and a wrong password both fail with ErrInvalidCredentials and create
// no session.
func (e *Engine) LoginWithPassword(ctx context.Context, username, password, deviceInfo string) (*TokenPair, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, e.loginFailed(ctx, loginMethodPassword, 0, "empty_input", ErrInvalidCredentials)
	}

	usernameHash, err := e.hash(username)
	if err != nil {
		return nil, e.loginFailed(ctx, loginMethodPassword, 0, "hash", err)
	}
	limiterKey := e.projectFromContext(ctx) + ":" + usernameHash
	if err := e.checkLoginLimit(ctx, loginMethodPassword, limiterKey); err != nil {
		return nil, err
	}

	ident, err := e.store.FindIdentityByUsername(ctx, e.projectFromContext(ctx), usernameHash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.countLoginFailure(ctx, limiterKey, 0)
			return nil, e.loginFailed(ctx, loginMethodPassword, 0, "unknown_username", ErrInvalidCredentials)
		}
		return nil, e.loginFailed(ctx, loginMethodPassword, 0, "lookup", backendErr(err))
	}
	if !ident.Enabled {
		return nil, e.loginFailed(ctx, loginMethodPassword, ident.ID, "disabled", ErrIdentityDisabled)
	}
	if ident.PasswordHash == "" {
		e.countLoginFailure(ctx, limiterKey, 0)
		return nil, e.loginFailed(ctx, loginMethodPassword, ident.ID, "no_password", ErrInvalidCredentials)
	}

	ok, err := e.passwordHash.Verify(password, ident.PasswordHash)
	if err != nil || !ok {
		e.countLoginFailure(ctx, limiterKey, ident.ID)
		return nil, e.loginFailed(ctx, loginMethodPassword, ident.ID, "mismatch", ErrInvalidCredentials)
	}

	e.resetLoginLimit(ctx, limiterKey)
	if e.config.Password.UpgradeOnLogin {
		e.upgradePasswordHash(ctx, ident, password)
	}
	e.recordLogin(ctx, ident.ID)
	return e.loginSucceeded(ctx, loginMethodPassword, ident, deviceInfo)
}

// LoginWithPin authenticates the PIN registered for identityID on deviceInfo. A PIN
// registered on another device does not match.
func (e *Engine) LoginWithPin(ctx context.Context, identityID int64, pin, deviceInfo string) (*TokenPair, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if identityID <= 0 || pin == "" {
		return nil, e.loginFailed(ctx, loginMethodPIN, identityID, "empty_input", ErrInvalidCredentials)
	}

	limiterKey := "pin:" + strconv.FormatInt(identityID, 10)
	if err := e.checkLoginLimit(ctx, loginMethodPIN, limiterKey); err != nil {
		return nil, err
	}

	ident, err := e.loadIdentity(ctx, identityID)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			err = ErrCredentialNotRegistered
		}
		return nil, e.loginFailed(ctx, loginMethodPIN, identityID, "identity", err)
	}
	if !ident.Enabled {
		return nil, e.loginFailed(ctx, loginMethodPIN, ident.ID, "disabled", ErrIdentityDisabled)
	}

	cred, err := e.store.FindPIN(ctx, identityID, deviceInfo)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, e.loginFailed(ctx, loginMethodPIN, ident.ID, "no_pin", ErrCredentialNotRegistered)
		}
		return nil, e.loginFailed(ctx, loginMethodPIN, ident.ID, "lookup", backendErr(err))
	}

	ok, err := e.passwordHash.Verify(pin, cred.Secret)
	if err != nil || !ok {
		e.countLoginFailure(ctx, limiterKey, ident.ID)
		return nil, e.loginFailed(ctx, loginMethodPIN, ident.ID, "mismatch", ErrInvalidCredentials)
	}

	e.resetLoginLimit(ctx, limiterKey)
	e.recordLogin(ctx, ident.ID)
	return e.loginSucceeded(ctx, loginMethodPIN, ident, deviceInfo)
}

// LoginWithOTP consumes a LOGIN code sent to mobile. When no identity exists for the
// mobile in projectType and Registration.AllowOTPSignup is set, one is created with the
// mobile number as its username.
func (e *Engine) LoginWithOTP(ctx context.Context, mobile, code, deviceInfo, projectType string) (*TokenPair, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	normalized, err := contact.NormalizeMobile(mobile)
	if err != nil {
		return nil, e.loginFailed(ctx, loginMethodOTP, 0, "mobile", ErrInvalidInput)
	}
	if projectType == "" {
		projectType = e.projectFromContext(ctx)
	}
	ctx = WithProjectType(ctx, projectType)

	mobileHash, err := e.hash(normalized)
	if err != nil {
		return nil, e.loginFailed(ctx, loginMethodOTP, 0, "hash", err)
	}
	if err := e.consumeOTP(ctx, mobileHash, code, OTPPurposeLogin); err != nil {
		return nil, e.loginFailed(ctx, loginMethodOTP, 0, "otp", err)
	}

	ident, err := e.findByContact(ctx, projectType, contact.KindMobile, mobileHash)
	if errors.Is(err, ErrIdentityNotFound) && e.config.Registration.AllowOTPSignup {
		ident, err = e.register(ctx, RegisterRequest{
			Username:    normalized,
			Mobile:      normalized,
			ProjectType: projectType,
		}, e.config.Registration.DefaultRole)
		if errors.Is(err, ErrDuplicateIdentity) {
			// Lost a concurrent sign-up for the same mobile.
			ident, err = e.findByContact(ctx, projectType, contact.KindMobile, mobileHash)
		}
	}
	if err != nil {
		return nil, e.loginFailed(ctx, loginMethodOTP, 0, "identity", err)
	}
	if !ident.Enabled {
		return nil, e.loginFailed(ctx, loginMethodOTP, ident.ID, "disabled", ErrIdentityDisabled)
	}

	e.recordLogin(ctx, ident.ID)
	return e.loginSucceeded(ctx, loginMethodOTP, ident, deviceInfo)
}

func (e *Engine) checkLoginLimit(ctx context.Context, method, key string) error {
	if e.rateLimiter == nil {
		return nil
	}
	err := e.rateLimiter.CheckLogin(ctx, key, clientIPFromContext(ctx))
	if err == nil {
		return nil
	}
	if errors.Is(err, rate.ErrRateLimited) {
		e.metricInc(MetricLoginRateLimited)
		e.emitAudit(ctx, auditEventLoginRateLimited, false, 0, "", ErrRateLimited, func() map[string]string {
			return map[string]string{"method": method}
		})
		e.emitRateLimit(ctx, "login")
		return ErrRateLimited
	}
	return e.loginFailed(ctx, method, 0, "rate_limiter_unavailable", backendErr(err))
}

// countLoginFailure bumps the limiter and, for a known identity, the persisted
// failed-attempt counter. Both are best effort.
func (e *Engine) countLoginFailure(ctx context.Context, key string, identityID int64) {
	if e.rateLimiter != nil {
		if err := e.rateLimiter.IncrementLogin(ctx, key, clientIPFromContext(ctx)); err != nil {
			e.log.Warn("login limiter increment failed", zap.Error(err))
		}
	}
	if identityID > 0 {
		if err := e.store.RecordFailedLogin(ctx, identityID); err != nil {
			e.log.Warn("failed-attempt counter update failed", zap.Int64("identity_id", identityID), zap.Error(err))
		}
	}
}

func (e *Engine) resetLoginLimit(ctx context.Context, key string) {
	if e.rateLimiter == nil {
		return
	}
	if err := e.rateLimiter.ResetLogin(ctx, key); err != nil {
		e.log.Warn("login limiter reset failed", zap.Error(err))
	}
}

func (e *Engine) recordLogin(ctx context.Context, identityID int64) {
	if err := e.store.RecordLogin(ctx, identityID, e.now().UTC()); err != nil {
		e.log.Warn("login bookkeeping failed", zap.Int64("identity_id", identityID), zap.Error(err))
	}
}

func (e *Engine) upgradePasswordHash(ctx context.Context, ident *store.Identity, password string) {
	upgrade, err := e.passwordHash.NeedsUpgrade(ident.PasswordHash)
	if err != nil || !upgrade {
		return
	}
	hash, err := e.passwordHash.Hash(password)
	if err != nil {
		e.log.Warn("password rehash failed", zap.Int64("identity_id", ident.ID), zap.Error(err))
		return
	}
	if err := e.store.UpdatePasswordHash(ctx, ident.ID, hash); err != nil {
		e.log.Warn("password hash upgrade failed", zap.Int64("identity_id", ident.ID), zap.Error(err))
		return
	}
	ident.PasswordHash = hash
}
