package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/internal"
	"github.com/MrEthical07/authcore/internal/stores"
	"github.com/MrEthical07/authcore/keyring"
	"github.com/MrEthical07/authcore/store"
	"github.com/MrEthical07/authcore/verify"
	"go.uber.org/zap"
)

// CreateRSAChallenge issues a challenge for identityID, replacing any outstanding one.
func (e *Engine) CreateRSAChallenge(ctx context.Context, identityID int64) (*Challenge, error) {
	return e.createChallenge(ctx, stores.ChallengeRSA, store.CredentialRSA, identityID)
}

// CreatePasskeyChallenge issues a passkey challenge for identityID, replacing any
// outstanding one.
func (e *Engine) CreatePasskeyChallenge(ctx context.Context, identityID int64) (*Challenge, error) {
	return e.createChallenge(ctx, stores.ChallengePasskey, store.CredentialPasskey, identityID)
}

func (e *Engine) createChallenge(ctx context.Context, kind stores.ChallengeKind, credType store.CredentialType, identityID int64) (*Challenge, error) {
	if e == nil || e.challenges == nil {
		return nil, ErrEngineNotReady
	}
	ident, err := e.loadIdentity(ctx, identityID)
	if err != nil {
		return nil, err
	}
	if !ident.Enabled {
		return nil, ErrIdentityDisabled
	}
	creds, err := e.store.ListCredentials(ctx, identityID, credType)
	if err != nil {
		return nil, backendErr(err)
	}
	if len(creds) == 0 {
		return nil, ErrCredentialNotRegistered
	}

	value, err := internal.NewChallenge()
	if err != nil {
		return nil, fmt.Errorf("generate challenge: %w", err)
	}
	rec, err := e.challenges.Issue(ctx, kind, identityID, value, e.config.Challenge.TTL)
	if err != nil {
		return nil, backendErr(err)
	}

	e.metricInc(MetricChallengeIssued)
	e.emitAudit(ctx, auditEventChallengeIssued, true, identityID, "", nil, func() map[string]string {
		return map[string]string{"kind": string(kind)}
	})
	return &Challenge{
		IdentityID: identityID,
		Value:      rec.Value,
		ExpiresAt:  time.Unix(rec.ExpiresAt, 0).UTC(),
	}, nil
}

// outstandingChallenge returns the stored challenge. A missing or expired one is a
// mismatch from the caller's point of view.
func (e *Engine) outstandingChallenge(ctx context.Context, kind stores.ChallengeKind, identityID int64) (*stores.Challenge, error) {
	rec, err := e.challenges.Get(ctx, kind, identityID)
	if err != nil {
		if errors.Is(err, stores.ErrChallengeNotFound) || errors.Is(err, stores.ErrChallengeExpired) {
			return nil, ErrChallengeMismatch
		}
		return nil, backendErr(err)
	}
	return rec, nil
}

// consumeChallenge removes the challenge once. Losing the race to a concurrent verifier
// is reported as a mismatch.
func (e *Engine) consumeChallenge(ctx context.Context, kind stores.ChallengeKind, identityID int64, value string) error {
	err := e.challenges.Consume(ctx, kind, identityID, value)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stores.ErrChallengeBackend):
		return backendErr(err)
	default:
		return ErrChallengeMismatch
	}
}

func (e *Engine) signatureFailed(ctx context.Context, kind stores.ChallengeKind, identityID int64, err error) error {
	dropped, recErr := e.challenges.RecordFailure(ctx, kind, identityID, e.config.Challenge.MaxAttempts)
	if recErr != nil && !errors.Is(recErr, stores.ErrChallengeNotFound) {
		e.log.Warn("challenge failure bookkeeping failed", zap.Int64("identity_id", identityID), zap.Error(recErr))
	}
	e.metricInc(MetricSignatureFailure)
	e.emitAudit(ctx, auditEventSignatureFailure, false, identityID, "", err, func() map[string]string {
		return map[string]string{"kind": string(kind), "challenge_dropped": fmt.Sprint(dropped)}
	})
	return err
}

// VerifyRSASignature checks signatureB64 (RSA PKCS#1 v1.5 over SHA-256 of the challenge)
// against the identity's registered RSA keys and consumes the challenge on success.
func (e *Engine) VerifyRSASignature(ctx context.Context, identityID int64, challenge, signatureB64 string) error {
	if e == nil || e.challenges == nil {
		return ErrEngineNotReady
	}
	if identityID <= 0 || challenge == "" {
		return ErrChallengeMismatch
	}

	rec, err := e.outstandingChallenge(ctx, stores.ChallengeRSA, identityID)
	if err != nil {
		return err
	}
	if !keyring.Equal(rec.Value, challenge) {
		return e.signatureFailed(ctx, stores.ChallengeRSA, identityID, ErrChallengeMismatch)
	}

	creds, err := e.store.ListCredentials(ctx, identityID, store.CredentialRSA)
	if err != nil {
		return backendErr(err)
	}
	if len(creds) == 0 {
		return ErrCredentialNotRegistered
	}

	verified := false
	for _, cred := range creds {
		if verify.RSAChallenge(cred.Secret, challenge, signatureB64) == nil {
			verified = true
			break
		}
	}
	if !verified {
		return e.signatureFailed(ctx, stores.ChallengeRSA, identityID, ErrSignatureVerificationFailed)
	}

	return e.consumeChallenge(ctx, stores.ChallengeRSA, identityID, challenge)
}

// LoginWithRSA verifies the signature and issues a session. No session is created when
// verification fails.
func (e *Engine) LoginWithRSA(ctx context.Context, identityID int64, challenge, signatureB64, deviceInfo string) (*TokenPair, error) {
	if err := e.VerifyRSASignature(ctx, identityID, challenge, signatureB64); err != nil {
		return nil, e.loginFailed(ctx, loginMethodRSA, identityID, "verify", err)
	}
	return e.challengeLogin(ctx, loginMethodRSA, identityID, deviceInfo)
}

// VerifyPasskeyAssertion validates a WebAuthn assertion made by credentialID against the
// outstanding passkey challenge and consumes it. The authenticator's signature counter
// must advance when it is in use.
func (e *Engine) VerifyPasskeyAssertion(ctx context.Context, identityID int64, credentialID string, assertion PasskeyAssertion) error {
	if e == nil || e.challenges == nil {
		return ErrEngineNotReady
	}
	if identityID <= 0 || credentialID == "" {
		return ErrCredentialNotRegistered
	}

	rec, err := e.outstandingChallenge(ctx, stores.ChallengePasskey, identityID)
	if err != nil {
		return err
	}

	cred, err := e.store.FindCredential(ctx, credentialID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrCredentialNotRegistered
		}
		return backendErr(err)
	}
	if cred.IdentityID != identityID || cred.Type != store.CredentialPasskey {
		return ErrCredentialNotRegistered
	}

	policy := verify.PasskeyPolicy{RPID: e.config.Passkey.RPID, AllowedOrigins: e.config.Passkey.AllowedOrigins}
	count, err := verify.PasskeyAssertion(policy, cred.Secret, rec.Value, assertion)
	if err != nil {
		if errors.Is(err, verify.ErrChallengeMismatch) {
			return e.signatureFailed(ctx, stores.ChallengePasskey, identityID, ErrChallengeMismatch)
		}
		return e.signatureFailed(ctx, stores.ChallengePasskey, identityID, ErrSignatureVerificationFailed)
	}
	// A counter that does not advance signals a cloned authenticator.
	if (count != 0 || cred.SignCount != 0) && count <= cred.SignCount {
		return e.signatureFailed(ctx, stores.ChallengePasskey, identityID, ErrSignatureVerificationFailed)
	}

	if err := e.consumeChallenge(ctx, stores.ChallengePasskey, identityID, rec.Value); err != nil {
		return err
	}

	if count > cred.SignCount {
		if err := e.store.UpdateSignCount(ctx, cred.CredentialID, cred.SignCount, count); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return e.signatureFailed(ctx, stores.ChallengePasskey, identityID, ErrSignatureVerificationFailed)
			}
			return backendErr(err)
		}
	}
	return nil
}

// LoginWithPasskey verifies the assertion and issues a session.
func (e *Engine) LoginWithPasskey(ctx context.Context, identityID int64, credentialID string, assertion PasskeyAssertion, deviceInfo string) (*TokenPair, error) {
	if err := e.VerifyPasskeyAssertion(ctx, identityID, credentialID, assertion); err != nil {
		return nil, e.loginFailed(ctx, loginMethodPasskey, identityID, "verify", err)
	}
	return e.challengeLogin(ctx, loginMethodPasskey, identityID, deviceInfo)
}

func (e *Engine) challengeLogin(ctx context.Context, method string, identityID int64, deviceInfo string) (*TokenPair, error) {
	ident, err := e.loadIdentity(ctx, identityID)
	if err != nil {
		return nil, e.loginFailed(ctx, method, identityID, "identity", err)
	}
	if !ident.Enabled {
		return nil, e.loginFailed(ctx, method, ident.ID, "disabled", ErrIdentityDisabled)
	}
	e.recordLogin(ctx, ident.ID)
	return e.loginSucceeded(ctx, method, ident, deviceInfo)
}
