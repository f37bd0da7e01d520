package authcore

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/internal/contact"
	"github.com/MrEthical07/authcore/keyring"
	"github.com/MrEthical07/authcore/store"
	"github.com/google/uuid"
)

// RequestPinReset verifies a RESET code sent to the identity's current mobile and
// returns a ticket for ConfirmPinReset.
func (e *Engine) RequestPinReset(ctx context.Context, identityID int64, mobile, otp string) (*ResetTicket, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	return e.requestReset(ctx, identityID, store.ResetPIN, contact.KindMobile, mobile, otp)
}

// ConfirmPinReset consumes a PIN ticket and stores newPin for deviceMetadata. A ticket
// works once; a second call fails with ErrResetTokenNotFound.
func (e *Engine) ConfirmPinReset(ctx context.Context, token, newPin, deviceMetadata string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if err := e.checkPIN(newPin); err != nil {
		return err
	}

	reset, tokenHash, err := e.pendingReset(ctx, token, store.ResetPIN)
	if err != nil {
		return e.resetRejected(ctx, store.ResetPIN, err)
	}
	if err := e.claimReset(ctx, tokenHash); err != nil {
		return e.resetRejected(ctx, store.ResetPIN, err)
	}
	if err := e.storePIN(ctx, reset.IdentityID, newPin, deviceMetadata); err != nil {
		return err
	}
	e.resetConfirmed(ctx, reset)
	return nil
}

// RequestContactChange verifies a RESET code sent to the identity's current email or
// mobile and returns a ticket for ConfirmContactChange.
func (e *Engine) RequestContactChange(ctx context.Context, identityID int64, kind store.ResetType, currentValue, otp string) (*ResetTicket, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	switch kind {
	case store.ResetEmail:
		return e.requestReset(ctx, identityID, kind, contact.KindEmail, currentValue, otp)
	case store.ResetMobile:
		return e.requestReset(ctx, identityID, kind, contact.KindMobile, currentValue, otp)
	}
	return nil, ErrUnsupportedReset
}

// ConfirmContactChange consumes an EMAIL or MOBILE ticket after verifying a CHANGE code
// sent to newValue, then replaces the stored contact. A wrong code or a newValue that
// another identity already holds leaves the ticket usable until it expires.
func (e *Engine) ConfirmContactChange(ctx context.Context, token, newValue, otp string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	reset, tokenHash, err := e.pendingReset(ctx, token, store.ResetEmail, store.ResetMobile)
	if err != nil {
		return e.resetRejected(ctx, "", err)
	}

	var normalized string
	if reset.Type == store.ResetEmail {
		normalized, err = contact.NormalizeEmail(newValue)
	} else {
		normalized, err = contact.NormalizeMobile(newValue)
	}
	if err != nil {
		return ErrInvalidInput
	}
	newHash, err := e.hash(normalized)
	if err != nil {
		return err
	}
	if err := e.contactAvailable(ctx, reset, newHash); err != nil {
		return e.resetRejected(ctx, reset.Type, err)
	}
	if err := e.consumeOTP(ctx, newHash, otp, OTPPurposeChange); err != nil {
		return e.resetRejected(ctx, reset.Type, err)
	}

	enc, err := e.cipher.Encrypt(normalized)
	if err != nil {
		return backendErr(err)
	}
	if err := e.claimReset(ctx, tokenHash); err != nil {
		return e.resetRejected(ctx, reset.Type, err)
	}
	if err := e.store.UpdateContact(ctx, reset.IdentityID, reset.Type, newHash, enc); err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicate):
			return e.resetRejected(ctx, reset.Type, ErrDuplicateIdentity)
		case errors.Is(err, store.ErrNotFound):
			return e.resetRejected(ctx, reset.Type, ErrIdentityNotFound)
		}
		return backendErr(err)
	}
	e.resetConfirmed(ctx, reset)
	return nil
}

func (e *Engine) requestReset(ctx context.Context, identityID int64, resetType store.ResetType, kind contact.Kind, current, otp string) (*ResetTicket, error) {
	ident, err := e.loadIdentity(ctx, identityID)
	if err != nil {
		return nil, err
	}
	if !ident.Enabled {
		return nil, ErrIdentityDisabled
	}

	var normalized, stored string
	if kind == contact.KindEmail {
		normalized, err = contact.NormalizeEmail(current)
		stored = ident.EmailHash
	} else {
		normalized, err = contact.NormalizeMobile(current)
		stored = ident.MobileHash
	}
	if err != nil {
		return nil, ErrInvalidInput
	}
	currentHash, err := e.hash(normalized)
	if err != nil {
		return nil, err
	}
	if stored == "" || !keyring.Equal(currentHash, stored) {
		return nil, e.resetRejected(ctx, resetType, ErrInvalidCredentials)
	}
	if err := e.consumeOTP(ctx, currentHash, otp, OTPPurposeReset); err != nil {
		return nil, e.resetRejected(ctx, resetType, err)
	}

	token := uuid.NewString()
	tokenHash, err := e.hash(token)
	if err != nil {
		return nil, err
	}
	now := e.now().UTC()
	ticket := &ResetTicket{Token: token, Type: resetType, ExpiresAt: now.Add(e.config.Reset.TTL)}
	if err := e.store.CreateReset(ctx, &store.PendingReset{
		TokenHash:  tokenHash,
		IdentityID: identityID,
		Type:       resetType,
		ExpiresAt:  ticket.ExpiresAt,
		CreatedAt:  now,
	}); err != nil {
		return nil, backendErr(err)
	}

	e.metricInc(MetricResetRequested)
	e.emitAudit(ctx, auditEventResetRequested, true, identityID, "", nil, func() map[string]string {
		return map[string]string{"type": string(resetType)}
	})
	return ticket, nil
}

// pendingReset looks a ticket up without consuming it. A ticket of another type is
// indistinguishable from an unknown one.
func (e *Engine) pendingReset(ctx context.Context, token string, types ...store.ResetType) (*store.PendingReset, string, error) {
	if token == "" {
		return nil, "", ErrResetTokenNotFound
	}
	tokenHash, err := e.hash(token)
	if err != nil {
		return nil, "", err
	}
	reset, err := e.store.GetReset(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, "", ErrResetTokenNotFound
		}
		return nil, "", backendErr(err)
	}

	typeOK := false
	for _, t := range types {
		if reset.Type == t {
			typeOK = true
			break
		}
	}
	if !typeOK {
		return nil, "", ErrResetTokenNotFound
	}
	if !e.now().Before(reset.ExpiresAt) {
		return nil, "", ErrResetTokenExpired
	}
	return reset, tokenHash, nil
}

// contactAvailable fails with ErrDuplicateIdentity when hash is already held in the
// identity's project. UpdateContact still enforces uniqueness for a racing writer.
func (e *Engine) contactAvailable(ctx context.Context, reset *store.PendingReset, hash string) error {
	ident, err := e.loadIdentity(ctx, reset.IdentityID)
	if err != nil {
		return err
	}
	var emailHash, mobileHash, current string
	if reset.Type == store.ResetEmail {
		emailHash, current = hash, ident.EmailHash
	} else {
		mobileHash, current = hash, ident.MobileHash
	}
	if current != "" && keyring.Equal(current, hash) {
		return nil
	}
	taken, err := e.store.IdentityExists(ctx, ident.ProjectType, "", emailHash, mobileHash)
	if err != nil {
		return backendErr(err)
	}
	if taken {
		return ErrDuplicateIdentity
	}
	return nil
}

// claimReset deletes the ticket. Only one concurrent confirmation gets to apply it.
func (e *Engine) claimReset(ctx context.Context, tokenHash string) error {
	deleted, err := e.store.DeleteReset(ctx, tokenHash)
	if err != nil {
		return backendErr(err)
	}
	if !deleted {
		return ErrResetTokenNotFound
	}
	return nil
}

func (e *Engine) resetRejected(ctx context.Context, resetType store.ResetType, err error) error {
	e.metricInc(MetricResetRejected)
	e.emitAudit(ctx, auditEventResetRejected, false, 0, "", err, func() map[string]string {
		return map[string]string{"type": string(resetType)}
	})
	return err
}

func (e *Engine) resetConfirmed(ctx context.Context, reset *store.PendingReset) {
	e.metricInc(MetricResetConfirmed)
	e.emitAudit(ctx, auditEventResetConfirmed, true, reset.IdentityID, "", nil, func() map[string]string {
		return map[string]string{"type": string(reset.Type)}
	})
}
