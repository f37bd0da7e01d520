package authcore

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/MrEthical07/authcore/internal/contact"
	"github.com/MrEthical07/authcore/store"
	"github.com/MrEthical07/authcore/verify"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Register creates an identity with the default role. Username is required; password,
// email and mobile are optional. Any blind index already taken in the project yields
// ErrDuplicateIdentity.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*store.Identity, error) {
	return e.register(ctx, req, e.config.Registration.DefaultRole)
}

// AdminRegister is Register with the elevated admin role.
func (e *Engine) AdminRegister(ctx context.Context, req RegisterRequest) (*store.Identity, error) {
	return e.register(ctx, req, e.config.Registration.AdminRole)
}

func (e *Engine) register(ctx context.Context, req RegisterRequest, role string) (*store.Identity, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	fail := func(reason string, err error) (*store.Identity, error) {
		if errors.Is(err, ErrDuplicateIdentity) {
			e.metricInc(MetricRegisterDuplicate)
		}
		e.emitAudit(ctx, auditEventRegisterFailure, false, 0, "", err, func() map[string]string {
			return map[string]string{"reason": reason, "role": role}
		})
		return nil, err
	}

	username := strings.TrimSpace(req.Username)
	if username == "" || utf8.RuneCountInString(username) > 128 {
		return fail("username", ErrInvalidInput)
	}
	if req.Password != "" && utf8.RuneCountInString(req.Password) < e.config.Password.MinLength {
		return fail("password_policy", ErrInvalidInput)
	}

	var email, mobile string
	var err error
	if req.Email != "" {
		if email, err = contact.NormalizeEmail(req.Email); err != nil {
			return fail("email", ErrInvalidInput)
		}
	}
	if req.Mobile != "" {
		if mobile, err = contact.NormalizeMobile(req.Mobile); err != nil {
			return fail("mobile", ErrInvalidInput)
		}
	}

	project := req.ProjectType
	if project == "" {
		project = e.projectFromContext(ctx)
	}

	ident := &store.Identity{
		ProjectType: project,
		Enabled:     true,
		Roles:       []string{role},
		CreatedAt:   e.now().UTC(),
	}
	if ident.UsernameHash, err = e.hash(username); err != nil {
		return fail("hash", err)
	}
	if email != "" {
		if ident.EmailHash, err = e.hash(email); err != nil {
			return fail("hash", err)
		}
	}
	if mobile != "" {
		if ident.MobileHash, err = e.hash(mobile); err != nil {
			return fail("hash", err)
		}
	}

	// The pre-check only saves hashing work; the unique indexes decide.
	exists, err := e.store.IdentityExists(ctx, project, ident.UsernameHash, ident.EmailHash, ident.MobileHash)
	if err != nil {
		return fail("exists_check", backendErr(err))
	}
	if exists {
		return fail("duplicate", ErrDuplicateIdentity)
	}

	if _, err := e.store.FindRoleByName(ctx, role); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fail("role", ErrRoleNotFound)
		}
		return fail("role", backendErr(err))
	}

	if req.Password != "" {
		if ident.PasswordHash, err = e.passwordHash.Hash(req.Password); err != nil {
			return fail("password_hash", ErrInvalidInput)
		}
	}

	detail := &store.IdentityDetail{}
	if ident.UsernameEnc, err = e.cipher.Encrypt(username); err != nil {
		return fail("encrypt", backendErr(err))
	}
	if email != "" {
		if detail.EmailEnc, err = e.cipher.Encrypt(email); err != nil {
			return fail("encrypt", backendErr(err))
		}
	}
	if mobile != "" {
		if detail.MobileEnc, err = e.cipher.Encrypt(mobile); err != nil {
			return fail("encrypt", backendErr(err))
		}
	}

	id, err := e.store.CreateIdentity(ctx, ident, detail)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicate):
			return fail("duplicate", ErrDuplicateIdentity)
		case errors.Is(err, store.ErrNotFound):
			return fail("role", ErrRoleNotFound)
		}
		return fail("create", backendErr(err))
	}
	ident.ID = id

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, id, "", nil, func() map[string]string {
		return map[string]string{"role": role}
	})
	return ident, nil
}

// RegisterCredential stores an RSA or passkey public key (base64 PKIX DER) under
// credentialID. Re-registering the same id for the same identity replaces the key and
// resets its signature counter.
func (e *Engine) RegisterCredential(ctx context.Context, identityID int64, kind store.CredentialType, credentialID, publicKey string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if kind != store.CredentialRSA && kind != store.CredentialPasskey {
		return ErrInvalidInput
	}
	credentialID = strings.TrimSpace(credentialID)
	if credentialID == "" || len(credentialID) > 512 {
		return ErrInvalidInput
	}
	if _, err := verify.ParsePublicKey(publicKey); err != nil {
		return ErrInvalidInput
	}
	if _, err := e.loadIdentity(ctx, identityID); err != nil {
		return err
	}

	now := e.now().UTC()
	err := e.store.UpsertCredential(ctx, &store.Credential{
		IdentityID:   identityID,
		Type:         kind,
		CredentialID: credentialID,
		Secret:       publicKey,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return ErrCredentialConflict
		}
		return backendErr(err)
	}

	e.metricInc(MetricCredentialRegistered)
	e.emitAudit(ctx, auditEventCredentialRegistered, true, identityID, "", nil, func() map[string]string {
		return map[string]string{"type": string(kind)}
	})
	return nil
}

// RegisterPin sets the PIN for identityID on one device. Each device holds its own PIN.
func (e *Engine) RegisterPin(ctx context.Context, identityID int64, pin, deviceMetadata string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if err := e.checkPIN(pin); err != nil {
		return err
	}
	if _, err := e.loadIdentity(ctx, identityID); err != nil {
		return err
	}
	return e.storePIN(ctx, identityID, pin, deviceMetadata)
}

func (e *Engine) storePIN(ctx context.Context, identityID int64, pin, deviceMetadata string) error {
	hash, err := e.passwordHash.Hash(pin)
	if err != nil {
		return ErrInvalidInput
	}
	now := e.now().UTC()
	err = e.store.UpsertPIN(ctx, &store.Credential{
		IdentityID:     identityID,
		Type:           store.CredentialPIN,
		CredentialID:   "pin-" + uuid.NewString(),
		Secret:         hash,
		DeviceMetadata: deviceMetadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return backendErr(err)
	}

	e.metricInc(MetricCredentialRegistered)
	e.emitAudit(ctx, auditEventPinRegistered, true, identityID, "", nil, nil)
	return nil
}

func (e *Engine) checkPIN(pin string) error {
	n := len(pin)
	if n < e.config.PIN.MinLength || n > e.config.PIN.MaxLength {
		return ErrInvalidInput
	}
	if e.config.PIN.DigitsOnly {
		for i := 0; i < n; i++ {
			if pin[i] < '0' || pin[i] > '9' {
				return ErrInvalidInput
			}
		}
	}
	return nil
}

// ResolveIdentity maps a mobile number or email address to its identity in the
// context's project.
func (e *Engine) ResolveIdentity(ctx context.Context, contactValue string) (*store.Identity, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	normalized, kind, err := contact.Normalize(contactValue)
	if err != nil {
		return nil, ErrInvalidInput
	}
	h, err := e.hash(normalized)
	if err != nil {
		return nil, err
	}
	return e.findByContact(ctx, e.projectFromContext(ctx), kind, h)
}

func (e *Engine) findByContact(ctx context.Context, project string, kind contact.Kind, hash string) (*store.Identity, error) {
	var (
		ident *store.Identity
		err   error
	)
	if kind == contact.KindEmail {
		ident, err = e.store.FindIdentityByEmail(ctx, project, hash)
	} else {
		ident, err = e.store.FindIdentityByMobile(ctx, project, hash)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrIdentityNotFound
		}
		return nil, backendErr(err)
	}
	return ident, nil
}

// contactsOf decrypts the stored contact values of an identity. Missing or undecryptable
// values come back empty.
func (e *Engine) contactsOf(ctx context.Context, ident *store.Identity) (username, email, mobile string) {
	if ident.UsernameEnc != "" {
		if v, err := e.cipher.Decrypt(ident.UsernameEnc); err == nil {
			username = v
		}
	}
	detail, err := e.store.GetIdentityDetail(ctx, ident.ID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			e.log.Warn("identity detail lookup failed", zap.Int64("identity_id", ident.ID), zap.Error(err))
		}
		return username, "", ""
	}
	if detail.EmailEnc != "" {
		if v, err := e.cipher.Decrypt(detail.EmailEnc); err == nil {
			email = v
		}
	}
	if detail.MobileEnc != "" {
		if v, err := e.cipher.Decrypt(detail.MobileEnc); err == nil {
			mobile = v
		}
	}
	return username, email, mobile
}
