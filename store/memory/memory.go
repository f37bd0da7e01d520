// Package memory is an in-process store.Store used by tests and the -dev server mode.
// A single mutex serialises every operation, which trivially satisfies the atomicity
// contract of package store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MrEthical07/authcore/store"
)

type projectKey struct {
	project string
	hash    string
}

// Store keeps all records in maps guarded by one mutex.
type Store struct {
	mu sync.Mutex

	nextIdentity int64
	nextCred     int64
	nextOTP      int64

	roles      map[string]store.Role
	identities map[int64]store.Identity
	details    map[int64]store.IdentityDetail
	byUsername map[projectKey]int64
	byEmail    map[projectKey]int64
	byMobile   map[projectKey]int64

	credentials map[string]store.Credential // by credential id
	sessions    map[string]store.Session
	refresh     map[string]store.RefreshToken
	otps        map[string][]store.OTPRecord // by contact hash, append order
	resets      map[string]store.PendingReset
}

var _ store.Store = (*Store)(nil)

// New returns an empty store seeded with the given role names.
func New(roles ...string) *Store {
	s := &Store{
		roles:       make(map[string]store.Role),
		identities:  make(map[int64]store.Identity),
		details:     make(map[int64]store.IdentityDetail),
		byUsername:  make(map[projectKey]int64),
		byEmail:     make(map[projectKey]int64),
		byMobile:    make(map[projectKey]int64),
		credentials: make(map[string]store.Credential),
		sessions:    make(map[string]store.Session),
		refresh:     make(map[string]store.RefreshToken),
		otps:        make(map[string][]store.OTPRecord),
		resets:      make(map[string]store.PendingReset),
	}
	for i, name := range roles {
		s.roles[name] = store.Role{ID: int64(i + 1), Name: name}
	}
	return s
}

/* ==== IDENTITIES ==== */

func (s *Store) taken(project, username, email, mobile string) bool {
	if username != "" {
		if _, ok := s.byUsername[projectKey{project, username}]; ok {
			return true
		}
	}
	if email != "" {
		if _, ok := s.byEmail[projectKey{project, email}]; ok {
			return true
		}
	}
	if mobile != "" {
		if _, ok := s.byMobile[projectKey{project, mobile}]; ok {
			return true
		}
	}
	return false
}

// CreateIdentity implements store.IdentityStore.
func (s *Store) CreateIdentity(_ context.Context, identity *store.Identity, detail *store.IdentityDetail) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.taken(identity.ProjectType, identity.UsernameHash, identity.EmailHash, identity.MobileHash) {
		return 0, store.ErrDuplicate
	}
	for _, r := range identity.Roles {
		if _, ok := s.roles[r]; !ok {
			return 0, store.ErrNotFound
		}
	}

	s.nextIdentity++
	id := s.nextIdentity
	rec := *identity
	rec.ID = id
	rec.Roles = append([]string(nil), identity.Roles...)
	sort.Strings(rec.Roles)
	s.identities[id] = rec

	d := store.IdentityDetail{IdentityID: id}
	if detail != nil {
		d.EmailEnc, d.MobileEnc = detail.EmailEnc, detail.MobileEnc
	}
	s.details[id] = d

	s.byUsername[projectKey{rec.ProjectType, rec.UsernameHash}] = id
	if rec.EmailHash != "" {
		s.byEmail[projectKey{rec.ProjectType, rec.EmailHash}] = id
	}
	if rec.MobileHash != "" {
		s.byMobile[projectKey{rec.ProjectType, rec.MobileHash}] = id
	}
	identity.ID = id
	return id, nil
}

// IdentityExists implements store.IdentityStore.
func (s *Store) IdentityExists(_ context.Context, projectType, usernameHash, emailHash, mobileHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.taken(projectType, usernameHash, emailHash, mobileHash), nil
}

func (s *Store) identityCopy(id int64) (*store.Identity, error) {
	rec, ok := s.identities[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	rec.Roles = append([]string(nil), rec.Roles...)
	return &rec, nil
}

// GetIdentity implements store.IdentityStore.
func (s *Store) GetIdentity(_ context.Context, id int64) (*store.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identityCopy(id)
}

func (s *Store) findIn(index map[projectKey]int64, project, hash string) (*store.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := index[projectKey{project, hash}]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.identityCopy(id)
}

// FindIdentityByUsername implements store.IdentityStore.
func (s *Store) FindIdentityByUsername(_ context.Context, projectType, usernameHash string) (*store.Identity, error) {
	return s.findIn(s.byUsername, projectType, usernameHash)
}

// FindIdentityByEmail implements store.IdentityStore.
func (s *Store) FindIdentityByEmail(_ context.Context, projectType, emailHash string) (*store.Identity, error) {
	return s.findIn(s.byEmail, projectType, emailHash)
}

// FindIdentityByMobile implements store.IdentityStore.
func (s *Store) FindIdentityByMobile(_ context.Context, projectType, mobileHash string) (*store.Identity, error) {
	return s.findIn(s.byMobile, projectType, mobileHash)
}

// GetIdentityDetail implements store.IdentityStore.
func (s *Store) GetIdentityDetail(_ context.Context, identityID int64) (*store.IdentityDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.details[identityID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &d, nil
}

// RecordLogin implements store.IdentityStore.
func (s *Store) RecordLogin(_ context.Context, identityID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.details[identityID]
	if !ok {
		return store.ErrNotFound
	}
	d.LastLoginAt = d.LoginAt
	d.LoginAt = &at
	d.FailedAttempts = 0
	s.details[identityID] = d
	return nil
}

// RecordFailedLogin implements store.IdentityStore.
func (s *Store) RecordFailedLogin(_ context.Context, identityID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.details[identityID]
	if !ok {
		return store.ErrNotFound
	}
	d.FailedAttempts++
	s.details[identityID] = d
	return nil
}

// SetEnabled flips the enabled flag of an identity. Postgres deployments do this with SQL.
func (s *Store) SetEnabled(identityID int64, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.identities[identityID]
	if !ok {
		return store.ErrNotFound
	}
	rec.Enabled = enabled
	s.identities[identityID] = rec
	return nil
}

// UpdatePasswordHash implements store.IdentityStore.
func (s *Store) UpdatePasswordHash(_ context.Context, identityID int64, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.identities[identityID]
	if !ok {
		return store.ErrNotFound
	}
	rec.PasswordHash = hash
	s.identities[identityID] = rec
	return nil
}

// UpdateContact implements store.IdentityStore.
func (s *Store) UpdateContact(_ context.Context, identityID int64, kind store.ResetType, hash, enc string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.identities[identityID]
	if !ok {
		return store.ErrNotFound
	}
	d := s.details[identityID]

	var index map[projectKey]int64
	var old *string
	switch kind {
	case store.ResetEmail:
		index, old = s.byEmail, &rec.EmailHash
		d.EmailEnc = enc
	case store.ResetMobile:
		index, old = s.byMobile, &rec.MobileHash
		d.MobileEnc = enc
	default:
		return store.ErrConflict
	}

	key := projectKey{rec.ProjectType, hash}
	if owner, ok := index[key]; ok && owner != identityID {
		return store.ErrDuplicate
	}
	if *old != "" {
		delete(index, projectKey{rec.ProjectType, *old})
	}
	*old = hash
	index[key] = identityID
	s.identities[identityID] = rec
	s.details[identityID] = d
	return nil
}

// FindRoleByName implements store.RoleRepository.
func (s *Store) FindRoleByName(_ context.Context, name string) (*store.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[name]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &r, nil
}

/* ==== CREDENTIALS ==== */

// UpsertPIN implements store.CredentialStore.
func (s *Store) UpsertPIN(_ context.Context, cred *store.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, c := range s.credentials {
		if c.Type == store.CredentialPIN && c.IdentityID == cred.IdentityID && c.DeviceMetadata == cred.DeviceMetadata {
			c.Secret = cred.Secret
			c.UpdatedAt = cred.UpdatedAt
			s.credentials[k] = c
			return nil
		}
	}
	s.nextCred++
	c := *cred
	c.ID = s.nextCred
	c.Type = store.CredentialPIN
	c.CreatedAt = cred.UpdatedAt
	s.credentials[c.CredentialID] = c
	return nil
}

// FindPIN implements store.CredentialStore.
func (s *Store) FindPIN(_ context.Context, identityID int64, deviceMetadata string) (*store.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.credentials {
		if c.Type == store.CredentialPIN && c.IdentityID == identityID && c.DeviceMetadata == deviceMetadata {
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

// UpsertCredential implements store.CredentialStore.
func (s *Store) UpsertCredential(_ context.Context, cred *store.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.credentials[cred.CredentialID]; ok {
		if c.IdentityID != cred.IdentityID || c.Type != cred.Type {
			return store.ErrDuplicate
		}
		c.Secret = cred.Secret
		c.DeviceMetadata = cred.DeviceMetadata
		c.SignCount = 0
		c.UpdatedAt = cred.UpdatedAt
		s.credentials[c.CredentialID] = c
		return nil
	}
	s.nextCred++
	c := *cred
	c.ID = s.nextCred
	c.SignCount = 0
	c.CreatedAt = cred.UpdatedAt
	s.credentials[c.CredentialID] = c
	return nil
}

// FindCredential implements store.CredentialStore.
func (s *Store) FindCredential(_ context.Context, credentialID string) (*store.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.credentials[credentialID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

// ListCredentials implements store.CredentialStore.
func (s *Store) ListCredentials(_ context.Context, identityID int64, kind store.CredentialType) ([]store.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Credential
	for _, c := range s.credentials {
		if c.IdentityID == identityID && c.Type == kind {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateSignCount implements store.CredentialStore.
func (s *Store) UpdateSignCount(_ context.Context, credentialID string, prev, next uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.credentials[credentialID]
	if !ok || c.SignCount != prev {
		return store.ErrConflict
	}
	c.SignCount = next
	s.credentials[credentialID] = c
	return nil
}

/* ==== SESSIONS ==== */

// CreateSession implements store.SessionStore.
func (s *Store) CreateSession(_ context.Context, sess *store.Session, token *store.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; ok {
		return store.ErrDuplicate
	}
	if _, ok := s.refresh[token.TokenHash]; ok {
		return store.ErrDuplicate
	}
	s.sessions[sess.ID] = *sess
	s.refresh[token.TokenHash] = *token
	return nil
}

// GetSession implements store.SessionStore.
func (s *Store) GetSession(_ context.Context, id string) (*store.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &sess, nil
}

// RotateRefreshToken implements store.SessionStore. A rejected rotation leaves the
// presented token in place, as the rolled back SQL transaction does.
func (s *Store) RotateRefreshToken(_ context.Context, presentedHash string, next *store.RefreshToken, now time.Time) (*store.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.refresh[presentedHash]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !now.Before(tok.ExpiresAt) {
		return nil, store.ErrExpired
	}
	sess, ok := s.sessions[tok.SessionID]
	if !ok || sess.Revoked {
		return nil, store.ErrRevoked
	}
	delete(s.refresh, presentedHash)
	next.SessionID = tok.SessionID
	s.refresh[next.TokenHash] = *next
	return &sess, nil
}

// RevokeSession implements store.SessionStore.
func (s *Store) RevokeSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return store.ErrNotFound
	}
	sess.Revoked = true
	s.sessions[id] = sess
	for h, tok := range s.refresh {
		if tok.SessionID == id {
			delete(s.refresh, h)
		}
	}
	return nil
}

/* ==== OTP ==== */

// CreateOTP implements store.OTPStore.
func (s *Store) CreateOTP(_ context.Context, rec *store.OTPRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextOTP++
	r := *rec
	r.ID = s.nextOTP
	s.otps[r.ContactHash] = append(s.otps[r.ContactHash], r)
	rec.ID = r.ID
	return r.ID, nil
}

// LatestOTP implements store.OTPStore.
func (s *Store) LatestOTP(_ context.Context, contactHash string) (*store.OTPRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.otps[contactHash]
	if len(list) == 0 {
		return nil, store.ErrNotFound
	}
	latest := list[len(list)-1]
	return &latest, nil
}

// MarkOTPUsed implements store.OTPStore.
func (s *Store) MarkOTPUsed(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for hash, list := range s.otps {
		for i := range list {
			if list[i].ID != id {
				continue
			}
			if list[i].Used {
				return false, nil
			}
			list[i].Used = true
			s.otps[hash] = list
			return true, nil
		}
	}
	return false, nil
}

/* ==== RESETS ==== */

// CreateReset implements store.ResetStore.
func (s *Store) CreateReset(_ context.Context, reset *store.PendingReset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.resets[reset.TokenHash]; ok {
		return store.ErrDuplicate
	}
	s.resets[reset.TokenHash] = *reset
	return nil
}

// GetReset implements store.ResetStore.
func (s *Store) GetReset(_ context.Context, tokenHash string) (*store.PendingReset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.resets[tokenHash]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &r, nil
}

// DeleteReset implements store.ResetStore.
func (s *Store) DeleteReset(_ context.Context, tokenHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.resets[tokenHash]; !ok {
		return false, nil
	}
	delete(s.resets, tokenHash)
	return true, nil
}
