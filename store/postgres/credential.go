package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/MrEthical07/authcore/store"
)

const credentialSelect = `
SELECT id, identity_id, type, credential_id, secret, device_metadata, sign_count, created_at, updated_at
FROM credentials`

func scanCredential(row pgx.Row) (*store.Credential, error) {
	var (
		c     store.Credential
		kind  string
		count int64
	)
	if err := row.Scan(&c.ID, &c.IdentityID, &kind, &c.CredentialID, &c.Secret,
		&c.DeviceMetadata, &count, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Type = store.CredentialType(kind)
	c.SignCount = uint32(count)
	return &c, nil
}

// UpsertPIN inserts the PIN credential or replaces the hash of the existing one for the
// same identity and device.
func (s *Store) UpsertPIN(ctx context.Context, cred *store.Credential) error {
	const q = `
INSERT INTO credentials (identity_id, type, credential_id, secret, device_metadata, sign_count, created_at, updated_at)
VALUES ($1,'PIN',$2,$3,$4,0,$5,$5)
ON CONFLICT (identity_id, type, device_metadata) WHERE type = 'PIN'
DO UPDATE SET secret=EXCLUDED.secret, updated_at=EXCLUDED.updated_at`
	_, err := s.db.Pool.Exec(ctx, q, cred.IdentityID, cred.CredentialID, cred.Secret,
		cred.DeviceMetadata, cred.UpdatedAt)
	return err
}

// FindPIN returns the PIN credential of identityID for deviceMetadata.
func (s *Store) FindPIN(ctx context.Context, identityID int64, deviceMetadata string) (*store.Credential, error) {
	const q = credentialSelect + ` WHERE identity_id=$1 AND type='PIN' AND device_metadata=$2`
	c, err := scanCredential(s.db.Pool.QueryRow(ctx, q, identityID, deviceMetadata))
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

// UpsertCredential inserts an RSA or passkey credential, or replaces the key material
// when the same identity re-registers the credential id. The conditional DO UPDATE
// affects no row when the id belongs to someone else.
func (s *Store) UpsertCredential(ctx context.Context, cred *store.Credential) error {
	const q = `
INSERT INTO credentials (identity_id, type, credential_id, secret, device_metadata, sign_count, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,0,$6,$6)
ON CONFLICT (credential_id) DO UPDATE
SET secret=EXCLUDED.secret, device_metadata=EXCLUDED.device_metadata, sign_count=0, updated_at=EXCLUDED.updated_at
WHERE credentials.identity_id=EXCLUDED.identity_id AND credentials.type=EXCLUDED.type`
	tag, err := s.db.Pool.Exec(ctx, q, cred.IdentityID, string(cred.Type), cred.CredentialID,
		cred.Secret, cred.DeviceMetadata, cred.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrDuplicate
	}
	return nil
}

// FindCredential returns the credential with the given external id.
func (s *Store) FindCredential(ctx context.Context, credentialID string) (*store.Credential, error) {
	const q = credentialSelect + ` WHERE credential_id=$1`
	c, err := scanCredential(s.db.Pool.QueryRow(ctx, q, credentialID))
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

// ListCredentials returns all credentials of kind owned by identityID, oldest first.
func (s *Store) ListCredentials(ctx context.Context, identityID int64, kind store.CredentialType) ([]store.Credential, error) {
	const q = credentialSelect + ` WHERE identity_id=$1 AND type=$2 ORDER BY id ASC`
	rows, err := s.db.Pool.Query(ctx, q, identityID, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// UpdateSignCount advances the authenticator counter only if it still equals prev.
func (s *Store) UpdateSignCount(ctx context.Context, credentialID string, prev, next uint32) error {
	const q = `UPDATE credentials SET sign_count=$3, updated_at=now() WHERE credential_id=$1 AND sign_count=$2`
	tag, err := s.db.Pool.Exec(ctx, q, credentialID, int64(prev), int64(next))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrConflict
	}
	return nil
}
