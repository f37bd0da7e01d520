package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/MrEthical07/authcore/store"
)

const identitySelect = `
SELECT i.id, i.username_hash, COALESCE(i.email_hash,''), COALESCE(i.mobile_hash,''),
       i.username_enc, COALESCE(i.password_hash,''), i.project_type, i.enabled, i.created_at,
       COALESCE(array_agg(r.name ORDER BY r.name) FILTER (WHERE r.name IS NOT NULL), '{}')
FROM identities i
LEFT JOIN identity_roles ir ON ir.identity_id = i.id
LEFT JOIN roles r ON r.id = ir.role_id`

func (s *Store) scanIdentity(row pgx.Row) (*store.Identity, error) {
	var id store.Identity
	if err := row.Scan(
		&id.ID, &id.UsernameHash, &id.EmailHash, &id.MobileHash,
		&id.UsernameEnc, &id.PasswordHash, &id.ProjectType, &id.Enabled, &id.CreatedAt,
		&id.Roles,
	); err != nil {
		return nil, notFound(err)
	}
	return &id, nil
}

// CreateIdentity inserts the identity, its detail row and role links in one transaction.
func (s *Store) CreateIdentity(ctx context.Context, identity *store.Identity, detail *store.IdentityDetail) (int64, error) {
	const ins = `
INSERT INTO identities (username_hash, email_hash, mobile_hash, username_enc, password_hash, project_type, enabled, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
RETURNING id`
	const insDetail = `INSERT INTO identity_details (identity_id, email_enc, mobile_enc) VALUES ($1,$2,$3)`
	const insRole = `INSERT INTO identity_roles (identity_id, role_id) SELECT $1, id FROM roles WHERE name=$2`

	var newID int64
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, ins,
			identity.UsernameHash, nullable(identity.EmailHash), nullable(identity.MobileHash),
			identity.UsernameEnc, nullable(identity.PasswordHash), identity.ProjectType,
			identity.Enabled, identity.CreatedAt,
		).Scan(&newID); err != nil {
			if isUniqueViolation(err) {
				return store.ErrDuplicate
			}
			return err
		}

		var emailEnc, mobileEnc string
		if detail != nil {
			emailEnc, mobileEnc = detail.EmailEnc, detail.MobileEnc
		}
		if _, err := tx.Exec(ctx, insDetail, newID, emailEnc, mobileEnc); err != nil {
			return err
		}

		for _, role := range identity.Roles {
			tag, err := tx.Exec(ctx, insRole, newID, role)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("role %q: %w", role, store.ErrNotFound)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	identity.ID = newID
	return newID, nil
}

// IdentityExists reports whether any of the non-empty hashes is taken in projectType.
func (s *Store) IdentityExists(ctx context.Context, projectType, usernameHash, emailHash, mobileHash string) (bool, error) {
	const q = `
SELECT EXISTS (
  SELECT 1 FROM identities
  WHERE project_type=$1 AND (username_hash=$2 OR email_hash=$3 OR mobile_hash=$4)
)`
	var exists bool
	err := s.db.Pool.QueryRow(ctx, q, projectType,
		nullable(usernameHash), nullable(emailHash), nullable(mobileHash),
	).Scan(&exists)
	return exists, err
}

// GetIdentity returns the identity by id.
func (s *Store) GetIdentity(ctx context.Context, id int64) (*store.Identity, error) {
	const q = identitySelect + ` WHERE i.id=$1 GROUP BY i.id`
	return s.scanIdentity(s.db.Pool.QueryRow(ctx, q, id))
}

// FindIdentityByUsername looks an identity up by username blind index.
func (s *Store) FindIdentityByUsername(ctx context.Context, projectType, usernameHash string) (*store.Identity, error) {
	const q = identitySelect + ` WHERE i.project_type=$1 AND i.username_hash=$2 GROUP BY i.id`
	return s.scanIdentity(s.db.Pool.QueryRow(ctx, q, projectType, usernameHash))
}

// FindIdentityByEmail looks an identity up by email blind index.
func (s *Store) FindIdentityByEmail(ctx context.Context, projectType, emailHash string) (*store.Identity, error) {
	const q = identitySelect + ` WHERE i.project_type=$1 AND i.email_hash=$2 GROUP BY i.id`
	return s.scanIdentity(s.db.Pool.QueryRow(ctx, q, projectType, emailHash))
}

// FindIdentityByMobile looks an identity up by mobile blind index.
func (s *Store) FindIdentityByMobile(ctx context.Context, projectType, mobileHash string) (*store.Identity, error) {
	const q = identitySelect + ` WHERE i.project_type=$1 AND i.mobile_hash=$2 GROUP BY i.id`
	return s.scanIdentity(s.db.Pool.QueryRow(ctx, q, projectType, mobileHash))
}

// GetIdentityDetail returns the detail row of identityID.
func (s *Store) GetIdentityDetail(ctx context.Context, identityID int64) (*store.IdentityDetail, error) {
	const q = `
SELECT identity_id, email_enc, mobile_enc, last_login_at, login_at, failed_attempts
FROM identity_details WHERE identity_id=$1`
	var d store.IdentityDetail
	if err := s.db.Pool.QueryRow(ctx, q, identityID).Scan(
		&d.IdentityID, &d.EmailEnc, &d.MobileEnc, &d.LastLoginAt, &d.LoginAt, &d.FailedAttempts,
	); err != nil {
		return nil, notFound(err)
	}
	return &d, nil
}

// RecordLogin moves login_at into last_login_at, stamps at and clears failures.
func (s *Store) RecordLogin(ctx context.Context, identityID int64, at time.Time) error {
	const q = `
UPDATE identity_details
SET last_login_at=login_at, login_at=$2, failed_attempts=0
WHERE identity_id=$1`
	tag, err := s.db.Pool.Exec(ctx, q, identityID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// RecordFailedLogin increments the failed-attempt counter.
func (s *Store) RecordFailedLogin(ctx context.Context, identityID int64) error {
	const q = `UPDATE identity_details SET failed_attempts=failed_attempts+1 WHERE identity_id=$1`
	tag, err := s.db.Pool.Exec(ctx, q, identityID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// UpdatePasswordHash replaces the stored password hash.
func (s *Store) UpdatePasswordHash(ctx context.Context, identityID int64, hash string) error {
	const q = `UPDATE identities SET password_hash=$2 WHERE id=$1`
	tag, err := s.db.Pool.Exec(ctx, q, identityID, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// UpdateContact swaps the email or mobile blind index and ciphertext together.
func (s *Store) UpdateContact(ctx context.Context, identityID int64, kind store.ResetType, hash, enc string) error {
	var updHash, updEnc string
	switch kind {
	case store.ResetEmail:
		updHash = `UPDATE identities SET email_hash=$2 WHERE id=$1`
		updEnc = `UPDATE identity_details SET email_enc=$2 WHERE identity_id=$1`
	case store.ResetMobile:
		updHash = `UPDATE identities SET mobile_hash=$2 WHERE id=$1`
		updEnc = `UPDATE identity_details SET mobile_enc=$2 WHERE identity_id=$1`
	default:
		return fmt.Errorf("postgres: unsupported contact kind %q", kind)
	}

	return s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, updHash, identityID, hash)
		if err != nil {
			if isUniqueViolation(err) {
				return store.ErrDuplicate
			}
			return err
		}
		if tag.RowsAffected() == 0 {
			return store.ErrNotFound
		}
		_, err = tx.Exec(ctx, updEnc, identityID, enc)
		return err
	})
}
