package postgres

import (
	"context"

	"github.com/MrEthical07/authcore/store"
)

// CreateReset stores a pending reset keyed by its token hash.
func (s *Store) CreateReset(ctx context.Context, reset *store.PendingReset) error {
	const q = `
INSERT INTO pending_resets (token_hash, identity_id, type, expires_at, created_at)
VALUES ($1,$2,$3,$4,$5)`
	_, err := s.db.Pool.Exec(ctx, q, reset.TokenHash, reset.IdentityID, string(reset.Type),
		reset.ExpiresAt, reset.CreatedAt)
	if isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	return err
}

// GetReset returns the pending reset for tokenHash.
func (s *Store) GetReset(ctx context.Context, tokenHash string) (*store.PendingReset, error) {
	const q = `
SELECT token_hash, identity_id, type, expires_at, created_at
FROM pending_resets WHERE token_hash=$1`
	var (
		r    store.PendingReset
		kind string
	)
	if err := s.db.Pool.QueryRow(ctx, q, tokenHash).Scan(
		&r.TokenHash, &r.IdentityID, &kind, &r.ExpiresAt, &r.CreatedAt,
	); err != nil {
		return nil, notFound(err)
	}
	r.Type = store.ResetType(kind)
	return &r, nil
}

// DeleteReset removes the reset; false means it was already gone.
func (s *Store) DeleteReset(ctx context.Context, tokenHash string) (bool, error) {
	const q = `DELETE FROM pending_resets WHERE token_hash=$1`
	tag, err := s.db.Pool.Exec(ctx, q, tokenHash)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
