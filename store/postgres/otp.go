package postgres

import (
	"context"

	"github.com/MrEthical07/authcore/store"
)

// CreateOTP stores a hashed code and returns its id.
func (s *Store) CreateOTP(ctx context.Context, rec *store.OTPRecord) (int64, error) {
	const q = `
INSERT INTO otp_records (contact_hash, code_hash, purpose, channel, expires_at, used, created_at)
VALUES ($1,$2,$3,$4,$5,false,$6)
RETURNING id`
	var id int64
	if err := s.db.Pool.QueryRow(ctx, q, rec.ContactHash, rec.CodeHash, rec.Purpose,
		rec.Channel, rec.ExpiresAt, rec.CreatedAt).Scan(&id); err != nil {
		return 0, err
	}
	rec.ID = id
	return id, nil
}

// LatestOTP returns the newest record for contactHash regardless of its used flag.
func (s *Store) LatestOTP(ctx context.Context, contactHash string) (*store.OTPRecord, error) {
	const q = `
SELECT id, contact_hash, code_hash, purpose, channel, expires_at, used, created_at
FROM otp_records WHERE contact_hash=$1
ORDER BY created_at DESC, id DESC LIMIT 1`
	var r store.OTPRecord
	if err := s.db.Pool.QueryRow(ctx, q, contactHash).Scan(
		&r.ID, &r.ContactHash, &r.CodeHash, &r.Purpose, &r.Channel, &r.ExpiresAt, &r.Used, &r.CreatedAt,
	); err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

// MarkOTPUsed consumes the record; false means another caller already did.
func (s *Store) MarkOTPUsed(ctx context.Context, id int64) (bool, error) {
	const q = `UPDATE otp_records SET used=true WHERE id=$1 AND used=false`
	tag, err := s.db.Pool.Exec(ctx, q, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
