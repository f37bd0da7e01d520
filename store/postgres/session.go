package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/MrEthical07/authcore/store"
)

const (
	insSession = `
INSERT INTO sessions (id, identity_id, device_info, created_at, expires_at, revoked)
VALUES ($1,$2,$3,$4,$5,false)`
	insRefresh = `
INSERT INTO refresh_tokens (token_hash, session_id, expires_at, created_at)
VALUES ($1,$2,$3,$4)`
	selSession = `
SELECT id, identity_id, device_info, created_at, expires_at, revoked
FROM sessions WHERE id=$1`
)

// CreateSession inserts the session and its first refresh token in one transaction.
func (s *Store) CreateSession(ctx context.Context, sess *store.Session, token *store.RefreshToken) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insSession, sess.ID, sess.IdentityID, sess.DeviceInfo,
			sess.CreatedAt, sess.ExpiresAt); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, insRefresh, token.TokenHash, token.SessionID, token.ExpiresAt, token.CreatedAt)
		return err
	})
}

func scanSession(row pgx.Row) (*store.Session, error) {
	var sess store.Session
	if err := row.Scan(&sess.ID, &sess.IdentityID, &sess.DeviceInfo,
		&sess.CreatedAt, &sess.ExpiresAt, &sess.Revoked); err != nil {
		return nil, notFound(err)
	}
	return &sess, nil
}

// GetSession returns the session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*store.Session, error) {
	return scanSession(s.db.Pool.QueryRow(ctx, selSession, id))
}

// RotateRefreshToken deletes the presented token and inserts next in the same
// transaction. The DELETE takes the row lock, so a concurrent rotation of the same
// token blocks until commit and then finds nothing.
func (s *Store) RotateRefreshToken(ctx context.Context, presentedHash string, next *store.RefreshToken, now time.Time) (*store.Session, error) {
	const del = `DELETE FROM refresh_tokens WHERE token_hash=$1 RETURNING session_id, expires_at`

	var sess *store.Session
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var (
			sessionID string
			expiresAt time.Time
		)
		if err := tx.QueryRow(ctx, del, presentedHash).Scan(&sessionID, &expiresAt); err != nil {
			return notFound(err)
		}
		if !now.Before(expiresAt) {
			return store.ErrExpired
		}

		current, err := scanSession(tx.QueryRow(ctx, selSession, sessionID))
		if errors.Is(err, store.ErrNotFound) {
			return store.ErrRevoked
		}
		if err != nil {
			return err
		}
		if current.Revoked {
			return store.ErrRevoked
		}

		next.SessionID = sessionID
		if _, err := tx.Exec(ctx, insRefresh, next.TokenHash, next.SessionID, next.ExpiresAt, next.CreatedAt); err != nil {
			return err
		}
		sess = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// RevokeSession flags the session revoked and drops its refresh tokens.
func (s *Store) RevokeSession(ctx context.Context, id string) error {
	const upd = `UPDATE sessions SET revoked=true WHERE id=$1`
	const del = `DELETE FROM refresh_tokens WHERE session_id=$1`
	return s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, upd, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return store.ErrNotFound
		}
		_, err = tx.Exec(ctx, del, id)
		return err
	})
}
