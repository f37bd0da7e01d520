package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/store"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureDecode
	RefreshFailureRateLimited
	RefreshFailureNextToken
	RefreshFailureNotFound
	RefreshFailureExpired
	RefreshFailureRevoked
	RefreshFailureSessionExpired
	RefreshFailureRotate
	RefreshFailureIdentity
	RefreshFailureDisabled
	RefreshFailureIssueAccess
)

// RefreshResult carries either the issued token pair or failure metadata.
type RefreshResult struct {
	Failure          RefreshFailureKind
	Err              error
	Session          *store.Session
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
}

type RefreshRateLimiter interface {
	AllowRefresh(ctx context.Context, tokenHash string) error
}

type RefreshSessionStore interface {
	RotateRefreshToken(ctx context.Context, presentedHash string, next *store.RefreshToken, now time.Time) (*store.Session, error)
	RevokeSession(ctx context.Context, id string) error
}

type RefreshIdentityStore interface {
	GetIdentity(ctx context.Context, id int64) (*store.Identity, error)
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Now              func() time.Time
	HashToken        func(string) (string, error)
	NewRefreshToken  func() (string, error)
	IssueAccessToken func(uid int64, sid string, roles []string) (string, error)
	RefreshTTL       time.Duration
	EnforceExpiry    bool
	Warn             func(string, ...any)
	RateLimiter      RefreshRateLimiter
	SessionStore     RefreshSessionStore
	IdentityStore    RefreshIdentityStore
}

// RunRefresh consumes the presented refresh token and issues its successor bound to
// the same session. The store performs lookup, delete and insert atomically.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	if refreshToken == "" {
		return RefreshResult{Failure: RefreshFailureDecode, Err: errors.New("empty refresh token")}
	}
	presentedHash, err := deps.HashToken(refreshToken)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureDecode, Err: err}
	}

	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.AllowRefresh(ctx, presentedHash); err != nil {
			return RefreshResult{Failure: RefreshFailureRateLimited, Err: err}
		}
	}

	next, err := deps.NewRefreshToken()
	if err != nil {
		return RefreshResult{Failure: RefreshFailureNextToken, Err: err}
	}
	nextHash, err := deps.HashToken(next)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureNextToken, Err: err}
	}

	now := deps.Now()
	successor := &store.RefreshToken{
		TokenHash: nextHash,
		ExpiresAt: now.Add(deps.RefreshTTL),
		CreatedAt: now,
	}

	sess, err := deps.SessionStore.RotateRefreshToken(ctx, presentedHash, successor, now)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return RefreshResult{Failure: RefreshFailureNotFound, Err: err}
		case errors.Is(err, store.ErrExpired):
			return RefreshResult{Failure: RefreshFailureExpired, Err: err}
		case errors.Is(err, store.ErrRevoked):
			return RefreshResult{Failure: RefreshFailureRevoked, Err: err}
		default:
			return RefreshResult{Failure: RefreshFailureRotate, Err: err}
		}
	}

	if deps.EnforceExpiry && sess.State(now) == store.SessionExpired {
		if revokeErr := deps.SessionStore.RevokeSession(ctx, sess.ID); revokeErr != nil && deps.Warn != nil {
			deps.Warn("expired session revoke failed", "session_id", sess.ID)
		}
		return RefreshResult{Failure: RefreshFailureSessionExpired, Session: sess}
	}

	identity, err := deps.IdentityStore.GetIdentity(ctx, sess.IdentityID)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIdentity, Err: err, Session: sess}
	}
	if !identity.Enabled {
		if revokeErr := deps.SessionStore.RevokeSession(ctx, sess.ID); revokeErr != nil && deps.Warn != nil {
			deps.Warn("disabled identity session revoke failed", "session_id", sess.ID)
		}
		return RefreshResult{Failure: RefreshFailureDisabled, Session: sess}
	}

	access, err := deps.IssueAccessToken(identity.ID, sess.ID, identity.Roles)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssueAccess, Err: err, Session: sess}
	}

	return RefreshResult{
		Session:          sess,
		AccessToken:      access,
		RefreshToken:     next,
		RefreshExpiresAt: successor.ExpiresAt,
	}
}
