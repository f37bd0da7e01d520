package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/authcore/store"
)

// IssueFailureKind classifies session issuance failures for root-level mapping.
type IssueFailureKind int

const (
	IssueFailureNone IssueFailureKind = iota
	IssueFailureRefreshToken
	IssueFailureHash
	IssueFailurePersist
	IssueFailureIssueAccess
)

// IssueResult carries the new session and its token pair, or failure metadata.
type IssueResult struct {
	Failure          IssueFailureKind
	Err              error
	Session          *store.Session
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
}

type IssueSessionStore interface {
	CreateSession(ctx context.Context, sess *store.Session, token *store.RefreshToken) error
}

// IssueDeps captures session issuance dependencies.
type IssueDeps struct {
	Now              func() time.Time
	NewSessionID     func() string
	NewRefreshToken  func() (string, error)
	HashToken        func(string) (string, error)
	IssueAccessToken func(uid int64, sid string, roles []string) (string, error)
	SessionLifetime  time.Duration
	RefreshTTL       time.Duration
	SessionStore     IssueSessionStore
}

// RunIssue persists a new session with its first refresh token hash and mints the
// access/refresh pair. Nothing is persisted when token generation fails.
func RunIssue(ctx context.Context, identity *store.Identity, deviceInfo string, deps IssueDeps) IssueResult {
	now := deps.Now()

	refresh, err := deps.NewRefreshToken()
	if err != nil {
		return IssueResult{Failure: IssueFailureRefreshToken, Err: err}
	}
	refreshHash, err := deps.HashToken(refresh)
	if err != nil {
		return IssueResult{Failure: IssueFailureHash, Err: err}
	}

	sess := &store.Session{
		ID:         deps.NewSessionID(),
		IdentityID: identity.ID,
		DeviceInfo: deviceInfo,
		CreatedAt:  now,
		ExpiresAt:  now.Add(deps.SessionLifetime),
	}
	token := &store.RefreshToken{
		TokenHash: refreshHash,
		SessionID: sess.ID,
		ExpiresAt: now.Add(deps.RefreshTTL),
		CreatedAt: now,
	}

	// Sign before persisting so a signing failure leaves no orphan session.
	access, err := deps.IssueAccessToken(identity.ID, sess.ID, identity.Roles)
	if err != nil {
		return IssueResult{Failure: IssueFailureIssueAccess, Err: err, Session: sess}
	}

	if err := deps.SessionStore.CreateSession(ctx, sess, token); err != nil {
		return IssueResult{Failure: IssueFailurePersist, Err: err, Session: sess}
	}

	return IssueResult{
		Session:          sess,
		AccessToken:      access,
		RefreshToken:     refresh,
		RefreshExpiresAt: token.ExpiresAt,
	}
}
