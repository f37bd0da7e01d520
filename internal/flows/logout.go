package flows

import (
	"context"

	"github.com/MrEthical07/authcore/jwt"
)

type LogoutSessionStore interface {
	RevokeSession(ctx context.Context, id string) error
}

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	ParseAccess  func(string) (*jwt.AccessClaims, error)
	SessionStore LogoutSessionStore
}

type LogoutByAccessResult struct {
	IdentityID int64
	SessionID  string
	Err        error
}

func RunLogout(ctx context.Context, sessionID string, deps LogoutDeps) error {
	return deps.SessionStore.RevokeSession(ctx, sessionID)
}

func RunLogoutByAccessToken(ctx context.Context, tokenStr string, deps LogoutDeps) LogoutByAccessResult {
	claims, err := deps.ParseAccess(tokenStr)
	if err != nil {
		return LogoutByAccessResult{Err: err}
	}
	return LogoutByAccessResult{
		IdentityID: claims.UID,
		SessionID:  claims.SID,
		Err:        deps.SessionStore.RevokeSession(ctx, claims.SID),
	}
}
