package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/store"
)

// ValidateFailureKind classifies access validation failures for root-level mapping.
type ValidateFailureKind int

const (
	ValidateFailureNone ValidateFailureKind = iota
	ValidateFailureToken
	ValidateFailureSessionNotFound
	ValidateFailureSessionRevoked
	ValidateFailureSessionExpired
	ValidateFailureBackend
)

// ValidateResult returns either claims/session success payload or classified failure.
type ValidateResult struct {
	Failure ValidateFailureKind
	Err     error
	Claims  *jwt.AccessClaims
	Session *store.Session
}

type ValidateSessionStore interface {
	GetSession(ctx context.Context, id string) (*store.Session, error)
}

// ValidateDeps captures access validation dependencies.
type ValidateDeps struct {
	ParseAccess   func(string) (*jwt.AccessClaims, error)
	Now           func() time.Time
	EnforceExpiry bool
	SessionStore  ValidateSessionStore
}

// RunValidate verifies the access token and then checks that the bound session still
// exists and is not revoked.
func RunValidate(ctx context.Context, tokenStr string, deps ValidateDeps) ValidateResult {
	claims, err := deps.ParseAccess(tokenStr)
	if err != nil {
		return ValidateResult{Failure: ValidateFailureToken, Err: err}
	}

	sess, err := deps.SessionStore.GetSession(ctx, claims.SID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ValidateResult{Failure: ValidateFailureSessionNotFound, Err: err, Claims: claims}
		}
		return ValidateResult{Failure: ValidateFailureBackend, Err: err, Claims: claims}
	}
	if sess.IdentityID != claims.UID {
		return ValidateResult{Failure: ValidateFailureToken, Err: errors.New("session owner mismatch"), Claims: claims}
	}

	switch sess.State(deps.Now()) {
	case store.SessionRevoked:
		return ValidateResult{Failure: ValidateFailureSessionRevoked, Claims: claims, Session: sess}
	case store.SessionExpired:
		if deps.EnforceExpiry {
			return ValidateResult{Failure: ValidateFailureSessionExpired, Claims: claims, Session: sess}
		}
	}

	return ValidateResult{Claims: claims, Session: sess}
}
