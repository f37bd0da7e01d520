package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/internal"
	"github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/internal/stores"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/keyring"
	"github.com/MrEthical07/authcore/notify"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Engine is the authentication orchestrator. It is safe for concurrent use.
type Engine struct {
	config       Config
	store        store.Store
	index        *keyring.BlindIndex
	cipher       *keyring.FieldCipher
	challenges   *stores.ChallengeStore
	rateLimiter  *rate.Limiter
	notifier     notify.Gateway
	audit        *audit.Dispatcher
	metrics      *Metrics
	passwordHash *password.Argon2
	jwtManager   *jwt.Manager
	log          *zap.Logger
	now          func() time.Time
	flowDeps     flows.Deps
}

// Close drains the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports audit events that never reached the sink: discarded on a full
// buffer, or abandoned after Audit.BlockTimeout or the request context ran out.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) initFlowDeps() {
	warn := func(msg string, kv ...any) { e.log.Sugar().Warnw(msg, kv...) }

	e.flowDeps = flows.Deps{
		Issue: flows.IssueDeps{
			Now:              e.now,
			NewSessionID:     uuid.NewString,
			NewRefreshToken:  internal.NewRefreshToken,
			HashToken:        e.index.Hash,
			IssueAccessToken: e.jwtManager.CreateAccess,
			SessionLifetime:  e.config.Session.Lifetime,
			RefreshTTL:       e.config.Session.RefreshTTL,
			SessionStore:     e.store,
		},
		Refresh: flows.RefreshDeps{
			Now:              e.now,
			HashToken:        e.index.Hash,
			NewRefreshToken:  internal.NewRefreshToken,
			IssueAccessToken: e.jwtManager.CreateAccess,
			RefreshTTL:       e.config.Session.RefreshTTL,
			EnforceExpiry:    e.config.Session.EnforceExpiry,
			Warn:             warn,
			RateLimiter:      e.rateLimiter,
			SessionStore:     e.store,
			IdentityStore:    e.store,
		},
		Validate: flows.ValidateDeps{
			ParseAccess:   e.jwtManager.ParseAccess,
			Now:           e.now,
			EnforceExpiry: e.config.Session.EnforceExpiry,
			SessionStore:  e.store,
		},
		Logout: flows.LogoutDeps{
			ParseAccess:  e.jwtManager.ParseAccess,
			SessionStore: e.store,
		},
	}
}

// backendErr wraps an unexpected store or key failure so callers can classify it.
func backendErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func (e *Engine) hash(value string) (string, error) {
	h, err := e.index.Hash(value)
	if err != nil {
		return "", backendErr(err)
	}
	return h, nil
}

func (e *Engine) loadIdentity(ctx context.Context, identityID int64) (*store.Identity, error) {
	if identityID <= 0 {
		return nil, ErrInvalidInput
	}
	ident, err := e.store.GetIdentity(ctx, identityID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrIdentityNotFound
		}
		return nil, backendErr(err)
	}
	return ident, nil
}

// issueSession is createSessionAndTokens: a new session plus an access/refresh pair.
func (e *Engine) issueSession(ctx context.Context, ident *store.Identity, deviceInfo string) (*TokenPair, error) {
	res := flows.RunIssue(ctx, ident, deviceInfo, e.flowDeps.Issue)
	if res.Failure != flows.IssueFailureNone {
		e.log.Error("session issuance failed", zap.Int64("identity_id", ident.ID), zap.Error(res.Err))
		if res.Failure == flows.IssueFailurePersist {
			return nil, backendErr(res.Err)
		}
		return nil, fmt.Errorf("issue session: %w", res.Err)
	}

	e.metricInc(MetricSessionCreated)
	return &TokenPair{
		AccessToken:      res.AccessToken,
		RefreshToken:     res.RefreshToken,
		SessionID:        res.Session.ID,
		IdentityID:       ident.ID,
		AccessExpiresAt:  e.now().Add(e.jwtManager.TTL()),
		RefreshExpiresAt: res.RefreshExpiresAt,
	}, nil
}

// loginSucceeded finishes every login method: session issuance, metrics and audit.
func (e *Engine) loginSucceeded(ctx context.Context, method string, ident *store.Identity, deviceInfo string) (*TokenPair, error) {
	pair, err := e.issueSession(ctx, ident, deviceInfo)
	if err != nil {
		return nil, e.loginFailed(ctx, method, ident.ID, "session_issue", err)
	}
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, ident.ID, pair.SessionID, nil, func() map[string]string {
		return map[string]string{"method": method}
	})
	return pair, nil
}

// Refresh consumes refreshToken and returns a new pair bound to the same session.
// A token that was already used fails with ErrInvalidRefreshToken.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	res := flows.RunRefresh(ctx, refreshToken, e.flowDeps.Refresh)
	var sessionID string
	var identityID int64
	if res.Session != nil {
		sessionID = res.Session.ID
		identityID = res.Session.IdentityID
	}

	fail := func(err error, reason string) (*TokenPair, error) {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, identityID, sessionID, err, func() map[string]string {
			return map[string]string{"reason": reason}
		})
		return nil, err
	}

	switch res.Failure {
	case flows.RefreshFailureNone:
	case flows.RefreshFailureDecode:
		return fail(ErrInvalidRefreshToken, "decode_failed")
	case flows.RefreshFailureRateLimited:
		if !errors.Is(res.Err, rate.ErrRateLimited) {
			return fail(backendErr(res.Err), "rate_limiter_unavailable")
		}
		e.metricInc(MetricRefreshRateLimited)
		e.emitAudit(ctx, auditEventRefreshRateLimited, false, 0, "", ErrRateLimited, nil)
		e.emitRateLimit(ctx, "refresh")
		return nil, ErrRateLimited
	case flows.RefreshFailureNotFound:
		e.metricInc(MetricRefreshReplay)
		return fail(ErrInvalidRefreshToken, "not_found")
	case flows.RefreshFailureExpired:
		return fail(ErrExpiredRefreshToken, "expired")
	case flows.RefreshFailureRevoked:
		return fail(ErrSessionRevoked, "session_revoked")
	case flows.RefreshFailureSessionExpired:
		e.metricInc(MetricSessionRevoked)
		return fail(ErrSessionExpired, "session_expired")
	case flows.RefreshFailureDisabled:
		e.metricInc(MetricSessionRevoked)
		return fail(ErrIdentityDisabled, "identity_disabled")
	case flows.RefreshFailureIdentity:
		if errors.Is(res.Err, store.ErrNotFound) {
			return fail(ErrIdentityNotFound, "identity_missing")
		}
		return fail(backendErr(res.Err), "identity_lookup")
	case flows.RefreshFailureRotate:
		return fail(backendErr(res.Err), "rotate_failed")
	default:
		return fail(fmt.Errorf("refresh: %w", res.Err), "issue_failed")
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, identityID, sessionID, nil, nil)

	return &TokenPair{
		AccessToken:      res.AccessToken,
		RefreshToken:     res.RefreshToken,
		SessionID:        sessionID,
		IdentityID:       identityID,
		AccessExpiresAt:  e.now().Add(e.jwtManager.TTL()),
		RefreshExpiresAt: res.RefreshExpiresAt,
	}, nil
}

// ValidateAccess verifies an access token and that its session is neither revoked nor
// missing (nor expired, with Session.EnforceExpiry).
func (e *Engine) ValidateAccess(ctx context.Context, tokenStr string) (*AuthResult, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.Observe(MetricValidateLatency, time.Since(start))
		}
	}()

	res := flows.RunValidate(ctx, tokenStr, e.flowDeps.Validate)
	switch res.Failure {
	case flows.ValidateFailureNone:
	case flows.ValidateFailureToken:
		return nil, ErrTokenInvalid
	case flows.ValidateFailureSessionNotFound, flows.ValidateFailureSessionRevoked:
		return nil, ErrSessionRevoked
	case flows.ValidateFailureSessionExpired:
		return nil, ErrSessionExpired
	default:
		return nil, backendErr(res.Err)
	}

	return &AuthResult{
		IdentityID: res.Claims.UID,
		SessionID:  res.Claims.SID,
		Roles:      res.Claims.Roles,
		State:      res.Session.State(e.now()),
	}, nil
}

// Logout revokes the session and deletes its refresh token.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if sessionID == "" {
		return ErrInvalidInput
	}
	if err := flows.RunLogout(ctx, sessionID, e.flowDeps.Logout); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrSessionRevoked
		}
		return backendErr(err)
	}
	e.metricInc(MetricSessionRevoked)
	e.emitAudit(ctx, auditEventLogoutSession, true, 0, sessionID, nil, nil)
	return nil
}

// LogoutByAccessToken revokes the session named by a valid access token.
func (e *Engine) LogoutByAccessToken(ctx context.Context, tokenStr string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	res := flows.RunLogoutByAccessToken(ctx, tokenStr, e.flowDeps.Logout)
	if res.Err != nil {
		switch {
		case res.SessionID == "":
			return ErrTokenInvalid
		case errors.Is(res.Err, store.ErrNotFound):
			return ErrSessionRevoked
		default:
			return backendErr(res.Err)
		}
	}
	e.metricInc(MetricSessionRevoked)
	e.emitAudit(ctx, auditEventLogoutSession, true, res.IdentityID, res.SessionID, nil, nil)
	return nil
}
