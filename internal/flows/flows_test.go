package flows

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/store"
	"github.com/MrEthical07/authcore/store/memory"
)

type fixture struct {
	store    *memory.Store
	identity *store.Identity
	now      time.Time
	seq      atomic.Int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.New("ROLE_USER")
	ident := &store.Identity{UsernameHash: "u1", ProjectType: "p", Enabled: true, Roles: []string{"ROLE_USER"}}
	id, err := st.CreateIdentity(context.Background(), ident, &store.IdentityDetail{})
	if err != nil {
		t.Fatalf("CreateIdentity: %v", err)
	}
	ident.ID = id
	return &fixture{store: st, identity: ident, now: time.Unix(1_700_000_000, 0)}
}

func (f *fixture) token() (string, error) {
	return "tok-" + strconv.FormatInt(f.seq.Add(1), 10), nil
}

func hashToken(s string) (string, error) { return "h:" + s, nil }

func issueAccess(uid int64, sid string, _ []string) (string, error) {
	return strconv.FormatInt(uid, 10) + "/" + sid, nil
}

func (f *fixture) issueDeps() IssueDeps {
	return IssueDeps{
		Now:              func() time.Time { return f.now },
		NewSessionID:     func() string { return "sid-" + strconv.FormatInt(f.seq.Add(1), 10) },
		NewRefreshToken:  f.token,
		HashToken:        hashToken,
		IssueAccessToken: issueAccess,
		SessionLifetime:  30 * time.Minute,
		RefreshTTL:       14 * 24 * time.Hour,
		SessionStore:     f.store,
	}
}

func (f *fixture) refreshDeps() RefreshDeps {
	return RefreshDeps{
		Now:              func() time.Time { return f.now },
		HashToken:        hashToken,
		NewRefreshToken:  f.token,
		IssueAccessToken: issueAccess,
		RefreshTTL:       14 * 24 * time.Hour,
		SessionStore:     f.store,
		IdentityStore:    f.store,
	}
}

func TestIssueThenRefreshRotates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	issued := RunIssue(ctx, f.identity, "device-a", f.issueDeps())
	if issued.Failure != IssueFailureNone {
		t.Fatalf("issue failed: %v %v", issued.Failure, issued.Err)
	}
	if issued.Session.ExpiresAt != f.now.Add(30*time.Minute) {
		t.Fatalf("unexpected session expiry %v", issued.Session.ExpiresAt)
	}

	first := RunRefresh(ctx, issued.RefreshToken, f.refreshDeps())
	if first.Failure != RefreshFailureNone {
		t.Fatalf("refresh failed: %v %v", first.Failure, first.Err)
	}
	if first.RefreshToken == issued.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}
	if first.Session.ID != issued.Session.ID {
		t.Fatal("rotated token bound to a different session")
	}

	replay := RunRefresh(ctx, issued.RefreshToken, f.refreshDeps())
	if replay.Failure != RefreshFailureNotFound {
		t.Fatalf("expected NotFound on replay, got %v", replay.Failure)
	}
}

func TestRefreshExpiredToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issued := RunIssue(ctx, f.identity, "d", f.issueDeps())

	f.now = f.now.Add(15 * 24 * time.Hour)
	res := RunRefresh(ctx, issued.RefreshToken, f.refreshDeps())
	if res.Failure != RefreshFailureExpired {
		t.Fatalf("expected Expired, got %v", res.Failure)
	}
}

func TestRefreshRevokedSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issued := RunIssue(ctx, f.identity, "d", f.issueDeps())

	if err := RunLogout(ctx, issued.Session.ID, LogoutDeps{SessionStore: f.store}); err != nil {
		t.Fatalf("logout: %v", err)
	}
	res := RunRefresh(ctx, issued.RefreshToken, f.refreshDeps())
	if res.Failure != RefreshFailureNotFound && res.Failure != RefreshFailureRevoked {
		t.Fatalf("expected refresh after logout to fail, got %v", res.Failure)
	}
}

func TestRefreshEnforceExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issued := RunIssue(ctx, f.identity, "d", f.issueDeps())

	f.now = f.now.Add(time.Hour)

	deps := f.refreshDeps()
	deps.EnforceExpiry = true
	res := RunRefresh(ctx, issued.RefreshToken, deps)
	if res.Failure != RefreshFailureSessionExpired {
		t.Fatalf("expected SessionExpired, got %v", res.Failure)
	}
	sess, err := f.store.GetSession(ctx, issued.Session.ID)
	if err != nil || !sess.Revoked {
		t.Fatalf("expired session should be revoked: %+v %v", sess, err)
	}
}

func TestRefreshRateLimited(t *testing.T) {
	f := newFixture(t)
	deps := f.refreshDeps()
	limited := errors.New("limited")
	deps.RateLimiter = limiterFunc(func(context.Context, string) error { return limited })

	res := RunRefresh(context.Background(), "whatever", deps)
	if res.Failure != RefreshFailureRateLimited || !errors.Is(res.Err, limited) {
		t.Fatalf("expected rate limit failure, got %v %v", res.Failure, res.Err)
	}
}

type limiterFunc func(context.Context, string) error

func (f limiterFunc) AllowRefresh(ctx context.Context, h string) error { return f(ctx, h) }

func TestIssueSigningFailureLeavesNoSession(t *testing.T) {
	f := newFixture(t)
	deps := f.issueDeps()
	deps.IssueAccessToken = func(int64, string, []string) (string, error) { return "", errors.New("boom") }

	res := RunIssue(context.Background(), f.identity, "d", deps)
	if res.Failure != IssueFailureIssueAccess {
		t.Fatalf("expected IssueAccess failure, got %v", res.Failure)
	}
	if _, err := f.store.GetSession(context.Background(), res.Session.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("session must not be persisted, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issued := RunIssue(ctx, f.identity, "d", f.issueDeps())

	parse := func(sid string, uid int64) func(string) (*jwt.AccessClaims, error) {
		return func(string) (*jwt.AccessClaims, error) {
			return &jwt.AccessClaims{UID: uid, SID: sid}, nil
		}
	}
	deps := ValidateDeps{
		ParseAccess:  parse(issued.Session.ID, f.identity.ID),
		Now:          func() time.Time { return f.now },
		SessionStore: f.store,
	}

	if res := RunValidate(ctx, "x", deps); res.Failure != ValidateFailureNone {
		t.Fatalf("expected success, got %v", res.Failure)
	}

	deps.ParseAccess = parse("missing", f.identity.ID)
	if res := RunValidate(ctx, "x", deps); res.Failure != ValidateFailureSessionNotFound {
		t.Fatalf("expected SessionNotFound, got %v", res.Failure)
	}

	deps.ParseAccess = parse(issued.Session.ID, f.identity.ID+1)
	if res := RunValidate(ctx, "x", deps); res.Failure != ValidateFailureToken {
		t.Fatalf("expected owner mismatch, got %v", res.Failure)
	}

	deps.ParseAccess = parse(issued.Session.ID, f.identity.ID)
	f.now = f.now.Add(time.Hour)
	if res := RunValidate(ctx, "x", deps); res.Failure != ValidateFailureNone {
		t.Fatalf("expired session accepted without EnforceExpiry, got %v", res.Failure)
	}
	deps.EnforceExpiry = true
	if res := RunValidate(ctx, "x", deps); res.Failure != ValidateFailureSessionExpired {
		t.Fatalf("expected SessionExpired, got %v", res.Failure)
	}

	res := RunLogoutByAccessToken(ctx, "x", LogoutDeps{ParseAccess: deps.ParseAccess, SessionStore: f.store})
	if res.Err != nil || res.SessionID != issued.Session.ID {
		t.Fatalf("logout by access: %+v", res)
	}
	deps.EnforceExpiry = false
	if res := RunValidate(ctx, "x", deps); res.Failure != ValidateFailureSessionRevoked {
		t.Fatalf("expected SessionRevoked, got %v", res.Failure)
	}
}
