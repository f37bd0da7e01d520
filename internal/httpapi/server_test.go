package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/keyring"
	"github.com/MrEthical07/authcore/notify"
	"github.com/MrEthical07/authcore/store/memory"
)

type outbox struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (o *outbox) Send(_ context.Context, msg notify.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, msg)
	return nil
}

func (o *outbox) lastCode(t *testing.T) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.msgs)
	return o.msgs[len(o.msgs)-1].Placeholders["otp"]
}

type fixture struct {
	handler http.Handler
	engine  *authcore.Engine
	outbox  *outbox
	logs    *observer.ObservedLogs
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	keys, err := keyring.NewStaticProvider(bytes.Repeat([]byte{1}, 32), bytes.Repeat([]byte{2}, 32))
	require.NoError(t, err)

	cfg := authcore.DefaultConfig()
	cfg.JWT.PrivateKey = bytes.Repeat([]byte("k"), 32)
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	box := &outbox{}
	engine, err := authcore.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithStore(memory.New("ROLE_USER", "ROLE_ADMIN")).
		WithKeyProvider(keys).
		WithNotifier(box).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	core, logs := observer.New(zap.InfoLevel)
	if opts.AdminRole == "" {
		opts.AdminRole = cfg.Registration.AdminRole
	}
	srv := New(engine, zap.New(core), opts)

	return &fixture{handler: srv.Handler(), engine: engine, outbox: box, logs: logs}
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "192.0.2.10:5555"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[map[string]string](t, rec)["error"]
}

func TestPasswordLoginRefreshLogout(t *testing.T) {
	f := newFixture(t, Options{})

	rec := f.do(t, http.MethodPost, "/v1/register", "", map[string]string{"username": "alice", "password": "correct-horse"})
	require.Equal(t, http.StatusCreated, rec.Code)
	ident := decodeBody[identityResponse](t, rec)
	require.Equal(t, []string{"ROLE_USER"}, ident.Roles)

	rec = f.do(t, http.MethodPost, "/v1/register", "", map[string]string{"username": "alice", "password": "correct-horse"})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "duplicate_identity", errorCode(t, rec))

	rec = f.do(t, http.MethodPost, "/v1/login/password", "", map[string]string{"username": "alice", "password": "wrong-horse"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "invalid_credentials", errorCode(t, rec))

	rec = f.do(t, http.MethodPost, "/v1/login/password", "", map[string]string{"username": "alice", "password": "correct-horse", "deviceInfo": "laptop"})
	require.Equal(t, http.StatusOK, rec.Code)
	pair := decodeBody[tokenResponse](t, rec)
	require.Equal(t, ident.ID, pair.IdentityID)

	rec = f.do(t, http.MethodGet, "/v1/me", pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decodeBody[map[string]any](t, rec)
	require.Equal(t, "ACTIVE", me["state"])

	rec = f.do(t, http.MethodPost, "/v1/refresh", "", map[string]string{"refreshToken": pair.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)
	next := decodeBody[tokenResponse](t, rec)
	require.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	rec = f.do(t, http.MethodPost, "/v1/refresh", "", map[string]string{"refreshToken": pair.RefreshToken})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "invalid_refresh_token", errorCode(t, rec))

	rec = f.do(t, http.MethodPost, "/v1/logout", next.AccessToken, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/me", next.AccessToken, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOTPLoginOverHTTP(t *testing.T) {
	f := newFixture(t, Options{})

	rec := f.do(t, http.MethodPost, "/v1/otp", "", map[string]string{"contact": "+1555000111", "purpose": "LOGIN", "channel": "pigeon"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "unsupported_channel", errorCode(t, rec))

	rec = f.do(t, http.MethodPost, "/v1/otp", "", map[string]string{"contact": "+1555000111", "purpose": "LOGIN"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	dispatch := decodeBody[map[string]any](t, rec)
	require.Equal(t, "SMS", dispatch["channel"])
	require.NotContains(t, dispatch, "otp")

	rec = f.do(t, http.MethodPost, "/v1/login/otp", "", map[string]string{"mobile": "+1555000111", "code": f.outbox.lastCode(t), "deviceInfo": "phone"})
	require.Equal(t, http.StatusOK, rec.Code)
	pair := decodeBody[tokenResponse](t, rec)
	require.NotZero(t, pair.IdentityID)
}

func TestGuardedRoutes(t *testing.T) {
	f := newFixture(t, Options{})

	rec := f.do(t, http.MethodPost, "/v1/pin", "", map[string]string{"pin": "1234"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	f.do(t, http.MethodPost, "/v1/register", "", map[string]string{"username": "alice", "password": "correct-horse"})
	rec = f.do(t, http.MethodPost, "/v1/login/password", "", map[string]string{"username": "alice", "password": "correct-horse"})
	pair := decodeBody[tokenResponse](t, rec)

	rec = f.do(t, http.MethodPost, "/v1/admin/register", pair.AccessToken, map[string]string{"username": "mallory", "password": "correct-horse"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/pin", pair.AccessToken, map[string]string{"pin": "7391", "deviceMetadata": "phone"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/login/pin", "", map[string]any{"identityId": pair.IdentityID, "pin": "7391", "deviceInfo": "phone"})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMalformedBody(t *testing.T) {
	f := newFixture(t, Options{})

	req := httptest.NewRequest(http.MethodPost, "/v1/login/password", bytes.NewBufferString(`{"username":"alice","extra":1}`))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_input", errorCode(t, rec))
}

func TestThrottleRejectsBurst(t *testing.T) {
	f := newFixture(t, Options{RequestsPerSecond: 1, Burst: 2})

	for i := 0; i < 2; i++ {
		rec := f.do(t, http.MethodGet, "/healthz", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := f.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "rate_limited", errorCode(t, rec))
}

func TestAccessLogOmitsBodies(t *testing.T) {
	f := newFixture(t, Options{})

	f.do(t, http.MethodPost, "/v1/login/password", "", map[string]string{"username": "alice", "password": "hunter2-secret"})

	entries := f.logs.FilterMessage("http").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "/v1/login/password", fields["path"])
	require.EqualValues(t, http.StatusUnauthorized, fields["status"])
	for _, v := range fields {
		require.NotContains(t, fmt.Sprint(v), "hunter2-secret")
	}
}

func TestIPThrottleForgetsIdleClients(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	th := newIPThrottle(1, 1, func() time.Time { return now })

	require.True(t, th.allow("192.0.2.1"))
	require.False(t, th.allow("192.0.2.1"))
	require.True(t, th.allow("192.0.2.2"))
	require.Equal(t, 2, th.size())

	now = now.Add(throttleIdle + throttleSweep)
	require.True(t, th.allow("192.0.2.3"))
	require.Equal(t, 1, th.size())
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "192.0.2.10:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	require.Equal(t, "192.0.2.10", New(nil, nil, Options{}).clientIP(req))
	require.Equal(t, "203.0.113.7", New(nil, nil, Options{TrustProxy: true}).clientIP(req))
}
