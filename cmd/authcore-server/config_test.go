package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "authcore.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigLayers(t *testing.T) {
	path := writeTOML(t, `
[server]
http_addr = ":8081"
requests_per_second = 5.0

[storage]
redis_addr = "redis:6379"

[notify]
url = "https://notify.internal/send"

[auth]
access_ttl = "5m"
default_project = "shop"
allow_otp_signup = false
passkey_rp_id = "auth.example.com"
passkey_origins = ["https://auth.example.com"]
`)
	env := envOf(map[string]string{
		envPostgresDSN:   "postgres://authcore@db/authcore",
		envHMACKey:       "aG1hYy1rZXktMTYtYnl0ZXM=",
		envEncryptionKey: "ZW5jcnlwdGlvbi1rZXktMzItYnl0ZXMtbG9uZyEhISE=",
		envJWTKey:        "jwt-secret-0123456789abcdef0123456789",
	})

	cfg, err := loadConfig([]string{"-config", path, "-http", ":9000", "-migrate=false"}, env)
	require.NoError(t, err)

	want := defaultServerConfig()
	want.Server.HTTPAddr = ":9000"
	want.Server.RequestsPerSecond = 5
	want.Storage.RedisAddr = "redis:6379"
	want.Storage.Migrate = false
	want.Notify.URL = "https://notify.internal/send"
	want.Auth.AccessTTL = 5 * time.Minute
	want.Auth.DefaultProject = "shop"
	want.Auth.AllowOTPSignup = false
	want.Auth.PasskeyRPID = "auth.example.com"
	want.Auth.PasskeyOrigins = []string{"https://auth.example.com"}
	want.Secrets = secrets{
		HMACKey:       "aG1hYy1rZXktMTYtYnl0ZXM=",
		EncryptionKey: "ZW5jcnlwdGlvbi1rZXktMzItYnl0ZXMtbG9uZyEhISE=",
		JWTKey:        "jwt-secret-0123456789abcdef0123456789",
		PostgresDSN:   "postgres://authcore@db/authcore",
	}

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}

	engineCfg := cfg.engineConfig()
	require.NoError(t, engineCfg.Validate())
	require.Equal(t, "shop", engineCfg.Registration.DefaultProject)
	require.False(t, engineCfg.Registration.AllowOTPSignup)
	require.Equal(t, []byte("jwt-secret-0123456789abcdef0123456789"), engineCfg.JWT.PrivateKey)
}

func TestLoadConfigRequiresSecretsOutsideDev(t *testing.T) {
	_, err := loadConfig(nil, envOf(nil))
	require.ErrorContains(t, err, envPostgresDSN)

	_, err = loadConfig(nil, envOf(map[string]string{envPostgresDSN: "postgres://x"}))
	require.ErrorContains(t, err, envHMACKey)

	cfg, err := loadConfig([]string{"-dev"}, envOf(nil))
	require.NoError(t, err)
	require.True(t, cfg.Dev)
}

func TestLoadConfigRejectsBadFile(t *testing.T) {
	path := writeTOML(t, "[server\nhttp_addr = ")
	_, err := loadConfig([]string{"-config", path, "-dev"}, envOf(nil))
	require.Error(t, err)
}

func TestDevSecretsKeepExisting(t *testing.T) {
	s := secrets{JWTKey: "fixed"}
	require.NoError(t, devSecrets(&s))
	require.Equal(t, "fixed", s.JWTKey)
	require.NotEmpty(t, s.HMACKey)
	require.NotEmpty(t, s.EncryptionKey)
}
