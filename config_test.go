package authcore

import (
	"testing"
	"time"
)

func validTestConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	return cfg
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{name: "defaults with key", mutate: func(*Config) {}, wantValid: true},
		{name: "missing jwt key", mutate: func(c *Config) { c.JWT.PrivateKey = nil }, wantValid: false},
		{name: "short hs256 key", mutate: func(c *Config) { c.JWT.PrivateKey = []byte("short") }, wantValid: false},
		{name: "unknown signing method", mutate: func(c *Config) { c.JWT.SigningMethod = "none" }, wantValid: false},
		{name: "refresh shorter than access", mutate: func(c *Config) { c.Session.RefreshTTL = time.Minute }, wantValid: false},
		{name: "argon2 memory too low", mutate: func(c *Config) { c.Password.Memory = 1024 }, wantValid: false},
		{name: "pin min too short", mutate: func(c *Config) { c.PIN.MinLength = 3 }, wantValid: false},
		{name: "pin max below min", mutate: func(c *Config) { c.PIN.MaxLength = 2 }, wantValid: false},
		{name: "otp digits too many", mutate: func(c *Config) { c.OTP.Digits = 12 }, wantValid: false},
		{name: "otp ttl too long", mutate: func(c *Config) { c.OTP.TTL = time.Hour }, wantValid: false},
		{name: "otp sends without window", mutate: func(c *Config) { c.OTP.SendWindow = 0 }, wantValid: false},
		{name: "otp sends unlimited", mutate: func(c *Config) { c.OTP.MaxSends = 0; c.OTP.SendWindow = 0 }, wantValid: true},
		{name: "reset ttl zero", mutate: func(c *Config) { c.Reset.TTL = 0 }, wantValid: false},
		{name: "challenge attempts zero", mutate: func(c *Config) { c.Challenge.MaxAttempts = 0 }, wantValid: false},
		{name: "passkey without rp id", mutate: func(c *Config) { c.Passkey.RPID = "" }, wantValid: false},
		{name: "passkey plain http origin", mutate: func(c *Config) { c.Passkey.AllowedOrigins = []string{"http://example.com"} }, wantValid: false},
		{name: "passkey localhost origin", mutate: func(c *Config) { c.Passkey.AllowedOrigins = []string{"http://localhost:8080"} }, wantValid: true},
		{name: "missing default project", mutate: func(c *Config) { c.Registration.DefaultProject = "" }, wantValid: false},
		{name: "missing admin role", mutate: func(c *Config) { c.Registration.AdminRole = "" }, wantValid: false},
		{name: "refresh throttle without budget", mutate: func(c *Config) { c.Security.MaxRefreshAttempts = 0 }, wantValid: false},
		{name: "refresh throttle disabled", mutate: func(c *Config) { c.Security.EnableRefreshThrottle = false; c.Security.MaxRefreshAttempts = 0 }, wantValid: true},
		{name: "audit negative block timeout", mutate: func(c *Config) { c.Audit.BlockTimeout = -time.Second }, wantValid: false},
		{name: "audit without buffer", mutate: func(c *Config) { c.Audit.Enabled = true; c.Audit.BufferSize = 0 }, wantValid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tt.wantValid && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestBuilderConfigIsolatedFromCaller(t *testing.T) {
	cfg := validTestConfig()
	cfg.Passkey.AllowedOrigins = []string{"https://auth.example.com"}
	b := New().WithConfig(cfg)

	cfg.JWT.PrivateKey[0] = 'X'
	cfg.Passkey.AllowedOrigins[0] = "https://evil.example.com"

	if b.config.JWT.PrivateKey[0] != '0' || b.config.Passkey.AllowedOrigins[0] != "https://auth.example.com" {
		t.Fatal("builder config shares memory with the caller")
	}
}

func TestBuilderRequiresCollaborators(t *testing.T) {
	if _, err := New().WithConfig(validTestConfig()).Build(); err == nil {
		t.Fatal("expected error without redis, store, keys and notifier")
	}

	h := newHarness(t)
	if h.engine == nil {
		t.Fatal("harness engine missing")
	}
}

func TestBuilderSingleUse(t *testing.T) {
	b := New().WithConfig(validTestConfig())
	b.built = true
	if _, err := b.Build(); err == nil {
		t.Fatal("expected reuse to fail")
	}
}
