package authcore

import (
	"errors"
	"strings"
	"time"
)

// Config holds every Engine setting. Start from DefaultConfig and override fields.
type Config struct {
	JWT          JWTConfig
	Session      SessionConfig
	Password     PasswordConfig
	PIN          PINConfig
	OTP          OTPConfig
	Reset        ResetConfig
	Challenge    ChallengeConfig
	Passkey      PasskeyConfig
	Registration RegistrationConfig
	Security     SecurityConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures access token signing.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "hs256" (default), "rs256" or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session and refresh token lifetimes.
type SessionConfig struct {
	// Lifetime is the absolute session expiry recorded at creation.
	Lifetime time.Duration
	// RefreshTTL is each refresh token's own expiry.
	RefreshTTL time.Duration
	// EnforceExpiry rejects refresh and validation on sessions past Lifetime.
	EnforceExpiry bool
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds argon2id parameters shared by passwords and PINs.
type PasswordConfig struct {
	Memory           uint32 // in KB
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
	MinLength        int
	UpgradeOnLogin   bool
}

// PINConfig is the policy applied by RegisterPin and ConfirmPinReset.
type PINConfig struct {
	MinLength  int
	MaxLength  int
	DigitsOnly bool
}

/*
====================================
OTP / RESET / CHALLENGE CONFIG
====================================
*/

// OTPConfig controls one-time code generation and throttling.
type OTPConfig struct {
	Digits         int
	TTL            time.Duration
	EnableFallback bool
	// MaxSends per SendWindow per contact. Zero disables the limit.
	MaxSends   int
	SendWindow time.Duration
	// MaxVerifyAttempts per VerifyWindow per contact. Zero disables the limit.
	MaxVerifyAttempts int
	VerifyWindow      time.Duration
}

// ResetConfig controls pending reset tokens.
type ResetConfig struct {
	TTL time.Duration
}

// ChallengeConfig controls RSA and passkey challenges.
type ChallengeConfig struct {
	TTL         time.Duration
	MaxAttempts int
	RedisPrefix string
}

// PasskeyConfig is the relying party policy for passkey assertions.
type PasskeyConfig struct {
	// RPID is the relying party id whose SHA-256 authenticatorData must carry. Required.
	RPID string
	// AllowedOrigins is matched exactly against clientDataJSON.origin. Empty allows any.
	AllowedOrigins []string
}

// RegistrationConfig controls identity creation.
type RegistrationConfig struct {
	DefaultProject string
	DefaultRole    string
	AdminRole      string
	// AllowOTPSignup lets LoginWithOTP create an identity for an unknown mobile, and
	// lets GenerateOTP issue LOGIN codes for contacts with no identity yet.
	AllowOTPSignup bool
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig controls throttling.
type SecurityConfig struct {
	EnableIPThrottle        bool
	MaxLoginAttempts        int
	LoginCooldownDuration   time.Duration
	EnableRefreshThrottle   bool
	MaxRefreshAttempts      int
	RefreshCooldownDuration time.Duration
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// BlockTimeout caps how long a request waits for buffer room when DropIfFull is
	// off. Zero waits until the request context ends.
	BlockTimeout time.Duration
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the reference settings. JWT keys must still be supplied.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			SigningMethod: "hs256",
		},
		Session: SessionConfig{
			Lifetime:   30 * time.Minute,
			RefreshTTL: 14 * 24 * time.Hour,
		},
		Password: PasswordConfig{
			Memory:           65536,
			Time:             3,
			Parallelism:      2,
			SaltLength:       16,
			KeyLength:        32,
			MaxPasswordBytes: 1024,
			MinLength:        0,
			UpgradeOnLogin:   true,
		},
		PIN: PINConfig{
			MinLength:  4,
			MaxLength:  8,
			DigitsOnly: true,
		},
		OTP: OTPConfig{
			Digits:            6,
			TTL:               3 * time.Minute,
			EnableFallback:    true,
			MaxSends:          5,
			SendWindow:        15 * time.Minute,
			MaxVerifyAttempts: 5,
			VerifyWindow:      15 * time.Minute,
		},
		Reset: ResetConfig{
			TTL: 10 * time.Minute,
		},
		Challenge: ChallengeConfig{
			TTL:         5 * time.Minute,
			MaxAttempts: 5,
			RedisPrefix: "ach",
		},
		Passkey: PasskeyConfig{
			RPID: "localhost",
		},
		Registration: RegistrationConfig{
			DefaultProject: "default",
			DefaultRole:    "ROLE_USER",
			AdminRole:      "ROLE_ADMIN",
			AllowOTPSignup: true,
		},
		Security: SecurityConfig{
			EnableIPThrottle:        false,
			MaxLoginAttempts:        5,
			LoginCooldownDuration:   15 * time.Minute,
			EnableRefreshThrottle:   true,
			MaxRefreshAttempts:      20,
			RefreshCooldownDuration: time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.Passkey.AllowedOrigins != nil {
		out.Passkey.AllowedOrigins = append([]string(nil), cfg.Passkey.AllowedOrigins...)
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate rejects inconsistent settings.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	switch c.JWT.SigningMethod {
	case "hs256", "rs256", "ed25519":
	default:
		return errors.New("unsupported JWT signing method")
	}
	if len(c.JWT.PrivateKey) == 0 {
		return errors.New(c.JWT.SigningMethod + " requires PrivateKey")
	}
	if c.JWT.SigningMethod == "hs256" && len(c.JWT.PrivateKey) < 32 {
		return errors.New("hs256 key must be at least 256 bits")
	}

	// Session
	if c.Session.Lifetime <= 0 {
		return errors.New("Session Lifetime must be > 0")
	}
	if c.Session.RefreshTTL <= 0 {
		return errors.New("Session RefreshTTL must be > 0")
	}
	if c.Session.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("Session RefreshTTL must be >= JWT AccessTTL")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinLength < 0 {
		return errors.New("Password MinLength must be >= 0")
	}

	// PIN
	if c.PIN.MinLength < 4 {
		return errors.New("PIN MinLength must be >= 4")
	}
	if c.PIN.MaxLength < c.PIN.MinLength {
		return errors.New("PIN MaxLength must be >= MinLength")
	}

	// OTP
	if c.OTP.Digits < 4 || c.OTP.Digits > 10 {
		return errors.New("OTP Digits must be between 4 and 10")
	}
	if c.OTP.TTL <= 0 || c.OTP.TTL > 15*time.Minute {
		return errors.New("OTP TTL must be in (0, 15m]")
	}
	if c.OTP.MaxSends < 0 || c.OTP.MaxVerifyAttempts < 0 {
		return errors.New("OTP limits must be >= 0")
	}
	if c.OTP.MaxSends > 0 && c.OTP.SendWindow <= 0 {
		return errors.New("OTP SendWindow must be > 0 when MaxSends is set")
	}
	if c.OTP.MaxVerifyAttempts > 0 && c.OTP.VerifyWindow <= 0 {
		return errors.New("OTP VerifyWindow must be > 0 when MaxVerifyAttempts is set")
	}

	// Reset
	if c.Reset.TTL <= 0 {
		return errors.New("Reset TTL must be > 0")
	}

	// Challenge
	if c.Challenge.TTL <= 0 {
		return errors.New("Challenge TTL must be > 0")
	}
	if c.Challenge.MaxAttempts <= 0 {
		return errors.New("Challenge MaxAttempts must be > 0")
	}
	if strings.TrimSpace(c.Passkey.RPID) == "" {
		return errors.New("Passkey RPID must be set")
	}
	for _, origin := range c.Passkey.AllowedOrigins {
		if !strings.HasPrefix(origin, "https://") && !strings.HasPrefix(origin, "http://localhost") {
			return errors.New("Passkey AllowedOrigins must be https or http://localhost")
		}
	}

	// Registration
	if c.Registration.DefaultProject == "" {
		return errors.New("Registration DefaultProject is required")
	}
	if c.Registration.DefaultRole == "" || c.Registration.AdminRole == "" {
		return errors.New("Registration DefaultRole and AdminRole are required")
	}

	// Security
	if c.Security.MaxLoginAttempts <= 0 {
		return errors.New("MaxLoginAttempts must be > 0")
	}
	if c.Security.LoginCooldownDuration <= 0 {
		return errors.New("LoginCooldownDuration must be > 0")
	}
	if c.Security.EnableRefreshThrottle {
		if c.Security.MaxRefreshAttempts <= 0 {
			return errors.New("MaxRefreshAttempts must be > 0 when refresh throttle is enabled")
		}
		if c.Security.RefreshCooldownDuration <= 0 {
			return errors.New("RefreshCooldownDuration must be > 0 when refresh throttle is enabled")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}
	if c.Audit.BlockTimeout < 0 {
		return errors.New("Audit BlockTimeout must be >= 0")
	}

	return nil
}
