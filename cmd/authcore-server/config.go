package main

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/MrEthical07/authcore"
)

// Environment variables carrying secrets. They are never read from the config file.
const (
	envHMACKey       = "AUTHCORE_HMAC_KEY"
	envEncryptionKey = "AUTHCORE_ENCRYPTION_KEY"
	envJWTKey        = "AUTHCORE_JWT_KEY"
	envJWTPublicKey  = "AUTHCORE_JWT_PUBLIC_KEY"
	envNotifyToken   = "AUTHCORE_NOTIFY_TOKEN"
	envPostgresDSN   = "AUTHCORE_POSTGRES_DSN"
	envRedisPassword = "AUTHCORE_REDIS_PASSWORD"
)

type serverConfig struct {
	Server  serverSection  `toml:"server"`
	Storage storageSection `toml:"storage"`
	Notify  notifySection  `toml:"notify"`
	Auth    authSection    `toml:"auth"`

	Dev     bool `toml:"-"`
	Secrets secrets `toml:"-"`
}

type serverSection struct {
	HTTPAddr          string        `toml:"http_addr"`
	GRPCAddr          string        `toml:"grpc_addr"`
	TrustProxy        bool          `toml:"trust_proxy"`
	RequestsPerSecond float64       `toml:"requests_per_second"`
	Burst             int           `toml:"burst"`
	ShutdownTimeout   time.Duration `toml:"shutdown_timeout"`
}

type storageSection struct {
	RedisAddr string `toml:"redis_addr"`
	RedisDB   int    `toml:"redis_db"`
	Migrate   bool   `toml:"migrate"`
}

type notifySection struct {
	URL string `toml:"url"`
}

type authSection struct {
	SigningMethod        string        `toml:"signing_method"`
	Issuer               string        `toml:"issuer"`
	Audience             string        `toml:"audience"`
	AccessTTL            time.Duration `toml:"access_ttl"`
	SessionLifetime      time.Duration `toml:"session_lifetime"`
	RefreshTTL           time.Duration `toml:"refresh_ttl"`
	EnforceSessionExpiry bool          `toml:"enforce_session_expiry"`
	DefaultProject       string        `toml:"default_project"`
	AllowOTPSignup       bool          `toml:"allow_otp_signup"`
	OTPDigits            int           `toml:"otp_digits"`
	OTPTTL               time.Duration `toml:"otp_ttl"`
	OTPFallback          bool          `toml:"otp_fallback"`
	ResetTTL             time.Duration `toml:"reset_ttl"`
	PasskeyRPID          string        `toml:"passkey_rp_id"`
	PasskeyOrigins       []string      `toml:"passkey_origins"`
	Audit                bool          `toml:"audit"`
	Metrics              bool          `toml:"metrics"`
}

type secrets struct {
	HMACKey       string
	EncryptionKey string
	JWTKey        string
	JWTPublicKey  string
	NotifyToken   string
	PostgresDSN   string
	RedisPassword string
}

// defaultServerConfig mirrors authcore.DefaultConfig for the auth section.
func defaultServerConfig() serverConfig {
	core := authcore.DefaultConfig()
	return serverConfig{
		Server: serverSection{
			HTTPAddr:          ":8080",
			GRPCAddr:          ":9090",
			RequestsPerSecond: 20,
			Burst:             40,
			ShutdownTimeout:   5 * time.Second,
		},
		Storage: storageSection{
			RedisAddr: "localhost:6379",
			Migrate:   true,
		},
		Auth: authSection{
			SigningMethod:        core.JWT.SigningMethod,
			Issuer:               core.JWT.Issuer,
			Audience:             core.JWT.Audience,
			AccessTTL:            core.JWT.AccessTTL,
			SessionLifetime:      core.Session.Lifetime,
			RefreshTTL:           core.Session.RefreshTTL,
			EnforceSessionExpiry: core.Session.EnforceExpiry,
			DefaultProject:       core.Registration.DefaultProject,
			AllowOTPSignup:       core.Registration.AllowOTPSignup,
			OTPDigits:            core.OTP.Digits,
			OTPTTL:               core.OTP.TTL,
			OTPFallback:          core.OTP.EnableFallback,
			ResetTTL:             core.Reset.TTL,
			PasskeyRPID:          core.Passkey.RPID,
			PasskeyOrigins:       core.Passkey.AllowedOrigins,
			Audit:                core.Audit.Enabled,
			Metrics:              core.Metrics.Enabled,
		},
	}
}

// loadConfig layers defaults, the optional TOML file, command-line flags and finally
// secrets from the environment.
func loadConfig(args []string, getenv func(string) string) (serverConfig, error) {
	cfg := defaultServerConfig()

	fs := flag.NewFlagSet("authcore-server", flag.ContinueOnError)
	path := fs.String("config", "", "path to a TOML config file")
	httpAddr := fs.String("http", "", "HTTP listen address")
	grpcAddr := fs.String("grpc", "", "gRPC health listen address")
	redisAddr := fs.String("redis", "", "Redis address")
	migrate := fs.Bool("migrate", true, "apply embedded migrations on start")
	dev := fs.Bool("dev", false, "in-memory store, in-process Redis, log notifier, generated keys")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if *path != "" {
		if _, err := toml.DecodeFile(*path, &cfg); err != nil {
			return cfg, fmt.Errorf("decode %s: %w", *path, err)
		}
	}

	// Flags given explicitly win over the file.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "http":
			cfg.Server.HTTPAddr = *httpAddr
		case "grpc":
			cfg.Server.GRPCAddr = *grpcAddr
		case "redis":
			cfg.Storage.RedisAddr = *redisAddr
		case "migrate":
			cfg.Storage.Migrate = *migrate
		}
	})
	cfg.Dev = *dev

	cfg.Secrets = secrets{
		HMACKey:       getenv(envHMACKey),
		EncryptionKey: getenv(envEncryptionKey),
		JWTKey:        getenv(envJWTKey),
		JWTPublicKey:  getenv(envJWTPublicKey),
		NotifyToken:   getenv(envNotifyToken),
		PostgresDSN:   getenv(envPostgresDSN),
		RedisPassword: getenv(envRedisPassword),
	}

	if !cfg.Dev {
		if cfg.Secrets.PostgresDSN == "" {
			return cfg, errors.New(envPostgresDSN + " is required outside -dev")
		}
		if cfg.Secrets.HMACKey == "" || cfg.Secrets.EncryptionKey == "" || cfg.Secrets.JWTKey == "" {
			return cfg, fmt.Errorf("%s, %s and %s are required outside -dev", envHMACKey, envEncryptionKey, envJWTKey)
		}
		if cfg.Notify.URL == "" {
			return cfg, errors.New("notify.url is required outside -dev")
		}
	}

	return cfg, nil
}

// engineConfig maps the auth section onto authcore.Config.
func (c serverConfig) engineConfig() authcore.Config {
	cfg := authcore.DefaultConfig()
	cfg.JWT.SigningMethod = c.Auth.SigningMethod
	cfg.JWT.Issuer = c.Auth.Issuer
	cfg.JWT.Audience = c.Auth.Audience
	cfg.JWT.AccessTTL = c.Auth.AccessTTL
	cfg.JWT.PrivateKey = []byte(c.Secrets.JWTKey)
	if c.Secrets.JWTPublicKey != "" {
		cfg.JWT.PublicKey = []byte(c.Secrets.JWTPublicKey)
	}
	cfg.Session.Lifetime = c.Auth.SessionLifetime
	cfg.Session.RefreshTTL = c.Auth.RefreshTTL
	cfg.Session.EnforceExpiry = c.Auth.EnforceSessionExpiry
	cfg.Registration.DefaultProject = c.Auth.DefaultProject
	cfg.Registration.AllowOTPSignup = c.Auth.AllowOTPSignup
	cfg.OTP.Digits = c.Auth.OTPDigits
	cfg.OTP.TTL = c.Auth.OTPTTL
	cfg.OTP.EnableFallback = c.Auth.OTPFallback
	cfg.Reset.TTL = c.Auth.ResetTTL
	cfg.Passkey.RPID = c.Auth.PasskeyRPID
	cfg.Passkey.AllowedOrigins = append([]string(nil), c.Auth.PasskeyOrigins...)
	cfg.Audit.Enabled = c.Auth.Audit
	cfg.Metrics.Enabled = c.Auth.Metrics
	cfg.Metrics.EnableLatencyHistograms = c.Auth.Metrics
	return cfg
}
