package authcore

import (
	"errors"
	"time"

	"github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/internal/stores"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/keyring"
	"github.com/MrEthical07/authcore/notify"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder collects the Engine's collaborators. A Builder can build exactly one Engine.
type Builder struct {
	config   Config
	redis    redis.UniversalClient
	store    store.Store
	keys     keyring.KeyProvider
	notifier notify.Gateway
	log      *zap.Logger

	auditSink AuditSink
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing challenges and rate limits.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore sets the persistence backend (store/postgres or store/memory).
func (b *Builder) WithStore(s store.Store) *Builder {
	b.store = s
	return b
}

func (b *Builder) WithKeyProvider(keys keyring.KeyProvider) *Builder {
	b.keys = keys
	return b
}

// WithNotifier sets the gateway used to deliver one-time codes.
func (b *Builder) WithNotifier(g notify.Gateway) *Builder {
	b.notifier = g
	return b
}

func (b *Builder) WithLogger(log *zap.Logger) *Builder {
	b.log = log
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.store == nil {
		return nil, errors.New("store required")
	}
	if b.keys == nil {
		return nil, errors.New("key provider required")
	}
	if b.notifier == nil {
		return nil, errors.New("notification gateway required")
	}

	// Key material must be usable before the Engine accepts requests.
	if _, err := keyring.NewBlindIndex(b.keys).Hash("key-check"); err != nil {
		return nil, err
	}
	if _, err := keyring.NewFieldCipher(b.keys).Encrypt("key-check"); err != nil {
		return nil, err
	}

	log := b.log
	if log == nil {
		log = zap.NewNop()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	engine := &Engine{
		config:   cfg,
		store:    b.store,
		index:    keyring.NewBlindIndex(b.keys),
		cipher:   keyring.NewFieldCipher(b.keys),
		notifier: b.notifier,
		log:      log.Named("authcore"),
		now:      now,
	}

	engine.challenges = stores.NewChallengeStore(b.redis, cfg.Challenge.RedisPrefix)
	engine.rateLimiter = rate.New(b.redis, rate.Config{
		EnableIPThrottle: cfg.Security.EnableIPThrottle,
		Login:            rate.Window{Max: cfg.Security.MaxLoginAttempts, Duration: cfg.Security.LoginCooldownDuration},
		OTPSend:          rate.Window{Max: cfg.OTP.MaxSends, Duration: cfg.OTP.SendWindow},
		OTPVerify:        rate.Window{Max: cfg.OTP.MaxVerifyAttempts, Duration: cfg.OTP.VerifyWindow},
		Refresh:          refreshWindow(cfg.Security),
	})

	dropLog := engine.log
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:      cfg.Audit.Enabled,
		BufferSize:   cfg.Audit.BufferSize,
		DropIfFull:   cfg.Audit.DropIfFull,
		BlockTimeout: cfg.Audit.BlockTimeout,
		OnDrop: func(ev audit.Event) {
			dropLog.Warn("audit event dropped", zap.String("event", ev.EventType))
		},
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	ph, err := password.NewArgon2(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MaxPasswordBytes: cfg.Password.MaxPasswordBytes,
	})
	if err != nil {
		return nil, err
	}
	engine.passwordHash = ph

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	engine.initFlowDeps()
	b.built = true

	return engine, nil
}

func refreshWindow(sec SecurityConfig) rate.Window {
	if !sec.EnableRefreshThrottle {
		return rate.Window{}
	}
	return rate.Window{Max: sec.MaxRefreshAttempts, Duration: sec.RefreshCooldownDuration}
}
