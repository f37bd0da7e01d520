// Command authcore-server serves the authcore Engine over JSON/HTTP, with a gRPC health
// endpoint and Prometheus metrics.
package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/internal/httpapi"
	"github.com/MrEthical07/authcore/internal/migrate"
	"github.com/MrEthical07/authcore/keyring"
	"github.com/MrEthical07/authcore/metrics/export/prometheus"
	"github.com/MrEthical07/authcore/notify"
	"github.com/MrEthical07/authcore/store"
	"github.com/MrEthical07/authcore/store/memory"
	"github.com/MrEthical07/authcore/store/postgres"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	cfg, err := loadConfig(os.Args[1:], os.Getenv)
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}

	logger, _ := zap.NewProduction()
	if cfg.Dev {
		logger, _ = zap.NewDevelopment()
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("http", cfg.Server.HTTPAddr),
		zap.String("grpc", cfg.Server.GRPCAddr),
		zap.Bool("dev", cfg.Dev),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("exit", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

type backends struct {
	store    store.Store
	redis    redis.UniversalClient
	notifier notify.Gateway
	keys     keyring.KeyProvider
	close    []func()
}

func (b *backends) shutdown() {
	for i := len(b.close) - 1; i >= 0; i-- {
		b.close[i]()
	}
}

func openBackends(ctx context.Context, cfg *serverConfig, log *zap.Logger) (*backends, error) {
	b := &backends{}

	if cfg.Dev {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, err
		}
		b.close = append(b.close, mr.Close)
		b.redis = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		b.store = memory.New("ROLE_USER", "ROLE_ADMIN")
		b.notifier = notify.NewLogGateway(log.Named("notify"))

		if err := devSecrets(&cfg.Secrets); err != nil {
			return nil, err
		}
		log.Warn("dev mode: data is in memory and keys are ephemeral unless set in the environment")
	} else {
		if cfg.Storage.Migrate {
			if err := migrate.Up(ctx, cfg.Secrets.PostgresDSN); err != nil {
				return nil, err
			}
		}
		db, err := postgres.New(ctx, cfg.Secrets.PostgresDSN)
		if err != nil {
			return nil, err
		}
		b.close = append(b.close, db.Close)
		b.store = postgres.NewStore(db)
		b.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.RedisAddr,
			Password: cfg.Secrets.RedisPassword,
			DB:       cfg.Storage.RedisDB,
		})
		b.notifier = notify.NewHTTPGateway(cfg.Notify.URL, cfg.Secrets.NotifyToken)
	}
	client := b.redis
	b.close = append(b.close, func() { _ = client.Close() })

	keys, err := keyring.NewBase64Provider(cfg.Secrets.HMACKey, cfg.Secrets.EncryptionKey)
	if err != nil {
		b.shutdown()
		return nil, err
	}
	b.keys = keys
	return b, nil
}

// devSecrets fills missing keys with random ones.
func devSecrets(s *secrets) error {
	fill := func(dst *string, n int) error {
		if *dst != "" {
			return nil
		}
		buf := make([]byte, n)
		if _, err := rand.Read(buf); err != nil {
			return err
		}
		*dst = base64.StdEncoding.EncodeToString(buf)
		return nil
	}
	if err := fill(&s.HMACKey, 32); err != nil {
		return err
	}
	if err := fill(&s.EncryptionKey, keyring.EncryptionKeyLen); err != nil {
		return err
	}
	return fill(&s.JWTKey, 32)
}

func run(ctx context.Context, cfg serverConfig, log *zap.Logger) error {
	b, err := openBackends(ctx, &cfg, log)
	if err != nil {
		return err
	}
	defer b.shutdown()

	engineCfg := cfg.engineConfig()
	engine, err := authcore.New().
		WithConfig(engineCfg).
		WithRedis(b.redis).
		WithStore(b.store).
		WithKeyProvider(b.keys).
		WithNotifier(b.notifier).
		WithLogger(log).
		WithAuditSink(authcore.NewZapSink(log.Named("audit"))).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	api := httpapi.New(engine, log, httpapi.Options{
		AdminRole:         engineCfg.Registration.AdminRole,
		RequestsPerSecond: cfg.Server.RequestsPerSecond,
		Burst:             cfg.Server.Burst,
		TrustProxy:        cfg.Server.TrustProxy,
	})
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", prometheus.NewPrometheusExporter(engine).Handler())
	mux.Handle("/", api.Handler())

	httpSrv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcSrv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		recoverUnary(log),
		loggingUnary(log.Named("grpc")),
	))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, hs)

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info("grpc listening", zap.String("addr", cfg.Server.GRPCAddr))
		errCh <- grpcSrv.Serve(lis)
	}()
	go func() {
		log.Info("http listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}
	hs.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		grpcSrv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		grpcSrv.Stop()
	}

	return serveErr
}
