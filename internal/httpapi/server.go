package httpapi

import (
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/middleware"
)

// ProjectHeader selects the project scope for lookups and registration.
const ProjectHeader = "X-Project-Type"

const maxBodyBytes = 64 << 10

// Options tunes the transport.
type Options struct {
	// AdminRole guards /v1/admin/register.
	AdminRole string
	// RequestsPerSecond and Burst size the per-client-IP token bucket. Zero disables it.
	RequestsPerSecond float64
	Burst             int
	// TrustProxy takes the client IP from the first X-Forwarded-For entry.
	TrustProxy bool
}

// Server routes HTTP requests to an Engine.
type Server struct {
	engine   *authcore.Engine
	log      *zap.Logger
	opts     Options
	throttle *ipThrottle
	now      func() time.Time
}

func New(engine *authcore.Engine, log *zap.Logger, opts Options) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		engine: engine,
		log:    log.Named("http"),
		opts:   opts,
		now:    time.Now,
	}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		s.throttle = newIPThrottle(rate.Limit(opts.RequestsPerSecond), burst, s.now)
	}
	return s
}

// Handler returns the routed, throttled and access-logged handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /v1/register", s.register)
	mux.Handle("POST /v1/admin/register", middleware.RequireRole(s.engine, s.opts.AdminRole)(http.HandlerFunc(s.adminRegister)))

	guard := middleware.Guard(s.engine)
	mux.Handle("POST /v1/credentials", guard(http.HandlerFunc(s.registerCredential)))
	mux.Handle("POST /v1/pin", guard(http.HandlerFunc(s.registerPin)))
	mux.Handle("POST /v1/logout", guard(http.HandlerFunc(s.logout)))
	mux.Handle("GET /v1/me", guard(http.HandlerFunc(s.me)))

	mux.HandleFunc("POST /v1/login/password", s.loginPassword)
	mux.HandleFunc("POST /v1/login/pin", s.loginPin)
	mux.HandleFunc("POST /v1/login/otp", s.loginOTP)
	mux.HandleFunc("POST /v1/login/rsa", s.loginRSA)
	mux.HandleFunc("POST /v1/login/passkey", s.loginPasskey)

	mux.HandleFunc("POST /v1/challenges/rsa", s.rsaChallenge)
	mux.HandleFunc("POST /v1/challenges/passkey", s.passkeyChallenge)
	mux.HandleFunc("POST /v1/signatures/rsa/verify", s.verifyRSA)
	mux.HandleFunc("POST /v1/passkeys/verify", s.verifyPasskey)

	mux.HandleFunc("POST /v1/otp", s.generateOTP)
	mux.HandleFunc("POST /v1/otp/validate", s.validateOTP)

	mux.HandleFunc("POST /v1/refresh", s.refresh)

	mux.HandleFunc("POST /v1/reset/pin", s.requestPinReset)
	mux.HandleFunc("POST /v1/reset/pin/confirm", s.confirmPinReset)
	mux.HandleFunc("POST /v1/reset/contact", s.requestContactChange)
	mux.HandleFunc("POST /v1/reset/contact/confirm", s.confirmContactChange)

	return s.accessLog(s.scope(mux))
}

// scope throttles by client IP and copies request metadata into the context.
func (s *Server) scope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := s.clientIP(r)
		if s.throttle != nil && !s.throttle.allow(ip) {
			writeError(w, authcore.ErrRateLimited)
			return
		}

		ctx := authcore.WithClientIP(r.Context(), ip)
		ctx = authcore.WithUserAgent(ctx, r.UserAgent())
		if p := strings.TrimSpace(r.Header.Get(ProjectHeader)); p != "" {
			ctx = authcore.WithProjectType(ctx, p)
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) clientIP(r *http.Request) string {
	if s.opts.TrustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

// accessLog logs request metadata only; bodies carry secrets.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.log.Info("http",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("dur", s.now().Sub(start)),
			zap.String("remote", r.RemoteAddr),
		)
	})
}
