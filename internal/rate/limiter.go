package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Window is one fixed-window budget. A zero Max disables the window.
type Window struct {
	Max      int
	Duration time.Duration
}

func (w Window) enabled() bool { return w.Max > 0 && w.Duration > 0 }

// Config holds the budgets enforced by a Limiter.
type Config struct {
	EnableIPThrottle bool
	Login            Window
	OTPSend          Window
	OTPVerify        Window
	Refresh          Window
}

// Limiter enforces fixed-window budgets using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{redis: redisClient, config: cfg}
}

// CheckLogin fails with ErrRateLimited when the identifier, or the IP when IP
// throttling is on, has exhausted its failed-login budget.
func (l *Limiter) CheckLogin(ctx context.Context, identifier, ip string) error {
	if !l.config.Login.enabled() {
		return nil
	}
	if err := l.checkCounter(ctx, loginKey(identifier), l.config.Login.Max); err != nil {
		return err
	}
	if l.config.EnableIPThrottle && ip != "" {
		return l.checkCounter(ctx, loginIPKey(ip), l.config.Login.Max)
	}
	return nil
}

// IncrementLogin records a failed login for the identifier and IP.
func (l *Limiter) IncrementLogin(ctx context.Context, identifier, ip string) error {
	if !l.config.Login.enabled() {
		return nil
	}
	if _, err := l.incrementWithTTL(ctx, loginKey(identifier), l.config.Login.Duration); err != nil {
		return err
	}
	if l.config.EnableIPThrottle && ip != "" {
		if _, err := l.incrementWithTTL(ctx, loginIPKey(ip), l.config.Login.Duration); err != nil {
			return err
		}
	}
	return nil
}

// ResetLogin clears the identifier's failed-login counter after a success.
func (l *Limiter) ResetLogin(ctx context.Context, identifier string) error {
	if !l.config.Login.enabled() {
		return nil
	}
	if err := l.redis.Del(ctx, loginKey(identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// AllowOTPSend consumes one unit of the per-contact OTP issuance budget.
func (l *Limiter) AllowOTPSend(ctx context.Context, contactHash string) error {
	return l.consume(ctx, otpSendKey(contactHash), l.config.OTPSend)
}

// AllowOTPVerify consumes one unit of the per-contact OTP verification budget.
func (l *Limiter) AllowOTPVerify(ctx context.Context, contactHash string) error {
	return l.consume(ctx, otpVerifyKey(contactHash), l.config.OTPVerify)
}

// ResetOTPVerify clears the verification counter after a successful validation.
func (l *Limiter) ResetOTPVerify(ctx context.Context, contactHash string) error {
	if !l.config.OTPVerify.enabled() {
		return nil
	}
	if err := l.redis.Del(ctx, otpVerifyKey(contactHash)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// AllowRefresh consumes one unit of the per-token refresh budget.
func (l *Limiter) AllowRefresh(ctx context.Context, tokenHash string) error {
	return l.consume(ctx, refreshKey(tokenHash), l.config.Refresh)
}

// LoginAttempts returns the current failed-login count for identifier. Missing keys
// count as zero.
func (l *Limiter) LoginAttempts(ctx context.Context, identifier string) (int, error) {
	count, err := l.redis.Get(ctx, loginKey(identifier)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) consume(ctx context.Context, key string, w Window) error {
	if !w.enabled() {
		return nil
	}
	count, err := l.incrementWithTTL(ctx, key, w.Duration)
	if err != nil {
		return err
	}
	if count > int64(w.Max) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) checkCounter(ctx context.Context, key string, maxAttempts int) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= int64(maxAttempts) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return count, nil
}

func loginKey(identifier string) string    { return "al:" + identifier }
func loginIPKey(ip string) string          { return "ali:" + ip }
func otpSendKey(contactHash string) string { return "aos:" + contactHash }
func otpVerifyKey(contactHash string) string {
	return "aov:" + contactHash
}
func refreshKey(tokenHash string) string { return "ar:" + tokenHash }
