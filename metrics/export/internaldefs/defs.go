package internaldefs

import (
	"github.com/MrEthical07/authcore"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Successful logins across all methods."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Failed logins across all methods."},
	{ID: authcore.MetricLoginRateLimited, Name: "authcore_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: authcore.MetricRegisterSuccess, Name: "authcore_register_success_total", Help: "Created identities."},
	{ID: authcore.MetricRegisterDuplicate, Name: "authcore_register_duplicate_total", Help: "Registrations rejected as duplicate."},
	{ID: authcore.MetricCredentialRegistered, Name: "authcore_credential_registered_total", Help: "Registered PIN, RSA and passkey credentials."},
	{ID: authcore.MetricOTPSent, Name: "authcore_otp_sent_total", Help: "One-time codes delivered on the primary channel."},
	{ID: authcore.MetricOTPFallbackFailed, Name: "authcore_otp_fallback_failed_total", Help: "Failed fallback deliveries."},
	{ID: authcore.MetricOTPValidated, Name: "authcore_otp_validated_total", Help: "Accepted one-time codes."},
	{ID: authcore.MetricOTPRejected, Name: "authcore_otp_rejected_total", Help: "Rejected one-time codes."},
	{ID: authcore.MetricChallengeIssued, Name: "authcore_challenge_issued_total", Help: "Issued RSA and passkey challenges."},
	{ID: authcore.MetricSignatureFailure, Name: "authcore_signature_failure_total", Help: "Failed signature and assertion checks."},
	{ID: authcore.MetricRefreshSuccess, Name: "authcore_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: authcore.MetricRefreshFailure, Name: "authcore_refresh_failure_total", Help: "Failed refresh rotations."},
	{ID: authcore.MetricRefreshReplay, Name: "authcore_refresh_replay_total", Help: "Refresh tokens presented after consumption."},
	{ID: authcore.MetricRefreshRateLimited, Name: "authcore_refresh_rate_limited_total", Help: "Rate-limited refresh attempts."},
	{ID: authcore.MetricSessionCreated, Name: "authcore_session_created_total", Help: "Created sessions."},
	{ID: authcore.MetricSessionRevoked, Name: "authcore_session_revoked_total", Help: "Revoked sessions."},
	{ID: authcore.MetricResetRequested, Name: "authcore_reset_requested_total", Help: "Issued pending reset tickets."},
	{ID: authcore.MetricResetConfirmed, Name: "authcore_reset_confirmed_total", Help: "Applied pending resets."},
	{ID: authcore.MetricResetRejected, Name: "authcore_reset_rejected_total", Help: "Rejected reset requests and confirmations."},
	{ID: authcore.MetricRateLimitHit, Name: "authcore_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
}

var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricValidateLatency, Name: "authcore_validate_latency_seconds", Help: "ValidateAccess latency histogram."},
}

// HistogramBounds are the upper bounds, in seconds, of the engine's eight buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix spells HistogramBounds for instrument names, which cannot carry dots.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed eight-bucket array, zero padding.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
