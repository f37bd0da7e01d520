package authcore

import (
	"io"
	"time"

	internalaudit "github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/notify"
	"github.com/MrEthical07/authcore/store"
	"github.com/MrEthical07/authcore/verify"
	"go.uber.org/zap"
)

// TokenPair is returned by every successful login and by Refresh.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	SessionID        string
	IdentityID       int64
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// RegisterRequest carries registration input. Password, Email and Mobile are optional;
// ProjectType falls back to the context scope and then to the configured default.
type RegisterRequest struct {
	Username    string
	Password    string
	Email       string
	Mobile      string
	ProjectType string
}

// OTPPurpose tags a one-time code. LOGIN requires an existing identity unless OTP
// sign-up is enabled; CHANGE targets a new contact value that has no identity yet.
type OTPPurpose string

const (
	OTPPurposeLogin  OTPPurpose = "LOGIN"
	OTPPurposeReset  OTPPurpose = "RESET"
	OTPPurposeChange OTPPurpose = "CHANGE"
)

// OTPRequest asks the Engine to generate and deliver a one-time code.
type OTPRequest struct {
	// Contact is a mobile number or email address; the code is bound to its blind index.
	Contact string
	Purpose OTPPurpose
	// Channel defaults to SMS for mobiles and EMAIL for addresses.
	Channel notify.Channel
	// Fallback is the secondary contact used when the primary send has succeeded and
	// Config.OTP.EnableFallback is on. Optional.
	Fallback string
}

// OTPDispatch reports where a code went. The code itself is never returned.
type OTPDispatch struct {
	Channel         notify.Channel
	FallbackChannel notify.Channel
	FallbackFailed  bool
	ExpiresAt       time.Time
}

// Challenge is an outstanding RSA or passkey challenge.
type Challenge struct {
	IdentityID int64
	Value      string
	ExpiresAt  time.Time
}

// PasskeyAssertion is the WebAuthn-style proof presented to VerifyPasskeyAssertion.
type PasskeyAssertion = verify.Assertion

// ResetTicket is phase one's result. Token is handed to the caller and presented at
// confirmation; only its blind index is stored.
type ResetTicket struct {
	Token     string
	Type      store.ResetType
	ExpiresAt time.Time
}

// AuthResult is returned by ValidateAccess.
type AuthResult struct {
	IdentityID int64
	SessionID  string
	Roles      []string
	State      store.SessionState
}

// AuditEvent is one security-relevant outcome emitted to the configured sink.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink = internalaudit.Sink

// NoOpSink discards events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink buffers events in a channel (tests, fan-out).
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// ZapSink writes events as structured log entries.
type ZapSink = internalaudit.ZapSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

func NewZapSink(log *zap.Logger) *ZapSink {
	return internalaudit.NewZapSink(log)
}
