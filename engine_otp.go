package authcore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/authcore/internal"
	"github.com/MrEthical07/authcore/internal/contact"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/keyring"
	"github.com/MrEthical07/authcore/notify"
	"github.com/MrEthical07/authcore/store"
	"go.uber.org/zap"
)

func (p OTPPurpose) valid() bool {
	switch p {
	case OTPPurposeLogin, OTPPurposeReset, OTPPurposeChange:
		return true
	}
	return false
}

// GenerateOTP issues a one-time code for req.Contact and delivers it on the primary
// channel. Only the code's blind index is stored. A failed primary send returns
// ErrNotificationFailed; the fallback send (SMS to EMAIL or EMAIL to SMS) never fails
// the call and is reported through OTPDispatch.FallbackFailed.
func (e *Engine) GenerateOTP(ctx context.Context, req OTPRequest) (*OTPDispatch, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if !req.Purpose.valid() {
		return nil, ErrInvalidInput
	}
	normalized, kind, err := contact.Normalize(req.Contact)
	if err != nil {
		return nil, ErrInvalidInput
	}
	channel, err := otpChannel(req.Channel, kind)
	if err != nil {
		return nil, err
	}

	contactHash, err := e.hash(normalized)
	if err != nil {
		return nil, err
	}

	ident, err := e.findByContact(ctx, e.projectFromContext(ctx), kind, contactHash)
	switch {
	case err == nil:
		if !ident.Enabled {
			return nil, ErrIdentityDisabled
		}
	case errors.Is(err, ErrIdentityNotFound):
		// CHANGE targets a value nobody owns yet.
		if req.Purpose == OTPPurposeReset || (req.Purpose == OTPPurposeLogin && !e.config.Registration.AllowOTPSignup) {
			return nil, err
		}
		if channel == notify.ChannelInApp {
			return nil, ErrUnsupportedChannel
		}
		ident = nil
	default:
		return nil, err
	}

	if e.rateLimiter != nil {
		if err := e.rateLimiter.AllowOTPSend(ctx, contactHash); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				e.emitRateLimit(ctx, "otp_send")
				return nil, ErrRateLimited
			}
			return nil, backendErr(err)
		}
	}

	code, err := internal.NewOTP(e.config.OTP.Digits)
	if err != nil {
		return nil, fmt.Errorf("generate otp: %w", err)
	}
	codeHash, err := e.hash(code)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	expiresAt := now.Add(e.config.OTP.TTL)
	if _, err := e.store.CreateOTP(ctx, &store.OTPRecord{
		ContactHash: contactHash,
		CodeHash:    codeHash,
		Purpose:     string(req.Purpose),
		Channel:     string(channel),
		ExpiresAt:   expiresAt,
		CreatedAt:   now,
	}); err != nil {
		return nil, backendErr(err)
	}

	recipient := notify.Recipient{}
	var knownEmail, knownMobile string
	var identityID int64
	if ident != nil {
		identityID = ident.ID
		recipient.IdentityID = ident.ID
		recipient.Username, knownEmail, knownMobile = e.contactsOf(ctx, ident)
	}
	if kind == contact.KindEmail {
		recipient.Email = normalized
	} else {
		recipient.Mobile = normalized
	}

	placeholders := map[string]string{
		"otp":           code,
		"purpose":       string(req.Purpose),
		"expiryMinutes": strconv.Itoa(int((e.config.OTP.TTL + time.Minute - 1) / time.Minute)),
	}

	if err := e.notifier.Send(ctx, notify.Message{
		Channel:      channel,
		Template:     channel.Template(),
		Placeholders: placeholders,
		Recipient:    recipient,
	}); err != nil {
		e.log.Error("otp delivery failed", zap.String("channel", string(channel)), zap.Error(err))
		wrapped := fmt.Errorf("%w: %v", ErrNotificationFailed, err)
		e.emitAudit(ctx, auditEventOTPSent, false, identityID, "", wrapped, func() map[string]string {
			return map[string]string{"channel": string(channel), "purpose": string(req.Purpose)}
		})
		return nil, wrapped
	}

	dispatch := &OTPDispatch{Channel: channel, ExpiresAt: expiresAt}
	e.metricInc(MetricOTPSent)
	e.emitAudit(ctx, auditEventOTPSent, true, identityID, "", nil, func() map[string]string {
		return map[string]string{"channel": string(channel), "purpose": string(req.Purpose)}
	})

	if e.config.OTP.EnableFallback {
		e.sendFallback(ctx, dispatch, req.Fallback, knownEmail, knownMobile, recipient, placeholders)
	}
	return dispatch, nil
}

func otpChannel(requested notify.Channel, kind contact.Kind) (notify.Channel, error) {
	if requested == "" {
		if kind == contact.KindEmail {
			return notify.ChannelEmail, nil
		}
		return notify.ChannelSMS, nil
	}
	channel, ok := notify.ParseChannel(string(requested))
	if !ok {
		return "", ErrUnsupportedChannel
	}
	switch channel {
	case notify.ChannelEmail:
		if kind != contact.KindEmail {
			return "", ErrUnsupportedChannel
		}
	case notify.ChannelSMS, notify.ChannelWhatsApp:
		if kind != contact.KindMobile {
			return "", ErrUnsupportedChannel
		}
	}
	return channel, nil
}

// sendFallback delivers the same code on the other channel when its contact is known.
// Errors are logged and recorded on dispatch, never returned.
func (e *Engine) sendFallback(ctx context.Context, dispatch *OTPDispatch, explicit, knownEmail, knownMobile string, recipient notify.Recipient, placeholders map[string]string) {
	var channel notify.Channel
	switch dispatch.Channel {
	case notify.ChannelSMS:
		channel = notify.ChannelEmail
		if v, err := contact.NormalizeEmail(explicit); explicit != "" && err == nil {
			recipient.Email = v
		} else if recipient.Email == "" {
			recipient.Email = knownEmail
		}
		if recipient.Email == "" {
			return
		}
	case notify.ChannelEmail:
		channel = notify.ChannelSMS
		if v, err := contact.NormalizeMobile(explicit); explicit != "" && err == nil {
			recipient.Mobile = v
		} else if recipient.Mobile == "" {
			recipient.Mobile = knownMobile
		}
		if recipient.Mobile == "" {
			return
		}
	default:
		return
	}

	dispatch.FallbackChannel = channel
	err := e.notifier.Send(ctx, notify.Message{
		Channel:      channel,
		Template:     channel.Template(),
		Placeholders: placeholders,
		Recipient:    recipient,
	})
	if err == nil {
		return
	}

	dispatch.FallbackFailed = true
	e.log.Warn("otp fallback delivery failed", zap.String("channel", string(channel)), zap.Error(err))
	e.metricInc(MetricOTPFallbackFailed)
	e.emitAudit(ctx, auditEventOTPFallbackFailed, false, recipient.IdentityID, "", fmt.Errorf("%w: %v", ErrNotificationFailed, err), func() map[string]string {
		return map[string]string{"channel": string(channel)}
	})
}

// ValidateOTP consumes the most recent code issued for contactValue. A code validates at
// most once; later attempts fail with ErrOTPExpiredOrUsed.
func (e *Engine) ValidateOTP(ctx context.Context, contactValue, code string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	normalized, _, err := contact.Normalize(contactValue)
	if err != nil {
		return ErrInvalidInput
	}
	contactHash, err := e.hash(normalized)
	if err != nil {
		return err
	}
	return e.consumeOTP(ctx, contactHash, code, "")
}

// consumeOTP validates code against the latest record for contactHash and marks it used.
// A non-empty purpose must match the record's.
func (e *Engine) consumeOTP(ctx context.Context, contactHash, code string, purpose OTPPurpose) error {
	reject := func(err error) error {
		e.metricInc(MetricOTPRejected)
		e.emitAudit(ctx, auditEventOTPRejected, false, 0, "", err, nil)
		return err
	}

	if code == "" {
		return reject(ErrInvalidOTP)
	}
	if e.rateLimiter != nil {
		if err := e.rateLimiter.AllowOTPVerify(ctx, contactHash); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				e.emitRateLimit(ctx, "otp_verify")
				return ErrRateLimited
			}
			return backendErr(err)
		}
	}

	rec, err := e.store.LatestOTP(ctx, contactHash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return reject(ErrOTPNotFound)
		}
		return backendErr(err)
	}
	if rec.Used || !e.now().Before(rec.ExpiresAt) {
		return reject(ErrOTPExpiredOrUsed)
	}
	if purpose != "" && rec.Purpose != string(purpose) {
		return reject(ErrInvalidOTP)
	}

	candidate, err := e.hash(code)
	if err != nil {
		return err
	}
	if !keyring.Equal(candidate, rec.CodeHash) {
		return reject(ErrInvalidOTP)
	}

	marked, err := e.store.MarkOTPUsed(ctx, rec.ID)
	if err != nil {
		return backendErr(err)
	}
	if !marked {
		return reject(ErrOTPExpiredOrUsed)
	}

	if e.rateLimiter != nil {
		if err := e.rateLimiter.ResetOTPVerify(ctx, contactHash); err != nil {
			e.log.Warn("otp verify limiter reset failed", zap.Error(err))
		}
	}
	e.metricInc(MetricOTPValidated)
	e.emitAudit(ctx, auditEventOTPValidated, true, 0, "", nil, func() map[string]string {
		return map[string]string{"purpose": rec.Purpose}
	})
	return nil
}
