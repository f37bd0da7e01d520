// Package notify delivers templated messages (OTP codes) to identities over SMS, email,
// WhatsApp or in-app channels through a pluggable Gateway.
package notify

import (
	"context"
	"errors"
	"strings"
)

// Channel is a delivery medium.
type Channel string

const (
	ChannelSMS      Channel = "SMS"
	ChannelEmail    Channel = "EMAIL"
	ChannelWhatsApp Channel = "WHATSAPP"
	ChannelInApp    Channel = "INAPP"
)

// ParseChannel normalises s; empty input defaults to SMS.
func ParseChannel(s string) (Channel, bool) {
	c := Channel(strings.ToUpper(strings.TrimSpace(s)))
	switch c {
	case "":
		return ChannelSMS, true
	case ChannelSMS, ChannelEmail, ChannelWhatsApp, ChannelInApp:
		return c, true
	}
	return "", false
}

// Template returns the template code for an OTP sent over c, e.g. OTP_SMS.
func (c Channel) Template() string { return "OTP_" + string(c) }

var (
	// ErrMissingCredentials is returned when the gateway has no bearer token to send with.
	ErrMissingCredentials = errors.New("notify: missing gateway credentials")
	// ErrDeliveryFailed is returned when the downstream service rejects a message.
	ErrDeliveryFailed = errors.New("notify: delivery failed")
)

// Recipient identifies who a message is for. Contact values are plaintext here and
// must never be logged.
type Recipient struct {
	IdentityID int64
	Username   string
	Mobile     string
	Email      string
}

// Message is one templated notification.
type Message struct {
	Channel      Channel
	Template     string
	Placeholders map[string]string
	Recipient    Recipient
}

// Gateway sends messages.
type Gateway interface {
	Send(ctx context.Context, msg Message) error
}

// GatewayFunc adapts a function to Gateway.
type GatewayFunc func(ctx context.Context, msg Message) error

// Send calls f.
func (f GatewayFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }
