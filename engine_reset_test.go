package authcore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/store"
)

func TestPinResetTwoPhase(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ident := h.register(t, "alice", "", "+1555000111")

	code := h.otp(t, "+1555000111", OTPPurposeReset)
	ticket, err := h.engine.RequestPinReset(ctx, ident.ID, "+1555000111", code)
	if err != nil {
		t.Fatalf("RequestPinReset: %v", err)
	}
	if ticket.Type != store.ResetPIN || !ticket.ExpiresAt.Equal(h.clock().Add(10*time.Minute)) {
		t.Fatalf("unexpected ticket %+v", ticket)
	}

	if err := h.engine.ConfirmPinReset(ctx, ticket.Token, "7391", "phone"); err != nil {
		t.Fatalf("ConfirmPinReset: %v", err)
	}
	if _, err := h.engine.LoginWithPin(ctx, ident.ID, "7391", "phone"); err != nil {
		t.Fatalf("login with reset PIN: %v", err)
	}
	if err := h.engine.ConfirmPinReset(ctx, ticket.Token, "7391", "phone"); !errors.Is(err, ErrResetTokenNotFound) {
		t.Fatalf("expected ErrResetTokenNotFound on reuse, got %v", err)
	}
}

func TestPinResetRejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.register(t, "alice", "", "+1555000111")
	h.register(t, "bob", "", "+1555000222")

	// A code for someone else's mobile does not authorise alice.
	code := h.otp(t, "+1555000222", OTPPurposeReset)
	if _, err := h.engine.RequestPinReset(ctx, alice.ID, "+1555000222", code); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	code = h.otp(t, "+1555000111", OTPPurposeReset)
	ticket, err := h.engine.RequestPinReset(ctx, alice.ID, "+1555000111", code)
	if err != nil {
		t.Fatalf("RequestPinReset: %v", err)
	}
	if err := h.engine.ConfirmPinReset(ctx, "unknown", "7391", "phone"); !errors.Is(err, ErrResetTokenNotFound) {
		t.Fatalf("expected ErrResetTokenNotFound, got %v", err)
	}
	if err := h.engine.ConfirmContactChange(ctx, ticket.Token, "+1555000333", "123456"); !errors.Is(err, ErrResetTokenNotFound) {
		t.Fatalf("a PIN ticket must not authorise a contact change, got %v", err)
	}

	h.advance(10 * time.Minute)
	if err := h.engine.ConfirmPinReset(ctx, ticket.Token, "7391", "phone"); !errors.Is(err, ErrResetTokenExpired) {
		t.Fatalf("expected ErrResetTokenExpired, got %v", err)
	}
}

func TestContactChangeRequiresBothCodes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ident := h.register(t, "alice", "", "+1555000111")

	if _, err := h.engine.RequestContactChange(ctx, ident.ID, store.ResetPIN, "+1555000111", "x"); !errors.Is(err, ErrUnsupportedReset) {
		t.Fatalf("expected ErrUnsupportedReset, got %v", err)
	}

	code := h.otp(t, "+1555000111", OTPPurposeReset)
	ticket, err := h.engine.RequestContactChange(ctx, ident.ID, store.ResetMobile, "+1555000111", code)
	if err != nil {
		t.Fatalf("RequestContactChange: %v", err)
	}

	// A wrong code for the new value leaves the ticket usable.
	newCode := h.otp(t, "+1555000999", OTPPurposeChange)
	wrong := "000000"
	if newCode == wrong {
		wrong = "111111"
	}
	if err := h.engine.ConfirmContactChange(ctx, ticket.Token, "+1555000999", wrong); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("expected ErrInvalidOTP, got %v", err)
	}
	if err := h.engine.ConfirmContactChange(ctx, ticket.Token, "+1555000999", newCode); err != nil {
		t.Fatalf("ConfirmContactChange: %v", err)
	}

	got, err := h.engine.ResolveIdentity(ctx, "+1555000999")
	if err != nil {
		t.Fatalf("ResolveIdentity(new): %v", err)
	}
	if got.ID != ident.ID {
		t.Fatalf("new mobile resolves to %d, want %d", got.ID, ident.ID)
	}
	if _, err := h.engine.ResolveIdentity(ctx, "+1555000111"); !errors.Is(err, ErrIdentityNotFound) {
		t.Fatalf("old mobile should be released, got %v", err)
	}
}

func TestContactChangeToTakenEmail(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice, err := h.engine.Register(ctx, RegisterRequest{Username: "alice", Email: "alice@example.com"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := h.engine.Register(ctx, RegisterRequest{Username: "bob", Email: "bob@example.com"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	code := h.otp(t, "alice@example.com", OTPPurposeReset)
	ticket, err := h.engine.RequestContactChange(ctx, alice.ID, store.ResetEmail, "Alice@Example.com", code)
	if err != nil {
		t.Fatalf("RequestContactChange: %v", err)
	}
	newCode := h.otp(t, "bob@example.com", OTPPurposeChange)
	if err := h.engine.ConfirmContactChange(ctx, ticket.Token, "bob@example.com", newCode); !errors.Is(err, ErrDuplicateIdentity) {
		t.Fatalf("expected ErrDuplicateIdentity, got %v", err)
	}

	// The rejected attempt burns neither the ticket nor the CHANGE code.
	if err := h.engine.ValidateOTP(ctx, "bob@example.com", newCode); err != nil {
		t.Fatalf("expected the CHANGE code to stay unused, got %v", err)
	}
	freshCode := h.otp(t, "alice.new@example.com", OTPPurposeChange)
	if err := h.engine.ConfirmContactChange(ctx, ticket.Token, "alice.new@example.com", freshCode); err != nil {
		t.Fatalf("ConfirmContactChange after rejection: %v", err)
	}
	got, err := h.engine.ResolveIdentity(ctx, "alice.new@example.com")
	if err != nil {
		t.Fatalf("ResolveIdentity: %v", err)
	}
	if got.ID != alice.ID {
		t.Fatalf("resolved identity %d, want %d", got.ID, alice.ID)
	}
}
