package internal

import (
	"encoding/base64"
	"testing"
)

func TestNewOTPDigits(t *testing.T) {
	for _, digits := range []int{4, 6, 10} {
		code, err := NewOTP(digits)
		if err != nil {
			t.Fatalf("NewOTP(%d): %v", digits, err)
		}
		if len(code) != digits {
			t.Fatalf("expected %d digits, got %q", digits, code)
		}
		for _, r := range code {
			if r < '0' || r > '9' {
				t.Fatalf("non-digit in %q", code)
			}
		}
	}
	if _, err := NewOTP(3); err == nil {
		t.Fatal("expected error for 3 digits")
	}
}

func TestRandomTokensAreDistinctAndDecodable(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 64; i++ {
		tok, err := NewRefreshToken()
		if err != nil {
			t.Fatalf("NewRefreshToken: %v", err)
		}
		raw, err := base64.RawURLEncoding.DecodeString(tok)
		if err != nil || len(raw) != refreshTokenSize {
			t.Fatalf("bad token %q: %v", tok, err)
		}
		if seen[tok] {
			t.Fatal("duplicate token")
		}
		seen[tok] = true
	}

	ch, err := NewChallenge()
	if err != nil {
		t.Fatalf("NewChallenge: %v", err)
	}
	if raw, err := base64.RawURLEncoding.DecodeString(ch); err != nil || len(raw) != challengeSize {
		t.Fatalf("bad challenge %q: %v", ch, err)
	}
}

func FuzzNewOTPLength(f *testing.F) {
	f.Add(6)
	f.Add(0)
	f.Add(11)
	f.Fuzz(func(t *testing.T, digits int) {
		code, err := NewOTP(digits)
		if err != nil {
			return
		}
		if len(code) != digits {
			t.Fatalf("len %d != %d", len(code), digits)
		}
	})
}
