package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"math/big"
	"strings"
)

const (
	refreshTokenSize = 32
	challengeSize    = 32
)

func randomURLToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// NewRefreshToken returns an opaque refresh token carrying 256 bits of entropy.
func NewRefreshToken() (string, error) {
	return randomURLToken(refreshTokenSize)
}

// NewChallenge returns a random challenge suitable for signing and for embedding in
// WebAuthn clientDataJSON.
func NewChallenge() (string, error) {
	return randomURLToken(challengeSize)
}

// NewOTP returns a uniformly distributed numeric code of the given length.
func NewOTP(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}
