package verify

import (
	"crypto"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedKey is returned when a stored public key cannot be decoded.
	ErrMalformedKey = errors.New("verify: malformed public key")
	// ErrUnsupportedKey is returned for key types the verifier cannot use.
	ErrUnsupportedKey = errors.New("verify: unsupported key type")
	// ErrSignatureInvalid is returned when a signature does not verify.
	ErrSignatureInvalid = errors.New("verify: signature invalid")
)

// decodeB64 accepts std or URL alphabet, with or without padding.
func decodeB64(s string) ([]byte, error) {
	s = strings.TrimRight(strings.TrimSpace(s), "=")
	if strings.ContainsAny(s, "-_") {
		return base64.RawURLEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}

// ParsePublicKey decodes a base64 PKIX public key.
func ParsePublicKey(encoded string) (crypto.PublicKey, error) {
	der, err := decodeB64(encoded)
	if err != nil || len(der) == 0 {
		return nil, ErrMalformedKey
	}
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	return key, nil
}
