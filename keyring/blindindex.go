package keyring

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// BlindIndex computes deterministic keyed hashes so equal inputs can be looked up
// without storing them.
type BlindIndex struct {
	keys KeyProvider
}

// NewBlindIndex returns a BlindIndex over keys.
func NewBlindIndex(keys KeyProvider) *BlindIndex {
	return &BlindIndex{keys: keys}
}

// Hash returns hex(HMAC-SHA256(key, value)). The empty string maps to the empty string
// so absent optional contacts stay absent.
func (b *BlindIndex) Hash(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	key, err := b.keys.HMACKey()
	if err != nil {
		return "", err
	}
	if len(key) < MinHMACKeyLen {
		return "", ErrWeakHMACKey
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Equal compares two hashes in constant time.
func Equal(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}
