// Package keyring supplies the keys used for blind indexing and field encryption, and
// the two primitives built on them.
//
// Keys are fetched from a [KeyProvider] on every call so that providers backed by a
// secret manager can rotate without rebuilding the Engine.
package keyring

import (
	"encoding/base64"
	"errors"
	"fmt"
)

const (
	// MinHMACKeyLen is the minimum accepted blind-index key length.
	MinHMACKeyLen = 16
	// EncryptionKeyLen is the AES-256 key length.
	EncryptionKeyLen = 32
)

var (
	// ErrWeakHMACKey is returned for HMAC keys shorter than MinHMACKeyLen.
	ErrWeakHMACKey = errors.New("keyring: hmac key must be at least 16 bytes")
	// ErrBadEncryptionKey is returned for encryption keys that are not 32 bytes.
	ErrBadEncryptionKey = errors.New("keyring: encryption key must be 32 bytes")
	// ErrCiphertext is returned when a stored ciphertext cannot be decoded or opened.
	ErrCiphertext = errors.New("keyring: invalid ciphertext")
)

// KeyProvider yields the current blind-index and encryption keys.
type KeyProvider interface {
	HMACKey() ([]byte, error)
	EncryptionKey() ([]byte, error)
}

// StaticProvider serves fixed keys held in memory.
type StaticProvider struct {
	hmacKey []byte
	encKey  []byte
}

// NewStaticProvider validates and copies the given keys.
func NewStaticProvider(hmacKey, encKey []byte) (*StaticProvider, error) {
	if len(hmacKey) < MinHMACKeyLen {
		return nil, ErrWeakHMACKey
	}
	if len(encKey) != EncryptionKeyLen {
		return nil, ErrBadEncryptionKey
	}
	return &StaticProvider{
		hmacKey: append([]byte(nil), hmacKey...),
		encKey:  append([]byte(nil), encKey...),
	}, nil
}

// NewBase64Provider decodes standard base64 keys, as they usually arrive from the
// environment.
func NewBase64Provider(hmacB64, encB64 string) (*StaticProvider, error) {
	hmacKey, err := base64.StdEncoding.DecodeString(hmacB64)
	if err != nil {
		return nil, fmt.Errorf("keyring: decode hmac key: %w", err)
	}
	encKey, err := base64.StdEncoding.DecodeString(encB64)
	if err != nil {
		return nil, fmt.Errorf("keyring: decode encryption key: %w", err)
	}
	return NewStaticProvider(hmacKey, encKey)
}

// HMACKey returns a copy of the blind-index key.
func (p *StaticProvider) HMACKey() ([]byte, error) {
	return append([]byte(nil), p.hmacKey...), nil
}

// EncryptionKey returns a copy of the AES key.
func (p *StaticProvider) EncryptionKey() ([]byte, error) {
	return append([]byte(nil), p.encKey...), nil
}
