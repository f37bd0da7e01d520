package keyring

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const nonceSize = 12

// FieldCipher encrypts individual column values with AES-256-GCM.
// Output format: base64(nonce || ciphertext || tag).
type FieldCipher struct {
	keys KeyProvider
}

// NewFieldCipher returns a FieldCipher over keys.
func NewFieldCipher(keys KeyProvider) *FieldCipher {
	return &FieldCipher{keys: keys}
}

func (f *FieldCipher) aead() (cipher.AEAD, error) {
	key, err := f.keys.EncryptionKey()
	if err != nil {
		return nil, err
	}
	if len(key) != EncryptionKeyLen {
		return nil, ErrBadEncryptionKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("keyring: create AES cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// Encrypt seals plaintext under a fresh random nonce. Empty input yields empty output.
func (f *FieldCipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	gcm, err := f.aead()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (f *FieldCipher) Decrypt(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCiphertext, err)
	}
	if len(data) < nonceSize {
		return "", ErrCiphertext
	}
	gcm, err := f.aead()
	if err != nil {
		return "", err
	}
	plain, err := gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", ErrCiphertext
	}
	return string(plain), nil
}
