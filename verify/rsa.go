package verify

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
)

// RSAChallenge verifies a SHA256withRSA (PKCS#1 v1.5) signature over the UTF-8 bytes
// of challenge.
func RSAChallenge(publicKey, challenge, signature string) error {
	key, err := ParsePublicKey(publicKey)
	if err != nil {
		return err
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return ErrUnsupportedKey
	}
	sig, err := decodeB64(signature)
	if err != nil || len(sig) == 0 {
		return ErrSignatureInvalid
	}
	digest := sha256.Sum256([]byte(challenge))
	if err := rsa.VerifyPKCS1v15(rsaKey, crypto.SHA256, digest[:], sig); err != nil {
		return ErrSignatureInvalid
	}
	return nil
}
