package verify

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"encoding/json"
	"errors"
	"slices"
	"strings"
)

const (
	flagUserPresent = 0x01
	minAuthDataLen  = 37

	clientDataTypeGet = "webauthn.get"
)

var (
	// ErrMalformedAssertion is returned when assertion fields cannot be decoded.
	ErrMalformedAssertion = errors.New("verify: malformed assertion")
	// ErrChallengeMismatch is returned when clientData carries another challenge.
	ErrChallengeMismatch = errors.New("verify: challenge mismatch")
	// ErrOriginNotAllowed is returned when clientData.origin is not allow-listed.
	ErrOriginNotAllowed = errors.New("verify: origin not allowed")
	// ErrRPIDMismatch is returned when the authenticator signed for another relying party.
	ErrRPIDMismatch = errors.New("verify: rp id mismatch")
	// ErrUserNotPresent is returned when the UP flag is clear.
	ErrUserNotPresent = errors.New("verify: user presence flag not set")
)

// Assertion is the client's response to a passkey challenge. Fields are base64.
type Assertion struct {
	AuthenticatorData string `json:"authenticatorData"`
	ClientDataJSON    string `json:"clientDataJSON"`
	Signature         string `json:"signature"`
}

// PasskeyPolicy constrains which relying party and origins an assertion may come from.
// RPID is mandatory; an empty AllowedOrigins list accepts any origin.
type PasskeyPolicy struct {
	RPID           string
	AllowedOrigins []string
}

type clientData struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	Origin    string `json:"origin"`
}

// PasskeyAssertion verifies a WebAuthn assertion against the stored public key and the
// expected challenge, and returns the authenticator's signature counter.
func PasskeyAssertion(policy PasskeyPolicy, publicKey, expectedChallenge string, a Assertion) (uint32, error) {
	authData, err := decodeB64(a.AuthenticatorData)
	if err != nil || len(authData) < minAuthDataLen {
		return 0, ErrMalformedAssertion
	}
	rawClientData, err := decodeB64(a.ClientDataJSON)
	if err != nil {
		return 0, ErrMalformedAssertion
	}
	sig, err := decodeB64(a.Signature)
	if err != nil || len(sig) == 0 {
		return 0, ErrMalformedAssertion
	}

	var cd clientData
	if err := json.Unmarshal(rawClientData, &cd); err != nil {
		return 0, ErrMalformedAssertion
	}
	if cd.Type != clientDataTypeGet {
		return 0, ErrMalformedAssertion
	}
	got := strings.TrimRight(cd.Challenge, "=")
	want := strings.TrimRight(expectedChallenge, "=")
	if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		return 0, ErrChallengeMismatch
	}
	if len(policy.AllowedOrigins) > 0 && !slices.Contains(policy.AllowedOrigins, cd.Origin) {
		return 0, ErrOriginNotAllowed
	}

	if policy.RPID == "" {
		return 0, ErrRPIDMismatch
	}
	rpHash := sha256.Sum256([]byte(policy.RPID))
	if subtle.ConstantTimeCompare(authData[:32], rpHash[:]) != 1 {
		return 0, ErrRPIDMismatch
	}
	if authData[32]&flagUserPresent == 0 {
		return 0, ErrUserNotPresent
	}
	signCount := binary.BigEndian.Uint32(authData[33:37])

	clientHash := sha256.Sum256(rawClientData)
	signed := make([]byte, 0, len(authData)+len(clientHash))
	signed = append(signed, authData...)
	signed = append(signed, clientHash[:]...)

	key, err := ParsePublicKey(publicKey)
	if err != nil {
		return 0, err
	}
	if err := verifySignature(key, signed, sig); err != nil {
		return 0, err
	}
	return signCount, nil
}

func verifySignature(key crypto.PublicKey, msg, sig []byte) error {
	switch k := key.(type) {
	case *ecdsa.PublicKey:
		if k.Curve != elliptic.P256() {
			return ErrUnsupportedKey
		}
		digest := sha256.Sum256(msg)
		if !ecdsa.VerifyASN1(k, digest[:], sig) {
			return ErrSignatureInvalid
		}
	case ed25519.PublicKey:
		if !ed25519.Verify(k, msg, sig) {
			return ErrSignatureInvalid
		}
	case *rsa.PublicKey:
		digest := sha256.Sum256(msg)
		if rsa.VerifyPKCS1v15(k, crypto.SHA256, digest[:], sig) != nil {
			return ErrSignatureInvalid
		}
	default:
		return ErrUnsupportedKey
	}
	return nil
}
