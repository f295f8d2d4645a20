package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"

	"github.com/google/uuid"
)

const (
	chainSecretSize   = 32
	chainTokenRawSize = 16 + chainSecretSize
)

// NewChainSecret returns a fresh random secret for one link of a refresh or
// id-refresh token chain. Only its SHA-256 hash is ever persisted.
func NewChainSecret() ([chainSecretSize]byte, error) {
	var secret [chainSecretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

// HashChainSecret hashes a chain secret for storage and comparison.
func HashChainSecret(secret [chainSecretSize]byte) [32]byte {
	return sha256.Sum256(secret[:])
}

// EncodeChainToken packs a session handle (UUID) and a chain secret into the
// opaque wire form presented by clients.
func EncodeChainToken(sessionHandle string, secret [chainSecretSize]byte) (string, error) {
	handle, err := uuid.Parse(sessionHandle)
	if err != nil {
		return "", err
	}

	var raw [chainTokenRawSize]byte
	copy(raw[:16], handle[:])
	copy(raw[16:], secret[:])

	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// DecodeChainToken is the inverse of EncodeChainToken. It rejects tokens of
// the wrong size before any store lookup happens.
func DecodeChainToken(token string) (string, [chainSecretSize]byte, error) {
	var secret [chainSecretSize]byte

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", secret, err
	}
	if len(raw) != chainTokenRawSize {
		return "", secret, errors.New("invalid chain token size")
	}

	var handle uuid.UUID
	copy(handle[:], raw[:16])
	copy(secret[:], raw[16:])

	return handle.String(), secret, nil
}

// ConstantTimeEqual compares two short strings without leaking their length
// relationship through timing.
func ConstantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
