package token

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const signingKeyBits = 2048

// SigningKey is one generated RSA key pair. The KID is stamped into the header
// of every token the key signs so verifiers can pick it out of a rotated list.
type SigningKey struct {
	KID       string
	Private   *rsa.PrivateKey
	CreatedAt time.Time
	ExpiresAt time.Time
}

// NewSigningKey generates a fresh RSA key pair valid for the given duration.
func NewSigningKey(validity time.Duration) (*SigningKey, error) {
	if validity <= 0 {
		return nil, errors.New("token: non-positive key validity")
	}
	key, err := rsa.GenerateKey(rand.Reader, signingKeyBits)
	if err != nil {
		return nil, fmt.Errorf("token: generate signing key: %w", err)
	}
	now := time.Now()
	return &SigningKey{
		KID:       uuid.NewString(),
		Private:   key,
		CreatedAt: now,
		ExpiresAt: now.Add(validity),
	}, nil
}

// PublicPEM renders the key's public half as a PEM block for storage.
func (k *SigningKey) PublicPEM() (string, error) {
	der, err := x509.MarshalPKIXPublicKey(&k.Private.PublicKey)
	if err != nil {
		return "", fmt.Errorf("token: encode public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// PrivatePEM renders the full key pair as a PEM block for storage.
func (k *SigningKey) PrivatePEM() string {
	der := x509.MarshalPKCS1PrivateKey(k.Private)
	return string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: der}))
}

// ParsePrivatePEM is the inverse of PrivatePEM.
func ParsePrivatePEM(pemText string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, errors.New("token: no PEM block in private key")
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("token: parse private key: %w", err)
	}
	return key, nil
}

// ParsePublicPEM is the inverse of PublicPEM.
func ParsePublicPEM(pemText string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, errors.New("token: no PEM block in public key")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("token: parse public key: %w", err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("token: public key is not RSA")
	}
	return pub, nil
}
