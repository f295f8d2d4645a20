package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// StoredKeyInfo is one public signing key as persisted in the handshake
// snapshot.
type StoredKeyInfo struct {
	PublicKey  string `json:"publicKey"`
	CreatedAt  int64  `json:"createdAt"`
	ExpiryTime int64  `json:"expiryTime"`
}

// StoredHandshakeInfo is the persisted handshake snapshot. Two schema
// versions exist on the wire: the current one carries a key list, the legacy
// one a single key plus its expiry. LoadHandshake normalizes both into the
// list shape; SaveHandshake always writes the current shape.
type StoredHandshakeInfo struct {
	AntiCsrf                       string          `json:"antiCsrf"`
	AccessTokenBlacklistingEnabled bool            `json:"accessTokenBlacklistingEnabled"`
	AccessTokenValidityMS          int64           `json:"accessTokenValidity"`
	RefreshTokenValidityMS         int64           `json:"refreshTokenValidity"`
	JWTSigningPublicKeyList        []StoredKeyInfo `json:"jwtSigningPublicKeyList"`
}

type storedHandshakeWire struct {
	StoredHandshakeInfo

	// Legacy single-key schema.
	JWTSigningPublicKey           string `json:"jwtSigningPublicKey,omitempty"`
	JWTSigningPublicKeyExpiryTime int64  `json:"jwtSigningPublicKeyExpiryTime,omitempty"`
}

// DecodeHandshake parses a persisted handshake snapshot, accepting both
// schema versions.
func DecodeHandshake(data []byte) (*StoredHandshakeInfo, error) {
	var wire storedHandshakeWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("store: decode handshake: %w", err)
	}

	info := wire.StoredHandshakeInfo
	if len(info.JWTSigningPublicKeyList) == 0 && wire.JWTSigningPublicKey != "" {
		info.JWTSigningPublicKeyList = []StoredKeyInfo{{
			PublicKey:  wire.JWTSigningPublicKey,
			ExpiryTime: wire.JWTSigningPublicKeyExpiryTime,
		}}
	}
	return &info, nil
}

// LoadHandshake fetches the handshake snapshot. A missing snapshot returns
// (nil, nil).
func (s *Store) LoadHandshake(ctx context.Context) (*StoredHandshakeInfo, error) {
	data, err := s.redis.Get(ctx, s.handshakeKey()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return DecodeHandshake(data)
}

// SaveHandshake persists the snapshot in the current schema.
func (s *Store) SaveHandshake(ctx context.Context, info *StoredHandshakeInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("store: encode handshake: %w", err)
	}
	if err := s.redis.Set(ctx, s.handshakeKey(), data, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
