package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goSession/token"
)

const keyRotationRetries = 3

type storedSigningKey struct {
	KID        string `json:"kid"`
	PrivatePEM string `json:"privateKey"`
	PublicPEM  string `json:"publicKey"`
	CreatedAt  int64  `json:"createdAt"`
	ExpiresAt  int64  `json:"expiryTime"`
}

// EnsureSigningKeys returns the current signing-key list, newest first,
// generating and persisting a fresh key when none exists or the newest one
// has expired. Expired keys stay listed for one extra validity period so
// access tokens signed shortly before rotation still verify.
//
// The read-generate-write cycle runs under a Redis WATCH so concurrent
// processes never both persist a new key.
func (s *Store) EnsureSigningKeys(ctx context.Context, validity time.Duration) ([]*token.SigningKey, error) {
	if validity <= 0 {
		return nil, errors.New("store: non-positive signing key validity")
	}

	var out []*token.SigningKey
	txn := func(tx *redis.Tx) error {
		stored, err := loadStoredKeys(ctx, tx, s.keysKey())
		if err != nil {
			return err
		}

		now := time.Now()
		kept := make([]storedSigningKey, 0, len(stored)+1)
		for _, k := range stored {
			graceEnd := time.UnixMilli(k.ExpiresAt).Add(validity)
			if now.Before(graceEnd) {
				kept = append(kept, k)
			}
		}

		dirty := len(kept) != len(stored)
		if len(kept) == 0 || time.UnixMilli(kept[0].ExpiresAt).Before(now) {
			fresh, err := token.NewSigningKey(validity)
			if err != nil {
				return err
			}
			pubPEM, err := fresh.PublicPEM()
			if err != nil {
				return err
			}
			kept = append([]storedSigningKey{{
				KID:        fresh.KID,
				PrivatePEM: fresh.PrivatePEM(),
				PublicPEM:  pubPEM,
				CreatedAt:  fresh.CreatedAt.UnixMilli(),
				ExpiresAt:  fresh.ExpiresAt.UnixMilli(),
			}}, kept...)
			dirty = true
		}

		out, err = parseStoredKeys(kept)
		if err != nil {
			return err
		}
		if !dirty {
			return nil
		}

		data, err := json.Marshal(kept)
		if err != nil {
			return fmt.Errorf("store: encode signing keys: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.keysKey(), data, 0)
			return nil
		})
		return err
	}

	for i := 0; i < keyRotationRetries; i++ {
		err := s.redis.Watch(ctx, txn, s.keysKey())
		if err == nil {
			return out, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil, fmt.Errorf("%w: signing key rotation contention", ErrStoreUnavailable)
}

// DropSigningKey delists a key by ID. Tokens signed with it stop verifying
// immediately.
func (s *Store) DropSigningKey(ctx context.Context, kid string) error {
	txn := func(tx *redis.Tx) error {
		stored, err := loadStoredKeys(ctx, tx, s.keysKey())
		if err != nil {
			return err
		}
		kept := make([]storedSigningKey, 0, len(stored))
		for _, k := range stored {
			if k.KID != kid {
				kept = append(kept, k)
			}
		}
		if len(kept) == len(stored) {
			return nil
		}
		data, err := json.Marshal(kept)
		if err != nil {
			return fmt.Errorf("store: encode signing keys: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.keysKey(), data, 0)
			return nil
		})
		return err
	}

	for i := 0; i < keyRotationRetries; i++ {
		err := s.redis.Watch(ctx, txn, s.keysKey())
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%w: signing key rotation contention", ErrStoreUnavailable)
}

func loadStoredKeys(ctx context.Context, tx *redis.Tx, key string) ([]storedSigningKey, error) {
	data, err := tx.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	var stored []storedSigningKey
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("store: decode signing keys: %w", err)
	}
	return stored, nil
}

func parseStoredKeys(stored []storedSigningKey) ([]*token.SigningKey, error) {
	out := make([]*token.SigningKey, 0, len(stored))
	for _, k := range stored {
		private, err := token.ParsePrivatePEM(k.PrivatePEM)
		if err != nil {
			return nil, err
		}
		out = append(out, &token.SigningKey{
			KID:       k.KID,
			Private:   private,
			CreatedAt: time.UnixMilli(k.CreatedAt),
			ExpiresAt: time.UnixMilli(k.ExpiresAt),
		})
	}
	return out, nil
}
