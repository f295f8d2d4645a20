package goSession

import (
	"context"
	"fmt"
	"time"

	"github.com/MrEthical07/goSession/store"
	"github.com/MrEthical07/goSession/token"
)

// HandshakeInfo is the process-wide snapshot the verify and issue paths read:
// effective token policy plus the public signing keys, newest first.
type HandshakeInfo struct {
	AntiCsrf                       token.AntiCsrfMode
	AccessTokenBlacklistingEnabled bool
	AccessTokenValidity            time.Duration
	RefreshTokenValidity           time.Duration
	JWTSigningPublicKeyList        []KeyInfo
}

// handshakeState is what the atomic pointer actually holds: the public
// snapshot plus parsed verify keys and the private signing keys.
type handshakeState struct {
	info       *HandshakeInfo
	verifyKeys []token.VerifyKey
	signing    []*token.SigningKey
}

func (s *handshakeState) currentKeyUsable(now time.Time) bool {
	return len(s.signing) > 0 && now.Before(s.signing[0].ExpiresAt)
}

// getHandshake returns the cached snapshot, refreshing it when empty or when
// the newest signing key has expired. Concurrent refreshes collapse into one
// store round trip via singleflight.
func (r *Recipe) getHandshake(ctx context.Context) (*handshakeState, error) {
	if state := r.handshake.Load(); state != nil && state.currentKeyUsable(time.Now()) {
		return state, nil
	}
	return r.refreshHandshake(ctx)
}

// refreshHandshake rebuilds the snapshot from the store unconditionally. The
// verify path calls this once on an unknown key ID before giving up.
func (r *Recipe) refreshHandshake(ctx context.Context) (*handshakeState, error) {
	result, err, _ := r.flight.Do("handshake", func() (any, error) {
		state, err := r.buildHandshake(ctx)
		if err != nil {
			return nil, err
		}
		r.handshake.Store(state)
		r.metrics.Inc(MetricHandshakeRefresh)
		return state, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*handshakeState), nil
}

func (r *Recipe) buildHandshake(ctx context.Context) (*handshakeState, error) {
	signing, err := r.store.EnsureSigningKeys(ctx, r.config.SigningKeyValidity)
	if err != nil {
		return nil, err
	}

	keyList := make([]KeyInfo, 0, len(signing))
	verifyKeys := make([]token.VerifyKey, 0, len(signing))
	storedKeys := make([]store.StoredKeyInfo, 0, len(signing))
	seenPEMs := make(map[string]struct{}, len(signing))
	for _, key := range signing {
		pubPEM, err := key.PublicPEM()
		if err != nil {
			return nil, err
		}
		seenPEMs[pubPEM] = struct{}{}
		keyList = append(keyList, KeyInfo{
			PublicKey:  pubPEM,
			CreatedAt:  key.CreatedAt,
			ExpiryTime: key.ExpiresAt,
		})
		verifyKeys = append(verifyKeys, token.VerifyKey{KID: key.KID, Public: &key.Private.PublicKey})
		storedKeys = append(storedKeys, store.StoredKeyInfo{
			PublicKey:  pubPEM,
			CreatedAt:  key.CreatedAt.UnixMilli(),
			ExpiryTime: key.ExpiresAt.UnixMilli(),
		})
	}

	// Keys carried only by an earlier snapshot (including the legacy
	// single-key schema) stay verifiable until they age out of it.
	previous, err := r.store.LoadHandshake(ctx)
	if err != nil {
		return nil, err
	}
	if previous != nil {
		for _, stored := range previous.JWTSigningPublicKeyList {
			if _, ok := seenPEMs[stored.PublicKey]; ok {
				continue
			}
			pub, parseErr := token.ParsePublicPEM(stored.PublicKey)
			if parseErr != nil {
				continue
			}
			keyList = append(keyList, KeyInfo{
				PublicKey:  stored.PublicKey,
				CreatedAt:  time.UnixMilli(stored.CreatedAt),
				ExpiryTime: time.UnixMilli(stored.ExpiryTime),
			})
			verifyKeys = append(verifyKeys, token.VerifyKey{Public: pub})
		}
	}

	info := &HandshakeInfo{
		AntiCsrf:                       r.config.AntiCsrf,
		AccessTokenBlacklistingEnabled: *r.config.AccessTokenBlacklisting,
		AccessTokenValidity:            r.config.AccessTokenValidity,
		RefreshTokenValidity:           r.config.RefreshTokenValidity,
		JWTSigningPublicKeyList:        keyList,
	}

	if err := r.store.SaveHandshake(ctx, &store.StoredHandshakeInfo{
		AntiCsrf:                       string(info.AntiCsrf),
		AccessTokenBlacklistingEnabled: info.AccessTokenBlacklistingEnabled,
		AccessTokenValidityMS:          info.AccessTokenValidity.Milliseconds(),
		RefreshTokenValidityMS:         info.RefreshTokenValidity.Milliseconds(),
		JWTSigningPublicKeyList:        storedKeys,
	}); err != nil {
		return nil, err
	}

	return &handshakeState{
		info:       info,
		verifyKeys: verifyKeys,
		signing:    signing,
	}, nil
}

// currentSigningKey returns the newest signing key, rotating through the
// store when the cached one has expired.
func (r *Recipe) currentSigningKey(ctx context.Context) (*token.SigningKey, error) {
	state, err := r.getHandshake(ctx)
	if err != nil {
		return nil, err
	}
	if len(state.signing) == 0 {
		return nil, fmt.Errorf("no signing key available")
	}
	return state.signing[0], nil
}

// GetHandshakeInfo exposes the current snapshot, refreshing it if needed.
func (r *Recipe) GetHandshakeInfo(ctx context.Context) (*HandshakeInfo, error) {
	state, err := r.getHandshake(ctx)
	if err != nil {
		return nil, err
	}
	return state.info, nil
}
