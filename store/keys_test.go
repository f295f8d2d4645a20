package store

import (
	"context"
	"testing"
	"time"
)

func TestEnsureSigningKeysCreatesAndReuses(t *testing.T) {
	st, _, done := newStoreTest(t)
	defer done()
	ctx := context.Background()

	keys, err := st.EnsureSigningKeys(ctx, time.Hour)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("want 1 key, got %d", len(keys))
	}

	again, err := st.EnsureSigningKeys(ctx, time.Hour)
	if err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	if len(again) != 1 || again[0].KID != keys[0].KID {
		t.Fatalf("key not reused: %v vs %v", again[0].KID, keys[0].KID)
	}
}

func TestDropSigningKey(t *testing.T) {
	st, _, done := newStoreTest(t)
	defer done()
	ctx := context.Background()

	keys, err := st.EnsureSigningKeys(ctx, time.Hour)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if err := st.DropSigningKey(ctx, keys[0].KID); err != nil {
		t.Fatalf("drop: %v", err)
	}

	fresh, err := st.EnsureSigningKeys(ctx, time.Hour)
	if err != nil {
		t.Fatalf("ensure after drop: %v", err)
	}
	if len(fresh) != 1 || fresh[0].KID == keys[0].KID {
		t.Fatalf("dropped key still listed: %v", fresh)
	}
}

func TestHandshakeRoundTripAndLegacyDecode(t *testing.T) {
	st, _, done := newStoreTest(t)
	defer done()
	ctx := context.Background()

	missing, err := st.LoadHandshake(ctx)
	if err != nil || missing != nil {
		t.Fatalf("empty load: %v %v", missing, err)
	}

	info := &StoredHandshakeInfo{
		AntiCsrf:                       "VIA_TOKEN",
		AccessTokenBlacklistingEnabled: true,
		AccessTokenValidityMS:          3600000,
		RefreshTokenValidityMS:         144000000,
		JWTSigningPublicKeyList: []StoredKeyInfo{
			{PublicKey: "pem-new", CreatedAt: 1, ExpiryTime: 2},
		},
	}
	if err := st.SaveHandshake(ctx, info); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := st.LoadHandshake(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.AntiCsrf != "VIA_TOKEN" || len(got.JWTSigningPublicKeyList) != 1 {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	legacy := []byte(`{
		"antiCsrf": "NONE",
		"accessTokenBlacklistingEnabled": false,
		"accessTokenValidity": 1000,
		"refreshTokenValidity": 2000,
		"jwtSigningPublicKey": "pem-legacy",
		"jwtSigningPublicKeyExpiryTime": 99
	}`)
	decoded, err := DecodeHandshake(legacy)
	if err != nil {
		t.Fatalf("legacy decode: %v", err)
	}
	if len(decoded.JWTSigningPublicKeyList) != 1 {
		t.Fatalf("legacy key not normalized: %+v", decoded)
	}
	if decoded.JWTSigningPublicKeyList[0].PublicKey != "pem-legacy" ||
		decoded.JWTSigningPublicKeyList[0].ExpiryTime != 99 {
		t.Fatalf("legacy key fields lost: %+v", decoded.JWTSigningPublicKeyList[0])
	}
}
