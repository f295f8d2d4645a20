package goSession

import (
	"context"
	"encoding/base64"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JSONWebKey is one JWKS entry for the OpenID JWT sub-feature.
type JSONWebKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid,omitempty"`
	N   string `json:"n"`
	E   string `json:"e"`
	Alg string `json:"alg"`
	Use string `json:"use"`
}

// JWTInterface is the overrideable table of the OpenID JWT sub-feature.
// Composed independently of the recipe and API tables, through
// Config.Override.OpenID.JWT.
type JWTInterface struct {
	CreateJWT func(ctx context.Context, payload JSONObject, validitySeconds uint64) (string, error)

	GetJWKS func(ctx context.Context) ([]JSONWebKey, error)
}

func makeJWTImplementation(r *Recipe) JWTInterface {
	return JWTInterface{
		CreateJWT: r.createJWT,
		GetJWKS:   r.getJWKS,
	}
}

// createJWT signs a standalone RS256 JWT with the recipe's current signing
// key. Unlike session access tokens it carries the payload fields at the top
// level plus iss/iat/exp, so third parties can verify it against the JWKS
// without knowing the session token shape.
func (r *Recipe) createJWT(ctx context.Context, payload JSONObject, validitySeconds uint64) (string, error) {
	if validitySeconds == 0 {
		validitySeconds = uint64(r.config.AccessTokenValidity.Seconds())
	}

	key, err := r.currentSigningKey(ctx)
	if err != nil {
		return "", err
	}

	now := time.Now()
	claims := jwt.MapClaims{}
	for k, v := range payload {
		claims[k] = v
	}
	claims["iss"] = r.config.JWT.Issuer
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(time.Duration(validitySeconds) * time.Second).Unix()

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = key.KID
	return tok.SignedString(key.Private)
}

func (r *Recipe) getJWKS(ctx context.Context) ([]JSONWebKey, error) {
	state, err := r.getHandshake(ctx)
	if err != nil {
		return nil, err
	}

	keys := make([]JSONWebKey, 0, len(state.verifyKeys))
	for _, vk := range state.verifyKeys {
		keys = append(keys, JSONWebKey{
			Kty: "RSA",
			Kid: vk.KID,
			N:   base64.RawURLEncoding.EncodeToString(vk.Public.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(vk.Public.E)).Bytes()),
			Alg: "RS256",
			Use: "sig",
		})
	}
	return keys, nil
}
