package token

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenExpired is returned by Verify when the token signature is valid
	// but its expiry has passed.
	ErrTokenExpired = errors.New("token: access token expired")
	// ErrTokenInvalid is returned by Verify for malformed tokens, signature
	// mismatches, and claim validation failures other than expiry.
	ErrTokenInvalid = errors.New("token: access token invalid")
	// ErrUnknownKeyID is returned by Verify when the token names a kid that is
	// absent from the supplied key list. Callers typically refresh their key
	// cache once and retry before treating the token as invalid.
	ErrUnknownKeyID = errors.New("token: unknown signing key id")
)

// AccessClaims is the claim set carried by every access token.
//
// UserPayload holds the caller-supplied access token payload verbatim. Grants
// holds the session's grant values keyed by grant ID, so grant checks can run
// against the token alone. AntiCsrf is only populated when the recipe runs in
// VIA_TOKEN mode.
type AccessClaims struct {
	SessionHandle          string         `json:"sessionHandle"`
	UserID                 string         `json:"userId"`
	RefreshTokenHash       string         `json:"refreshTokenHash1,omitempty"`
	ParentRefreshTokenHash string         `json:"parentRefreshTokenHash1,omitempty"`
	UserPayload            map[string]any `json:"userData"`
	Grants                 map[string]any `json:"grants"`
	AntiCsrf               string         `json:"antiCsrfToken,omitempty"`
	jwt.RegisteredClaims
}

// IssueParams carries everything Issue needs to mint one access token.
type IssueParams struct {
	SessionHandle          string
	UserID                 string
	RefreshTokenHash       string
	ParentRefreshTokenHash string
	UserPayload            map[string]any
	Grants                 map[string]any
	AntiCsrf               string
	Validity               time.Duration
}

// Issue signs a new RS256 access token with the given key, stamping the key's
// ID into the header so Verify can select the right public key.
func Issue(key *SigningKey, params IssueParams) (string, time.Time, error) {
	if key == nil || key.Private == nil {
		return "", time.Time{}, errors.New("token: nil signing key")
	}
	if params.Validity <= 0 {
		return "", time.Time{}, errors.New("token: non-positive validity")
	}

	now := time.Now()
	expiry := now.Add(params.Validity)
	payload := params.UserPayload
	if payload == nil {
		payload = map[string]any{}
	}
	grants := params.Grants
	if grants == nil {
		grants = map[string]any{}
	}

	claims := AccessClaims{
		SessionHandle:          params.SessionHandle,
		UserID:                 params.UserID,
		RefreshTokenHash:       params.RefreshTokenHash,
		ParentRefreshTokenHash: params.ParentRefreshTokenHash,
		UserPayload:            payload,
		Grants:                 grants,
		AntiCsrf:               params.AntiCsrf,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiry),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = key.KID

	signed, err := tok.SignedString(key.Private)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token: sign access token: %w", err)
	}
	return signed, expiry, nil
}

// VerifyKey is one public key a token may have been signed with.
type VerifyKey struct {
	KID    string
	Public *rsa.PublicKey
}

// Verify parses and validates an access token against the given key list. Keys
// are consulted by the kid named in the token header; tokens without a kid fall
// back to trying every key, newest first, to stay compatible with tokens minted
// before key IDs were stamped.
//
// Expired-but-otherwise-valid tokens return the parsed claims alongside
// ErrTokenExpired so callers can still read the session handle.
func Verify(signed string, keys []VerifyKey, leeway time.Duration) (*AccessClaims, error) {
	if len(keys) == 0 {
		return nil, ErrUnknownKeyID
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
	}
	if leeway > 0 {
		options = append(options, jwt.WithLeeway(leeway))
	}
	parser := jwt.NewParser(options...)

	kid, err := peekKeyID(parser, signed)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	if kid != "" {
		key, ok := lookupKey(keys, kid)
		if !ok {
			return nil, ErrUnknownKeyID
		}
		return verifyWithKey(parser, signed, key)
	}

	var lastErr error
	for _, key := range keys {
		claims, err := verifyWithKey(parser, signed, key.Public)
		if err == nil || errors.Is(err, ErrTokenExpired) {
			return claims, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func verifyWithKey(parser *jwt.Parser, signed string, key *rsa.PublicKey) (*AccessClaims, error) {
	tok, err := parser.ParseWithClaims(signed, &AccessClaims{}, func(*jwt.Token) (any, error) {
		return key, nil
	})
	if err != nil {
		if tok != nil && errors.Is(err, jwt.ErrTokenExpired) {
			if claims, ok := tok.Claims.(*AccessClaims); ok {
				return claims, ErrTokenExpired
			}
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := tok.Claims.(*AccessClaims)
	if !ok || !tok.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func lookupKey(keys []VerifyKey, kid string) (*rsa.PublicKey, bool) {
	for _, key := range keys {
		if key.KID == kid {
			return key.Public, true
		}
	}
	return nil, false
}

func peekKeyID(parser *jwt.Parser, signed string) (string, error) {
	tok, _, err := parser.ParseUnverified(signed, jwt.MapClaims{})
	if err != nil {
		return "", err
	}
	kid, _ := tok.Header["kid"].(string)
	return kid, nil
}
