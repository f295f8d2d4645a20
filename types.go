package goSession

import (
	"context"
	"time"
)

// JSONObject is the payload shape shared by access-token payloads, session
// data, grants payloads, and user context.
type JSONObject = map[string]any

// GetString reads a string field from a JSON payload.
func GetString(obj JSONObject, key string) (string, bool) {
	v, ok := obj[key].(string)
	return v, ok
}

// GetBool reads a boolean field from a JSON payload.
func GetBool(obj JSONObject, key string) (bool, bool) {
	v, ok := obj[key].(bool)
	return v, ok
}

// GetObject reads a nested object field from a JSON payload.
func GetObject(obj JSONObject, key string) (JSONObject, bool) {
	v, ok := obj[key].(map[string]any)
	return v, ok
}

// CloneJSON returns a shallow copy of a JSON payload. nil is treated as an
// empty object.
func CloneJSON(obj JSONObject) JSONObject {
	out := make(JSONObject, len(obj))
	for k, v := range obj {
		out[k] = v
	}
	return out
}

// TokenInfo is an issued token plus its validity window, in epoch
// milliseconds.
type TokenInfo struct {
	Token     string `json:"token"`
	ExpiryMS  int64  `json:"expiry"`
	CreatedMS int64  `json:"createdTime"`
}

// KeyInfo is one public signing key as exposed through the handshake.
type KeyInfo struct {
	PublicKey  string
	CreatedAt  time.Time
	ExpiryTime time.Time
}

// SessionInformation is the full stored state of one session.
type SessionInformation struct {
	SessionHandle      string
	UserID             string
	SessionData        JSONObject
	AccessTokenPayload JSONObject
	Grants             JSONObject
	TimeCreated        time.Time
	Expiry             time.Time
}

// SessionTokens is the triple issued on session creation and refresh.
// AntiCsrfToken is only set in VIA_TOKEN mode.
type SessionTokens struct {
	AccessToken    TokenInfo
	RefreshToken   TokenInfo
	IdRefreshToken TokenInfo
	AntiCsrfToken  string
}

// VerifySessionOptions tunes one GetSession call. Nil pointers take the
// defaults: anti-CSRF checked, session required.
type VerifySessionOptions struct {
	AntiCsrfCheck   *bool
	SessionRequired *bool
	// RequiredGrants are evaluated in addition to the configured
	// DefaultRequiredGrants.
	RequiredGrants []Grant
}

func (o *VerifySessionOptions) sessionRequired() bool {
	if o == nil || o.SessionRequired == nil {
		return true
	}
	return *o.SessionRequired
}

func (o *VerifySessionOptions) antiCsrfCheck() bool {
	if o == nil || o.AntiCsrfCheck == nil {
		return true
	}
	return *o.AntiCsrfCheck
}

// RegenerateAccessTokenResult is the outcome of RegenerateAccessToken.
type RegenerateAccessTokenResult struct {
	Session struct {
		Handle             string
		UserID             string
		AccessTokenPayload JSONObject
		Grants             JSONObject
	}
	AccessToken TokenInfo
}

// RecipeInterface is the overrideable table of core session operations. Build
// populates every field with the default implementation; overrides replace
// individual funcs and may delegate to the originals they captured.
type RecipeInterface struct {
	CreateNewSession func(ctx context.Context, res Response, userID string, accessTokenPayload, sessionData JSONObject, grants []Grant) (*SessionContainer, error)

	GetSession func(ctx context.Context, req Request, res Response, options *VerifySessionOptions) (*SessionContainer, error)

	RefreshSession func(ctx context.Context, req Request, res Response) (*SessionContainer, error)

	GetSessionInformation func(ctx context.Context, sessionHandle string) (*SessionInformation, error)

	GetAllSessionHandlesForUser func(ctx context.Context, userID string) ([]string, error)

	RevokeSession func(ctx context.Context, sessionHandle string) (bool, error)

	RevokeMultipleSessions func(ctx context.Context, sessionHandles []string) ([]string, error)

	RevokeAllSessionsForUser func(ctx context.Context, userID string) ([]string, error)

	UpdateSessionData func(ctx context.Context, sessionHandle string, newSessionData JSONObject) error

	UpdateAccessTokenPayload func(ctx context.Context, sessionHandle string, newAccessTokenPayload JSONObject) error

	UpdateSessionGrants func(ctx context.Context, sessionHandle string, grants JSONObject) error

	RegenerateAccessToken func(ctx context.Context, accessToken string, newAccessTokenPayload, newGrants JSONObject) (*RegenerateAccessTokenResult, error)

	GetAccessTokenLifetime func(ctx context.Context) (time.Duration, error)

	GetRefreshTokenLifetime func(ctx context.Context) (time.Duration, error)
}

// APIOptions is what API handlers receive: the transport pair plus the
// recipe's function table.
type APIOptions struct {
	RecipeImplementation RecipeInterface
	Config               Config
	Req                  Request
	Res                  Response
}

// APIInterface is the overrideable table of API-level handlers. RefreshPOST
// and SignOutPOST may be set to nil to un-handle their routes.
type APIInterface struct {
	RefreshPOST func(ctx context.Context, options APIOptions) error

	SignOutPOST func(ctx context.Context, options APIOptions) (JSONObject, error)

	VerifySession func(ctx context.Context, verifyOptions *VerifySessionOptions, options APIOptions) (*SessionContainer, error)
}
