package goSession

import "time"

// Cookie names and header names used on the wire.
const (
	AccessTokenCookieName    = "sAccessToken"
	RefreshTokenCookieName   = "sRefreshToken"
	IdRefreshTokenCookieName = "sIdRefreshToken"

	AntiCsrfHeaderName       = "anti-csrf"
	RidHeaderName            = "rid"
	IdRefreshTokenHeaderName = "id-refresh-token"
)

// Request abstracts the incoming half of a transport. The middleware package
// ships a net/http adapter; other frameworks implement these two methods.
type Request interface {
	GetHeader(name string) string
	GetCookie(name string) string
}

// Response abstracts the outgoing half of a transport.
type Response interface {
	SetHeader(name, value string)
	SetCookie(cookie Cookie)
	SetStatusCode(statusCode int)
	WriteJSON(body any) error
}

// Cookie is a transport-neutral cookie. SameSite holds one of "strict",
// "lax", "none".
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Expiry   time.Time
	Secure   bool
	HTTPOnly bool
	SameSite string
}

func (r *Recipe) tokenCookie(name, value string, expiry time.Time, path string) Cookie {
	return Cookie{
		Name:     name,
		Value:    value,
		Domain:   r.config.CookieDomain,
		Path:     path,
		Expiry:   expiry,
		Secure:   r.config.CookieSecure,
		HTTPOnly: true,
		SameSite: r.config.CookieSameSite,
	}
}

// attachTokens writes the issued token triple to the response: access and
// id-refresh cookies on the API base path, the refresh cookie scoped to the
// refresh endpoint only, and the id-refresh / anti-csrf headers.
func (r *Recipe) attachTokens(res Response, tokens *SessionTokens) {
	if res == nil {
		return
	}
	base := r.config.APIBasePath

	res.SetCookie(r.tokenCookie(AccessTokenCookieName, tokens.AccessToken.Token, time.UnixMilli(tokens.AccessToken.ExpiryMS), "/"))
	res.SetCookie(r.tokenCookie(RefreshTokenCookieName, tokens.RefreshToken.Token, time.UnixMilli(tokens.RefreshToken.ExpiryMS), base+"/session/refresh"))
	res.SetCookie(r.tokenCookie(IdRefreshTokenCookieName, tokens.IdRefreshToken.Token, time.UnixMilli(tokens.IdRefreshToken.ExpiryMS), "/"))

	res.SetHeader(IdRefreshTokenHeaderName, tokens.IdRefreshToken.Token)
	if tokens.AntiCsrfToken != "" {
		res.SetHeader(AntiCsrfHeaderName, tokens.AntiCsrfToken)
	}
}

// attachAccessToken re-issues only the access cookie, used after a payload or
// grant change mid-request.
func (r *Recipe) attachAccessToken(res Response, info TokenInfo) {
	if res == nil {
		return
	}
	res.SetCookie(r.tokenCookie(AccessTokenCookieName, info.Token, time.UnixMilli(info.ExpiryMS), "/"))
}

// clearTokens expires all session cookies and signals token removal via the
// id-refresh header.
func (r *Recipe) clearTokens(res Response) {
	if res == nil {
		return
	}
	past := time.Unix(0, 0)
	base := r.config.APIBasePath

	res.SetCookie(r.tokenCookie(AccessTokenCookieName, "", past, "/"))
	res.SetCookie(r.tokenCookie(RefreshTokenCookieName, "", past, base+"/session/refresh"))
	res.SetCookie(r.tokenCookie(IdRefreshTokenCookieName, "", past, "/"))
	res.SetHeader(IdRefreshTokenHeaderName, "remove")
}
