package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	goSession "github.com/MrEthical07/goSession"
)

// httpRequest adapts *http.Request to the recipe's Request interface.
type httpRequest struct {
	r *http.Request
}

func (a httpRequest) GetHeader(name string) string {
	return a.r.Header.Get(name)
}

func (a httpRequest) GetCookie(name string) string {
	c, err := a.r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

// httpResponse adapts http.ResponseWriter to the recipe's Response
// interface. Status and cookies must be set before WriteJSON.
type httpResponse struct {
	w http.ResponseWriter
}

func (a httpResponse) SetHeader(name, value string) {
	a.w.Header().Set(name, value)
}

func (a httpResponse) SetCookie(cookie goSession.Cookie) {
	sameSite := http.SameSiteLaxMode
	switch cookie.SameSite {
	case "strict":
		sameSite = http.SameSiteStrictMode
	case "none":
		sameSite = http.SameSiteNoneMode
	}

	c := &http.Cookie{
		Name:     cookie.Name,
		Value:    cookie.Value,
		Domain:   cookie.Domain,
		Path:     cookie.Path,
		Expires:  cookie.Expiry,
		Secure:   cookie.Secure,
		HttpOnly: cookie.HTTPOnly,
		SameSite: sameSite,
	}
	if cookie.Value == "" {
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
	}
	http.SetCookie(a.w, c)
}

func (a httpResponse) SetStatusCode(statusCode int) {
	a.w.WriteHeader(statusCode)
}

func (a httpResponse) WriteJSON(body any) error {
	a.w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(a.w).Encode(body)
}

// WrapRequest exposes the net/http request adapter for callers invoking the
// recipe directly.
func WrapRequest(r *http.Request) goSession.Request {
	return httpRequest{r: r}
}

// WrapResponse exposes the net/http response adapter.
func WrapResponse(w http.ResponseWriter) goSession.Response {
	return httpResponse{w: w}
}
