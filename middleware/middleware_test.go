package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	goSession "github.com/MrEthical07/goSession"
)

func newTestRecipe(t *testing.T) (*goSession.Recipe, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	recipe, err := goSession.New().WithRedis(rdb).Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}
	return recipe, func() {
		_ = recipe.Close()
		mr.Close()
	}
}

// loginRecorder creates a session against a recorder and returns the cookies
// a client would send back.
func loginRecorder(t *testing.T, recipe *goSession.Recipe, userID string) []*http.Cookie {
	t.Helper()

	rec := httptest.NewRecorder()
	if _, err := recipe.CreateNewSession(context.Background(), WrapResponse(rec), userID, nil, nil, nil); err != nil {
		t.Fatalf("CreateNewSession failed: %v", err)
	}
	return rec.Result().Cookies()
}

func TestVerifySessionMiddleware(t *testing.T) {
	recipe, done := newTestRecipe(t)
	defer done()

	var gotUser string
	protected := VerifySession(recipe, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, ok := SessionFromContext(r.Context())
		if !ok {
			t.Fatal("expected session in context")
		}
		gotUser = session.GetUserID()
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	for _, c := range loginRecorder(t, recipe, "user-1") {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotUser != "user-1" {
		t.Fatalf("expected user-1 in context, got %q", gotUser)
	}
}

func TestVerifySessionRejectsAnonymous(t *testing.T) {
	recipe, done := newTestRecipe(t)
	defer done()

	protected := VerifySession(recipe, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run without a session")
	}))

	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/protected", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestVerifySessionOptional(t *testing.T) {
	recipe, done := newTestRecipe(t)
	defer done()

	required := false
	var sawSession bool
	handler := VerifySession(recipe, &goSession.VerifySessionOptions{
		SessionRequired: &required,
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawSession = SessionFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/maybe", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on optional route, got %d", rec.Code)
	}
	if sawSession {
		t.Fatal("expected no session in context for anonymous optional request")
	}
}

func TestSessionRoutesRefresh(t *testing.T) {
	recipe, done := newTestRecipe(t)
	defer done()

	routes := SessionRoutes(recipe, nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/session/refresh", nil)
	for _, c := range loginRecorder(t, recipe, "user-1") {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var rotated bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == goSession.RefreshTokenCookieName && c.Value != "" {
			rotated = true
		}
	}
	if !rotated {
		t.Fatal("expected rotated refresh cookie")
	}
}

func TestSessionRoutesFallThrough(t *testing.T) {
	recipe, done := newTestRecipe(t)
	defer done()

	var nexted bool
	routes := SessionRoutes(recipe, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nexted = true
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/something-else", nil))

	if !nexted || rec.Code != http.StatusNoContent {
		t.Fatalf("expected fall-through to next handler, got %d", rec.Code)
	}
}

func TestSessionRoutesRefreshWithoutCookie(t *testing.T) {
	recipe, done := newTestRecipe(t)
	defer done()

	routes := SessionRoutes(recipe, nil)
	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/session/refresh", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without refresh cookie, got %d", rec.Code)
	}
}

func TestClearedCookiesExpireClientSide(t *testing.T) {
	recipe, done := newTestRecipe(t)
	defer done()

	cookies := loginRecorder(t, recipe, "user-1")

	// Revoke through the signout route; the response must expire the cookies.
	req := httptest.NewRequest(http.MethodPost, "/auth/signout", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	SessionRoutes(recipe, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var expired bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == goSession.AccessTokenCookieName && c.Value == "" && c.MaxAge < 0 {
			expired = true
		}
	}
	if !expired {
		t.Fatal("expected expired access cookie on signout response")
	}
}
