package goSession

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func sessionTestConfig() Config {
	cfg := defaultConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

func newTestRecipe(t *testing.T, cfg Config) (*Recipe, *redis.Client, func()) {
	t.Helper()

	mr, rdb := newTestRedis(t)

	recipe, err := New().WithConfig(cfg).WithRedis(rdb).Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	return recipe, rdb, func() {
		_ = recipe.Close()
		mr.Close()
	}
}

// fakeRequest and fakeResponse implement the transport interfaces in memory.

type fakeRequest struct {
	headers map[string]string
	cookies map[string]string
}

func newFakeRequest() *fakeRequest {
	return &fakeRequest{
		headers: map[string]string{},
		cookies: map[string]string{},
	}
}

func (f *fakeRequest) GetHeader(name string) string { return f.headers[name] }
func (f *fakeRequest) GetCookie(name string) string { return f.cookies[name] }

type fakeResponse struct {
	headers map[string]string
	cookies []Cookie
	status  int
	body    any
}

func newFakeResponse() *fakeResponse {
	return &fakeResponse{headers: map[string]string{}}
}

func (f *fakeResponse) SetHeader(name, value string) { f.headers[name] = value }
func (f *fakeResponse) SetCookie(cookie Cookie)      { f.cookies = append(f.cookies, cookie) }
func (f *fakeResponse) SetStatusCode(code int)       { f.status = code }
func (f *fakeResponse) WriteJSON(body any) error {
	f.body = body
	return nil
}

// cookie returns the last value written under name, matching what a browser
// would end up storing.
func (f *fakeResponse) cookie(name string) (Cookie, bool) {
	for i := len(f.cookies) - 1; i >= 0; i-- {
		if f.cookies[i].Name == name {
			return f.cookies[i], true
		}
	}
	return Cookie{}, false
}

// toRequest simulates the client's next request: every cookie the response
// set is carried back, plus the anti-csrf header if one was issued.
func (f *fakeResponse) toRequest() *fakeRequest {
	req := newFakeRequest()
	for _, c := range f.cookies {
		req.cookies[c.Name] = c.Value
	}
	if v, ok := f.headers[AntiCsrfHeaderName]; ok {
		req.headers[AntiCsrfHeaderName] = v
	}
	return req
}

func TestBuildRequiresRedis(t *testing.T) {
	if _, err := New().Build(); err == nil {
		t.Fatal("expected error when redis client is missing")
	}
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	cfg := sessionTestConfig()
	cfg.AccessTokenValidity = 200 * 24 * time.Hour // longer than refresh

	if _, err := New().WithConfig(cfg).WithRedis(rdb).Build(); err == nil {
		t.Fatal("expected error for access validity longer than refresh validity")
	}
}

func TestBuilderIsSingleUse(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	builder := New().WithRedis(rdb)
	recipe, err := builder.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer recipe.Close()

	if _, err := builder.Build(); err == nil {
		t.Fatal("expected error on second Build")
	}
}

func TestWithConfigMapErrorSurfacesAtBuild(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	_, err := New().
		WithConfigMap(map[string]any{"apiBsePath": "/auth"}).
		WithRedis(rdb).
		Build()
	if err == nil {
		t.Fatal("expected Build to fail on unknown config key")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	recipe, _, done := newTestRecipe(t, sessionTestConfig())
	defer done()

	if err := recipe.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := recipe.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

func TestPing(t *testing.T) {
	recipe, _, done := newTestRecipe(t, sessionTestConfig())
	defer done()

	if _, err := recipe.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}

func TestGetSessionInformationUnknownHandle(t *testing.T) {
	recipe, _, done := newTestRecipe(t, sessionTestConfig())
	defer done()

	_, err := recipe.GetSessionInformation(context.Background(), "no-such-handle")
	if !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("expected ErrUnknownSession, got %v", err)
	}
}
