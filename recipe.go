package goSession

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/store"
)

// Builder assembles a Recipe. Construct with New, chain With* calls, then
// Build exactly once.
type Builder struct {
	config    Config
	redis     redis.UniversalClient
	auditSink AuditSink

	configErr error
	built     bool
}

// New returns a Builder preloaded with defaults.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithConfigMap parses a plain key-value configuration (see ParseConfig) and
// replaces the map-expressible fields. Parse errors surface at Build.
func (b *Builder) WithConfigMap(raw map[string]any) *Builder {
	cfg, err := ParseConfig(raw)
	if err != nil {
		b.config = Config{}
		b.configErr = err
		return b
	}
	// Carry over programmatic-only fields already set.
	cfg.DefaultRequiredGrants = b.config.DefaultRequiredGrants
	cfg.ErrorHandlers = b.config.ErrorHandlers
	cfg.Override = b.config.Override
	cfg.Audit = b.config.Audit
	cfg.Metrics = b.config.Metrics
	cfg.Logger = b.config.Logger
	b.config = cfg
	return b
}

// WithRedis sets the backing Redis client. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAuditSink enables async audit dispatch into the given sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	if !b.config.Audit.Enabled {
		b.config.Audit.Enabled = true
	}
	return b
}

// WithLogger sets the structured logger.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.config.Logger = &logger
	return b
}

// Build validates the configuration and assembles the Recipe. The Recipe is
// caller-owned; Close releases its background resources.
func (b *Builder) Build() (*Recipe, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.configErr != nil {
		return nil, b.configErr
	}
	if b.redis == nil {
		return nil, errors.New("redis client is required")
	}

	cfg := normalizeConfig(cloneConfig(b.config))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	r := &Recipe{
		config:  cfg,
		store:   store.New(b.redis, cfg.RedisPrefix),
		metrics: NewMetrics(cfg.Metrics),
		logger:  logger,
	}

	if cfg.Audit.Enabled {
		r.audit = audit.NewDispatcher(audit.Config{
			Enabled:    true,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink)
	}

	r.jwtImpl = applyOverride(cfg.Override.OpenID.JWT, makeJWTImplementation(r))
	r.recipeImpl = applyOverride(cfg.Override.Functions, makeRecipeImplementation(r))
	r.apiImpl = applyOverride(cfg.Override.APIs, makeAPIImplementation())

	b.built = true
	return r, nil
}

// Recipe is a caller-owned session recipe instance. All methods are safe for
// concurrent use.
type Recipe struct {
	config  Config
	store   *store.Store
	metrics *Metrics
	audit   *audit.Dispatcher
	logger  zerolog.Logger

	handshake atomic.Pointer[handshakeState]
	flight    singleflight.Group

	recipeImpl RecipeInterface
	apiImpl    APIInterface
	jwtImpl    JWTInterface

	closed atomic.Bool
}

func applyOverride[T any](b *OverrideBuilder[T], base T) T {
	if b == nil {
		return base
	}
	return b.Apply(base)
}

// Close shuts down background resources (the audit dispatcher). The Redis
// client is caller-owned and is not closed.
func (r *Recipe) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	r.audit.Close()
	return nil
}

// Config returns the normalized configuration the recipe runs with.
func (r *Recipe) Config() Config {
	return cloneConfig(r.config)
}

// Functions returns the override-composed recipe function table.
func (r *Recipe) Functions() RecipeInterface {
	return r.recipeImpl
}

// APIs returns the override-composed API handler table.
func (r *Recipe) APIs() APIInterface {
	return r.apiImpl
}

// JWT returns the override-composed OpenID JWT function table.
func (r *Recipe) JWT() JWTInterface {
	return r.jwtImpl
}

// MetricsSnapshot exposes the counters for exporters.
func (r *Recipe) MetricsSnapshot() MetricsSnapshot {
	return r.metrics.Snapshot()
}

// Ping checks store availability.
func (r *Recipe) Ping(ctx context.Context) (time.Duration, error) {
	return r.store.Ping(ctx)
}

// Convenience delegators to the override-composed function table.

func (r *Recipe) CreateNewSession(ctx context.Context, res Response, userID string, accessTokenPayload, sessionData JSONObject, grants []Grant) (*SessionContainer, error) {
	return r.recipeImpl.CreateNewSession(ctx, res, userID, accessTokenPayload, sessionData, grants)
}

func (r *Recipe) GetSession(ctx context.Context, req Request, res Response, options *VerifySessionOptions) (*SessionContainer, error) {
	return r.recipeImpl.GetSession(ctx, req, res, options)
}

func (r *Recipe) RefreshSession(ctx context.Context, req Request, res Response) (*SessionContainer, error) {
	return r.recipeImpl.RefreshSession(ctx, req, res)
}

func (r *Recipe) GetSessionInformation(ctx context.Context, sessionHandle string) (*SessionInformation, error) {
	return r.recipeImpl.GetSessionInformation(ctx, sessionHandle)
}

func (r *Recipe) GetAllSessionHandlesForUser(ctx context.Context, userID string) ([]string, error) {
	return r.recipeImpl.GetAllSessionHandlesForUser(ctx, userID)
}

func (r *Recipe) RevokeSession(ctx context.Context, sessionHandle string) (bool, error) {
	return r.recipeImpl.RevokeSession(ctx, sessionHandle)
}

func (r *Recipe) RevokeMultipleSessions(ctx context.Context, sessionHandles []string) ([]string, error) {
	return r.recipeImpl.RevokeMultipleSessions(ctx, sessionHandles)
}

func (r *Recipe) RevokeAllSessionsForUser(ctx context.Context, userID string) ([]string, error) {
	return r.recipeImpl.RevokeAllSessionsForUser(ctx, userID)
}

func (r *Recipe) UpdateSessionData(ctx context.Context, sessionHandle string, newSessionData JSONObject) error {
	return r.recipeImpl.UpdateSessionData(ctx, sessionHandle, newSessionData)
}

func (r *Recipe) UpdateAccessTokenPayload(ctx context.Context, sessionHandle string, newAccessTokenPayload JSONObject) error {
	return r.recipeImpl.UpdateAccessTokenPayload(ctx, sessionHandle, newAccessTokenPayload)
}

func (r *Recipe) UpdateSessionGrants(ctx context.Context, sessionHandle string, grants JSONObject) error {
	return r.recipeImpl.UpdateSessionGrants(ctx, sessionHandle, grants)
}

func (r *Recipe) RegenerateAccessToken(ctx context.Context, accessToken string, newAccessTokenPayload, newGrants JSONObject) (*RegenerateAccessTokenResult, error) {
	return r.recipeImpl.RegenerateAccessToken(ctx, accessToken, newAccessTokenPayload, newGrants)
}

func (r *Recipe) GetAccessTokenLifetime(ctx context.Context) (time.Duration, error) {
	return r.recipeImpl.GetAccessTokenLifetime(ctx)
}

func (r *Recipe) GetRefreshTokenLifetime(ctx context.Context) (time.Duration, error) {
	return r.recipeImpl.GetRefreshTokenLifetime(ctx)
}
