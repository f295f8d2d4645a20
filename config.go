package goSession

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/MrEthical07/goSession/token"
)

// Config defines the recipe's behavior. Zero values are filled in by
// defaultConfig / normalizeConfig; Validate runs fail-fast at Build time.
type Config struct {
	// APIBasePath prefixes the session routes. Default "/auth".
	APIBasePath string

	// Cookie attributes applied to every session cookie.
	CookieSecure   bool
	CookieSameSite string // "strict", "lax" or "none"
	CookieDomain   string

	// AntiCsrf selects the CSRF protection mode. When unset it defaults to
	// VIA_CUSTOM_HEADER if CookieSameSite is "none", otherwise NONE.
	AntiCsrf token.AntiCsrfMode

	// SessionExpiredStatusCode is written by the default Unauthorised and
	// TryRefreshToken handlers. Default 401.
	SessionExpiredStatusCode int

	// MissingGrantStatusCode is written by the default MissingGrant handler.
	// Default 403.
	MissingGrantStatusCode int

	// Token lifetimes. Defaults: access 1h, refresh 100 days, signing keys
	// rotate every 24h (expired keys verify for one extra validity period).
	AccessTokenValidity  time.Duration
	RefreshTokenValidity time.Duration
	SigningKeyValidity   time.Duration

	// AccessTokenBlacklisting checks the store on every verify so revoked
	// sessions fail immediately instead of at access-token expiry. On by
	// default.
	AccessTokenBlacklisting *bool

	// RedisPrefix namespaces the store's keys. Default "sess".
	RedisPrefix string

	// DefaultRequiredGrants are evaluated on every GetSession call, before
	// any per-call grants.
	DefaultRequiredGrants []Grant

	// ErrorHandlers replace the default JSON error responses per kind.
	ErrorHandlers ErrorHandlers

	// JWT enables the OpenID sub-feature: a standalone JWT mirrored into the
	// access-token payload.
	JWT JWTFeatureConfig

	// Override customizes the recipe, API, and JWT function tables.
	Override OverrideConfig

	Audit   AuditConfig
	Metrics MetricsConfig

	// Logger receives structured recipe logs. Defaults to a disabled logger.
	Logger *zerolog.Logger
}

// JWTFeatureConfig configures the OpenID JWT sub-feature.
type JWTFeatureConfig struct {
	Enable bool
	// PropertyNameInAccessTokenPayload is the payload key the standalone JWT
	// is stored under. Default "jwt".
	PropertyNameInAccessTokenPayload string
	// Issuer is stamped into standalone JWTs and reported by GetJWKS
	// consumers. Default APIBasePath.
	Issuer string
}

// OverrideConfig carries the override chains for each function table.
type OverrideConfig struct {
	Functions *OverrideBuilder[RecipeInterface]
	APIs      *OverrideBuilder[APIInterface]
	OpenID    OpenIDOverrideConfig
}

// OpenIDOverrideConfig carries the nested JWT sub-feature override chain.
type OpenIDOverrideConfig struct {
	JWT *OverrideBuilder[JWTInterface]
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process metric counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

func defaultConfig() Config {
	return Config{
		APIBasePath:              "/auth",
		CookieSameSite:           "lax",
		SessionExpiredStatusCode: http.StatusUnauthorized,
		MissingGrantStatusCode:   http.StatusForbidden,
		AccessTokenValidity:      time.Hour,
		RefreshTokenValidity:     100 * 24 * time.Hour,
		SigningKeyValidity:       24 * time.Hour,
		RedisPrefix:              "sess",
		JWT: JWTFeatureConfig{
			PropertyNameInAccessTokenPayload: "jwt",
		},
		Audit: AuditConfig{
			BufferSize: 256,
			DropIfFull: true,
		},
	}
}

func normalizeConfig(cfg Config) Config {
	def := defaultConfig()

	if cfg.APIBasePath == "" {
		cfg.APIBasePath = def.APIBasePath
	}
	cfg.APIBasePath = "/" + strings.Trim(cfg.APIBasePath, "/")

	cfg.CookieSameSite = strings.ToLower(strings.TrimSpace(cfg.CookieSameSite))
	if cfg.CookieSameSite == "" {
		cfg.CookieSameSite = def.CookieSameSite
	}

	if cfg.AntiCsrf == "" {
		if cfg.CookieSameSite == "none" {
			cfg.AntiCsrf = token.AntiCsrfViaCustomHeader
		} else {
			cfg.AntiCsrf = token.AntiCsrfNone
		}
	}

	if cfg.SessionExpiredStatusCode == 0 {
		cfg.SessionExpiredStatusCode = def.SessionExpiredStatusCode
	}
	if cfg.MissingGrantStatusCode == 0 {
		cfg.MissingGrantStatusCode = def.MissingGrantStatusCode
	}
	if cfg.AccessTokenValidity == 0 {
		cfg.AccessTokenValidity = def.AccessTokenValidity
	}
	if cfg.RefreshTokenValidity == 0 {
		cfg.RefreshTokenValidity = def.RefreshTokenValidity
	}
	if cfg.SigningKeyValidity == 0 {
		cfg.SigningKeyValidity = def.SigningKeyValidity
	}
	if cfg.AccessTokenBlacklisting == nil {
		enabled := true
		cfg.AccessTokenBlacklisting = &enabled
	}
	if cfg.RedisPrefix == "" {
		cfg.RedisPrefix = def.RedisPrefix
	}
	if cfg.JWT.PropertyNameInAccessTokenPayload == "" {
		cfg.JWT.PropertyNameInAccessTokenPayload = def.JWT.PropertyNameInAccessTokenPayload
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = cfg.APIBasePath
	}
	if cfg.Audit.BufferSize == 0 {
		cfg.Audit.BufferSize = def.Audit.BufferSize
	}
	return cfg
}

// Validate rejects configurations the recipe cannot run with. Called from
// Build; failures abort construction.
func (c Config) Validate() error {
	switch c.CookieSameSite {
	case "strict", "lax", "none":
	default:
		return fmt.Errorf("invalid cookieSameSite %q", c.CookieSameSite)
	}
	if !c.AntiCsrf.Valid() {
		return fmt.Errorf("invalid antiCsrf mode %q", c.AntiCsrf)
	}
	if c.SessionExpiredStatusCode < 100 || c.SessionExpiredStatusCode > 599 {
		return fmt.Errorf("invalid sessionExpiredStatusCode %d", c.SessionExpiredStatusCode)
	}
	if c.MissingGrantStatusCode < 100 || c.MissingGrantStatusCode > 599 {
		return fmt.Errorf("invalid missingGrantStatusCode %d", c.MissingGrantStatusCode)
	}
	if c.AccessTokenValidity <= 0 || c.RefreshTokenValidity <= 0 || c.SigningKeyValidity <= 0 {
		return errors.New("token validities must be positive")
	}
	if c.AccessTokenValidity >= c.RefreshTokenValidity {
		return errors.New("accessTokenValidity must be shorter than refreshTokenValidity")
	}
	seen := make(map[string]struct{}, len(c.DefaultRequiredGrants))
	for _, g := range c.DefaultRequiredGrants {
		if g == nil {
			return errors.New("nil grant in defaultRequiredGrants")
		}
		if g.ID() == "" {
			return errors.New("grant with empty ID in defaultRequiredGrants")
		}
		if _, dup := seen[g.ID()]; dup {
			return fmt.Errorf("duplicate grant %q in defaultRequiredGrants", g.ID())
		}
		seen[g.ID()] = struct{}{}
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.AccessTokenBlacklisting != nil {
		v := *cfg.AccessTokenBlacklisting
		out.AccessTokenBlacklisting = &v
	}
	if cfg.DefaultRequiredGrants != nil {
		out.DefaultRequiredGrants = append([]Grant(nil), cfg.DefaultRequiredGrants...)
	}
	return out
}
