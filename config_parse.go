package goSession

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"

	"github.com/MrEthical07/goSession/token"
)

// configMap is the subset of Config expressible as a plain key-value map,
// e.g. when loaded from JSON or YAML. Function-valued fields (grants, error
// handlers, overrides) are programmatic-only and must be set on Config
// directly.
type configMap struct {
	APIBasePath              string `mapstructure:"apiBasePath"`
	CookieSecure             *bool  `mapstructure:"cookieSecure"`
	CookieSameSite           string `mapstructure:"cookieSameSite"`
	CookieDomain             string `mapstructure:"cookieDomain"`
	AntiCsrf                 string `mapstructure:"antiCsrf"`
	SessionExpiredStatusCode int    `mapstructure:"sessionExpiredStatusCode"`
	MissingGrantStatusCode   int    `mapstructure:"missingGrantStatusCode"`

	JWT struct {
		Enable                           bool   `mapstructure:"enable"`
		PropertyNameInAccessTokenPayload string `mapstructure:"propertyNameInAccessTokenPayload"`
		Issuer                           string `mapstructure:"issuer"`
	} `mapstructure:"jwt"`
}

// ParseConfig builds a Config from a plain map. Unknown keys are rejected so
// typos fail at startup rather than silently taking defaults.
func ParseConfig(raw map[string]any) (Config, error) {
	var parsed configMap
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &parsed,
		ErrorUnused: true,
	})
	if err != nil {
		return Config{}, fmt.Errorf("build config decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg := Config{
		APIBasePath:              parsed.APIBasePath,
		CookieSameSite:           parsed.CookieSameSite,
		CookieDomain:             parsed.CookieDomain,
		AntiCsrf:                 token.AntiCsrfMode(parsed.AntiCsrf),
		SessionExpiredStatusCode: parsed.SessionExpiredStatusCode,
		MissingGrantStatusCode:   parsed.MissingGrantStatusCode,
	}
	if parsed.CookieSecure != nil {
		cfg.CookieSecure = *parsed.CookieSecure
	}
	cfg.JWT = JWTFeatureConfig{
		Enable:                           parsed.JWT.Enable,
		PropertyNameInAccessTokenPayload: parsed.JWT.PropertyNameInAccessTokenPayload,
		Issuer:                           parsed.JWT.Issuer,
	}
	return cfg, nil
}
