// Package config handles configuration for the server component,
// including defaults, JSON overlay, and command-line flags.
package config

import (
	"time"

	"github.com/plainlyhq/plainly-core/internal/common"
)

// Config holds runtime settings for the plainly server.
//
// Fields:
//   - EndpointAddr: bind address for the HTTP API.
//   - APIPrefix: path prefix the API is mounted under.
//   - DatabaseDSN: "postgres://..." selects the pgx engine, anything else is
//     treated as a sqlite file path (the embedded/edge deployment).
//   - SecretKey: HMAC secret for signing JWTs (HS256). Do not use test defaults in prod.
//   - AccessTokenValidityDuration / RefreshTokenValidityDuration: token lifetimes.
//     A session row expires together with its refresh token.
type Config struct {
	EndpointAddr                 string
	APIPrefix                    string
	DatabaseDSN                  string
	SecretKey                    string
	AccessTokenValidityDuration  time.Duration
	RefreshTokenValidityDuration time.Duration
}

// LoadDefaults populates Config with sensible development defaults.
// NOTE: These values are insecure for production and should be overridden.
func (c *Config) LoadDefaults() {
	c.EndpointAddr = ":8080"
	c.APIPrefix = common.DefaultAPIPrefix
	c.DatabaseDSN = "plainly.db"
	c.SecretKey = "secretKey"
	c.AccessTokenValidityDuration = 15 * time.Minute
	c.RefreshTokenValidityDuration = 30 * 24 * time.Hour
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
