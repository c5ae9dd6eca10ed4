package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/plainlyhq/plainly-core/internal/flagx"
	"github.com/plainlyhq/plainly-core/internal/timex"
)

// JsonConfig is the DTO for the optional JSON config file. Duration fields
// use timex.Duration so both "15m" strings and integer nanoseconds parse.
type JsonConfig struct {
	EndpointAddr                 string         `json:"endpoint_addr"`
	APIPrefix                    string         `json:"api_prefix"`
	DatabaseDSN                  string         `json:"database_dsn"`
	SecretKey                    string         `json:"secret_key"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance. The file path comes from the -c/-config flags; when no
// path is given, nothing is loaded. An unreadable or invalid file panics —
// a server started with broken explicit config must not come up quietly.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	if c.EndpointAddr != "" {
		config.EndpointAddr = c.EndpointAddr
	}
	if c.APIPrefix != "" {
		config.APIPrefix = c.APIPrefix
	}
	if c.DatabaseDSN != "" {
		config.DatabaseDSN = c.DatabaseDSN
	}
	if c.SecretKey != "" {
		config.SecretKey = c.SecretKey
	}
	if c.AccessTokenValidityDuration.Duration != 0 {
		config.AccessTokenValidityDuration = time.Duration(c.AccessTokenValidityDuration.Duration)
	}
	if c.RefreshTokenValidityDuration.Duration != 0 {
		config.RefreshTokenValidityDuration = time.Duration(c.RefreshTokenValidityDuration.Duration)
	}
}
