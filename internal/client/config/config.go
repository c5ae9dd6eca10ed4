// Package config loads runtime configuration for the notes CLI.
//
// Sources & precedence:
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected via -c or -config.
//  3. Command-line flags, which override earlier values.
package config

// Config holds runtime settings for the notes CLI.
//
// Fields:
//   - ServerURL: base URL of the backend API including the path prefix,
//     e.g. "http://127.0.0.1:8080/api". Only used in remote mode.
//   - DataDir: directory the local sqlite databases live in, relative to
//     the working directory.
//   - Mode: "local" for the standalone embedded store, "remote" for the
//     network store with the offline mirror.
type Config struct {
	ServerURL string
	DataDir   string
	Mode      string
}

const (
	ModeLocal  = "local"
	ModeRemote = "remote"
)

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080/api"
	c.DataDir = "plainly-data"
	c.Mode = ModeLocal
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
