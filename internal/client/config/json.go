package config

import (
	"encoding/json"
	"os"

	"github.com/plainlyhq/plainly-core/internal/flagx"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. After parsing,
// values are copied into the runtime Config.
type JsonConfig struct {
	ServerURL string `json:"server_url"`
	DataDir   string `json:"data_dir"`
	Mode      string `json:"mode"`
}

// parseJson overlays Config with values loaded from a JSON file.
//
// The file path is taken from the -c or -config flags via
// flagx.JsonConfigFlags(); when empty no JSON is loaded. Read or unmarshal
// errors panic, matching the flag parser's failure mode.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerURL != "" {
		cfg.ServerURL = jc.ServerURL
	}
	if jc.DataDir != "" {
		cfg.DataDir = jc.DataDir
	}
	if jc.Mode != "" {
		cfg.Mode = jc.Mode
	}
}
