package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "http://127.0.0.1:8080/api", c.ServerURL)
	assert.Equal(t, "plainly-data", c.DataDir)
	assert.Equal(t, ModeLocal, c.Mode)
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	cfg := LoadConfig()

	require.NotNil(t, cfg, "LoadConfig must not return nil")
	assert.Equal(t, "http://127.0.0.1:8080/api", cfg.ServerURL)
	assert.Equal(t, "plainly-data", cfg.DataDir)
	assert.Equal(t, ModeLocal, cfg.Mode)
}
