package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	os.Unsetenv("TD_EXECORE_CATALOG_DSN")
	cfg := Load()
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, 20, cfg.DefaultPageLen)
}

func TestLoadOverridesFromEnv(t *testing.T) {
	os.Setenv("TD_EXECORE_LOG_LEVEL", "debug")
	os.Setenv("TD_EXECORE_RETRY_MAX_RETRIES", "7")
	defer os.Unsetenv("TD_EXECORE_LOG_LEVEL")
	defer os.Unsetenv("TD_EXECORE_RETRY_MAX_RETRIES")

	cfg := Load()
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 7, cfg.Retry.MaxRetries)
}

func TestEnvConfigMustGetStringPanicsWhenUnset(t *testing.T) {
	ec := NewEnvConfig("TESTPREFIX")
	os.Unsetenv("TESTPREFIX_MISSING")
	assert.Panics(t, func() { ec.MustGetString("MISSING") })
}
