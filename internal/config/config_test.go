package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sakif/pairview/internal/language"
)

func TestDefaults(t *testing.T) {
	cfg, err := New()
	assert.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Execution.MaxConcurrent)
	assert.Equal(t, 50000, cfg.Execution.MaxCodeChars)
	assert.Equal(t, 3, cfg.Gateway.RetryCount)
	assert.Equal(t, time.Second, cfg.Gateway.RetryDelay)
	assert.Empty(t, cfg.Bus.RedisAddr, "default deployment is single-instance")
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("PAIRVIEW_SERVER_PORT", "9090")
	t.Setenv("PAIRVIEW_EXECUTION_MAX_CONCURRENT", "12")

	cfg, err := New()
	assert.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 12, cfg.Execution.MaxConcurrent)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{
			name: "zero port",
			cfg:  Config{Server: ServerConfig{Port: 0}},
		},
		{
			name: "negative concurrency",
			cfg: Config{
				Server:    ServerConfig{Port: 8080},
				Execution: ExecutionConfig{MaxConcurrent: -1},
			},
		},
		{
			name: "bad language route",
			cfg: Config{
				Server:    ServerConfig{Port: 8080},
				Execution: ExecutionConfig{MaxConcurrent: 5, MaxCodeChars: 100},
				Gateway:   GatewayConfig{RetryCount: 3},
				Languages: map[string]LanguageConfig{"python": {Route: "teleport"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.cfg.validate())
		})
	}
}

func TestLanguageOverrides(t *testing.T) {
	cfg := Config{
		Languages: map[string]LanguageConfig{
			"python": {Timeout: 20 * time.Second, Route: "gateway"},
		},
	}

	overrides := cfg.LanguageOverrides()
	assert.Len(t, overrides, 1)
	assert.Equal(t, 20*time.Second, overrides["python"].Timeout)
	assert.Equal(t, language.RouteGateway, overrides["python"].Route)

	// Empty section means no overrides at all
	empty := Config{}
	assert.Nil(t, empty.LanguageOverrides())
}
