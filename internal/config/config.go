// Package config loads the application configuration with viper.
//
// Reading individual env vars in main.go stops scaling once the
// configuration surface includes per-language overrides, so this
// package follows the viper approach instead: defaults declared
// in one place, an optional config.yaml on top, and PAIRVIEW_* env vars
// overriding both (PAIRVIEW_SERVER_PORT=9090 overrides server.port).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sakif/pairview/internal/language"
)

// Config is the full application configuration.
type Config struct {
	Server    ServerConfig              `mapstructure:"server"`
	Execution ExecutionConfig           `mapstructure:"execution"`
	Gateway   GatewayConfig             `mapstructure:"gateway"`
	Bus       BusConfig                 `mapstructure:"bus"`
	Languages map[string]LanguageConfig `mapstructure:"languages"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port   int    `mapstructure:"port"`
	DBPath string `mapstructure:"db_path"`
}

// ExecutionConfig holds the global execution limits.
type ExecutionConfig struct {
	// MaxConcurrent caps simultaneously running sandboxes.
	MaxConcurrent int `mapstructure:"max_concurrent"`
	// QueueWait is how long a request waits for a sandbox slot before
	// failing with a capacity error.
	QueueWait time.Duration `mapstructure:"queue_wait"`
	// MaxCodeChars is the submitted-source size ceiling.
	MaxCodeChars int `mapstructure:"max_code_chars"`
}

// GatewayConfig holds the remote execution service configuration.
type GatewayConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	RetryCount int           `mapstructure:"retry_count"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// BusConfig selects the cross-node broadcast transport. An empty
// RedisAddr means single-instance local broadcast only.
type BusConfig struct {
	RedisAddr string `mapstructure:"redis_addr"`
	Channel   string `mapstructure:"channel"`
}

// LanguageConfig is the per-language tunable subset: timeout override and
// routing (local sandbox vs gateway).
type LanguageConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	Route   string        `mapstructure:"route"`
	Image   string        `mapstructure:"image"`
}

// New loads and validates the application configuration.
func New() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("pairview")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// No config file is fine — defaults plus env vars carry us.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.db_path", "data/pairview.db")

	v.SetDefault("execution.max_concurrent", 5)
	v.SetDefault("execution.queue_wait", 10*time.Second)
	v.SetDefault("execution.max_code_chars", 50000)

	v.SetDefault("gateway.base_url", "https://emkc.org/api/v2/piston")
	v.SetDefault("gateway.retry_count", 3)
	v.SetDefault("gateway.retry_delay", time.Second)

	v.SetDefault("bus.redis_addr", "")
	v.SetDefault("bus.channel", "pairview:sessions")
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Execution.MaxConcurrent <= 0 {
		return fmt.Errorf("execution.max_concurrent must be positive")
	}
	if c.Execution.MaxCodeChars <= 0 {
		return fmt.Errorf("execution.max_code_chars must be positive")
	}
	if c.Gateway.RetryCount < 1 {
		return fmt.Errorf("gateway.retry_count must be at least 1")
	}
	for tag, lc := range c.Languages {
		switch lc.Route {
		case "", string(language.RouteLocal), string(language.RouteGateway):
		default:
			return fmt.Errorf("languages.%s.route must be %q or %q", tag, language.RouteLocal, language.RouteGateway)
		}
	}
	return nil
}

// LanguageOverrides converts the config's per-language section into the
// override form the language table consumes.
func (c *Config) LanguageOverrides() map[string]language.Override {
	if len(c.Languages) == 0 {
		return nil
	}
	overrides := make(map[string]language.Override, len(c.Languages))
	for tag, lc := range c.Languages {
		overrides[tag] = language.Override{
			Timeout: lc.Timeout,
			Route:   language.Route(lc.Route),
			Image:   lc.Image,
		}
	}
	return overrides
}
