// Package config loads lisho's configuration from lisho.yaml (or a file
// given explicitly), over a complete set of defaults, and validates the
// result before anything binds a port or opens a store.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// Listen is the TCP address handed to net.Listen, e.g. ":1337".
	Listen string `mapstructure:"listen"`

	// ReadTimeout bounds one whole connection: reading the request and
	// writing the response share a single deadline.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// MaxRequestLineBytes caps the request line. Zero is rejected rather
	// than read as "no cap": an uncapped line is an unbounded allocation.
	MaxRequestLineBytes int `mapstructure:"max_request_line_bytes"`

	// AllowClientCache switches redirects from 307 TEMPORARY REDIRECT to
	// 307 PERMANENT REDIRECT. Leave it off while links still move around.
	AllowClientCache bool `mapstructure:"allow_client_cache"`

	Store   StoreConfig   `mapstructure:"store"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type StoreConfig struct {
	// Backend picks the data source: file, sqlite or redis.
	Backend string `mapstructure:"backend"`

	// Path is the store file (format by extension: .json, .toml, .yaml)
	// or the sqlite database.
	Path string `mapstructure:"path"`

	// Watch switches the file backend from per-connection stat polling to
	// filesystem notifications.
	Watch bool `mapstructure:"watch"`

	Redis RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	// Enabled exposes GET /metrics. Off, the path is an ordinary miss.
	Enabled bool `mapstructure:"enabled"`
}

// ConfigError reports a value that parsed fine but cannot be served.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error in field '%s': %s", e.Field, e.Message)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":1337")
	v.SetDefault("read_timeout", "500ms")
	v.SetDefault("max_request_line_bytes", 8192)
	v.SetDefault("allow_client_cache", false)
	v.SetDefault("store.backend", "file")
	v.SetDefault("store.path", "links.json")
	v.SetDefault("store.watch", false)
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("metrics.enabled", true)
}

// Load reads the config at path, or ./lisho.yaml when path is empty. A
// missing default file is fine (defaults apply); a missing explicit file is
// an error, the caller asked for that exact file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("lisho")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !(path == "" && errors.As(err, &notFound)) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration, the one an empty file yields.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	// defaults always unmarshal; there is no input to go wrong
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func (c *Config) Validate() error {
	if c.Listen == "" {
		return &ConfigError{"listen", "must not be empty"}
	}
	if c.ReadTimeout <= 0 {
		return &ConfigError{"read_timeout", "must be positive"}
	}
	if c.MaxRequestLineBytes < 1 {
		return &ConfigError{"max_request_line_bytes", "must be positive; there is no uncapped mode"}
	}

	switch c.Store.Backend {
	case "file":
		if c.Store.Path == "" {
			return &ConfigError{"store.path", "required for the file backend"}
		}
	case "sqlite":
		if c.Store.Path == "" {
			return &ConfigError{"store.path", "required for the sqlite backend"}
		}
		if c.Store.Watch {
			return &ConfigError{"store.watch", "only the file backend supports watching"}
		}
	case "redis":
		if c.Store.Redis.Addr == "" {
			return &ConfigError{"store.redis.addr", "required for the redis backend"}
		}
		if c.Store.Watch {
			return &ConfigError{"store.watch", "only the file backend supports watching"}
		}
	default:
		return &ConfigError{"store.backend", fmt.Sprintf("unknown backend %q (want file, sqlite or redis)", c.Store.Backend)}
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return &ConfigError{"log.format", fmt.Sprintf("unknown format %q (want text or json)", c.Log.Format)}
	}

	return nil
}
