// Package config loads process configuration from DURGA_* environment variables and an
// optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

const envPrefix = "DURGA"

type Config struct {
	HTTP struct {
		Addr            string        `mapstructure:"addr"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
		MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
		CORSOrigins     []string      `mapstructure:"cors_origins"`
	} `mapstructure:"http"`

	GRPC struct {
		Addr string `mapstructure:"addr"` // empty disables the health server
	} `mapstructure:"grpc"`

	Database struct {
		DSN string `mapstructure:"dsn"` // empty selects the in-memory store
	} `mapstructure:"database"`

	Auth struct {
		Secret   string        `mapstructure:"secret"`
		Issuer   string        `mapstructure:"issuer"`
		TokenTTL time.Duration `mapstructure:"token_ttl"`
	} `mapstructure:"auth"`

	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`

	RateLimit struct {
		RPS   float64 `mapstructure:"rps"` // 0 disables limiting
		Burst int     `mapstructure:"burst"`
	} `mapstructure:"ratelimit"`

	Migrations struct {
		AutoApply bool `mapstructure:"auto_apply"`
		Seeds     bool `mapstructure:"seeds"`
	} `mapstructure:"migrations"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("http.max_body_bytes", int64(1<<20))
	v.SetDefault("http.cors_origins", []string{})
	v.SetDefault("grpc.addr", ":9090")
	v.SetDefault("database.dsn", "")
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.issuer", "durga")
	v.SetDefault("auth.token_ttl", time.Hour)
	v.SetDefault("log.level", "info")
	v.SetDefault("ratelimit.rps", 20.0)
	v.SetDefault("ratelimit.burst", 40)
	v.SetDefault("migrations.auto_apply", false)
	v.SetDefault("migrations.seeds", true)
}

// Load reads defaults, then config.yaml (or DURGA_CONFIG_FILE) if present, then the
// environment, and validates the result.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile := os.Getenv(envPrefix + "_CONFIG_FILE"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/durga")
	}
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return nil, fmt.Errorf("config read error: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		return errors.New("http.addr must not be empty")
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		return errors.New("http.max_body_bytes must be positive")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("auth.token_ttl must be positive")
	}
	if strings.TrimSpace(c.Auth.Issuer) == "" {
		return errors.New("auth.issuer must not be empty")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.RateLimit.RPS < 0 {
		return errors.New("ratelimit.rps must not be negative")
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst < 1 {
		return errors.New("ratelimit.burst must be at least 1 when rate limiting is enabled")
	}
	return nil
}

// RequireAuth checks the settings the API server needs to issue and verify tokens.
func (c *Config) RequireAuth() error {
	if len(c.Auth.Secret) < 32 {
		return errors.New("auth.secret must be at least 32 bytes")
	}
	return nil
}
