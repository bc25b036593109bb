/*
Package config loads service configuration.

SOURCES (later wins):
  1. Defaults below
  2. config.yaml (current dir or config/) or an explicit --config file
  3. .env / .env.local in envPath, loaded into the process environment
  4. FANFUND_* environment variables (FANFUND_DATABASE_DRIVER, ...)
  5. Overrides passed to Load (command line flags)
*/
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite, postgres or memory
	Path   string `mapstructure:"path"`   // sqlite file
	DSN    string `mapstructure:"dsn"`    // postgres
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"` // empty disables the unlock cache
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
	Prefix   string        `mapstructure:"prefix"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type AuditConfig struct {
	Schedule string `mapstructure:"schedule"` // cron expression; empty disables
	Workers  int    `mapstructure:"workers"`
}

type CurrencyConfig struct {
	Label    string `mapstructure:"label"`
	Exponent int32  `mapstructure:"exponent"`
}

type DemoConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Currency CurrencyConfig `mapstructure:"currency"`
	Demo     DemoConfig     `mapstructure:"demo"`
}

// Load reads configuration. configFile and envPath may be empty. overrides
// run after all sources are merged and before validation.
func Load(configFile, envPath string, overrides ...func(*Config)) (*Config, error) {
	v := configureViper(configFile, envPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configFile != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	for _, o := range overrides {
		o(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return errors.New("database.path is required for sqlite")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return errors.New("database.dsn is required for postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Currency.Exponent < 0 {
		return fmt.Errorf("invalid currency.exponent %d", c.Currency.Exponent)
	}
	return nil
}

func configureViper(configFile, envPath string) *viper.Viper {
	v := viper.New()

	loadEnv(envPath)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("config/")
	}

	setDefaults(v)

	v.SetEnvPrefix("FANFUND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindAllEnvVars(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/fanfund.db")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 24*time.Hour)
	v.SetDefault("redis.prefix", "fanfund:")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 10)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("audit.schedule", "@every 1h")
	v.SetDefault("audit.workers", 4)
	v.SetDefault("currency.label", "KSh")
	v.SetDefault("currency.exponent", 0)
	v.SetDefault("demo.enabled", false)
}

// bindAllEnvVars lets env vars populate keys that have no default and no
// config file entry.
func bindAllEnvVars(v *viper.Viper) {
	keys := []string{
		"server.port",
		"server.shutdown_timeout",
		"database.driver",
		"database.path",
		"database.dsn",
		"redis.addr",
		"redis.password",
		"redis.db",
		"redis.ttl",
		"redis.prefix",
		"auth.jwt_secret",
		"log.level",
		"log.file",
		"log.max_size_mb",
		"log.max_backups",
		"log.max_age_days",
		"audit.schedule",
		"audit.workers",
		"currency.label",
		"currency.exponent",
		"demo.enabled",
	}
	for _, key := range keys {
		_ = v.BindEnv(key)
	}
}

func loadEnv(envPath string) {
	if envPath == "" {
		envPath = "."
	}
	for _, f := range []string{".env", ".env.local"} {
		_ = godotenv.Overload(filepath.Join(envPath, f))
	}
}
