// Package config loads ledger server configuration.
//
// Sources, lowest precedence first: defaults, config.yaml, .env,
// LEDGER_* environment variables, command line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. LEDGER_SERVER_ADDR.
const EnvPrefix = "LEDGER"

// Config is the root configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Journal JournalConfig `mapstructure:"journal"`
	Feed    FeedConfig    `mapstructure:"feed"`
	Log     LogConfig     `mapstructure:"log"`
}

// ServerConfig controls the HTTP listeners.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	MetricsAddr     string        `mapstructure:"metrics_addr"` // empty disables the metrics listener
	RateLimit       float64       `mapstructure:"rate_limit"`   // requests per second, 0 disables
	RateBurst       int           `mapstructure:"rate_burst"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig controls request signatures.
type AuthConfig struct {
	RequireSignatures bool          `mapstructure:"require_signatures"`
	MaxSkew           time.Duration `mapstructure:"max_skew"`
}

// JournalConfig controls the export journal. With no DSN set entries are
// journaled in memory only.
type JournalConfig struct {
	PostgresDSN   string        `mapstructure:"postgres_dsn"`
	ClickhouseDSN string        `mapstructure:"clickhouse_dsn"`
	BufferSize    int           `mapstructure:"buffer_size"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	MaxPending    int           `mapstructure:"max_pending"`
}

// FeedConfig controls the websocket feed.
type FeedConfig struct {
	ClientBuffer int           `mapstructure:"client_buffer"`
	PingInterval time.Duration `mapstructure:"ping_interval"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// Load reads configuration. configFile overrides the config.yaml lookup.
// flags may be nil; flag names use the dotted keys, e.g. server.addr.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	// A missing .env is fine.
	_ = godotenv.Load(".env")

	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Comma separated lists arrive as one string from env and flags.
	if raw, ok := v.Get("server.cors_origins").(string); ok {
		cfg.Server.CORSOrigins = splitList(raw)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.metrics_addr", ":9090")
	v.SetDefault("server.rate_limit", 100.0)
	v.SetDefault("server.rate_burst", 200)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	// Auth
	v.SetDefault("auth.require_signatures", false)
	v.SetDefault("auth.max_skew", 30*time.Second)

	// Journal
	v.SetDefault("journal.postgres_dsn", "")
	v.SetDefault("journal.clickhouse_dsn", "")
	v.SetDefault("journal.buffer_size", 4096)
	v.SetDefault("journal.batch_size", 256)
	v.SetDefault("journal.flush_interval", time.Second)
	v.SetDefault("journal.max_pending", 100000)

	// Feed
	v.SetDefault("feed.client_buffer", 256)
	v.SetDefault("feed.ping_interval", 30*time.Second)
	v.SetDefault("feed.write_timeout", 10*time.Second)

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// RegisterFlags adds the server flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("server.addr", ":8080", "HTTP listen address (env: LEDGER_SERVER_ADDR)")
	fs.String("server.metrics_addr", ":9090", "Metrics listen address, empty to disable (env: LEDGER_SERVER_METRICS_ADDR)")
	fs.Float64("server.rate_limit", 100, "Requests per second, 0 disables (env: LEDGER_SERVER_RATE_LIMIT)")
	fs.Bool("auth.require_signatures", false, "Reject unsigned mutations (env: LEDGER_AUTH_REQUIRE_SIGNATURES)")
	fs.String("journal.postgres_dsn", "", "Postgres journal DSN (env: LEDGER_JOURNAL_POSTGRES_DSN)")
	fs.String("journal.clickhouse_dsn", "", "ClickHouse journal DSN (env: LEDGER_JOURNAL_CLICKHOUSE_DSN)")
	fs.String("log.level", "info", "Log level: debug, info, warn, error (env: LEDGER_LOG_LEVEL)")
	fs.String("log.format", "json", "Log format: json or console (env: LEDGER_LOG_FORMAT)")
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.Addr == c.Server.MetricsAddr {
		return fmt.Errorf("server.metrics_addr must differ from server.addr")
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must not be negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive")
	}
	if c.Auth.RequireSignatures && c.Auth.MaxSkew <= 0 {
		return fmt.Errorf("auth.max_skew must be positive when signatures are required")
	}
	if c.Journal.BatchSize <= 0 || c.Journal.BufferSize <= 0 {
		return fmt.Errorf("journal.batch_size and journal.buffer_size must be positive")
	}
	if c.Journal.FlushInterval <= 0 {
		return fmt.Errorf("journal.flush_interval must be positive")
	}
	if c.Feed.PingInterval <= 0 || c.Feed.WriteTimeout <= 0 {
		return fmt.Errorf("feed.ping_interval and feed.write_timeout must be positive")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	return nil
}
