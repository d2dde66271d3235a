// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/JakeFAU/newsletter-crawler/internal/logging"
)

// Database drivers understood by the store factory.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Defaults shared by setDefaults and the CLI flag definitions.
const (
	DefaultTimeoutSeconds = 10
	DefaultArticleQuota   = 25
	DefaultUserAgent      = "newsletter-crawler/0.1"
	DefaultSQLitePath     = "newsletters.db"
	DefaultServerPort     = 8080
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Crawl   CrawlConfig   `mapstructure:"crawl"`
	DB      DBConfig      `mapstructure:"db"`
	Logging LoggingConfig `mapstructure:"logging"`
	Server  ServerConfig  `mapstructure:"server"`
}

// CrawlConfig governs the traversal and the fetcher.
type CrawlConfig struct {
	SeedsFile      string  `mapstructure:"seeds_file"`
	BlocklistFile  string  `mapstructure:"blocklist_file"`
	Interactive    bool    `mapstructure:"interactive"`
	RequestsLimit  int64   `mapstructure:"requests_limit"`
	Verbose        bool    `mapstructure:"verbose"`
	Debug          bool    `mapstructure:"debug"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	AutoBlocklist  bool    `mapstructure:"auto_blocklist"`
	ArticleQuota   int     `mapstructure:"article_quota"`
	UserAgent      string  `mapstructure:"user_agent"`
	MaxBodyBytes   int     `mapstructure:"max_body_bytes"`
	PerHostRPS     float64 `mapstructure:"per_host_rps"`
	Burst          int     `mapstructure:"burst"`
	MetricsAddr    string  `mapstructure:"metrics_addr"`
}

// DBConfig selects and tunes the entity store.
type DBConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// LoggingConfig controls zap.
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// ServerConfig controls the fulltext HTTP server.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// flagKeys maps CLI flag names onto config keys.
var flagKeys = map[string]string{
	"seeds":          "crawl.seeds_file",
	"blocklist":      "crawl.blocklist_file",
	"interactive":    "crawl.interactive",
	"requests-limit": "crawl.requests_limit",
	"verbose":        "crawl.verbose",
	"debug":          "crawl.debug",
	"timeout":        "crawl.timeout_seconds",
	"auto-blocklist": "crawl.auto_blocklist",
	"article-quota":  "crawl.article_quota",
	"user-agent":     "crawl.user_agent",
	"per-host-rps":   "crawl.per_host_rps",
	"metrics-addr":   "crawl.metrics_addr",
	"db-driver":      "db.driver",
	"db-dsn":         "db.dsn",
	"log-level":      "logging.level",
	"dev-logs":       "logging.development",
	"port":           "server.port",
}

// Load builds a Config from an optional file, NEWSLETTER_* environment
// variables, and any of flags that map onto config keys. Flags win.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NEWSLETTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			flag := flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawl.seeds_file", "")
	v.SetDefault("crawl.blocklist_file", "")
	v.SetDefault("crawl.interactive", false)
	v.SetDefault("crawl.requests_limit", 0)
	v.SetDefault("crawl.verbose", false)
	v.SetDefault("crawl.debug", false)
	v.SetDefault("crawl.timeout_seconds", DefaultTimeoutSeconds)
	v.SetDefault("crawl.auto_blocklist", false)
	v.SetDefault("crawl.article_quota", DefaultArticleQuota)
	v.SetDefault("crawl.user_agent", DefaultUserAgent)
	v.SetDefault("crawl.max_body_bytes", 20*1024*1024)
	v.SetDefault("crawl.per_host_rps", 0)
	v.SetDefault("crawl.burst", 1)
	v.SetDefault("crawl.metrics_addr", "")
	v.SetDefault("db.driver", DriverSQLite)
	v.SetDefault("db.dsn", DefaultSQLitePath)
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.development", true)
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.request_timeout_seconds", 30)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if c.Crawl.TimeoutSeconds <= 0 {
		return fmt.Errorf("crawl.timeout_seconds must be > 0")
	}
	if c.Crawl.RequestsLimit < 0 {
		return fmt.Errorf("crawl.requests_limit must be >= 0")
	}
	if c.Crawl.ArticleQuota < 0 {
		return fmt.Errorf("crawl.article_quota must be >= 0")
	}
	if c.Crawl.PerHostRPS < 0 {
		return fmt.Errorf("crawl.per_host_rps must be >= 0")
	}
	switch c.DB.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("db.driver must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.DB.Driver)
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	return nil
}

// FetchTimeout is the per-request timeout.
func (c CrawlConfig) FetchTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RequestTimeout bounds a single fulltext request.
func (c ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}
