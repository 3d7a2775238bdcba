// Package config loads and validates ingest configuration via Viper.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Marvel  MarvelConfig  `mapstructure:"marvel"`
	Ingest  IngestConfig  `mapstructure:"ingest"`
	Cache   CacheConfig   `mapstructure:"cache"`
	DB      DBConfig      `mapstructure:"db"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// MarvelConfig governs the upstream gateway client.
type MarvelConfig struct {
	BaseURL          string `mapstructure:"base_url"`
	PublicKey        string `mapstructure:"public_key"`
	PrivateKey       string `mapstructure:"private_key"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MaxRetries       int    `mapstructure:"max_retries"`
	BackoffInitialMs int    `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int    `mapstructure:"backoff_max_ms"`
	PageSize         int    `mapstructure:"page_size"`
	MaxPagesPer      int    `mapstructure:"max_pages_per_series"`
}

// IngestConfig controls the run orchestrator.
type IngestConfig struct {
	Titles            []string `mapstructure:"titles"`
	SourceSystem      string   `mapstructure:"source_system"`
	PublisherName     string   `mapstructure:"publisher_name"`
	PageDelayMs       int      `mapstructure:"page_delay_ms"`
	SeriesDelayMs     int      `mapstructure:"series_delay_ms"`
	MaxSeries         int      `mapstructure:"max_series"`
	OverwriteExisting bool     `mapstructure:"overwrite_existing"`
}

// CacheConfig sets the location of the durable response cache.
type CacheConfig struct {
	Dir string `mapstructure:"dir"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// ServerConfig controls the optional health/metrics HTTP listener.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	// Keys are usually supplied through the environment (or a .env file)
	// rather than the config file, matching the upstream's credential names.
	if cfg.Marvel.PublicKey == "" {
		cfg.Marvel.PublicKey = os.Getenv("MARVEL_PUBLIC_KEY")
	}
	if cfg.Marvel.PrivateKey == "" {
		cfg.Marvel.PrivateKey = os.Getenv("MARVEL_PRIVATE_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("marvel.base_url", "https://gateway.marvel.com/v1/public")
	v.SetDefault("marvel.timeout_seconds", 30)
	v.SetDefault("marvel.max_retries", 5)
	v.SetDefault("marvel.backoff_initial_ms", 1500)
	v.SetDefault("marvel.backoff_max_ms", 15000)
	v.SetDefault("marvel.page_size", 50)
	v.SetDefault("marvel.max_pages_per_series", 40)

	v.SetDefault("ingest.source_system", "marvel")
	v.SetDefault("ingest.publisher_name", "Marvel")
	v.SetDefault("ingest.page_delay_ms", 250)
	v.SetDefault("ingest.series_delay_ms", 1500)
	v.SetDefault("ingest.max_series", 0)
	v.SetDefault("ingest.overwrite_existing", true)

	v.SetDefault("cache.dir", "data/cache")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 9090)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Marvel.BaseURL == "" {
		return fmt.Errorf("marvel.base_url is required")
	}
	if c.Marvel.TimeoutSeconds <= 0 {
		return fmt.Errorf("marvel.timeout_seconds must be > 0")
	}
	if c.Marvel.MaxRetries <= 0 {
		return fmt.Errorf("marvel.max_retries must be > 0")
	}
	if c.Marvel.PageSize <= 0 || c.Marvel.PageSize > 100 {
		return fmt.Errorf("marvel.page_size must be in 1..100")
	}
	if c.Marvel.MaxPagesPer <= 0 {
		return fmt.Errorf("marvel.max_pages_per_series must be > 0")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 when server is enabled")
	}
	return nil
}

// HTTPTimeout converts the configured client timeout into a duration.
func (c MarvelConfig) HTTPTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PageDelay returns the politeness pause between page fetches.
func (c IngestConfig) PageDelay() time.Duration {
	return time.Duration(c.PageDelayMs) * time.Millisecond
}

// SeriesDelay returns the politeness pause between series.
func (c IngestConfig) SeriesDelay() time.Duration {
	return time.Duration(c.SeriesDelayMs) * time.Millisecond
}
