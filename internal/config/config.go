// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	DB        DBConfig        `mapstructure:"db"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Images    ImagesConfig    `mapstructure:"images"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Retention RetentionConfig `mapstructure:"retention"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DBConfig controls access to the relational database. Provider is
// "postgres" or "memory".
type DBConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// CrawlerConfig governs the crawl job runner.
type CrawlerConfig struct {
	UserAgent        string `mapstructure:"user_agent"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	DelaySeconds     int    `mapstructure:"delay_seconds"`
	DefaultItemLimit int    `mapstructure:"default_item_limit"`
	MaxConcurrent    int    `mapstructure:"max_concurrent"`
}

// ImagesConfig configures the image resolution subsystem.
type ImagesConfig struct {
	StalenessDays     int    `mapstructure:"staleness_days"`
	VerifyBatchSize   int    `mapstructure:"verify_batch_size"`
	VerifyConcurrency int    `mapstructure:"verify_concurrency"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"`
	RAWGAPIKey        string `mapstructure:"rawg_api_key"`
	IGDBClientID      string `mapstructure:"igdb_client_id"`
	IGDBClientSecret  string `mapstructure:"igdb_client_secret"`
	SerpAPIKey        string `mapstructure:"serp_api_key"`
}

// PubSubConfig holds metadata for job completion notifications. Provider is
// "pubsub" or "noop".
type PubSubConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// SchedulerConfig holds cron specs for the periodic triggers.
type SchedulerConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	CrawlSpec  string `mapstructure:"crawl_spec"`
	VerifySpec string `mapstructure:"verify_spec"`
	SweepSpec  string `mapstructure:"sweep_spec"`
}

// RetentionConfig bounds how long job history is kept.
type RetentionConfig struct {
	JobDays int `mapstructure:"job_days"`
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

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("db.provider", "memory")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("crawler.user_agent", "catalog-crawler/1.0")
	v.SetDefault("crawler.timeout_seconds", 15)
	v.SetDefault("crawler.delay_seconds", 1)
	v.SetDefault("crawler.default_item_limit", 100)
	v.SetDefault("crawler.max_concurrent", 3)
	v.SetDefault("images.staleness_days", 7)
	v.SetDefault("images.verify_batch_size", 50)
	v.SetDefault("images.verify_concurrency", 4)
	v.SetDefault("images.timeout_seconds", 3)
	v.SetDefault("pubsub.provider", "noop")
	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.crawl_spec", "0 3 * * *")
	v.SetDefault("scheduler.verify_spec", "30 4 * * *")
	v.SetDefault("scheduler.sweep_spec", "0 5 * * 0")
	v.SetDefault("retention.job_days", 30)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.DB.Provider != "memory" && c.DB.Provider != "postgres" {
		return fmt.Errorf("db.provider must be memory or postgres")
	}
	if c.DB.Provider == "postgres" && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set when db.provider is postgres")
	}
	if c.Crawler.TimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.timeout_seconds must be > 0")
	}
	if c.Crawler.MaxConcurrent <= 0 {
		return fmt.Errorf("crawler.max_concurrent must be > 0")
	}
	if c.Images.StalenessDays <= 0 {
		return fmt.Errorf("images.staleness_days must be > 0")
	}
	if c.PubSub.Provider == "pubsub" && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub.provider is pubsub")
	}
	return nil
}

// CrawlTimeout returns the per-request crawl timeout as a duration.
func (c Config) CrawlTimeout() time.Duration {
	return time.Duration(c.Crawler.TimeoutSeconds) * time.Second
}

// StalenessWindow returns the image staleness window as a duration.
func (c Config) StalenessWindow() time.Duration {
	return time.Duration(c.Images.StalenessDays) * 24 * time.Hour
}
