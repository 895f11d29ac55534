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
	Server  ServerConfig  `mapstructure:"server"`
	Crawl   CrawlConfig   `mapstructure:"crawl"`
	Source  SourceConfig  `mapstructure:"source"`
	DB      DBConfig      `mapstructure:"db"`
	Index   IndexConfig   `mapstructure:"index"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port   int    `mapstructure:"port"`
	APIKey string `mapstructure:"api_key"`
}

// CrawlConfig governs the scheduler, frontier and quality filter.
type CrawlConfig struct {
	TargetArticles      int      `mapstructure:"target_articles"`
	Workers             int      `mapstructure:"workers"`
	BatchSize           int      `mapstructure:"batch_size"`
	RateLimitMs         int      `mapstructure:"rate_limit_ms"`
	MaxFrontierSize     int      `mapstructure:"max_frontier_size"`
	MaxLinksPerArticle  int      `mapstructure:"max_links_per_article"`
	CategoryPageLimit   int      `mapstructure:"category_page_limit"`
	SubcategoryLimit    int      `mapstructure:"subcategory_limit"`
	MinContentLength    int      `mapstructure:"min_content_length"`
	MinSummaryLength    int      `mapstructure:"min_summary_length"`
	ProgressIntervalSec int      `mapstructure:"progress_interval_seconds"`
	SeedCategories      []string `mapstructure:"seed_categories"`
}

// SourceConfig configures the upstream encyclopedia API client.
type SourceConfig struct {
	RestBaseURL      string `mapstructure:"rest_base_url"`
	ActionBaseURL    string `mapstructure:"action_base_url"`
	UserAgent        string `mapstructure:"user_agent"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MaxRetries       int    `mapstructure:"max_retries"`
	BackoffInitialMs int    `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int    `mapstructure:"backoff_max_ms"`
}

// DBConfig controls access to the article store.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// IndexConfig governs vocabulary construction and snapshot persistence.
type IndexConfig struct {
	SnapshotPath   string  `mapstructure:"snapshot_path"`
	MaxFeatures    int     `mapstructure:"max_features"`
	MinDocFreq     int     `mapstructure:"min_doc_freq"`
	MaxDocFreqFrac float64 `mapstructure:"max_doc_freq_frac"`
	MinIndexLength int     `mapstructure:"min_index_length"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WIKIDEX")
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
	v.SetDefault("crawl.target_articles", 10000)
	v.SetDefault("crawl.workers", 5)
	v.SetDefault("crawl.batch_size", 100)
	v.SetDefault("crawl.rate_limit_ms", 200)
	v.SetDefault("crawl.max_frontier_size", 50000)
	v.SetDefault("crawl.max_links_per_article", 10)
	v.SetDefault("crawl.category_page_limit", 500)
	v.SetDefault("crawl.subcategory_limit", 50)
	v.SetDefault("crawl.min_content_length", 1000)
	v.SetDefault("crawl.min_summary_length", 100)
	v.SetDefault("crawl.progress_interval_seconds", 30)
	v.SetDefault("crawl.seed_categories", []string{
		"Category:Programming_languages",
		"Category:Computer_science",
		"Category:Technology",
		"Category:Science",
		"Category:Mathematics",
		"Category:Physics",
		"Category:Chemistry",
		"Category:Biology",
		"Category:History",
		"Category:Geography",
	})
	v.SetDefault("source.rest_base_url", "https://en.wikipedia.org/api/rest_v1")
	v.SetDefault("source.action_base_url", "https://en.wikipedia.org/w/api.php")
	v.SetDefault("source.user_agent", "wikidex-bot/0.1 (educational project)")
	v.SetDefault("source.timeout_seconds", 10)
	v.SetDefault("source.max_retries", 3)
	v.SetDefault("source.backoff_initial_ms", 250)
	v.SetDefault("source.backoff_max_ms", 5000)
	v.SetDefault("db.table", "wiki_articles")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("index.snapshot_path", "search_model.gob")
	v.SetDefault("index.max_features", 10000)
	v.SetDefault("index.min_doc_freq", 2)
	v.SetDefault("index.max_doc_freq_frac", 0.8)
	v.SetDefault("index.min_index_length", 100)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawl.Workers <= 0 {
		return fmt.Errorf("crawl.workers must be > 0")
	}
	if c.Crawl.BatchSize <= 0 {
		return fmt.Errorf("crawl.batch_size must be > 0")
	}
	if c.Crawl.MaxFrontierSize <= 0 {
		return fmt.Errorf("crawl.max_frontier_size must be > 0")
	}
	if c.Source.TimeoutSeconds <= 0 {
		return fmt.Errorf("source.timeout_seconds must be > 0")
	}
	if c.Index.MaxFeatures <= 0 {
		return fmt.Errorf("index.max_features must be > 0")
	}
	if c.Index.MaxDocFreqFrac <= 0 || c.Index.MaxDocFreqFrac > 1 {
		return fmt.Errorf("index.max_doc_freq_frac must be in (0, 1]")
	}
	return nil
}

// RateLimit converts the per-worker rate limit into a duration.
func (c CrawlConfig) RateLimit() time.Duration {
	return time.Duration(c.RateLimitMs) * time.Millisecond
}

// ProgressInterval converts the progress reporting period into a duration.
func (c CrawlConfig) ProgressInterval() time.Duration {
	return time.Duration(c.ProgressIntervalSec) * time.Second
}

// Timeout converts the source HTTP timeout into a duration.
func (c SourceConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
