package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Crawl.TargetArticles != 10000 {
		t.Fatalf("expected default target 10000, got %d", cfg.Crawl.TargetArticles)
	}
	if cfg.Crawl.RateLimit() != 200*time.Millisecond {
		t.Fatalf("expected default rate limit 200ms, got %v", cfg.Crawl.RateLimit())
	}
	if len(cfg.Crawl.SeedCategories) == 0 {
		t.Fatal("expected default seed categories")
	}
	if cfg.Index.MaxFeatures != 10000 {
		t.Fatalf("expected default max features 10000, got %d", cfg.Index.MaxFeatures)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  api_key: secret
crawl:
  target_articles: 500
  workers: 3
  batch_size: 25
  rate_limit_ms: 100
  seed_categories:
    - "Category:Databases"
source:
  user_agent: test-agent
  timeout_seconds: 5
db:
  dsn: postgres://localhost/wikidex
  table: articles_test
index:
  snapshot_path: /tmp/model.gob
  max_features: 2000
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 || cfg.Server.APIKey != "secret" {
		t.Fatalf("expected server overrides to apply: %+v", cfg.Server)
	}
	if cfg.Crawl.TargetArticles != 500 || cfg.Crawl.Workers != 3 {
		t.Fatalf("expected crawl overrides to apply: %+v", cfg.Crawl)
	}
	if len(cfg.Crawl.SeedCategories) != 1 || cfg.Crawl.SeedCategories[0] != "Category:Databases" {
		t.Fatalf("expected seed override, got %v", cfg.Crawl.SeedCategories)
	}
	if cfg.Source.Timeout() != 5*time.Second {
		t.Fatalf("expected source timeout 5s, got %v", cfg.Source.Timeout())
	}
	if cfg.DB.Table != "articles_test" {
		t.Fatalf("expected db table override, got %q", cfg.DB.Table)
	}
	if cfg.Index.MaxFeatures != 2000 {
		t.Fatalf("expected index override, got %d", cfg.Index.MaxFeatures)
	}
	if cfg.Logging.Development {
		t.Fatal("expected development logging disabled")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server: ServerConfig{Port: 8080},
		Crawl: CrawlConfig{
			Workers:         2,
			BatchSize:       10,
			MaxFrontierSize: 100,
		},
		Source: SourceConfig{TimeoutSeconds: 10},
		Index:  IndexConfig{MaxFeatures: 100, MaxDocFreqFrac: 0.8},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid port",
			cfg: func() Config {
				c := base
				c.Server.Port = 0
				return c
			}(),
			want: "server.port",
		},
		{
			name: "invalid workers",
			cfg: func() Config {
				c := base
				c.Crawl.Workers = 0
				return c
			}(),
			want: "crawl.workers",
		},
		{
			name: "invalid batch size",
			cfg: func() Config {
				c := base
				c.Crawl.BatchSize = -1
				return c
			}(),
			want: "crawl.batch_size",
		},
		{
			name: "invalid timeout",
			cfg: func() Config {
				c := base
				c.Source.TimeoutSeconds = 0
				return c
			}(),
			want: "source.timeout_seconds",
		},
		{
			name: "invalid doc freq fraction",
			cfg: func() Config {
				c := base
				c.Index.MaxDocFreqFrac = 1.5
				return c
			}(),
			want: "index.max_doc_freq_frac",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
