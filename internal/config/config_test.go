package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
logging:
  development: false
server:
  port: 9090
index:
  base_url: http://localhost:8081/cdx
  from_year: 2015
  timeout: 30s
  store: postgres
fetch:
  concurrency: 8
  limit: 500
  checkpoint_path: /var/lib/wayback/status
ddos:
  cool_off: 2s
  threshold: 5
storage:
  backend: bucket
  bucket_url: mem://pages
  minify: false
db:
  dsn: postgres://localhost/wayback
pubsub:
  project_id: proj
  topic_name: uploads
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 || cfg.Logging.Development {
		t.Fatalf("expected server/logging overrides, got %+v %+v", cfg.Server, cfg.Logging)
	}
	if cfg.Index.FromYear != 2015 || cfg.Index.Timeout != 30*time.Second || cfg.Index.Store != "postgres" {
		t.Fatalf("expected index overrides, got %+v", cfg.Index)
	}
	if cfg.Index.MatchType != "prefix" || cfg.Index.CollapseWindow != 4 {
		t.Fatalf("expected index defaults to survive, got %+v", cfg.Index)
	}
	if cfg.Fetch.Concurrency != 8 || cfg.Fetch.Limit != 500 || cfg.Fetch.CheckpointPath != "/var/lib/wayback/status" {
		t.Fatalf("expected fetch overrides, got %+v", cfg.Fetch)
	}
	if cfg.DDOS.CoolOff != 2*time.Second || cfg.DDOS.Threshold != 5 || cfg.DDOS.PenaltyWindow != 5*time.Minute {
		t.Fatalf("expected ddos overrides with defaults, got %+v", cfg.DDOS)
	}
	if cfg.Storage.Backend != "bucket" || cfg.Storage.Minify {
		t.Fatalf("expected storage overrides, got %+v", cfg.Storage)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Fetch.Limit != -1 || cfg.Fetch.Concurrency != 4 || cfg.Fetch.CheckpointPath != "/tmp/status" {
		t.Fatalf("unexpected fetch defaults: %+v", cfg.Fetch)
	}
	if cfg.DDOS.DetectionTimeout != 3*time.Minute || cfg.DDOS.Threshold != 10 {
		t.Fatalf("unexpected ddos defaults: %+v", cfg.DDOS)
	}
	if cfg.Index.BaseURL != "http://web.archive.org/cdx/search/cdx" {
		t.Fatalf("unexpected index base url: %q", cfg.Index.BaseURL)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() Config {
		return Config{
			Index:   IndexConfig{BaseURL: "http://x", Timeout: time.Second, DomainWorkers: 1, Store: "file"},
			Fetch:   FetchConfig{Concurrency: 1, RequestTimeout: time.Second, Limit: -1, CheckpointStore: "file"},
			DDOS:    DDOSConfig{Threshold: 10},
			Storage: StorageConfig{Backend: "memory"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "zero limit", mutate: func(c *Config) { c.Fetch.Limit = 0 }, wantErr: "fetch.limit"},
		{name: "zero concurrency", mutate: func(c *Config) { c.Fetch.Concurrency = 0 }, wantErr: "fetch.concurrency"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Index.Store = "postgres" }, wantErr: "db.dsn"},
		{name: "postgres checkpoint without dsn", mutate: func(c *Config) { c.Fetch.CheckpointStore = "postgres" }, wantErr: "fetch.checkpoint_store"},
		{name: "unknown store", mutate: func(c *Config) { c.Index.Store = "redis" }, wantErr: "index.store"},
		{name: "gcs without bucket", mutate: func(c *Config) { c.Storage.Backend = "gcs" }, wantErr: "storage.gcs_bucket"},
		{name: "bucket without url", mutate: func(c *Config) { c.Storage.Backend = "bucket" }, wantErr: "storage.bucket_url"},
		{name: "unknown backend", mutate: func(c *Config) { c.Storage.Backend = "ftp" }, wantErr: "storage.backend"},
		{name: "topic without project", mutate: func(c *Config) { c.PubSub.TopicName = "t" }, wantErr: "pubsub.project_id"},
		{name: "negative port", mutate: func(c *Config) { c.Server.Port = -1 }, wantErr: "server.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
