// Package config loads and validates wayback-fetcher configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Server  ServerConfig  `mapstructure:"server"`
	Index   IndexConfig   `mapstructure:"index"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	DDOS    DDOSConfig    `mapstructure:"ddos"`
	Storage StorageConfig `mapstructure:"storage"`
	DB      DBConfig      `mapstructure:"db"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// ServerConfig controls the status endpoint. A zero port disables it.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// IndexConfig governs the index pagination run.
type IndexConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	MatchType         string        `mapstructure:"match_type"`
	CollapseWindow    int           `mapstructure:"collapse_window"`
	FromYear          int           `mapstructure:"from_year"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	MaxRetries        int           `mapstructure:"max_retries"`
	Store             string        `mapstructure:"store"`
	StateDir          string        `mapstructure:"state_dir"`
	CSVDir            string        `mapstructure:"csv_dir"`
	DomainWorkers     int           `mapstructure:"domain_workers"`
	UserAgent         string        `mapstructure:"user_agent"`
}

// FetchConfig governs the snapshot download run.
type FetchConfig struct {
	ArchiveHost    string        `mapstructure:"archive_host"`
	Concurrency    int           `mapstructure:"concurrency"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	CheckpointPath string        `mapstructure:"checkpoint_path"`
	// CheckpointStore is file or postgres; postgres keys the row by CheckpointPath.
	CheckpointStore string `mapstructure:"checkpoint_store"`
	Limit          int           `mapstructure:"limit"`
	DrainTimeout   time.Duration `mapstructure:"drain_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// DDOSConfig holds the throttling escalation thresholds.
type DDOSConfig struct {
	CoolOff          time.Duration `mapstructure:"cool_off"`
	ErrorCoolOff     time.Duration `mapstructure:"error_cool_off"`
	Threshold        int           `mapstructure:"threshold"`
	PenaltyWindow    time.Duration `mapstructure:"penalty_window"`
	DetectionTimeout time.Duration `mapstructure:"detection_timeout"`
}

// StorageConfig selects the blob backend for downloaded pages.
type StorageConfig struct {
	Backend     string `mapstructure:"backend"`
	BaseDir     string `mapstructure:"base_dir"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	BucketURL   string `mapstructure:"bucket_url"`
	ContentType string `mapstructure:"content_type"`
	Minify      bool   `mapstructure:"minify"`
}

// DBConfig controls access to Postgres when index.store is postgres.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for upload notifications. An empty topic
// disables publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WAYBACK")
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
	v.SetDefault("logging.development", true)
	v.SetDefault("server.port", 0)
	v.SetDefault("index.base_url", "http://web.archive.org/cdx/search/cdx")
	v.SetDefault("index.match_type", "prefix")
	v.SetDefault("index.collapse_window", 4)
	v.SetDefault("index.from_year", 2012)
	v.SetDefault("index.timeout", 180*time.Second)
	v.SetDefault("index.requests_per_second", 1.0)
	v.SetDefault("index.max_retries", 3)
	v.SetDefault("index.store", "file")
	v.SetDefault("index.state_dir", "output/url_list")
	v.SetDefault("index.csv_dir", "output")
	v.SetDefault("index.domain_workers", 4)
	v.SetDefault("index.user_agent", "wayback-fetcher/0.1")
	v.SetDefault("fetch.archive_host", "web.archive.org")
	v.SetDefault("fetch.concurrency", 4)
	v.SetDefault("fetch.request_timeout", 10*time.Second)
	v.SetDefault("fetch.checkpoint_path", "/tmp/status")
	v.SetDefault("fetch.checkpoint_store", "file")
	v.SetDefault("fetch.limit", -1)
	v.SetDefault("fetch.drain_timeout", 10*time.Second)
	v.SetDefault("fetch.user_agent", "wayback-fetcher/0.1")
	v.SetDefault("ddos.cool_off", 4*time.Second)
	v.SetDefault("ddos.error_cool_off", 4*time.Second)
	v.SetDefault("ddos.threshold", 10)
	v.SetDefault("ddos.penalty_window", 5*time.Minute)
	v.SetDefault("ddos.detection_timeout", 3*time.Minute)
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.base_dir", "output/pages")
	v.SetDefault("storage.content_type", "text/html; charset=utf-8")
	v.SetDefault("storage.minify", true)
	v.SetDefault("db.table", "pagination_state")
	v.SetDefault("db.max_conns", 4)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port < 0 {
		return fmt.Errorf("server.port must be >= 0")
	}
	if c.Index.BaseURL == "" {
		return fmt.Errorf("index.base_url must be set")
	}
	if c.Index.Timeout <= 0 {
		return fmt.Errorf("index.timeout must be > 0")
	}
	if c.Index.DomainWorkers <= 0 {
		return fmt.Errorf("index.domain_workers must be > 0")
	}
	switch c.Index.Store {
	case "file":
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when index.store is postgres")
		}
	default:
		return fmt.Errorf("index.store must be file or postgres, got %q", c.Index.Store)
	}
	if c.Fetch.Concurrency <= 0 {
		return fmt.Errorf("fetch.concurrency must be > 0")
	}
	if c.Fetch.RequestTimeout <= 0 {
		return fmt.Errorf("fetch.request_timeout must be > 0")
	}
	switch c.Fetch.CheckpointStore {
	case "file":
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when fetch.checkpoint_store is postgres")
		}
	default:
		return fmt.Errorf("fetch.checkpoint_store must be file or postgres, got %q", c.Fetch.CheckpointStore)
	}
	if c.Fetch.Limit == 0 {
		return fmt.Errorf("fetch.limit must be non-zero (-1 for unbounded)")
	}
	if c.DDOS.Threshold <= 0 {
		return fmt.Errorf("ddos.threshold must be > 0")
	}
	switch c.Storage.Backend {
	case "memory", "local":
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set when storage.backend is gcs")
		}
	case "bucket":
		if c.Storage.BucketURL == "" {
			return fmt.Errorf("storage.bucket_url must be set when storage.backend is bucket")
		}
	default:
		return fmt.Errorf("storage.backend must be memory, local, gcs or bucket, got %q", c.Storage.Backend)
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	return nil
}
